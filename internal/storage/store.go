package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/latent"
	"github.com/san-kum/latentode/internal/trainer"
)

const (
	metadataFile = "metadata.json"
	lossFile     = "loss.csv"
	samplesFile  = "samples.csv"
)

var ErrNoRuns = errors.New("storage: no stored runs")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	System    string             `json:"system"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Steps     int                `json:"steps"`
	FinalLoss float64            `json:"final_loss"`
	Elapsed   time.Duration      `json:"elapsed_ns"`
	Config    *config.Config     `json:"config"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes a run directory holding metadata.json, loss.csv and
// samples.csv and returns the run id.
func (s *Store) Save(cfg *config.Config, res *trainer.Result, metrics map[string]float64) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Data.System, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:        runID,
		System:    cfg.Data.System,
		Timestamp: now,
		Seed:      cfg.Seed,
		Steps:     len(res.History),
		FinalLoss: res.Final().Total,
		Elapsed:   res.Elapsed,
		Config:    cfg,
		Metrics:   metrics,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeLosses(filepath.Join(runDir, lossFile), res.History); err != nil {
		return "", err
	}
	if err := writeSamples(filepath.Join(runDir, samplesFile), res.Checkpoints); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var lossHeader = []string{"step", "epoch", "batch", "lr", "loss", "recon", "kl", "grad_norm", "evals", "data_ms", "compute_ms"}

func writeLosses(path string, history []trainer.StepRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(lossHeader); err != nil {
		return err
	}
	for _, r := range history {
		row := []string{
			strconv.Itoa(r.Step),
			strconv.Itoa(r.Epoch),
			strconv.Itoa(r.Batch),
			formatFloat(r.LR),
			formatFloat(r.Parts.Total),
			formatFloat(r.Parts.Reconstruction),
			formatFloat(r.Parts.KL),
			formatFloat(r.GradNorm),
			strconv.Itoa(r.Evals),
			formatFloat(float64(r.Data.Microseconds()) / 1000),
			formatFloat(float64(r.Compute.Microseconds()) / 1000),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSamples(path string, checkpoints []trainer.Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(checkpoints) > 0 && len(checkpoints[0].Values) > 0 {
		header := []string{"step", "time"}
		for i := range checkpoints[0].Values[0] {
			header = append(header, fmt.Sprintf("y%d", i))
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for _, cp := range checkpoints {
		for i, y := range cp.Values {
			row := []string{strconv.Itoa(cp.Step), formatFloat(cp.Times[i])}
			for _, v := range y {
				row = append(row, formatFloat(v))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

// Latest returns the id of the most recent run.
func (s *Store) Latest() (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNoRuns
	}
	return runs[len(runs)-1].ID, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	return records[1:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// LoadLosses reads the per-step history of a run.
func (s *Store) LoadLosses(runID string) ([]trainer.StepRecord, error) {
	records, err := readRecords(filepath.Join(s.baseDir, runID, lossFile))
	if err != nil {
		return nil, err
	}
	history := make([]trainer.StepRecord, 0, len(records))
	for line, rec := range records {
		if len(rec) != len(lossHeader) {
			return nil, fmt.Errorf("storage: %s line %d: expected %d fields, got %d", lossFile, line+2, len(lossHeader), len(rec))
		}
		v, err := parseFloats(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: %s line %d: %w", lossFile, line+2, err)
		}
		history = append(history, trainer.StepRecord{
			Step:     int(v[0]),
			Epoch:    int(v[1]),
			Batch:    int(v[2]),
			LR:       v[3],
			Parts:    latent.LossParts{Total: v[4], Reconstruction: v[5], KL: v[6]},
			GradNorm: v[7],
			Evals:    int(v[8]),
			Data:     time.Duration(v[9] * float64(time.Millisecond)),
			Compute:  time.Duration(v[10] * float64(time.Millisecond)),
		})
	}
	return history, nil
}

// LoadSamples reads the checkpoint samples of a run grouped by step.
func (s *Store) LoadSamples(runID string) ([]trainer.Checkpoint, error) {
	records, err := readRecords(filepath.Join(s.baseDir, runID, samplesFile))
	if err != nil {
		return nil, err
	}
	var out []trainer.Checkpoint
	for line, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("storage: %s line %d: too few fields", samplesFile, line+2)
		}
		v, err := parseFloats(rec)
		if err != nil {
			return nil, fmt.Errorf("storage: %s line %d: %w", samplesFile, line+2, err)
		}
		step := int(v[0])
		if len(out) == 0 || out[len(out)-1].Step != step {
			out = append(out, trainer.Checkpoint{Step: step})
		}
		cp := &out[len(out)-1]
		cp.Times = append(cp.Times, v[1])
		cp.Values = append(cp.Values, v[2:])
	}
	return out, nil
}
