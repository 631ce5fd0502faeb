package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/san-kum/latentode/internal/trainer"
)

type ExportData struct {
	ID        string             `json:"id"`
	System    string             `json:"system"`
	Seed      int64              `json:"seed"`
	Steps     int                `json:"steps"`
	FinalLoss float64            `json:"final_loss"`
	Losses    []float64          `json:"losses"`
	Samples   []ExportSample     `json:"samples"`
	Metrics   map[string]float64 `json:"metrics"`
}

type ExportSample struct {
	Step   int         `json:"step"`
	Times  []float64   `json:"times"`
	Values [][]float64 `json:"values"`
}

// ExportJSON writes a stored run as a single JSON document.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	history, err := s.LoadLosses(runID)
	if err != nil {
		return err
	}
	checkpoints, err := s.LoadSamples(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		ID:        meta.ID,
		System:    meta.System,
		Seed:      meta.Seed,
		Steps:     meta.Steps,
		FinalLoss: meta.FinalLoss,
		Losses:    make([]float64, len(history)),
		Samples:   make([]ExportSample, len(checkpoints)),
		Metrics:   meta.Metrics,
	}
	for i, r := range history {
		data.Losses[i] = r.Parts.Total
	}
	for i, cp := range checkpoints {
		data.Samples[i] = ExportSample{Step: cp.Step, Times: cp.Times, Values: cp.Values}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// WriteCheckpointCSV writes one checkpoint as time,y0,y1,... rows.
func WriteCheckpointCSV(w io.Writer, cp trainer.Checkpoint) error {
	cw := csv.NewWriter(w)
	header := []string{"time"}
	if len(cp.Values) > 0 {
		for i := range cp.Values[0] {
			header = append(header, fmt.Sprintf("y%d", i))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, y := range cp.Values {
		row := []string{formatFloat(cp.Times[i])}
		for _, v := range y {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
