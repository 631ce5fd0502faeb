package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/latentode/internal/analysis"
	"github.com/san-kum/latentode/internal/automation"
	"github.com/san-kum/latentode/internal/config"
	"github.com/san-kum/latentode/internal/dataset"
	"github.com/san-kum/latentode/internal/experiment"
	"github.com/san-kum/latentode/internal/export"
	"github.com/san-kum/latentode/internal/storage"
	"github.com/san-kum/latentode/internal/trainer"
	"github.com/san-kum/latentode/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	system     string
	steps      int
	batchSize  int
	lr         float64
	seed       int64
	schedule   string
	workers    int
	outPlot    string
	live       string
	frameRate  int
	logFormat  string
	size       int
	outFile    string
	svgFile    string
	xAxis      int
	yAxis      int
	sweepSpecs []string

	systemParams map[string]string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "latentode",
		Short:        "latent ODE training on irregularly sampled trajectories",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultRunsDir, "runs directory")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "train a latent ODE model",
		Args:  cobra.NoArgs,
		RunE:  runTrain,
	}
	addConfigFlags(trainCmd)
	trainCmd.Flags().StringVar(&outPlot, "out", config.DefaultPlotPath, "svg file for prior samples")
	trainCmd.Flags().StringVar(&live, "live", "none", "progress view: none, tui or plain")
	trainCmd.Flags().IntVar(&frameRate, "fps", 10, "frame rate for the plain view")
	trainCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers per batch (0 = all cpus)")
	trainCmd.Flags().StringVar(&schedule, "schedule", "constant", "learning rate schedule")
	trainCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format: text or json")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "write a synthetic dataset to csv",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVar(&system, "system", "oscillator", "generating system")
	generateCmd.Flags().StringToStringVar(&systemParams, "param", nil, "system parameter, e.g. mu=2")
	generateCmd.Flags().IntVar(&size, "size", 100, "number of trajectories")
	generateCmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	generateCmd.Flags().StringVar(&outFile, "out", "", "output file (default stdout)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the loss curve and final sample of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "also write every checkpoint to this svg file")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export the final sample of a run to csv",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run to json",
		Args:  cobra.MaximumNArgs(1),
		RunE:  exportJSON,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency and decay analysis of prior samples",
		Args:  cobra.MaximumNArgs(1),
		RunE:  analyzeRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase plane plot of the final sample",
		Args:  cobra.MaximumNArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "channel for the x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 1, "channel for the y-axis")
	phaseCmd.Flags().StringVar(&svgFile, "svg", "", "also write the phase plane to this svg file")

	presetsCmd := &cobra.Command{
		Use:   "presets [system]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			systems := config.ListSystems()
			if len(args) > 0 {
				systems = args
			}
			for _, s := range systems {
				presets := config.ListPresets(s)
				if len(presets) == 0 {
					fmt.Printf("no presets for system: %s\n", s)
					continue
				}
				fmt.Printf("presets for %s:\n", s)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "print the resolved configuration or write it to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showConfig,
	}
	addConfigFlags(configCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search over training knobs",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepSpecs, "param", nil, "knob and values, e.g. lr=0.01,0.003")
	sweepCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format: text or json")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a yaml batch of training jobs",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format: text or json")

	rootCmd.AddCommand(trainCmd, generateCmd, listCmd, plotCmd, exportCSVCmd, exportJSONCmd, analyzeCmd, phaseCmd, presetsCmd, configCmd, sweepCmd, scenarioCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&system, "system", "oscillator", "generating system")
	cmd.Flags().IntVar(&steps, "steps", 0, "training steps")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "trajectories per batch")
	cmd.Flags().Float64Var(&lr, "lr", 0, "learning rate")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
}

// resolveConfig layers preset, config file and explicit flags, later
// sources winning.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(system, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(system))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("system") {
		cfg.Data.System = system
	}
	if flags.Changed("steps") {
		cfg.Train.Steps = steps
	}
	if flags.Changed("batch-size") {
		cfg.Train.BatchSize = batchSize
	}
	if flags.Changed("lr") {
		cfg.Train.LR = lr
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Lookup("schedule") != nil && flags.Changed("schedule") {
		cfg.Train.Schedule = schedule
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Train.Workers = workers
	}
	if flags.Lookup("out") != nil && flags.Changed("out") {
		cfg.Output.Plot = outPlot
	}
	if flags.Lookup("log-format") != nil && flags.Changed("log-format") {
		cfg.Output.LogFormat = logFormat
	}
	if cmd.Root().PersistentFlags().Changed("data") {
		cfg.Output.RunsDir = dataDir
	}
	return cfg, cfg.Validate()
}

func newLogger(format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Output.LogFormat)
	if live == "tui" {
		logger.SetOutput(io.Discard)
	}

	ctx, stop := signalContext()
	defer stop()

	exp := experiment.New(cfg, logger)
	if err := exp.Setup(ctx); err != nil {
		return err
	}

	var outcome *experiment.Outcome
	train := func(ctx context.Context, obs trainer.Observer) (*trainer.Result, error) {
		var observers []trainer.Observer
		if obs != nil {
			observers = append(observers, obs)
		}
		out, err := exp.Run(ctx, observers...)
		outcome = out
		if out == nil {
			return nil, err
		}
		return out.Result, err
	}

	switch live {
	case "tui":
		title := fmt.Sprintf("latent ODE on %s", cfg.Data.System)
		_, err = tui.RunTraining(ctx, title, cfg.Train.Steps, train)
	case "plain":
		r := tui.NewLiveRenderer(os.Stdout, frameRate)
		r.Start()
		_, err = train(ctx, r)
		r.Stop()
	case "none", "":
		_, err = train(ctx, nil)
	default:
		return fmt.Errorf("unknown live view %q (want none, tui or plain)", live)
	}
	if err != nil {
		return err
	}

	st := storage.New(cfg.Output.RunsDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, outcome.Result, outcome.Metrics)
	if err != nil {
		return err
	}
	if cfg.Output.Plot != "" {
		if err := export.WriteFile(cfg.Output.Plot, outcome.Result.Checkpoints, 320, 240); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", outcome.Result.Elapsed)
	fmt.Printf("run id: %s\n", runID)
	if cfg.Output.Plot != "" {
		fmt.Printf("samples: %s\n", cfg.Output.Plot)
	}
	fmt.Println("\nmetrics:")
	printMetrics(outcome.Metrics)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg := dataset.DefaultConfig()
	cfg.System = system
	cfg.Size = size
	for k, v := range systemParams {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("bad --param %s=%s: %w", k, v, err)
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[k] = f
	}
	data, err := dataset.Generate(ctx, cfg, trainer.SplitSeed(seed).Data)
	if err != nil {
		return err
	}

	w := os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return dataset.WriteCSV(w, data)
}

// resolveRun returns the requested run id, or the latest run when none
// is given.
func resolveRun(st *storage.Store, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return st.Latest()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYSTEM\tTIME\tSTEPS\tSEED\tLOSS\tELAPSED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\t%v\n",
			run.ID,
			run.System,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Steps,
			run.Seed,
			run.FinalLoss,
			run.Elapsed,
		)
	}
	return w.Flush()
}

func loadRun(args []string) (*storage.Store, *storage.RunMetadata, []trainer.Checkpoint, error) {
	st := storage.New(dataDir)
	runID, err := resolveRun(st, args)
	if err != nil {
		return nil, nil, nil, err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, nil, err
	}
	checkpoints, err := st.LoadSamples(runID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(checkpoints) == 0 {
		return nil, nil, nil, fmt.Errorf("run %s has no samples", runID)
	}
	return st, meta, checkpoints, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, meta, checkpoints, err := loadRun(args)
	if err != nil {
		return err
	}
	history, err := st.LoadLosses(meta.ID)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("system: %s\n", meta.System)
	fmt.Printf("steps: %d\n\n", len(history))

	if len(history) > 1 {
		losses := make([]float64, len(history))
		for i, r := range history {
			losses[i] = r.Parts.Total
		}
		fmt.Println(asciigraph.Plot(losses,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("loss"),
		))
		fmt.Println()
	}

	last := checkpoints[len(checkpoints)-1]
	for ch := 0; ch < len(last.Values[0]); ch++ {
		data := make([]float64, len(last.Values))
		for i, y := range last.Values {
			data[i] = y[ch]
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("y%d at step %d", ch, last.Step)),
		))
		fmt.Println()
	}

	if svgFile != "" {
		if err := export.WriteFile(svgFile, checkpoints, 320, 240); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgFile)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, _, checkpoints, err := loadRun(args)
	if err != nil {
		return err
	}
	return storage.WriteCheckpointCSV(os.Stdout, checkpoints[len(checkpoints)-1])
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runID, err := resolveRun(st, args)
	if err != nil {
		return err
	}
	return st.ExportJSON(os.Stdout, runID)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	_, meta, checkpoints, err := loadRun(args)
	if err != nil {
		return err
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("system: %s\n\n", meta.System)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tFREQ_HZ\tPERIOD_S\tDECAY\tSTABILITY")
	for _, cp := range checkpoints {
		est := experiment.SampleSpectrum(cp)
		freq, period, decay := "-", "-", "-"
		if f, ok := est["sample_freq_hz"]; ok && f > 0 {
			freq = fmt.Sprintf("%.4f", f)
			period = fmt.Sprintf("%.3f", 1/f)
		}
		if d, ok := est["sample_decay"]; ok {
			decay = fmt.Sprintf("%.4f", d)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.3f\n", cp.Step, freq, period, decay, cp.Stability)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if f, ok := meta.Metrics["true_freq_hz"]; ok {
		fmt.Printf("\ngenerating system: %.4f hz, decay %.4f\n", f, meta.Metrics["true_decay"])
	}

	last := checkpoints[len(checkpoints)-1]
	ch := make([]float64, len(last.Values))
	for i, y := range last.Values {
		ch[i] = y[0]
	}
	spec, err := analysis.SpectrumOf(last.Times, ch, 1)
	if err != nil {
		return nil
	}
	n := min(len(spec.Power), 80)
	if n > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(spec.Power[1:n],
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("power spectrum of y0, step %d (%.3f hz/bin)", last.Step, spec.Freqs[1])),
		))
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	_, meta, checkpoints, err := loadRun(args)
	if err != nil {
		return err
	}
	last := checkpoints[len(checkpoints)-1]
	if dim := len(last.Values[0]); xAxis >= dim || yAxis >= dim || xAxis < 0 || yAxis < 0 {
		return fmt.Errorf("axes must be in [0, %d)", dim)
	}

	fmt.Printf("phase plane: %s\n", meta.ID)
	fmt.Printf("system: %s, step %d\n", meta.System, last.Step)
	fmt.Printf("x-axis: y%d, y-axis: y%d\n\n", xAxis, yAxis)

	portrait := analysis.NewPhasePortrait(last.Values, xAxis, yAxis)
	fmt.Println(analysis.PhasePortraitToASCII(portrait, 60, 20))

	if section := analysis.NewPoincareSection(last.Times, last.Values, yAxis, 0, xAxis, yAxis); section != nil && len(section.Points) > 0 {
		fmt.Printf("\nsection y%d = 0 (%d crossings):\n", yAxis, len(section.Points))
		fmt.Println(analysis.PoincareSectionToASCII(section, 60, 10))
	}

	if svgFile != "" {
		svg := export.PhaseSVG(last, 400, 400, export.Palette[0])
		if err := os.WriteFile(svgFile, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgFile)
	}
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		return config.Save(args[0], cfg)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

// parseSweep turns "name=v1,v2" specs into grid axes.
func parseSweep(specs []string) ([]string, [][]float64, error) {
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("at least one --param is required")
	}
	names := make([]string, 0, len(specs))
	ranges := make([][]float64, 0, len(specs))
	for _, spec := range specs {
		name, list, ok := strings.Cut(spec, "=")
		if !ok || name == "" || list == "" {
			return nil, nil, fmt.Errorf("bad --param %q, want name=v1,v2", spec)
		}
		var values []float64
		for _, s := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bad value in --param %q: %w", spec, err)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseSweep(sweepSpecs)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Output.LogFormat)
	logger.SetLevel(logrus.WarnLevel)

	ctx, stop := signalContext()
	defer stop()

	trials, err := experiment.Sweep(ctx, cfg, names, ranges, logger)
	if len(trials) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\tLOSS")
		for _, tr := range trials {
			row := make([]string, 0, len(names)+1)
			for _, name := range names {
				row = append(row, strconv.FormatFloat(tr.Params[name], 'g', -1, 64))
			}
			if tr.Err != nil {
				row = append(row, "error: "+tr.Err.Error())
			} else {
				row = append(row, fmt.Sprintf("%.6f", tr.Score))
			}
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		if ferr := w.Flush(); ferr != nil {
			return ferr
		}
	}
	return err
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if sc.Name != "" {
		fmt.Printf("scenario: %s\n", sc.Name)
	}
	results, err := automation.RunScenario(ctx, sc, st, newLogger(logFormat))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tRUN\tLOSS\tRMSE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.6f\t%.6f\n", r.Name, r.RunID, r.Metrics["final_loss"], r.Metrics["recon_rmse"])
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}
