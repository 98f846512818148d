package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/edaniels/golog"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/ctlkit/internal/analysis"
	"github.com/san-kum/ctlkit/internal/automation"
	"github.com/san-kum/ctlkit/internal/config"
	"github.com/san-kum/ctlkit/internal/control/pid"
	"github.com/san-kum/ctlkit/internal/evidence"
	"github.com/san-kum/ctlkit/internal/experiment"
	"github.com/san-kum/ctlkit/internal/export"
	"github.com/san-kum/ctlkit/internal/optim"
	"github.com/san-kum/ctlkit/internal/sim"
	"github.com/san-kum/ctlkit/internal/tui"
	"github.com/san-kum/ctlkit/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	dt         time.Duration
	duration   time.Duration
	seed       int64
	integrator string
	kp         float64
	ki         float64
	kd         float64
	setpoint   []float64
	noise      float64
	tuneIMC    bool
	lambda     float64
	numRuns    int
	noSave     bool
	channel    int
	every      int

	// tune
	plantK     float64
	plantTau   float64
	plantTheta float64
	floorC     float64

	// search
	metric   string
	kpValues []float64
	kiValues []float64
	kdValues []float64

	// robust
	trials  int
	perturb float64

	// ident
	amplitude float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ctlkit",
		Short:         "real-time control kernel lab",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".ctlkit", "run evidence directory")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a closed-loop scenario and record evidence",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().IntVar(&numRuns, "runs", 1, "number of noise seeds to run in parallel")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write run evidence")
	runCmd.Flags().IntVar(&channel, "channel", 0, "channel to plot")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run a scenario with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)
	liveCmd.Flags().IntVar(&every, "every", 10, "ticks per displayed frame")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "synthesize IMC PID gains for a first-order-plus-dead-time plant",
		RunE:  runTune,
	}
	tuneCmd.Flags().Float64Var(&plantK, "k", 1, "process gain")
	tuneCmd.Flags().Float64Var(&plantTau, "tau", 0.5, "time constant in seconds")
	tuneCmd.Flags().Float64Var(&plantTheta, "theta", 0.05, "dead time in seconds")
	tuneCmd.Flags().Float64Var(&lambda, "lambda", 0, "closed-loop time constant in seconds")
	tuneCmd.Flags().DurationVar(&dt, "dt", config.DefaultDt, "control period")
	tuneCmd.Flags().Float64Var(&floorC, "c", pid.DefaultLambdaFloor, "lambda floor in periods")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().IntVar(&channel, "channel", 0, "channel to plot")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list scenario presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models := config.Models()
			if len(args) == 1 {
				models = args
			}
			for _, m := range models {
				names := config.ListPresets(m)
				if len(names) == 0 {
					fmt.Printf("no presets for model: %s\n", m)
					continue
				}
				fmt.Printf("presets for %s:\n", m)
				for _, p := range names {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump [model] [preset] [file]",
		Short: "write a preset as a yaml scenario file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetPreset(args[0], args[1])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s/%s (available: %v)", args[0], args[1], config.ListPresets(args[0]))
			}
			return config.Save(args[2], cfg)
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id] [file]",
		Short: "export a recorded run as a plot (svg, png, pdf), html page or json",
		Args:  cobra.ExactArgs(2),
		RunE:  exportRun,
	}
	exportCmd.Flags().IntVar(&channel, "channel", 0, "channel to export")

	searchCmd := &cobra.Command{
		Use:   "search [model]",
		Short: "grid search PID gains against a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	addScenarioFlags(searchCmd)
	searchCmd.Flags().StringVar(&metric, "metric", "iae", "metric to minimize")
	searchCmd.Flags().Float64SliceVar(&kpValues, "kp-grid", nil, "proportional gains to try")
	searchCmd.Flags().Float64SliceVar(&kiValues, "ki-grid", nil, "integral gains to try")
	searchCmd.Flags().Float64SliceVar(&kdValues, "kd-grid", nil, "derivative gains to try")

	batchCmd := &cobra.Command{
		Use:   "batch [suite.yaml]",
		Short: "run a scenario suite and check metric limits",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	robustCmd := &cobra.Command{
		Use:   "robust [model]",
		Short: "check fixed gains against random plant model mismatch",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRobust,
	}
	addScenarioFlags(robustCmd)
	robustCmd.Flags().IntVar(&trials, "trials", 20, "number of perturbed plants")
	robustCmd.Flags().Float64Var(&perturb, "perturb", 0.2, "relative perturbation of gain, time constant and dead time")

	identCmd := &cobra.Command{
		Use:   "ident [model]",
		Short: "bump test the plant open loop and fit an FOPDT model with IMC gains",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIdent,
	}
	addScenarioFlags(identCmd)
	identCmd.Flags().Float64Var(&amplitude, "amplitude", 1, "input step size")
	identCmd.Flags().IntVar(&channel, "channel", 0, "channel to fit")

	rootCmd.AddCommand(runCmd, liveCmd, tuneCmd, listCmd, showCmd, presetsCmd, dumpCmd, exportCmd, searchCmd, batchCmd, robustCmd, identCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "step", "scenario preset")
	cmd.Flags().DurationVar(&dt, "dt", config.DefaultDt, "control period")
	cmd.Flags().DurationVar(&duration, "time", config.DefaultDuration, "run length")
	cmd.Flags().Int64Var(&seed, "seed", 0, "noise seed")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "plant integrator")
	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	cmd.Flags().Float64Var(&ki, "ki", config.DefaultKi, "integral gain")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
	cmd.Flags().Float64SliceVar(&setpoint, "setpoint", nil, "setpoint per channel")
	cmd.Flags().Float64Var(&noise, "noise", 0, "measurement noise std")
	cmd.Flags().BoolVar(&tuneIMC, "imc", false, "tune gains by IMC from the plant model")
	cmd.Flags().Float64Var(&lambda, "lambda", 0, "IMC closed-loop time constant in seconds")
}

// loadScenario resolves the preset, then the config file, then explicit
// flags, each overriding the last.
func loadScenario(cmd *cobra.Command, args []string) (string, *config.Config, error) {
	model := "fopdt"
	if len(args) > 0 {
		model = args[0]
	}

	name := model + "/" + preset
	cfg := config.GetPreset(model, preset)
	if cfg == nil {
		return "", nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets(model))
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		name = configFile
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = config.Duration(dt)
	}
	if flags.Changed("time") {
		cfg.Duration = config.Duration(duration)
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("kp") {
		cfg.Controller.Kp = []float64{kp}
	}
	if flags.Changed("ki") {
		cfg.Controller.Ki = []float64{ki}
	}
	if flags.Changed("kd") {
		cfg.Controller.Kd = []float64{kd}
	}
	if flags.Changed("setpoint") {
		cfg.Setpoint = setpoint
	}
	if flags.Changed("noise") {
		cfg.Sensor.NoiseStd = noise
	}
	if tuneIMC {
		cfg.Tune.Method = "imc"
	}
	if flags.Changed("lambda") {
		cfg.Tune.Lambda = lambda
	}
	return name, cfg, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	name, cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	logger := golog.NewDevelopmentLogger("ctlkit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if numRuns > 1 {
		return runEnsemble(ctx, name, cfg, logger)
	}

	exp, err := experiment.New(name, cfg, logger)
	if err != nil {
		return err
	}

	var (
		st    *evidence.Store
		runID string
		rec   *evidence.JSONLRecorder
		tap   *evidence.Tap
	)
	if !noSave {
		st = evidence.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if runID, err = st.NewRun(); err != nil {
			return err
		}
		if rec, err = st.Recorder(runID); err != nil {
			return err
		}
		tap = evidence.NewTap(rec)
		exp.Simulator().AddObserver(tap)
	}

	start := time.Now()
	result, runErr := exp.Run(ctx)
	elapsed := time.Since(start)

	if st != nil {
		err := multierr.Combine(runErr, tap.Err(), rec.Close())
		if result != nil {
			err = multierr.Append(err, st.Save(runID, exp.Info(), result))
		}
		if err != nil {
			return err
		}
	} else if runErr != nil {
		return runErr
	}

	fmt.Println(viz.Summary(name, result, channel))
	printErrorSpectrum(result, cfg.Dt.D())
	fmt.Printf("\ncompleted %d ticks in %v\n", result.Steps, elapsed)
	if runID != "" {
		fmt.Printf("run id: %s\n", runID)
	}
	return nil
}

func runEnsemble(ctx context.Context, name string, cfg *config.Config, logger golog.Logger) error {
	results, err := experiment.Ensemble(name, cfg, numRuns, logger).Run(ctx, cfg.SimConfig())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tIAE\tISE\tOVERSHOOT\tERR STD")
	iae := make([]float64, len(results))
	for i, r := range results {
		iae[i] = r.Metrics["iae"]
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.2f%%\t%.6f\n",
			cfg.Seed+int64(i), r.Metrics["iae"], r.Metrics["ise"], r.Metrics["overshoot_pct"], r.Metrics["error_std"])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	mean, std := stat.MeanStdDev(iae, nil)
	fmt.Printf("\niae over %d seeds: %.6f ± %.6f\n", len(results), mean, std)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	name, cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	// the alt screen owns the terminal
	var logger golog.Logger = zap.NewNop().Sugar()

	exp, err := experiment.New(name, cfg, logger)
	if err != nil {
		return err
	}

	result, err := tui.Run(context.Background(), exp.Simulator(), exp.SimConfig(), name, every)
	if err != nil {
		return err
	}
	fmt.Println(viz.MetricsTable(result.Metrics))
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	out, err := pid.Synthesize(pid.IMCInputs{
		K:      plantK,
		Tau:    plantTau,
		Theta:  plantTheta,
		Lambda: lambda,
		DtNs:   dt.Nanoseconds(),
		C:      floorC,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LAMBDA\tKP\tKI\tKD\tTAU_F")
	fmt.Fprintf(w, "%.4g\t%.6g\t%.6g\t%.6g\t%.4g\n", out.Lambda, out.Kp, out.Ki, out.Kd, out.TauF)
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := evidence.New(dataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tUPDATES\tREJECTED\tTRIPS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%d\t%d\t%d\n",
			run.ID,
			run.Preset,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			time.Duration(run.DurationNs),
			time.Duration(run.DtNs),
			run.Kpi.Updates,
			run.Rejected,
			run.Kpi.WatchdogTrips,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := evidence.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}

	result := &sim.Result{
		Times:    tr.Times,
		R:        tr.R,
		Y:        tr.Y,
		U:        tr.U,
		Health:   meta.Health,
		Kpi:      meta.Kpi,
		Metrics:  meta.Metrics,
		Steps:    meta.Steps,
		Rejected: meta.Rejected,
	}
	title := fmt.Sprintf("%s  %s  %s", meta.ID, meta.Preset, meta.Timestamp.Format(time.RFC3339))
	fmt.Println(viz.Summary(title, result, channel))
	printErrorSpectrum(result, time.Duration(meta.DtNs))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := evidence.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	tr, err := st.LoadTrace(args[0])
	if err != nil {
		return err
	}

	path := args[1]
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".html":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if ext == ".json" {
			err = export.WriteJSON(f, meta, tr)
		} else {
			err = export.WriteHTML(f, meta, tr, channel)
		}
		if err := multierr.Combine(err, f.Close()); err != nil {
			return err
		}
	default:
		title := fmt.Sprintf("%s  %s", meta.Preset, meta.Timestamp.Format(time.RFC3339))
		if err := export.SavePlot(path, tr, channel, title); err != nil {
			return err
		}
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// printErrorSpectrum reports where the tracking error concentrates, which
// points at oscillation left by aggressive gains or sensor noise.
func printErrorSpectrum(result *sim.Result, dt time.Duration) {
	if channel < 0 || len(result.Y) == 0 || channel >= len(result.Y[0]) {
		return
	}
	r := make([]float64, len(result.Y))
	y := make([]float64, len(result.Y))
	for i := range result.Y {
		r[i], y[i] = result.R[i][channel], result.Y[i][channel]
	}
	psd, err := analysis.ErrorSpectrum(r, y, dt.Seconds())
	if err != nil {
		return
	}
	f, p := psd.Dominant()
	fmt.Printf("dominant error frequency: %.3g Hz (power %.3g)\n", f, p)
}

func runSearch(cmd *cobra.Command, args []string) error {
	name, cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	logger := golog.NewDevelopmentLogger("ctlkit")

	var axes []optim.Axis
	for _, a := range []optim.Axis{{Name: "kp", Values: kpValues}, {Name: "ki", Values: kiValues}, {Name: "kd", Values: kdValues}} {
		if len(a.Values) > 0 {
			axes = append(axes, a)
		}
	}
	if len(axes) == 0 {
		return fmt.Errorf("nothing to search: set --kp-grid, --ki-grid or --kd-grid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gs := optim.NewGridSearch(logger, axes...)
	logger.Infof("%s: searching %d candidates for minimum %s", name, gs.Size(), metric)
	best, err := gs.Search(ctx, cfg, metric)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(best.Params))
	for k := range best.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAM\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%.6g\n", k, best.Params[k])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%s = %.6g (%d evaluated, %d failed)\n", metric, best.Value, best.Evaluated, best.Failed)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	suite, err := automation.LoadSuite(args[0])
	if err != nil {
		return err
	}
	logger := golog.NewDevelopmentLogger("ctlkit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSuite(ctx, suite, logger)
	if err != nil {
		return err
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRESULT\tIAE\tOVERSHOOT\tNOTES")
	for _, r := range results {
		verdict := "pass"
		if !r.Passed() {
			verdict = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%.6f\t%.2f%%\t%s\n",
			r.Name, verdict, r.Result.Metrics["iae"], r.Result.Metrics["overshoot_pct"], strings.Join(r.Failures, "; "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d steps failed", suite.Name, failed, len(results))
	}
	return nil
}

func runIdent(cmd *cobra.Command, args []string) error {
	name, cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	logger := golog.NewDevelopmentLogger("ctlkit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	model, _, err := experiment.BumpTest(ctx, cfg, amplitude, channel, logger)
	if err != nil {
		return err
	}
	gains, err := pid.Synthesize(pid.IMCInputs{
		K:      model.K,
		Tau:    model.Tau,
		Theta:  model.Theta,
		Lambda: cfg.Tune.Lambda,
		DtNs:   cfg.Dt.D().Nanoseconds(),
		C:      cfg.Tune.C,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "K\tTAU\tTHETA\tLAMBDA\tKP\tKI\tKD")
	fmt.Fprintf(w, "%.4g\t%.4g\t%.4g\t%.4g\t%.6g\t%.6g\t%.6g\n",
		model.K, model.Tau, model.Theta, gains.Lambda, gains.Kp, gains.Ki, gains.Kd)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%s: fitted from a %g step on channel %d\n", name, amplitude, channel)
	return nil
}

func runRobust(cmd *cobra.Command, args []string) error {
	name, cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	logger := golog.NewDevelopmentLogger("ctlkit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := automation.RunMonteCarlo(ctx, cfg, automation.MonteCarloConfig{
		Trials:       trials,
		Perturbation: perturb,
		Seed:         uint64(cfg.Seed),
	}, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tK\tTAU\tTHETA\tSTABLE\tIAE")
	for _, t := range res {
		fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%v\t%.6f\n", t.ID, t.K, t.Tau, t.Theta, t.Stable, t.IAE)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	stable, unstable, mean, std := automation.MonteCarloStats(res)
	fmt.Printf("\n%s: %d stable, %d unstable, iae %.6f ± %.6f\n", name, stable, unstable, mean, std)
	return nil
}
