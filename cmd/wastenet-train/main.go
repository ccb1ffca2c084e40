// Command wastenet-train trains the waste classifier across a descending
// batch size sweep. Each run reloads the saved model artifact, so later runs
// continue from the weights the previous run left behind. After every run it
// evaluates on held-out data, saves checkpoints and plots, and records the
// outcome in the run history database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tsawler/wastenet/config"
	"github.com/tsawler/wastenet/history"
	"github.com/tsawler/wastenet/layers"
	"github.com/tsawler/wastenet/logging"
	"github.com/tsawler/wastenet/optimizer"
	"github.com/tsawler/wastenet/training"
	"github.com/tsawler/wastenet/vision/dataloader"
	"github.com/tsawler/wastenet/vision/dataset"
)

func main() {
	defaults := config.Default()

	cfgPath := flag.String("config", "wastenet.toml", "TOML configuration file")
	initConfig := flag.Bool("init-config", false, "write an example config file to the -config path and exit")
	dataDir := flag.String("data", defaults.Data.Dir, "dataset root directory")
	modelPath := flag.String("model", defaults.Model.Path, "model artifact path")
	epochs := flag.Int("epochs", defaults.Train.Epochs, "maximum epochs per run")
	patience := flag.Int("patience", defaults.Train.Patience, "early stopping patience, 0 disables")
	batch := flag.Int("batch", defaults.Train.BatchSize, "starting batch size for the sweep")
	lr := flag.Float64("lr", defaults.Train.LearningRate, "optimizer learning rate")
	seed := flag.Int64("seed", defaults.Train.Seed, "random seed, 0 draws a fresh one")
	onnx := flag.Bool("onnx", defaults.Model.ExportONNX, "also export each final model as ONNX")
	logFile := flag.String("log", defaults.Log.File, "debug log file, empty disables")
	noColor := flag.Bool("no-color", defaults.Log.NoColor, "disable console colors")
	flag.Parse()

	if *initConfig {
		if err := config.WriteExample(*cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println("wrote example config to", *cfgPath)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Only flags the user actually set override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Dir = *dataDir
		case "model":
			cfg.Model.Path = *modelPath
		case "epochs":
			cfg.Train.Epochs = *epochs
		case "patience":
			cfg.Train.Patience = *patience
		case "batch":
			cfg.Train.BatchSize = *batch
		case "lr":
			cfg.Train.LearningRate = *lr
		case "seed":
			cfg.Train.Seed = *seed
		case "onnx":
			cfg.Model.ExportONNX = *onnx
		case "log":
			cfg.Log.File = *logFile
		case "no-color":
			cfg.Log.NoColor = *noColor
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = runSweep(ctx, cfg, log)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Warn("training interrupted")
	default:
		log.Error("training failed", "error", err)
	}
	log.Close()
	if err != nil {
		os.Exit(1)
	}
}

// sweep carries the state shared across the batch size runs: the dataset
// split and decode cache are built once so every run trains on identical
// data, and results accumulate for the final summary table.
type sweep struct {
	cfg     *config.Config
	log     *logging.Logger
	store   *history.Store
	svc     *training.PlottingService
	train   *dataset.ImageFolderDataset
	val     *dataset.ImageFolderDataset
	cache   *dataloader.CacheManager
	seed    int64
	opened  bool // dashboard already opened in the browser
	results []history.Run
}

func runSweep(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	seed := training.ResolveSeed(cfg.Train.Seed)
	if cfg.Train.Seed == 0 {
		log.Debug("picked random seed", "seed", seed)
	}
	training.SetRandomSeed(seed)
	log.Info("training seed set", "seed", seed)

	s := &sweep{cfg: cfg, log: log, seed: seed}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Error("run history disabled", "path", cfg.History.Path, "error", err)
		} else {
			s.store = store
			defer store.Close()
		}
	}

	s.svc = plottingClient(cfg, log)

	train, val, err := dataset.LoadWasteSplits(cfg.Data.Dir, cfg.Data.ValSplit, seed, log)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	s.train, s.val = train, val

	// Zero sizes the cache to hold every decoded image, so later runs in the
	// sweep never touch the image files again.
	cacheSize := cfg.Data.CacheSize
	if cacheSize <= 0 {
		cacheSize = train.Len()
		if val != nil {
			cacheSize += val.Len()
		}
	}
	s.cache = dataloader.NewCacheManager(cacheSize)

	for _, batchSize := range cfg.Train.SweepBatchSizes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runOne(ctx, batchSize); err != nil {
			return err
		}
	}

	printSweepSummary(s.results, cfg.Log.NoColor)
	return nil
}

// runOne trains, evaluates, and persists a single sweep iteration.
func (s *sweep) runOne(ctx context.Context, batchSize int) error {
	runName := fmt.Sprintf("wastenet-b%d", batchSize)
	started := time.Now()
	s.log.Info("starting run", "model", runName, "batch_size", batchSize, "lr", s.cfg.Train.LearningRate)

	model, loaded, err := training.LoadModelOrBuild(s.cfg.Model.Path, func() (*layers.ModelSpec, error) {
		return layers.NewWasteClassifier(batchSize, layers.WasteNumClasses, s.cfg.Data.ImageSize)
	}, s.log)
	if err != nil {
		return fmt.Errorf("run %s: failed to prepare model: %w", runName, err)
	}
	if loaded {
		s.log.Info("continuing from saved weights", "model", runName, "path", s.cfg.Model.Path)
	}
	fmt.Println(model.Summary())

	opt := optimizer.NewAdam(model.Parameters(), s.cfg.Train.LearningRate, 0.9, 0.999, 1e-8, 0)
	criterion := training.NewCrossEntropyLoss("mean")

	checkpoints := training.DefaultCheckpointConfig()
	checkpoints.SaveDirectory = s.cfg.Train.CheckpointDir

	trainer, err := training.NewTrainer(model, opt, criterion, training.TrainerConfig{
		Epochs:             s.cfg.Train.Epochs,
		Patience:           s.cfg.Train.Patience,
		RestoreBestWeights: true,
		Checkpoints:        &checkpoints,
		Scheduler:          buildScheduler(s.cfg.Train),
		ModelName:          runName,
	}, s.log)
	if err != nil {
		return fmt.Errorf("run %s: %w", runName, err)
	}

	trainLoader, valLoader, err := dataloader.NewSharedLoaders(
		s.train, s.val, s.cfg.Data.ImageSize, batchSize, s.cfg.Data.Workers, s.cache)
	if err != nil {
		return fmt.Errorf("run %s: %w", runName, err)
	}

	hist, err := trainer.Fit(ctx, trainLoader, valLoader)
	if err != nil {
		return fmt.Errorf("run %s: %w", runName, err)
	}

	var report *training.EvalReport
	if valLoader != nil {
		evaluator, err := training.NewEvaluator(model, criterion, training.EvaluatorConfig{Rounds: s.cfg.Eval.Rounds}, s.log)
		if err != nil {
			return fmt.Errorf("run %s: %w", runName, err)
		}
		report, err = evaluator.Run(ctx, valLoader)
		if err != nil {
			return fmt.Errorf("run %s: evaluation failed: %w", runName, err)
		}
		s.log.Info("evaluation complete", "model", runName,
			"accuracy", report.BlendedAccuracy, "mean_accuracy", report.MeanAccuracy)
	} else {
		s.log.Warn("skipping evaluation", "reason", "no validation data")
	}

	// The artifact at the configured path seeds the next sweep iteration; the
	// derived path keeps this run's weights under their own name.
	description := fmt.Sprintf("waste classifier trained at batch size %d", batchSize)
	if err := training.SaveModelToFile(model, s.cfg.Model.Path, description); err != nil {
		return fmt.Errorf("run %s: failed to save model: %w", runName, err)
	}
	finalPath := training.DerivedModelPath(s.cfg.Model.Path)
	if err := training.SaveModelToFile(model, finalPath, description); err != nil {
		return fmt.Errorf("run %s: failed to save final model: %w", runName, err)
	}
	s.log.Info("model saved", "path", finalPath)

	if s.cfg.Model.ExportONNX {
		onnxPath := strings.TrimSuffix(s.cfg.Model.Path, filepath.Ext(s.cfg.Model.Path)) + ".onnx"
		if err := training.SaveModelToFile(model, onnxPath, description); err != nil {
			s.log.Error("onnx export failed", "path", onnxPath, "error", err)
		} else {
			s.log.Info("onnx model exported", "path", onnxPath)
		}
	}

	s.publishPlots(hist, runName)
	s.record(ctx, hist, report, runName, batchSize, started)
	return nil
}

// publishPlots writes the run's plot report to disk and posts it to the plot
// viewer service. Plot failures never abort a run that already trained.
func (s *sweep) publishPlots(hist *training.History, runName string) {
	plots, err := training.NewTrainingPlots(hist, runName)
	if err != nil {
		s.log.Error("failed to build training plots", "model", runName, "error", err)
		return
	}

	title := fmt.Sprintf("%s training curves", runName)
	jsonPath, htmlPath, err := training.SavePlotReport(plots, s.cfg.Plot.Dir, runName, title)
	if err != nil {
		s.log.Error("failed to save plot report", "model", runName, "error", err)
	} else {
		s.log.Info("plot report saved", "json", jsonPath, "html", htmlPath)
	}

	if !s.svc.IsEnabled() {
		return
	}
	resp, err := s.svc.BatchSendPlots(plots)
	if err != nil {
		s.log.Warn("plot service rejected plots", "model", runName, "error", err)
		return
	}
	if resp.DashboardURL == "" {
		return
	}
	url := s.svc.BaseURL() + resp.DashboardURL
	s.log.Info("training dashboard ready", "model", runName, "url", url)
	if !s.opened {
		// The dashboard page live-updates over a websocket, so one browser tab
		// covers the whole sweep.
		if err := s.svc.OpenInBrowser(url); err != nil {
			s.log.Debug("could not open browser", "error", err)
		}
		s.opened = true
	}
}

// record appends the run to the sweep results and persists it to the history
// database when one is open.
func (s *sweep) record(ctx context.Context, hist *training.History, report *training.EvalReport,
	runName string, batchSize int, started time.Time) {

	run := history.Run{
		ModelName:    runName,
		BatchSize:    batchSize,
		LearningRate: s.cfg.Train.LearningRate,
		Seed:         s.seed,
		EpochsRun:    hist.Epochs(),
		StoppedEarly: hist.Epochs() < s.cfg.Train.Epochs,
		BestValLoss:  minValue(hist.ValLoss),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if report != nil {
		run.Accuracy = report.BlendedAccuracy
		run.MeanAccuracy = report.MeanAccuracy
	}
	s.results = append(s.results, run)

	if s.store == nil {
		return
	}
	id, err := s.store.RecordRun(ctx, &run, history.EpochsFromHistory(hist))
	if err != nil {
		s.log.Error("failed to record run history", "model", runName, "error", err)
		return
	}
	s.log.Info("run recorded", "model", runName, "run_id", id)
}

// plottingClient builds the viewer service client. An empty URL or a failed
// health check leaves the client disabled and training proceeds without it.
func plottingClient(cfg *config.Config, log *logging.Logger) *training.PlottingService {
	svcCfg := training.DefaultPlottingServiceConfig()
	svcCfg.BaseURL = cfg.Plot.ServiceURL
	svc := training.NewPlottingService(svcCfg, log)
	if cfg.Plot.ServiceURL == "" {
		return svc
	}
	svc.Enable()
	if err := svc.CheckHealth(); err != nil {
		log.Warn("plot service unreachable, live plots disabled", "url", cfg.Plot.ServiceURL, "error", err)
		svc.Disable()
	}
	return svc
}

func buildScheduler(tc config.TrainConfig) training.LRScheduler {
	switch strings.ToLower(tc.Scheduler) {
	case config.SchedulerStep:
		return training.NewStepLRScheduler(tc.SchedulerStep, tc.SchedulerGamma)
	case config.SchedulerExponential:
		return training.NewExponentialLRScheduler(tc.SchedulerGamma)
	default:
		return nil
	}
}

func minValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

var (
	summaryHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	summaryBestStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399"))
)

// printSweepSummary renders the per-run results table, highlighting the run
// with the best evaluation accuracy.
func printSweepSummary(results []history.Run, noColor bool) {
	if len(results) == 0 {
		return
	}

	best := 0
	for i, r := range results {
		if r.Accuracy > results[best].Accuracy {
			best = i
		}
	}

	header := fmt.Sprintf("%-16s | %-6s | %-12s | %-14s | %-9s | %s",
		"MODEL", "BATCH", "EPOCHS", "BEST VAL LOSS", "ACCURACY", "TIME")

	fmt.Println()
	if noColor {
		fmt.Println(header)
	} else {
		fmt.Println(summaryHeaderStyle.Render(header))
	}
	fmt.Println(strings.Repeat("-", len(header)))

	for i, r := range results {
		epochs := fmt.Sprintf("%d", r.EpochsRun)
		if r.StoppedEarly {
			epochs += " (early)"
		}
		row := fmt.Sprintf("%-16s | %-6d | %-12s | %-14.4f | %-9s | %s",
			r.ModelName, r.BatchSize, epochs, r.BestValLoss,
			fmt.Sprintf("%.2f%%", r.Accuracy*100),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
		if i == best && !noColor {
			row = summaryBestStyle.Render(row)
		}
		fmt.Println(row)
	}
}
