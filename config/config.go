// Package config loads the trainer's run configuration. Built-in defaults
// come first, a TOML file overlays them, and the caller applies any
// command-line overrides on top, so a bare run always works and a config
// file only needs the settings it changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tsawler/wastenet/logging"
)

// Scheduler names accepted by the train.scheduler key.
const (
	SchedulerNone        = "none"
	SchedulerStep        = "step"
	SchedulerExponential = "exponential"
)

// Config is the complete run configuration for the training driver.
type Config struct {
	Data    DataConfig    `toml:"data"`
	Model   ModelConfig   `toml:"model"`
	Train   TrainConfig   `toml:"train"`
	Eval    EvalConfig    `toml:"eval"`
	Log     LogConfig     `toml:"log"`
	History HistoryConfig `toml:"history"`
	Plot    PlotConfig    `toml:"plot"`
}

// DataConfig locates and shapes the input dataset.
type DataConfig struct {
	// Dir is the dataset root: one subdirectory per class, optionally with a
	// val/ subdirectory holding a held-out set in the same layout.
	Dir string `toml:"dir"`
	// ValSplit is the fraction carved out for validation when the dataset has
	// no val/ subdirectory.
	ValSplit float64 `toml:"val_split"`
	// ImageSize is the square edge every image is resized to.
	ImageSize int `toml:"image_size"`
	// Workers is the number of goroutines decoding images.
	Workers int `toml:"workers"`
	// CacheSize bounds the decoded-image cache; 0 sizes it to the dataset.
	CacheSize int `toml:"cache_size"`
}

// ModelConfig names the model artifact and its export options.
type ModelConfig struct {
	// Path is where the trained model is loaded from and saved to.
	Path string `toml:"path"`
	// ExportONNX also writes the final model as an ONNX graph.
	ExportONNX bool `toml:"export_onnx"`
}

// TrainConfig controls the training loop and the batch size sweep.
type TrainConfig struct {
	Epochs       int     `toml:"epochs"`
	Patience     int     `toml:"patience"` // early stopping; 0 disables
	BatchSize    int     `toml:"batch_size"`
	LearningRate float64 `toml:"learning_rate"`
	// Seed seeds weight init and shuffling; 0 draws a fresh seed at startup.
	Seed          int64  `toml:"seed"`
	CheckpointDir string `toml:"checkpoint_dir"`
	// Scheduler selects the learning rate schedule: none, step, exponential.
	Scheduler string `toml:"scheduler"`
	// SchedulerStep is the epoch interval for the step schedule; 0 uses the
	// scheduler's own default.
	SchedulerStep int `toml:"scheduler_step"`
	// SchedulerGamma is the decay factor; 0 uses the scheduler's own default.
	SchedulerGamma float64 `toml:"scheduler_gamma"`
}

// EvalConfig controls the post-training evaluation.
type EvalConfig struct {
	Rounds int `toml:"rounds"`
}

// LogConfig controls the two logging sinks.
type LogConfig struct {
	// File receives everything at file_level and up; empty disables it.
	File         string `toml:"file"`
	ConsoleLevel string `toml:"console_level"`
	FileLevel    string `toml:"file_level"`
	NoColor      bool   `toml:"no_color"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// PlotConfig controls plot output and the viewer service.
type PlotConfig struct {
	// Dir receives the JSON payload and HTML report for each run.
	Dir string `toml:"dir"`
	// ServiceURL is the plot viewer service; empty skips posting.
	ServiceURL string `toml:"service_url"`
}

// Default returns the built-in configuration the driver runs with when no
// file or flags override it.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:       "./dataset-resized",
			ValSplit:  0.2,
			ImageSize: 256,
			Workers:   4,
			CacheSize: 0,
		},
		Model: ModelConfig{
			Path:       "waste_model.json",
			ExportONNX: false,
		},
		Train: TrainConfig{
			Epochs:        100,
			Patience:      3,
			BatchSize:     32,
			LearningRate:  0.001,
			Seed:          0,
			CheckpointDir: "./training",
			Scheduler:     SchedulerNone,
			SchedulerStep: 30,
		},
		Eval: EvalConfig{
			Rounds: 10,
		},
		Log: LogConfig{
			File:         "info_debug.log",
			ConsoleLevel: "warn",
			FileLevel:    "debug",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "wastenet_history.db",
		},
		Plot: PlotConfig{
			Dir:        "./output/plots",
			ServiceURL: "http://localhost:8080",
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path. A missing
// file is not an error: the driver runs on defaults alone. Keys absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// ValidationError reports a single bad configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every validation failure so a bad file is fixed in
// one pass.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns all failures together.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Data.Dir == "" {
		errs = append(errs, ValidationError{"data.dir", "dataset directory cannot be empty"})
	}
	if c.Data.ValSplit < 0 || c.Data.ValSplit >= 1 {
		errs = append(errs, ValidationError{"data.val_split", fmt.Sprintf("must be in [0, 1), got %g", c.Data.ValSplit)})
	}
	if c.Data.ImageSize < 1 {
		errs = append(errs, ValidationError{"data.image_size", fmt.Sprintf("must be positive, got %d", c.Data.ImageSize)})
	}
	if c.Data.Workers < 0 {
		errs = append(errs, ValidationError{"data.workers", fmt.Sprintf("cannot be negative, got %d", c.Data.Workers)})
	}
	if c.Data.CacheSize < 0 {
		errs = append(errs, ValidationError{"data.cache_size", fmt.Sprintf("cannot be negative, got %d", c.Data.CacheSize)})
	}

	if c.Model.Path == "" {
		errs = append(errs, ValidationError{"model.path", "model path cannot be empty"})
	}

	if c.Train.Epochs < 1 {
		errs = append(errs, ValidationError{"train.epochs", fmt.Sprintf("must be at least 1, got %d", c.Train.Epochs)})
	}
	if c.Train.Patience < 0 {
		errs = append(errs, ValidationError{"train.patience", fmt.Sprintf("cannot be negative, got %d", c.Train.Patience)})
	}
	if c.Train.BatchSize < 2 {
		errs = append(errs, ValidationError{"train.batch_size", fmt.Sprintf("must be at least 2, got %d", c.Train.BatchSize)})
	}
	if c.Train.LearningRate <= 0 {
		errs = append(errs, ValidationError{"train.learning_rate", fmt.Sprintf("must be positive, got %g", c.Train.LearningRate)})
	}
	if c.Train.Seed < 0 {
		errs = append(errs, ValidationError{"train.seed", fmt.Sprintf("cannot be negative, got %d", c.Train.Seed)})
	}
	if c.Train.CheckpointDir == "" {
		errs = append(errs, ValidationError{"train.checkpoint_dir", "checkpoint directory cannot be empty"})
	}
	switch strings.ToLower(c.Train.Scheduler) {
	case "", SchedulerNone, SchedulerStep, SchedulerExponential:
	default:
		errs = append(errs, ValidationError{"train.scheduler",
			fmt.Sprintf("unknown scheduler %q, must be one of: none, step, exponential", c.Train.Scheduler)})
	}
	if c.Train.SchedulerStep < 0 {
		errs = append(errs, ValidationError{"train.scheduler_step", fmt.Sprintf("cannot be negative, got %d", c.Train.SchedulerStep)})
	}
	if c.Train.SchedulerGamma < 0 || c.Train.SchedulerGamma >= 1 {
		errs = append(errs, ValidationError{"train.scheduler_gamma", fmt.Sprintf("must be in [0, 1), got %g", c.Train.SchedulerGamma)})
	}

	if c.Eval.Rounds < 1 {
		errs = append(errs, ValidationError{"eval.rounds", fmt.Sprintf("must be at least 1, got %d", c.Eval.Rounds)})
	}

	if _, err := parseLevel(c.Log.ConsoleLevel); err != nil {
		errs = append(errs, ValidationError{"log.console_level", err.Error()})
	}
	if _, err := parseLevel(c.Log.FileLevel); err != nil {
		errs = append(errs, ValidationError{"log.file_level", err.Error()})
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, ValidationError{"history.path", "history database path cannot be empty when history is enabled"})
	}

	if c.Plot.ServiceURL != "" {
		if _, err := url.ParseRequestURI(c.Plot.ServiceURL); err != nil {
			errs = append(errs, ValidationError{"plot.service_url", fmt.Sprintf("invalid URL: %v", err)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SweepBatchSizes returns the batch sizes the driver trains at: the
// configured starting size halved repeatedly, stopping before reaching 1.
func (c *TrainConfig) SweepBatchSizes() []int {
	var sizes []int
	for b := c.BatchSize; b > 1; b /= 2 {
		sizes = append(sizes, b)
	}
	return sizes
}

// LoggingConfig translates the log section for the logging package. The
// console writer is left unset so logging picks its own default.
func (c *Config) LoggingConfig() (logging.Config, error) {
	lc := logging.DefaultConfig()

	consoleLevel, err := parseLevel(c.Log.ConsoleLevel)
	if err != nil {
		return logging.Config{}, fmt.Errorf("log.console_level: %w", err)
	}
	fileLevel, err := parseLevel(c.Log.FileLevel)
	if err != nil {
		return logging.Config{}, fmt.Errorf("log.file_level: %w", err)
	}

	lc.ConsoleLevel = consoleLevel
	lc.FileLevel = fileLevel
	lc.FilePath = c.Log.File
	lc.NoColor = c.Log.NoColor
	return lc, nil
}

// parseLevel accepts the slog level names, case-insensitively.
func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// WriteExample writes a fully commented config file with every key at its
// default value, for users to copy and edit.
func WriteExample(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# wastenet training configuration")
	fmt.Fprintln(f, "# Every key is optional; missing keys keep their built-in defaults.")
	fmt.Fprintln(f, "")

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
