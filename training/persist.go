package training

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsawler/wastenet/checkpoints"
	"github.com/tsawler/wastenet/layers"
	"github.com/tsawler/wastenet/logging"
)

// LoadModelFromFile reads a saved model file and reconstructs a runnable
// model: architecture from the spec, weights into the parameter tensors,
// batch norm running statistics into the modules. The format is inferred
// from the extension, defaulting to JSON.
func LoadModelFromFile(path string) (*Model, error) {
	format := checkpoints.FormatJSON
	if len(path) > 5 && path[len(path)-5:] == ".onnx" {
		format = checkpoints.FormatONNX
	}

	saver := checkpoints.NewCheckpointSaver(format)
	checkpoint, err := saver.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}

	if err := checkpoint.ModelSpec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model spec in %s: %v", path, err)
	}

	model, err := NewModelFromSpec(checkpoint.ModelSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to build model from %s: %v", path, err)
	}

	if err := checkpoints.LoadWeightsIntoTensors(checkpoint.Weights, model.Parameters()); err != nil {
		return nil, fmt.Errorf("failed to load weights from %s: %v", path, err)
	}

	return model, nil
}

// LoadModelOrBuild tries the saved model first and falls back to a freshly
// built network when the file is missing, unreadable, or structurally
// invalid. The returned bool reports whether the saved model was used. A
// missing file is the normal first run and logs at debug; a file that exists
// but cannot be loaded logs at error. Both fall back; only a failed build is
// fatal.
func LoadModelOrBuild(path string, build func() (*layers.ModelSpec, error), log *logging.Logger) (*Model, bool, error) {
	if log == nil {
		log = logging.Discard()
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		log.Debug("no saved model, building fresh network", "path", path)
	} else {
		model, err := LoadModelFromFile(path)
		if err == nil {
			log.Info("loaded saved model", "path", path)
			return model, true, nil
		}
		log.Error("saved model unreadable, building fresh network", "path", path, "error", err)
	}

	spec, err := build()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build fallback model: %v", err)
	}
	model, err := NewModelFromSpec(spec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build fallback model: %v", err)
	}
	return model, false, nil
}

// SaveModelToFile writes the model as a weights-bearing checkpoint. The
// format is inferred from the extension, defaulting to JSON.
func SaveModelToFile(model *Model, path string, description string) error {
	if model == nil {
		return fmt.Errorf("model cannot be nil")
	}

	format := checkpoints.FormatJSON
	if len(path) > 5 && path[len(path)-5:] == ".onnx" {
		format = checkpoints.FormatONNX
	}

	model.SyncRunningStats()

	weights, err := checkpoints.ExtractWeightsFromTensors(model.Parameters(), model.Spec())
	if err != nil {
		return fmt.Errorf("failed to extract weights: %v", err)
	}

	checkpoint := &checkpoints.Checkpoint{
		ModelSpec: model.Spec(),
		Weights:   weights,
		Metadata: checkpoints.CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "wastenet",
			Description: description,
		},
	}

	saver := checkpoints.NewCheckpointSaver(format)
	return saver.SaveCheckpoint(checkpoint, path)
}

// DerivedModelPath returns the path a trained model is saved under, derived
// from the load path by extension substitution: "waste_model.json" becomes
// "waste_model.model.json". Loading and saving under distinct names keeps
// the pre-training artifact intact.
func DerivedModelPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return path + ".model.json"
	}
	return strings.TrimSuffix(path, ext) + ".model" + ext
}
