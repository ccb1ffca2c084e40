package training

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsawler/wastenet/checkpoints"
	"github.com/tsawler/wastenet/layers"
	"github.com/tsawler/wastenet/logging"
	"github.com/tsawler/wastenet/optimizer"
)

// CheckpointConfig configures checkpoint saving behavior
type CheckpointConfig struct {
	SaveDirectory   string                       // Directory to save checkpoints
	SaveFrequency   int                          // Save every N epochs (0 = disabled)
	SaveBest        bool                         // Save checkpoint when validation improves
	MaxCheckpoints  int                          // Maximum number of checkpoints to keep (0 = unlimited)
	Format          checkpoints.CheckpointFormat // JSON or ONNX
	FilenamePattern string                       // fmt pattern receiving the epoch number
}

// DefaultCheckpointConfig saves after every epoch and keeps everything, so a
// run of N epochs leaves N+1 files: the untrained epoch-zero snapshot plus
// one per completed epoch.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		SaveDirectory:   "./training",
		SaveFrequency:   1,
		SaveBest:        true,
		MaxCheckpoints:  0,
		Format:          checkpoints.FormatJSON,
		FilenamePattern: "cp-%04d",
	}
}

// CheckpointManager handles checkpoint saving and loading for a model and
// its optimizer
type CheckpointManager struct {
	config       CheckpointConfig
	model        *Model
	optimizer    optimizer.Optimizer
	saver        *checkpoints.CheckpointSaver
	log          *logging.Logger
	bestLoss     float32
	bestAccuracy float32
	savedFiles   []string // Track saved checkpoint files for cleanup
}

// NewCheckpointManager creates a new checkpoint manager. The optimizer may
// be nil for inference-only use; logger nil falls back to a discard logger.
func NewCheckpointManager(model *Model, opt optimizer.Optimizer, config CheckpointConfig, log *logging.Logger) (*CheckpointManager, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if config.FilenamePattern == "" {
		config.FilenamePattern = "cp-%04d"
	}
	if log == nil {
		log = logging.Discard()
	}

	return &CheckpointManager{
		config:       config,
		model:        model,
		optimizer:    opt,
		saver:        checkpoints.NewCheckpointSaver(config.Format),
		log:          log,
		bestLoss:     float32(1e9), // Initialize with high loss
		bestAccuracy: 0.0,
		savedFiles:   make([]string, 0),
	}, nil
}

// SaveCheckpoint saves the current model state and returns the saved path
func (cm *CheckpointManager) SaveCheckpoint(epoch int, step int, loss float32, accuracy float32, description string) (string, error) {
	checkpoint, err := cm.createCheckpoint(epoch, step, loss, accuracy, description)
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint: %v", err)
	}

	filename := cm.generateFilename(epoch)
	path := filepath.Join(cm.config.SaveDirectory, filename)

	if err := cm.ensureDirectory(); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	if err := cm.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %v", err)
	}

	cm.savedFiles = append(cm.savedFiles, path)
	cm.log.Debug("checkpoint saved", "path", path, "epoch", epoch, "loss", loss)

	if err := cm.cleanupOldCheckpoints(); err != nil {
		// Cleanup failure should not fail the save
		cm.log.Warn("failed to cleanup old checkpoints", "error", err)
	}

	return path, nil
}

// SaveBestCheckpoint saves a checkpoint if it improves on the previous best
func (cm *CheckpointManager) SaveBestCheckpoint(epoch int, step int, loss float32, accuracy float32) (bool, error) {
	if !cm.config.SaveBest {
		return false, nil
	}

	isBetterLoss := loss < cm.bestLoss
	isBetterAccuracy := accuracy > cm.bestAccuracy

	if !isBetterLoss && !isBetterAccuracy {
		return false, nil
	}

	if isBetterLoss {
		cm.bestLoss = loss
	}
	if isBetterAccuracy {
		cm.bestAccuracy = accuracy
	}

	description := fmt.Sprintf("Best checkpoint - Loss: %.6f, Accuracy: %.2f%%", loss, accuracy*100)
	filename := fmt.Sprintf("best_checkpoint.%s", cm.getFileExtension())
	path := filepath.Join(cm.config.SaveDirectory, filename)

	checkpoint, err := cm.createCheckpoint(epoch, step, loss, accuracy, description)
	if err != nil {
		return false, fmt.Errorf("failed to create best checkpoint: %v", err)
	}

	if err := cm.ensureDirectory(); err != nil {
		return false, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	if err := cm.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return false, fmt.Errorf("failed to save best checkpoint: %v", err)
	}

	cm.log.Debug("best checkpoint updated", "path", path, "loss", loss, "accuracy", accuracy)
	return true, nil
}

// SavePeriodicCheckpoint saves a checkpoint when the epoch lands on the
// configured frequency, returning the saved path (empty when skipped)
func (cm *CheckpointManager) SavePeriodicCheckpoint(epoch int, step int, loss float32, accuracy float32) (string, error) {
	if cm.config.SaveFrequency <= 0 {
		return "", nil
	}

	if epoch%cm.config.SaveFrequency != 0 {
		return "", nil
	}

	description := fmt.Sprintf("Periodic checkpoint - Epoch %d", epoch)
	return cm.SaveCheckpoint(epoch, step, loss, accuracy, description)
}

// LoadCheckpoint loads a checkpoint and restores model and optimizer state
func (cm *CheckpointManager) LoadCheckpoint(path string) error {
	checkpoint, err := cm.saver.LoadCheckpoint(path)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %v", err)
	}

	if err := cm.restoreFromCheckpoint(checkpoint); err != nil {
		return fmt.Errorf("failed to restore state: %v", err)
	}

	cm.log.Debug("checkpoint restored", "path", path, "epoch", checkpoint.TrainingState.Epoch)
	return nil
}

// BestLoss returns the best loss seen so far
func (cm *CheckpointManager) BestLoss() float32 {
	return cm.bestLoss
}

// BestAccuracy returns the best accuracy seen so far
func (cm *CheckpointManager) BestAccuracy() float32 {
	return cm.bestAccuracy
}

// SavedFiles returns the paths written by this manager, oldest first
func (cm *CheckpointManager) SavedFiles() []string {
	return append([]string(nil), cm.savedFiles...)
}

// createCheckpoint creates a checkpoint from current model and optimizer state
func (cm *CheckpointManager) createCheckpoint(epoch int, step int, loss float32, accuracy float32, description string) (*checkpoints.Checkpoint, error) {
	modelSpec := cm.model.Spec()
	if modelSpec == nil {
		return nil, fmt.Errorf("model has no specification")
	}

	// Push batch norm running estimates into the spec before serializing
	cm.model.SyncRunningStats()

	weights, err := checkpoints.ExtractWeightsFromTensors(cm.model.Parameters(), modelSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to extract weights: %v", err)
	}

	var learningRate float32
	if cm.optimizer != nil {
		learningRate = float32(cm.optimizer.GetLR())
	}

	trainingState := checkpoints.TrainingState{
		Epoch:        epoch,
		Step:         step,
		LearningRate: learningRate,
		BestLoss:     cm.bestLoss,
		BestAccuracy: cm.bestAccuracy,
		TotalSteps:   step,
	}

	// Optimizer state (if the optimizer can snapshot itself)
	var optimizerState *checkpoints.OptimizerState
	if stateful, ok := cm.optimizer.(optimizer.StatefulOptimizer); ok {
		state, err := stateful.State()
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot optimizer state: %v", err)
		}
		optimizerState = state
	}

	checkpoint := &checkpoints.Checkpoint{
		ModelSpec:      modelSpec,
		Weights:        weights,
		TrainingState:  trainingState,
		OptimizerState: optimizerState,
		Metadata: checkpoints.CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "wastenet",
			Description: description,
			Tags:        []string{fmt.Sprintf("epoch_%d", epoch)},
		},
	}

	return checkpoint, nil
}

// restoreFromCheckpoint restores model and optimizer state from a checkpoint
func (cm *CheckpointManager) restoreFromCheckpoint(checkpoint *checkpoints.Checkpoint) error {
	currentModelSpec := cm.model.Spec()
	if currentModelSpec == nil {
		return fmt.Errorf("model has no specification")
	}

	if !cm.modelsCompatible(currentModelSpec, checkpoint.ModelSpec) {
		return fmt.Errorf("checkpoint model architecture incompatible with current model")
	}

	if err := checkpoints.LoadWeightsIntoTensors(checkpoint.Weights, cm.model.Parameters()); err != nil {
		return fmt.Errorf("failed to load weights: %v", err)
	}

	// Restore batch norm running statistics carried in the checkpoint spec
	if err := restoreRunningStats(cm.model, checkpoint.ModelSpec); err != nil {
		return fmt.Errorf("failed to restore running statistics: %v", err)
	}

	cm.bestLoss = checkpoint.TrainingState.BestLoss
	cm.bestAccuracy = checkpoint.TrainingState.BestAccuracy

	if cm.optimizer != nil && checkpoint.TrainingState.LearningRate > 0 {
		cm.optimizer.SetLR(float64(checkpoint.TrainingState.LearningRate))
	}

	if checkpoint.OptimizerState != nil {
		if stateful, ok := cm.optimizer.(optimizer.StatefulOptimizer); ok {
			if err := stateful.LoadState(checkpoint.OptimizerState); err != nil {
				return fmt.Errorf("failed to restore optimizer state: %v", err)
			}
		}
	}

	return nil
}

// restoreRunningStats copies running statistics from a checkpoint spec into
// the model's batch norm modules, matching layers by name
func restoreRunningStats(model *Model, spec *layers.ModelSpec) error {
	for i := range spec.Layers {
		layer := &spec.Layers[i]
		if layer.Type != layers.BatchNorm || layer.RunningStatistics == nil {
			continue
		}
		bn, ok := model.batchNorms[layer.Name]
		if !ok {
			continue
		}
		mean, okMean := layer.RunningStatistics[runningMeanKey]
		variance, okVar := layer.RunningStatistics[runningVarKey]
		if !okMean || !okVar {
			continue
		}
		if err := bn.SetRunningStats(mean, variance); err != nil {
			return fmt.Errorf("layer %s: %v", layer.Name, err)
		}
	}
	return nil
}

// Helper methods

func (cm *CheckpointManager) generateFilename(epoch int) string {
	pattern := cm.config.FilenamePattern
	if pattern == "" {
		pattern = "cp-%04d"
	}

	baseFilename := fmt.Sprintf(pattern, epoch)
	return fmt.Sprintf("%s.%s", baseFilename, cm.getFileExtension())
}

func (cm *CheckpointManager) getFileExtension() string {
	switch cm.config.Format {
	case checkpoints.FormatJSON:
		return "json"
	case checkpoints.FormatONNX:
		return "onnx"
	default:
		return "json"
	}
}

func (cm *CheckpointManager) ensureDirectory() error {
	return os.MkdirAll(cm.config.SaveDirectory, 0755)
}

func (cm *CheckpointManager) cleanupOldCheckpoints() error {
	if cm.config.MaxCheckpoints <= 0 {
		return nil // No limit
	}

	if len(cm.savedFiles) <= cm.config.MaxCheckpoints {
		return nil // Under limit
	}

	// Remove oldest checkpoints
	toRemove := len(cm.savedFiles) - cm.config.MaxCheckpoints
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(cm.savedFiles[i]); err != nil {
			return fmt.Errorf("failed to remove old checkpoint %s: %v", cm.savedFiles[i], err)
		}
	}

	cm.savedFiles = cm.savedFiles[toRemove:]
	return nil
}

func (cm *CheckpointManager) modelsCompatible(model1, model2 *layers.ModelSpec) bool {
	if model2 == nil {
		return false
	}
	if len(model1.Layers) != len(model2.Layers) {
		return false
	}

	for i := range model1.Layers {
		layer1 := &model1.Layers[i]
		layer2 := &model2.Layers[i]

		if layer1.Type != layer2.Type {
			return false
		}

		// Parameter shapes must match so weight tensors line up
		if len(layer1.ParameterShapes) != len(layer2.ParameterShapes) {
			return false
		}

		for j, shape1 := range layer1.ParameterShapes {
			shape2 := layer2.ParameterShapes[j]
			if len(shape1) != len(shape2) {
				return false
			}
			for k, dim1 := range shape1 {
				if dim1 != shape2[k] {
					return false
				}
			}
		}
	}

	return true
}
