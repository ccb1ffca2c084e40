package training

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tsawler/wastenet/logging"
	"github.com/tsawler/wastenet/optimizer"
)

// History records per-epoch metrics from a training run. Series share an
// index: entry i describes epoch i+1.
type History struct {
	Accuracy     []float64 `json:"accuracy"`
	ValAccuracy  []float64 `json:"val_accuracy"`
	Loss         []float64 `json:"loss"`
	ValLoss      []float64 `json:"val_loss"`
	LearningRate []float64 `json:"lr,omitempty"`
}

// Epochs returns the number of completed epochs
func (h *History) Epochs() int {
	return len(h.Loss)
}

// Series returns the named metric series
func (h *History) Series(name string) ([]float64, error) {
	switch name {
	case "accuracy":
		return h.Accuracy, nil
	case "val_accuracy":
		return h.ValAccuracy, nil
	case "loss":
		return h.Loss, nil
	case "val_loss":
		return h.ValLoss, nil
	case "lr":
		return h.LearningRate, nil
	}
	return nil, fmt.Errorf("unknown metric series %q", name)
}

// Validate checks that the recorded series are consistent. Validation series
// may be empty when the run had no validation data, but when present they
// must cover every epoch.
func (h *History) Validate() error {
	n := len(h.Loss)
	if n == 0 {
		return fmt.Errorf("history is empty")
	}
	if len(h.Accuracy) != n {
		return fmt.Errorf("accuracy series has %d entries, loss has %d", len(h.Accuracy), n)
	}
	if len(h.ValLoss) != 0 && len(h.ValLoss) != n {
		return fmt.Errorf("val_loss series has %d entries, loss has %d", len(h.ValLoss), n)
	}
	if len(h.ValAccuracy) != len(h.ValLoss) {
		return fmt.Errorf("val_accuracy series has %d entries, val_loss has %d", len(h.ValAccuracy), len(h.ValLoss))
	}
	if len(h.LearningRate) != 0 && len(h.LearningRate) != n {
		return fmt.Errorf("lr series has %d entries, loss has %d", len(h.LearningRate), n)
	}
	return nil
}

// TrainerConfig controls a training run
type TrainerConfig struct {
	Epochs             int
	Patience           int     // Epochs without val_loss improvement before stopping; <= 0 disables
	MinDelta           float64 // Minimum val_loss decrease that counts as improvement
	RestoreBestWeights bool
	Checkpoints        *CheckpointConfig // nil disables checkpointing
	Scheduler          LRScheduler       // nil keeps the optimizer's rate
	ProgressOutput     io.Writer         // nil renders to stdout; pass io.Discard to silence
	ModelName          string
}

// DefaultTrainerConfig returns the standard configuration: long runs cut
// short by early stopping after three stagnant validation epochs, with the
// best weights restored
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:             100,
		Patience:           3,
		MinDelta:           0,
		RestoreBestWeights: true,
		ModelName:          "wastenet",
	}
}

// Trainer drives the epoch loop: forward and backward passes, optimizer
// steps, validation, checkpointing, learning rate scheduling, and early
// stopping
type Trainer struct {
	model       *Model
	optimizer   optimizer.Optimizer
	criterion   Loss
	config      TrainerConfig
	log         *logging.Logger
	checkpoints *CheckpointManager
}

// NewTrainer creates a trainer. A nil logger silences it.
func NewTrainer(model *Model, opt optimizer.Optimizer, criterion Loss, config TrainerConfig, log *logging.Logger) (*Trainer, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if opt == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if criterion == nil {
		return nil, fmt.Errorf("criterion cannot be nil")
	}
	if config.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be at least 1, got %d", config.Epochs)
	}
	if log == nil {
		log = logging.Discard()
	}

	t := &Trainer{
		model:     model,
		optimizer: opt,
		criterion: criterion,
		config:    config,
		log:       log,
	}

	if config.Checkpoints != nil {
		cm, err := NewCheckpointManager(model, opt, *config.Checkpoints, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint manager: %v", err)
		}
		t.checkpoints = cm
	}

	return t, nil
}

// CheckpointManager exposes the trainer's checkpoint manager, or nil when
// checkpointing is disabled
func (t *Trainer) CheckpointManager() *CheckpointManager {
	return t.checkpoints
}

// Fit runs the training loop and returns the per-epoch history. Training
// stops early when validation loss fails to improve for Patience consecutive
// epochs; with RestoreBestWeights the model is then rolled back to its best
// validation epoch. With checkpointing enabled a run of N epochs leaves N+1
// files: the untrained snapshot plus one per completed epoch.
func (t *Trainer) Fit(ctx context.Context, trainLoader, validLoader *DataLoader) (*History, error) {
	if trainLoader == nil {
		return nil, fmt.Errorf("train loader cannot be nil")
	}

	if validLoader == nil && t.config.Patience > 0 {
		t.log.Warn("early stopping disabled", "reason", "no validation data")
	}

	history := &History{}
	baseLR := t.optimizer.GetLR()
	plateau, _ := t.config.Scheduler.(*ReduceLROnPlateauScheduler)

	if t.checkpoints != nil {
		if _, err := t.checkpoints.SaveCheckpoint(0, 0, 0, 0, "initial weights before training"); err != nil {
			return nil, fmt.Errorf("failed to save initial checkpoint: %v", err)
		}
	}

	var best *weightSnapshot
	bestValLoss := math.Inf(1)
	bestEpoch := 0
	badEpochs := 0
	step := 0
	stoppedEarly := false
	start := time.Now()

	t.log.Info("training started",
		"model", t.config.ModelName,
		"epochs", t.config.Epochs,
		"batches_per_epoch", trainLoader.Len(),
		"batch_size", trainLoader.BatchSize(),
		"lr", baseLR)

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}

		// Stateless schedules apply before the epoch; the plateau schedule
		// reacts to validation loss afterwards
		if t.config.Scheduler != nil && plateau == nil {
			t.optimizer.SetLR(t.config.Scheduler.GetLR(epoch-1, step, baseLR))
		}
		epochLR := t.optimizer.GetLR()
		epochStart := time.Now()

		trainLoss, trainAcc, steps, err := t.runTrainingEpoch(ctx, trainLoader, epoch)
		if err != nil {
			return history, err
		}
		step += steps

		monitorLoss, monitorAcc := trainLoss, trainAcc
		if validLoader != nil {
			valLoss, valAcc, err := t.runValidation(ctx, validLoader)
			if err != nil {
				return history, err
			}
			history.ValLoss = append(history.ValLoss, valLoss)
			history.ValAccuracy = append(history.ValAccuracy, valAcc)
			monitorLoss, monitorAcc = valLoss, valAcc
		}

		history.Loss = append(history.Loss, trainLoss)
		history.Accuracy = append(history.Accuracy, trainAcc)
		history.LearningRate = append(history.LearningRate, epochLR)

		t.log.Info("epoch complete",
			"epoch", epoch,
			"loss", trainLoss,
			"accuracy", trainAcc,
			"val_loss", monitorLoss,
			"val_accuracy", monitorAcc,
			"lr", epochLR,
			"duration", time.Since(epochStart).Round(time.Millisecond))

		if t.checkpoints != nil {
			if _, err := t.checkpoints.SavePeriodicCheckpoint(epoch, step, float32(monitorLoss), float32(monitorAcc)); err != nil {
				return history, fmt.Errorf("failed to save checkpoint for epoch %d: %v", epoch, err)
			}
			if _, err := t.checkpoints.SaveBestCheckpoint(epoch, step, float32(monitorLoss), float32(monitorAcc)); err != nil {
				return history, fmt.Errorf("failed to save best checkpoint: %v", err)
			}
		}

		if validLoader != nil {
			if bestValLoss-monitorLoss > t.config.MinDelta {
				bestValLoss = monitorLoss
				bestEpoch = epoch
				badEpochs = 0
				if t.config.RestoreBestWeights {
					best, err = t.snapshotWeights(epoch)
					if err != nil {
						return history, fmt.Errorf("failed to snapshot best weights: %v", err)
					}
				}
			} else {
				badEpochs++
			}

			if plateau != nil {
				newLR := plateau.Step(monitorLoss, t.optimizer.GetLR())
				if newLR != t.optimizer.GetLR() {
					t.log.Info("reducing learning rate on plateau", "epoch", epoch, "lr", newLR)
					t.optimizer.SetLR(newLR)
				}
			}

			if t.config.Patience > 0 && badEpochs >= t.config.Patience {
				stoppedEarly = true
				t.log.Info("early stopping triggered",
					"epoch", epoch,
					"patience", t.config.Patience,
					"best_epoch", bestEpoch,
					"best_val_loss", bestValLoss)
				break
			}
		}
	}

	if stoppedEarly && t.config.RestoreBestWeights && best != nil {
		if err := t.restoreWeights(best); err != nil {
			return history, fmt.Errorf("failed to restore best weights: %v", err)
		}
		t.log.Info("restored best weights", "epoch", best.epoch)
	}

	t.log.Info("training complete",
		"model", t.config.ModelName,
		"epochs", history.Epochs(),
		"stopped_early", stoppedEarly,
		"duration", time.Since(start).Round(time.Millisecond))

	return history, nil
}

// runTrainingEpoch runs one pass over the training data and returns the
// sample-weighted mean loss and accuracy
func (t *Trainer) runTrainingEpoch(ctx context.Context, loader *DataLoader, epoch int) (float64, float64, int, error) {
	t.model.Train()
	loader.Reset()

	bar := NewProgressBar(fmt.Sprintf("Epoch %d/%d", epoch, t.config.Epochs), loader.Len())
	if t.config.ProgressOutput != nil {
		bar.SetOutput(t.config.ProgressOutput)
	}

	var lossSum, accSum float64
	samples := 0
	steps := 0

	for loader.HasNext() {
		if err := ctx.Err(); err != nil {
			return 0, 0, steps, err
		}

		batch, err := loader.Next()
		if err != nil {
			return 0, 0, steps, fmt.Errorf("failed to load training batch: %v", err)
		}
		if batch == nil {
			break
		}
		batchSize := batch.Data.Shape[0]

		t.optimizer.ZeroGrad()

		output, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, 0, steps, fmt.Errorf("forward pass failed: %v", err)
		}

		lossTensor, err := t.criterion.Forward(output, batch.Labels)
		if err != nil {
			return 0, 0, steps, fmt.Errorf("loss computation failed: %v", err)
		}

		gradSeed, err := t.criterion.Backward(output, batch.Labels)
		if err != nil {
			return 0, 0, steps, fmt.Errorf("loss gradient computation failed: %v", err)
		}

		if err := output.Backward(gradSeed); err != nil {
			return 0, 0, steps, fmt.Errorf("backward pass failed: %v", err)
		}

		if err := t.optimizer.Step(); err != nil {
			return 0, 0, steps, fmt.Errorf("optimizer step failed: %v", err)
		}

		acc, err := calculateAccuracy(output, batch.Labels)
		if err != nil {
			return 0, 0, steps, fmt.Errorf("accuracy computation failed: %v", err)
		}

		// Batches can be ragged at the end of the epoch, so means are
		// weighted by sample count
		lossSum += float64(lossTensor.Data.([]float32)[0]) * float64(batchSize)
		accSum += acc * float64(batchSize)
		samples += batchSize
		steps++

		bar.Update(steps, map[string]float64{
			"loss":     lossSum / float64(samples),
			"accuracy": accSum / float64(samples),
		})
	}
	bar.Finish()

	if samples == 0 {
		return 0, 0, 0, fmt.Errorf("training loader produced no samples")
	}
	return lossSum / float64(samples), accSum / float64(samples), steps, nil
}

// runValidation evaluates the model on the validation data without updating
// weights
func (t *Trainer) runValidation(ctx context.Context, loader *DataLoader) (float64, float64, error) {
	t.model.Eval()
	defer t.model.Train()
	loader.Reset()

	var lossSum, accSum float64
	samples := 0

	for loader.HasNext() {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		batch, err := loader.Next()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to load validation batch: %v", err)
		}
		if batch == nil {
			break
		}
		batchSize := batch.Data.Shape[0]

		output, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, 0, fmt.Errorf("validation forward pass failed: %v", err)
		}

		lossTensor, err := t.criterion.Forward(output, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("validation loss computation failed: %v", err)
		}

		acc, err := calculateAccuracy(output, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("validation accuracy computation failed: %v", err)
		}

		lossSum += float64(lossTensor.Data.([]float32)[0]) * float64(batchSize)
		accSum += acc * float64(batchSize)
		samples += batchSize
	}

	if samples == 0 {
		return 0, 0, fmt.Errorf("validation loader produced no samples")
	}
	return lossSum / float64(samples), accSum / float64(samples), nil
}

// weightSnapshot holds copies of every trainable parameter and the batch
// norm running statistics, enough to roll the model back to an earlier epoch
type weightSnapshot struct {
	epoch  int
	params [][]float32
	bnMean map[string][]float32
	bnVar  map[string][]float32
}

func (t *Trainer) snapshotWeights(epoch int) (*weightSnapshot, error) {
	params := t.model.Parameters()
	snap := &weightSnapshot{
		epoch:  epoch,
		params: make([][]float32, len(params)),
		bnMean: make(map[string][]float32),
		bnVar:  make(map[string][]float32),
	}

	for i, p := range params {
		data, err := p.Float32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read parameter %d: %v", i, err)
		}
		snap.params[i] = append([]float32(nil), data...)
	}

	for name, bn := range t.model.batchNorms {
		mean, variance := bn.RunningStats()
		snap.bnMean[name] = append([]float32(nil), mean...)
		snap.bnVar[name] = append([]float32(nil), variance...)
	}

	return snap, nil
}

func (t *Trainer) restoreWeights(snap *weightSnapshot) error {
	params := t.model.Parameters()
	if len(params) != len(snap.params) {
		return fmt.Errorf("parameter count mismatch: model has %d, snapshot has %d", len(params), len(snap.params))
	}

	for i, p := range params {
		data, err := p.Float32Data()
		if err != nil {
			return fmt.Errorf("failed to access parameter %d: %v", i, err)
		}
		if len(data) != len(snap.params[i]) {
			return fmt.Errorf("parameter %d size mismatch: model has %d, snapshot has %d", i, len(data), len(snap.params[i]))
		}
		copy(data, snap.params[i])
	}

	for name, bn := range t.model.batchNorms {
		mean, ok := snap.bnMean[name]
		if !ok {
			continue
		}
		if err := bn.SetRunningStats(mean, snap.bnVar[name]); err != nil {
			return fmt.Errorf("failed to restore running statistics for %s: %v", name, err)
		}
	}

	return nil
}
