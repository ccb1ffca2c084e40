package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tsawler/wastenet/layers"
	"github.com/tsawler/wastenet/tensor"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	// Model architecture and weights
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias", "gamma", "beta", etc.
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float32 `json:"learning_rate"`
	BestLoss     float32 `json:"best_loss"`
	BestAccuracy float32 `json:"best_accuracy"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (momentum, variance, etc.)
type OptimizerState struct {
	Type       string                 `json:"type"` // "SGD", "Adam", etc.
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (momentum, variance, etc.)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "variance", "m", "v", etc.
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatONNX:
		return cs.saveONNX(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatONNX:
		return cs.loadONNX(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "wastenet"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ") // Pretty print JSON

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint is missing a model spec")
	}

	return &checkpoint, nil
}

// saveONNX saves checkpoint in ONNX format
func (cs *CheckpointSaver) saveONNX(checkpoint *Checkpoint, path string) error {
	exporter := NewONNXExporter()
	return exporter.ExportToONNX(checkpoint, path)
}

// loadONNX loads checkpoint from ONNX format
func (cs *CheckpointSaver) loadONNX(path string) (*Checkpoint, error) {
	importer := NewONNXImporter()
	return importer.ImportFromONNX(path)
}

// ExtractWeightsFromTensors extracts weight data from parameter tensors.
// Tensors must be in model parameter order: weight then bias for dense and
// conv layers, gamma then beta for batch norm, following spec layer order.
func ExtractWeightsFromTensors(tensors []*tensor.Tensor, modelSpec *layers.ModelSpec) ([]WeightTensor, error) {
	var weights []WeightTensor

	paramIndex := 0
	for layerIdx := range modelSpec.Layers {
		layerSpec := &modelSpec.Layers[layerIdx]
		layerName := layerSpec.Name

		switch layerSpec.Type {
		case layers.Dense, layers.Conv2D:
			// Weight tensor
			if paramIndex >= len(tensors) {
				return nil, fmt.Errorf("insufficient tensors for layer %s", layerName)
			}

			weightTensor := tensors[paramIndex]
			weightData, err := weightTensor.Float32Data()
			if err != nil {
				return nil, fmt.Errorf("failed to extract weight data for layer %s: %v", layerName, err)
			}

			weights = append(weights, WeightTensor{
				Name:  fmt.Sprintf("%s.weight", layerName),
				Shape: append([]int(nil), weightTensor.Shape...),
				Data:  append([]float32(nil), weightData...),
				Layer: layerName,
				Type:  "weight",
			})
			paramIndex++

			// Bias tensor (if present)
			if layerSpec.BoolParam("use_bias", true) {
				if paramIndex >= len(tensors) {
					return nil, fmt.Errorf("insufficient tensors for layer bias %s", layerName)
				}

				biasTensor := tensors[paramIndex]
				biasData, err := biasTensor.Float32Data()
				if err != nil {
					return nil, fmt.Errorf("failed to extract bias data for layer %s: %v", layerName, err)
				}

				weights = append(weights, WeightTensor{
					Name:  fmt.Sprintf("%s.bias", layerName),
					Shape: append([]int(nil), biasTensor.Shape...),
					Data:  append([]float32(nil), biasData...),
					Layer: layerName,
					Type:  "bias",
				})
				paramIndex++
			}

		case layers.BatchNorm:
			// BatchNorm layer: gamma + beta (if affine=true)
			if layerSpec.BoolParam("affine", true) {
				if paramIndex+1 >= len(tensors) {
					return nil, fmt.Errorf("insufficient tensors for batchnorm layer %s", layerName)
				}

				gammaTensor := tensors[paramIndex]
				gammaData, err := gammaTensor.Float32Data()
				if err != nil {
					return nil, fmt.Errorf("failed to extract gamma data for layer %s: %v", layerName, err)
				}

				weights = append(weights, WeightTensor{
					Name:  fmt.Sprintf("%s.weight", layerName), // ONNX uses "weight" for gamma
					Shape: append([]int(nil), gammaTensor.Shape...),
					Data:  append([]float32(nil), gammaData...),
					Layer: layerName,
					Type:  "gamma",
				})
				paramIndex++

				betaTensor := tensors[paramIndex]
				betaData, err := betaTensor.Float32Data()
				if err != nil {
					return nil, fmt.Errorf("failed to extract beta data for layer %s: %v", layerName, err)
				}

				weights = append(weights, WeightTensor{
					Name:  fmt.Sprintf("%s.bias", layerName), // ONNX uses "bias" for beta
					Shape: append([]int(nil), betaTensor.Shape...),
					Data:  append([]float32(nil), betaData...),
					Layer: layerName,
					Type:  "beta",
				})
				paramIndex++
			}

		case layers.ReLU, layers.Softmax, layers.MaxPool2D, layers.Dropout, layers.Flatten:
			// No parameters
			continue

		default:
			return nil, fmt.Errorf("unsupported layer type for weight extraction: %s", layerSpec.Type.String())
		}
	}

	if paramIndex != len(tensors) {
		return nil, fmt.Errorf("parameter count mismatch: spec consumed %d tensors, model has %d", paramIndex, len(tensors))
	}

	return weights, nil
}

// LoadWeightsIntoTensors loads weight data back into parameter tensors.
// Weights and tensors must be in the same order as produced by
// ExtractWeightsFromTensors; each pair is shape-checked before copying.
func LoadWeightsIntoTensors(weights []WeightTensor, tensors []*tensor.Tensor) error {
	if len(weights) != len(tensors) {
		return fmt.Errorf("weight count mismatch: %d weights, %d tensors", len(weights), len(tensors))
	}

	for i, t := range tensors {
		weight := weights[i]

		if len(t.Shape) != len(weight.Shape) {
			return fmt.Errorf("shape mismatch for weight %s: tensor %v vs weight %v",
				weight.Name, t.Shape, weight.Shape)
		}
		for j, dim := range t.Shape {
			if dim != weight.Shape[j] {
				return fmt.Errorf("dimension mismatch for weight %s at index %d: tensor %d vs weight %d",
					weight.Name, j, dim, weight.Shape[j])
			}
		}

		dst, err := t.Float32Data()
		if err != nil {
			return fmt.Errorf("failed to access tensor data for %s: %v", weight.Name, err)
		}
		if len(dst) != len(weight.Data) {
			return fmt.Errorf("data length mismatch for weight %s: tensor %d vs weight %d",
				weight.Name, len(dst), len(weight.Data))
		}
		copy(dst, weight.Data)
	}

	return nil
}
