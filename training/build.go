package training

import (
	"fmt"

	"github.com/tsawler/wastenet/layers"
	"github.com/tsawler/wastenet/tensor"
)

// Running statistics keys used in layer specs
const (
	runningMeanKey = "running_mean"
	runningVarKey  = "running_var"
)

// Model pairs a compiled architecture description with its runnable module
// graph. The spec side feeds checkpoints and summaries; the module side runs
// forward and backward passes.
type Model struct {
	spec       *layers.ModelSpec
	seq        *Sequential
	batchNorms map[string]*BatchNorm // spec layer name -> module, for stats sync
}

// NewModelFromSpec instantiates runnable modules for every layer of a
// compiled spec. A softmax as the final layer is skipped: the cross entropy
// loss operates on logits and applies softmax itself, and inference code
// reapplies it explicitly. Weight tensors are freshly initialized from the
// global seed; use a checkpoint to restore trained values. Batch norm
// running statistics present in the spec are restored into the modules.
func NewModelFromSpec(spec *layers.ModelSpec) (*Model, error) {
	if spec == nil {
		return nil, fmt.Errorf("model spec cannot be nil")
	}
	if !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}

	model := &Model{
		spec:       spec,
		seq:        NewSequential(),
		batchNorms: make(map[string]*BatchNorm),
	}

	for i := range spec.Layers {
		layer := &spec.Layers[i]

		switch layer.Type {
		case layers.Dense:
			linear, err := NewLinear(
				layer.IntParam("input_size", 0),
				layer.IntParam("output_size", 0),
				layer.BoolParam("use_bias", true),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to build layer %s: %v", layer.Name, err)
			}
			model.seq.Add(linear)

		case layers.Conv2D:
			conv, err := NewConv2D(
				layer.IntParam("input_channels", 0),
				layer.IntParam("output_channels", 0),
				layer.IntParam("kernel_size", 3),
				layer.IntParam("stride", 1),
				layer.IntParam("padding", 0),
				layer.BoolParam("use_bias", true),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to build layer %s: %v", layer.Name, err)
			}
			model.seq.Add(conv)

		case layers.ReLU:
			model.seq.Add(NewReLU())

		case layers.Softmax:
			if i != len(spec.Layers)-1 {
				return nil, fmt.Errorf("softmax layer %s is only supported as the final layer", layer.Name)
			}
			// Terminal softmax folds into the loss; nothing to add

		case layers.MaxPool2D:
			pool, err := NewMaxPool2D(
				layer.IntParam("pool_size", 2),
				layer.IntParam("stride", 0),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to build layer %s: %v", layer.Name, err)
			}
			model.seq.Add(pool)

		case layers.Dropout:
			dropout, err := NewDropout(layer.FloatParam("rate", 0.5))
			if err != nil {
				return nil, fmt.Errorf("failed to build layer %s: %v", layer.Name, err)
			}
			model.seq.Add(dropout)

		case layers.BatchNorm:
			bn, err := NewBatchNorm(
				layer.IntParam("num_features", 0),
				float64(layer.FloatParam("eps", 1e-5)),
				float64(layer.FloatParam("momentum", 0.1)),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to build layer %s: %v", layer.Name, err)
			}
			if layer.RunningStatistics != nil {
				mean, okMean := layer.RunningStatistics[runningMeanKey]
				variance, okVar := layer.RunningStatistics[runningVarKey]
				if okMean && okVar {
					if err := bn.SetRunningStats(mean, variance); err != nil {
						return nil, fmt.Errorf("failed to restore running statistics for %s: %v", layer.Name, err)
					}
				}
			}
			model.batchNorms[layer.Name] = bn
			model.seq.Add(bn)

		case layers.Flatten:
			model.seq.Add(NewFlatten())

		default:
			return nil, fmt.Errorf("unsupported layer type %s for layer %s", layer.Type.String(), layer.Name)
		}
	}

	return model, nil
}

// Forward runs the model on a batch and returns the raw logits
func (m *Model) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return m.seq.Forward(input)
}

// Parameters returns the trainable parameters in spec layer order: weight
// then bias for dense and conv layers, gamma then beta for batch norm.
// Checkpoint weight extraction relies on this ordering.
func (m *Model) Parameters() []*tensor.Tensor {
	return m.seq.Parameters()
}

// Train sets all modules to training mode
func (m *Model) Train() {
	m.seq.Train()
}

// Eval sets all modules to evaluation mode
func (m *Model) Eval() {
	m.seq.Eval()
}

// IsTraining returns true if in training mode
func (m *Model) IsTraining() bool {
	return m.seq.IsTraining()
}

// Spec returns the architecture description the model was built from
func (m *Model) Spec() *layers.ModelSpec {
	return m.spec
}

// NumClasses returns the size of the model's output dimension
func (m *Model) NumClasses() int {
	return m.spec.NumClasses()
}

// Summary returns a human-readable architecture table
func (m *Model) Summary() string {
	return m.spec.Summary()
}

// SyncRunningStats copies each batch norm module's running estimates back
// into the spec so they serialize with checkpoints and saved models
func (m *Model) SyncRunningStats() {
	for i := range m.spec.Layers {
		layer := &m.spec.Layers[i]
		bn, ok := m.batchNorms[layer.Name]
		if !ok {
			continue
		}
		mean, variance := bn.RunningStats()
		if layer.RunningStatistics == nil {
			layer.RunningStatistics = make(map[string][]float32)
		}
		layer.RunningStatistics[runningMeanKey] = append([]float32(nil), mean...)
		layer.RunningStatistics[runningVarKey] = append([]float32(nil), variance...)
	}
}
