package training

import (
	"fmt"

	"github.com/tsawler/wastenet/tensor"
)

// Predictor provides forward-pass only functionality for a trained model.
// The wrapped model is kept in evaluation mode so dropout is disabled and
// batch normalization uses its running statistics.
type Predictor struct {
	model  *Model
	labels []string
}

// Prediction is the decoded result for a single input
type Prediction struct {
	Class         int       `json:"class"`
	Label         string    `json:"label,omitempty"`
	Confidence    float32   `json:"confidence"`
	Probabilities []float32 `json:"probabilities"`
}

// NewPredictor creates an inference wrapper around a model. Class labels are
// optional; when provided they must match the model's output dimension and
// predictions carry the matching label alongside the class index.
func NewPredictor(model *Model, labels []string) (*Predictor, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if len(labels) > 0 && len(labels) != model.NumClasses() {
		return nil, fmt.Errorf("label count %d does not match model output size %d",
			len(labels), model.NumClasses())
	}

	model.Eval()

	return &Predictor{
		model:  model,
		labels: labels,
	}, nil
}

// Predict runs inference on a single sample. The input must carry a leading
// batch dimension of exactly 1, e.g. [1, channels, height, width].
func (p *Predictor) Predict(input *tensor.Tensor) (*Prediction, error) {
	if input == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}
	if len(input.Shape) < 2 || input.Shape[0] != 1 {
		return nil, fmt.Errorf("expected a single-sample batch, got shape %v", input.Shape)
	}

	predictions, err := p.PredictBatch(input)
	if err != nil {
		return nil, err
	}
	return &predictions[0], nil
}

// PredictBatch runs inference on a batch and returns one decoded prediction
// per sample
func (p *Predictor) PredictBatch(input *tensor.Tensor) ([]Prediction, error) {
	if input == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}

	p.model.Eval()

	logits, err := p.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %v", err)
	}

	probs, err := tensor.Softmax(logits)
	if err != nil {
		return nil, fmt.Errorf("failed to compute class probabilities: %v", err)
	}

	batchSize := probs.Shape[0]
	numClasses := probs.Shape[1]
	probData, err := probs.Float32Data()
	if err != nil {
		return nil, err
	}

	predictions := make([]Prediction, batchSize)
	for b := 0; b < batchSize; b++ {
		row := probData[b*numClasses : (b+1)*numClasses]

		bestClass := 0
		bestProb := row[0]
		for c := 1; c < numClasses; c++ {
			if row[c] > bestProb {
				bestProb = row[c]
				bestClass = c
			}
		}

		pred := Prediction{
			Class:         bestClass,
			Confidence:    bestProb,
			Probabilities: append([]float32(nil), row...),
		}
		if len(p.labels) > 0 {
			pred.Label = p.labels[bestClass]
		}
		predictions[b] = pred
	}

	return predictions, nil
}

// Model returns the wrapped model
func (p *Predictor) Model() *Model {
	return p.model
}

// Labels returns the class labels configured for this predictor, or nil
func (p *Predictor) Labels() []string {
	return p.labels
}
