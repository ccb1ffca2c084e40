package training

import (
	"fmt"
	"strings"

	"github.com/tsawler/wastenet/tensor"
)

// ConfusionMatrix accumulates prediction counts for multi-class
// classification. Matrix[i][j] counts samples whose true class is i and
// predicted class is j, so the diagonal holds the correct predictions.
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int
	TotalSamples int
}

// NewConfusionMatrix creates an empty confusion matrix for the given number
// of classes
func NewConfusionMatrix(numClasses int) (*ConfusionMatrix, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("numClasses must be at least 2, got %d", numClasses)
	}

	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}, nil
}

// Reset clears all accumulated counts
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// UpdateFromPredictions accumulates counts from a batch of model outputs.
// predictions: [batch_size, num_classes] scores (logits or probabilities)
// trueLabels: [batch_size] or [batch_size, 1] Int32 class indices
func (cm *ConfusionMatrix) UpdateFromPredictions(predictions, trueLabels *tensor.Tensor) error {
	if predictions.DType != tensor.Float32 {
		return fmt.Errorf("predictions must be Float32, got %s", predictions.DType)
	}
	if trueLabels.DType != tensor.Int32 {
		return fmt.Errorf("trueLabels must be Int32, got %s", trueLabels.DType)
	}
	if len(predictions.Shape) != 2 {
		return fmt.Errorf("predictions must be 2D [batch_size, num_classes], got shape %v", predictions.Shape)
	}
	if predictions.Shape[1] != cm.NumClasses {
		return fmt.Errorf("predictions have %d classes, matrix has %d", predictions.Shape[1], cm.NumClasses)
	}

	batchSize := predictions.Shape[0]
	if trueLabels.NumElems != batchSize {
		return fmt.Errorf("batch size mismatch: predictions %d, labels %d", batchSize, trueLabels.NumElems)
	}

	predData := predictions.Data.([]float32)
	labelData := trueLabels.Data.([]int32)

	for i := 0; i < batchSize; i++ {
		// Argmax over the class scores
		offset := i * cm.NumClasses
		predClass := 0
		maxVal := predData[offset]
		for j := 1; j < cm.NumClasses; j++ {
			if predData[offset+j] > maxVal {
				maxVal = predData[offset+j]
				predClass = j
			}
		}

		trueClass := int(labelData[i])
		if trueClass < 0 || trueClass >= cm.NumClasses {
			return fmt.Errorf("true class %d out of range [0, %d)", trueClass, cm.NumClasses)
		}

		cm.Matrix[trueClass][predClass]++
		cm.TotalSamples++
	}

	return nil
}

// Accuracy returns the fraction of correctly classified samples
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// PerClassAccuracy returns the recall of each class: the fraction of samples
// of that class that were classified correctly. Classes with no samples
// report zero.
func (cm *ConfusionMatrix) PerClassAccuracy() []float64 {
	accuracies := make([]float64, cm.NumClasses)
	for i := 0; i < cm.NumClasses; i++ {
		total := 0
		for j := 0; j < cm.NumClasses; j++ {
			total += cm.Matrix[i][j]
		}
		if total > 0 {
			accuracies[i] = float64(cm.Matrix[i][i]) / float64(total)
		}
	}
	return accuracies
}

// MacroPrecision returns precision averaged over classes with at least one
// predicted sample
func (cm *ConfusionMatrix) MacroPrecision() float64 {
	var sum float64
	counted := 0
	for j := 0; j < cm.NumClasses; j++ {
		predicted := 0
		for i := 0; i < cm.NumClasses; i++ {
			predicted += cm.Matrix[i][j]
		}
		if predicted > 0 {
			sum += float64(cm.Matrix[j][j]) / float64(predicted)
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// MacroRecall returns recall averaged over classes with at least one true
// sample
func (cm *ConfusionMatrix) MacroRecall() float64 {
	var sum float64
	counted := 0
	for i := 0; i < cm.NumClasses; i++ {
		actual := 0
		for j := 0; j < cm.NumClasses; j++ {
			actual += cm.Matrix[i][j]
		}
		if actual > 0 {
			sum += float64(cm.Matrix[i][i]) / float64(actual)
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// MacroF1 returns the harmonic mean of macro precision and macro recall
func (cm *ConfusionMatrix) MacroF1() float64 {
	precision := cm.MacroPrecision()
	recall := cm.MacroRecall()
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// String renders the matrix with true classes as rows and predicted classes
// as columns
func (cm *ConfusionMatrix) String() string {
	var sb strings.Builder
	sb.WriteString("      ")
	for j := 0; j < cm.NumClasses; j++ {
		sb.WriteString(fmt.Sprintf("%6d", j))
	}
	sb.WriteString("\n")
	for i := 0; i < cm.NumClasses; i++ {
		sb.WriteString(fmt.Sprintf("%6d", i))
		for j := 0; j < cm.NumClasses; j++ {
			sb.WriteString(fmt.Sprintf("%6d", cm.Matrix[i][j]))
		}
		if i < cm.NumClasses-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// calculateAccuracy returns the fraction of samples in [0,1] whose argmax
// over the output scores matches the label.
// outputs: [batch_size, num_classes] Float32
// labels: [batch_size] or [batch_size, 1] Int32
func calculateAccuracy(outputs, labels *tensor.Tensor) (float64, error) {
	if outputs.DType != tensor.Float32 || labels.DType != tensor.Int32 {
		return 0, fmt.Errorf("outputs must be Float32 and labels must be Int32")
	}
	if len(outputs.Shape) != 2 {
		return 0, fmt.Errorf("outputs must be 2D [batch_size, num_classes], got shape %v", outputs.Shape)
	}

	batchSize := outputs.Shape[0]
	numClasses := outputs.Shape[1]
	if labels.NumElems != batchSize {
		return 0, fmt.Errorf("batch size mismatch: outputs %d, labels %d", batchSize, labels.NumElems)
	}
	if batchSize == 0 {
		return 0, nil
	}

	outputData := outputs.Data.([]float32)
	labelData := labels.Data.([]int32)

	correct := 0
	for i := 0; i < batchSize; i++ {
		offset := i * numClasses
		predClass := 0
		maxVal := outputData[offset]
		for j := 1; j < numClasses; j++ {
			if outputData[offset+j] > maxVal {
				maxVal = outputData[offset+j]
				predClass = j
			}
		}
		if int32(predClass) == labelData[i] {
			correct++
		}
	}

	return float64(correct) / float64(batchSize), nil
}
