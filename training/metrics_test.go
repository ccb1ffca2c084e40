package training

import (
	"math"
	"strings"
	"testing"

	"github.com/tsawler/wastenet/tensor"
)

// TestNewConfusionMatrix tests confusion matrix creation
func TestNewConfusionMatrix(t *testing.T) {
	cm, err := NewConfusionMatrix(3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cm.NumClasses != 3 {
		t.Errorf("Expected 3 classes, got %d", cm.NumClasses)
	}

	if len(cm.Matrix) != 3 {
		t.Errorf("Expected matrix with 3 rows, got %d", len(cm.Matrix))
	}

	for i, row := range cm.Matrix {
		if len(row) != 3 {
			t.Errorf("Row %d: expected 3 columns, got %d", i, len(row))
		}
		for j, val := range row {
			if val != 0 {
				t.Errorf("Matrix[%d][%d]: expected 0, got %d", i, j, val)
			}
		}
	}

	if cm.TotalSamples != 0 {
		t.Errorf("Expected 0 total samples, got %d", cm.TotalSamples)
	}

	// Fewer than 2 classes is not a classification problem
	if _, err := NewConfusionMatrix(1); err == nil {
		t.Error("Expected error for single-class matrix")
	}
}

// TestConfusionMatrixReset tests reset functionality
func TestConfusionMatrixReset(t *testing.T) {
	cm, _ := NewConfusionMatrix(2)

	// Manually set some values
	cm.Matrix[0][0] = 5
	cm.Matrix[0][1] = 2
	cm.Matrix[1][0] = 1
	cm.Matrix[1][1] = 7
	cm.TotalSamples = 15

	// Reset
	cm.Reset()

	// Check all values are reset
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			if cm.Matrix[i][j] != 0 {
				t.Errorf("Matrix[%d][%d]: expected 0 after reset, got %d", i, j, cm.Matrix[i][j])
			}
		}
	}

	if cm.TotalSamples != 0 {
		t.Errorf("Expected 0 total samples after reset, got %d", cm.TotalSamples)
	}
}

// TestConfusionMatrixUpdateFromPredictions tests updating from model outputs
func TestConfusionMatrixUpdateFromPredictions(t *testing.T) {
	t.Run("MultiClassClassification", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(3)

		// Multi-class predictions: 3 classes, 2 samples
		predictions, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32, []float32{
			0.1, 0.8, 0.1, // Sample 0: class 1 (argmax)
			0.6, 0.2, 0.2, // Sample 1: class 0 (argmax)
		})
		trueLabels, _ := tensor.NewTensor([]int{2}, tensor.Int32, []int32{1, 0})

		err := cm.UpdateFromPredictions(predictions, trueLabels)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// Expected: pred [1, 0], true [1, 0]
		// Matrix[0][0] = 1, Matrix[1][1] = 1, others = 0
		if cm.Matrix[0][0] != 1 {
			t.Errorf("Matrix[0][0]: expected 1, got %d", cm.Matrix[0][0])
		}
		if cm.Matrix[1][1] != 1 {
			t.Errorf("Matrix[1][1]: expected 1, got %d", cm.Matrix[1][1])
		}

		if cm.TotalSamples != 2 {
			t.Errorf("Expected 2 total samples, got %d", cm.TotalSamples)
		}
	})

	t.Run("MisclassificationsLandOffDiagonal", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(2)

		predictions, _ := tensor.NewTensor([]int{3, 2}, tensor.Float32, []float32{
			0.9, 0.1, // predicted 0, true 1
			0.3, 0.7, // predicted 1, true 1
			0.2, 0.8, // predicted 1, true 0
		})
		trueLabels, _ := tensor.NewTensor([]int{3}, tensor.Int32, []int32{1, 1, 0})

		if err := cm.UpdateFromPredictions(predictions, trueLabels); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if cm.Matrix[1][0] != 1 {
			t.Errorf("Matrix[1][0]: expected 1, got %d", cm.Matrix[1][0])
		}
		if cm.Matrix[1][1] != 1 {
			t.Errorf("Matrix[1][1]: expected 1, got %d", cm.Matrix[1][1])
		}
		if cm.Matrix[0][1] != 1 {
			t.Errorf("Matrix[0][1]: expected 1, got %d", cm.Matrix[0][1])
		}
	})

	t.Run("AccumulatesAcrossBatches", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(2)

		predictions, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{
			0.9, 0.1,
			0.1, 0.9,
		})
		trueLabels, _ := tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})

		for batch := 0; batch < 3; batch++ {
			if err := cm.UpdateFromPredictions(predictions, trueLabels); err != nil {
				t.Fatalf("Batch %d: unexpected error: %v", batch, err)
			}
		}

		if cm.TotalSamples != 6 {
			t.Errorf("Expected 6 total samples after 3 batches, got %d", cm.TotalSamples)
		}
		if cm.Matrix[0][0] != 3 || cm.Matrix[1][1] != 3 {
			t.Errorf("Expected diagonal [3, 3], got [%d, %d]", cm.Matrix[0][0], cm.Matrix[1][1])
		}
	})

	t.Run("ErrorCases", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(2)

		// Wrong class count
		predictions, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32, []float32{
			0.1, 0.8, 0.1,
			0.6, 0.2, 0.2,
		})
		trueLabels, _ := tensor.NewTensor([]int{2}, tensor.Int32, []int32{1, 0})
		if err := cm.UpdateFromPredictions(predictions, trueLabels); err == nil {
			t.Error("Expected error for class count mismatch")
		}

		// Batch size mismatch
		predictions, _ = tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{0.8, 0.2, 0.3, 0.7})
		trueLabels, _ = tensor.NewTensor([]int{3}, tensor.Int32, []int32{1, 0, 1})
		if err := cm.UpdateFromPredictions(predictions, trueLabels); err == nil {
			t.Error("Expected error for batch size mismatch")
		}

		// 1D predictions
		predictions, _ = tensor.NewTensor([]int{2}, tensor.Float32, []float32{0.8, 0.2})
		trueLabels, _ = tensor.NewTensor([]int{2}, tensor.Int32, []int32{1, 0})
		if err := cm.UpdateFromPredictions(predictions, trueLabels); err == nil {
			t.Error("Expected error for 1D predictions tensor")
		}

		// Wrong label dtype
		predictions, _ = tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{0.8, 0.2, 0.3, 0.7})
		badLabels, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1, 0})
		if err := cm.UpdateFromPredictions(predictions, badLabels); err == nil {
			t.Error("Expected error for Float32 labels")
		}

		// Out-of-range true class
		predictions, _ = tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{0.8, 0.2, 0.3, 0.7})
		trueLabels, _ = tensor.NewTensor([]int{2}, tensor.Int32, []int32{1, 5})
		if err := cm.UpdateFromPredictions(predictions, trueLabels); err == nil {
			t.Error("Expected error for out-of-range true class")
		}
	})
}

// TestMultiClassMetrics tests the macro-averaged classification metrics
func TestMultiClassMetrics(t *testing.T) {
	cm, _ := NewConfusionMatrix(3)

	// Set up a 3x3 confusion matrix
	cm.Matrix[0][0] = 10 // Class 0 correctly classified
	cm.Matrix[0][1] = 2  // Class 0 misclassified as 1
	cm.Matrix[0][2] = 1  // Class 0 misclassified as 2
	cm.Matrix[1][0] = 3  // Class 1 misclassified as 0
	cm.Matrix[1][1] = 15 // Class 1 correctly classified
	cm.Matrix[1][2] = 2  // Class 1 misclassified as 2
	cm.Matrix[2][0] = 1  // Class 2 misclassified as 0
	cm.Matrix[2][1] = 1  // Class 2 misclassified as 1
	cm.Matrix[2][2] = 8  // Class 2 correctly classified
	cm.TotalSamples = 43

	// Test macro precision
	// Class 0: TP=10, FP=3+1=4, Precision=10/14
	// Class 1: TP=15, FP=2+1=3, Precision=15/18
	// Class 2: TP=8, FP=1+2=3, Precision=8/11
	expectedMacroPrecision := ((10.0 / 14.0) + (15.0 / 18.0) + (8.0 / 11.0)) / 3.0
	macroPrecision := cm.MacroPrecision()
	if math.Abs(macroPrecision-expectedMacroPrecision) > 1e-6 {
		t.Errorf("MacroPrecision: expected %f, got %f", expectedMacroPrecision, macroPrecision)
	}

	// Test macro recall
	// Class 0: TP=10, FN=2+1=3, Recall=10/13
	// Class 1: TP=15, FN=3+2=5, Recall=15/20
	// Class 2: TP=8, FN=1+1=2, Recall=8/10
	expectedMacroRecall := ((10.0 / 13.0) + (15.0 / 20.0) + (8.0 / 10.0)) / 3.0
	macroRecall := cm.MacroRecall()
	if math.Abs(macroRecall-expectedMacroRecall) > 1e-6 {
		t.Errorf("MacroRecall: expected %f, got %f", expectedMacroRecall, macroRecall)
	}

	// Macro F1 is the harmonic mean of macro precision and macro recall
	expectedMacroF1 := 2 * expectedMacroPrecision * expectedMacroRecall / (expectedMacroPrecision + expectedMacroRecall)
	macroF1 := cm.MacroF1()
	if math.Abs(macroF1-expectedMacroF1) > 1e-6 {
		t.Errorf("MacroF1: expected %f, got %f", expectedMacroF1, macroF1)
	}

	// Per-class accuracy is the recall of each class
	expected := []float64{10.0 / 13.0, 15.0 / 20.0, 8.0 / 10.0}
	perClass := cm.PerClassAccuracy()
	if len(perClass) != 3 {
		t.Fatalf("Expected 3 per-class accuracies, got %d", len(perClass))
	}
	for i, want := range expected {
		if math.Abs(perClass[i]-want) > 1e-6 {
			t.Errorf("PerClassAccuracy[%d]: expected %f, got %f", i, want, perClass[i])
		}
	}
}

// TestAccuracy tests overall accuracy calculation
func TestAccuracy(t *testing.T) {
	t.Run("WithSamples", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(3)
		cm.Matrix[0][0] = 10
		cm.Matrix[1][1] = 15
		cm.Matrix[2][2] = 8
		cm.Matrix[0][1] = 2
		cm.Matrix[1][2] = 3
		cm.TotalSamples = 38

		expectedAccuracy := (10.0 + 15.0 + 8.0) / 38.0
		accuracy := cm.Accuracy()

		if math.Abs(accuracy-expectedAccuracy) > 1e-6 {
			t.Errorf("Expected accuracy %f, got %f", expectedAccuracy, accuracy)
		}
	})

	t.Run("NoSamples", func(t *testing.T) {
		cm, _ := NewConfusionMatrix(2)
		accuracy := cm.Accuracy()

		if accuracy != 0.0 {
			t.Errorf("Expected 0.0 accuracy for no samples, got %f", accuracy)
		}
	})
}

// TestEmptyMatrixMetrics tests that metrics degrade to zero without samples
func TestEmptyMatrixMetrics(t *testing.T) {
	cm, _ := NewConfusionMatrix(2)

	if v := cm.MacroPrecision(); v != 0.0 {
		t.Errorf("MacroPrecision should return 0.0 for empty matrix, got %f", v)
	}
	if v := cm.MacroRecall(); v != 0.0 {
		t.Errorf("MacroRecall should return 0.0 for empty matrix, got %f", v)
	}
	if v := cm.MacroF1(); v != 0.0 {
		t.Errorf("MacroF1 should return 0.0 for empty matrix, got %f", v)
	}

	perClass := cm.PerClassAccuracy()
	for i, v := range perClass {
		if v != 0.0 {
			t.Errorf("PerClassAccuracy[%d] should be 0.0 for empty matrix, got %f", i, v)
		}
	}
}

// TestConfusionMatrixString tests the text rendering
func TestConfusionMatrixString(t *testing.T) {
	cm, _ := NewConfusionMatrix(2)
	cm.Matrix[0][0] = 12
	cm.Matrix[0][1] = 3
	cm.Matrix[1][0] = 1
	cm.Matrix[1][1] = 9
	cm.TotalSamples = 25

	rendered := cm.String()

	lines := strings.Split(rendered, "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines (header + 2 rows), got %d", len(lines))
	}

	for _, val := range []string{"12", "3", "1", "9"} {
		if !strings.Contains(rendered, val) {
			t.Errorf("Rendered matrix missing count %s:\n%s", val, rendered)
		}
	}
}

// TestCalculateAccuracy tests the batch accuracy helper used by the training loop
func TestCalculateAccuracy(t *testing.T) {
	t.Run("KnownOutputs", func(t *testing.T) {
		// 4 samples, 3 classes; argmax gives [2, 0, 1, 1]
		outputs, _ := tensor.NewTensor([]int{4, 3}, tensor.Float32, []float32{
			0.1, 0.2, 0.7,
			0.9, 0.05, 0.05,
			0.2, 0.5, 0.3,
			0.3, 0.4, 0.3,
		})
		labels, _ := tensor.NewTensor([]int{4}, tensor.Int32, []int32{2, 0, 1, 2})

		accuracy, err := calculateAccuracy(outputs, labels)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		// 3 of 4 correct
		if math.Abs(accuracy-0.75) > 1e-6 {
			t.Errorf("Expected accuracy 0.75, got %f", accuracy)
		}
	})

	t.Run("LabelsWithTrailingDimension", func(t *testing.T) {
		outputs, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{
			0.8, 0.2,
			0.1, 0.9,
		})
		labels, _ := tensor.NewTensor([]int{2, 1}, tensor.Int32, []int32{0, 1})

		accuracy, err := calculateAccuracy(outputs, labels)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if accuracy != 1.0 {
			t.Errorf("Expected accuracy 1.0, got %f", accuracy)
		}
	})

	t.Run("ErrorCases", func(t *testing.T) {
		// 1D outputs
		outputs, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{0.8, 0.2})
		labels, _ := tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})
		if _, err := calculateAccuracy(outputs, labels); err == nil {
			t.Error("Expected error for 1D outputs")
		}

		// Batch size mismatch
		outputs, _ = tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{0.8, 0.2, 0.1, 0.9})
		labels, _ = tensor.NewTensor([]int{3}, tensor.Int32, []int32{0, 1, 0})
		if _, err := calculateAccuracy(outputs, labels); err == nil {
			t.Error("Expected error for batch size mismatch")
		}

		// Wrong dtypes
		outputs, _ = tensor.NewTensor([]int{2, 2}, tensor.Int32, []int32{1, 0, 0, 1})
		labels, _ = tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})
		if _, err := calculateAccuracy(outputs, labels); err == nil {
			t.Error("Expected error for Int32 outputs")
		}
	})
}

// BenchmarkConfusionMatrixUpdate benchmarks confusion matrix updates
func BenchmarkConfusionMatrixUpdate(b *testing.B) {
	cm, _ := NewConfusionMatrix(10)

	// Generate test data: 1000 samples, 10 classes
	predData := make([]float32, 1000*10)
	labelData := make([]int32, 1000)

	for i := 0; i < 1000; i++ {
		labelData[i] = int32(i % 10)
		// Set prediction for correct class higher
		for j := 0; j < 10; j++ {
			if j == int(labelData[i]) {
				predData[i*10+j] = 0.8
			} else {
				predData[i*10+j] = 0.02
			}
		}
	}

	predictions, _ := tensor.NewTensor([]int{1000, 10}, tensor.Float32, predData)
	trueLabels, _ := tensor.NewTensor([]int{1000}, tensor.Int32, labelData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cm.Reset()
		if err := cm.UpdateFromPredictions(predictions, trueLabels); err != nil {
			b.Fatal(err)
		}
	}
}
