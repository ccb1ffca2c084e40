package training

import (
	"math"
	"testing"

	"github.com/tsawler/wastenet/tensor"
)

func TestCrossEntropyLoss(t *testing.T) {
	t.Run("Basic CrossEntropy computation", func(t *testing.T) {
		// Create logits for 2 samples, 3 classes
		logits, err := tensor.NewTensor([]int{2, 3}, tensor.Float32,
			[]float32{1.0, 2.0, 3.0, 0.5, 1.5, 0.1})
		if err != nil {
			t.Fatalf("Failed to create logits tensor: %v", err)
		}

		// Target classes
		target, err := tensor.NewTensor([]int{2}, tensor.Int32, []int32{2, 1})
		if err != nil {
			t.Fatalf("Failed to create target tensor: %v", err)
		}

		ce := NewCrossEntropyLoss("mean")

		loss, err := ce.Forward(logits, target)
		if err != nil {
			t.Fatalf("CrossEntropy forward failed: %v", err)
		}

		// Loss should be positive
		actualLoss := loss.Data.([]float32)[0]
		if actualLoss <= 0 {
			t.Errorf("CrossEntropy loss should be positive, got %.6f", actualLoss)
		}
	})

	t.Run("CrossEntropy exact value", func(t *testing.T) {
		// 1 sample, 2 classes: softmax([1, 2]) = [0.268941, 0.731059]
		logits, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, []float32{1.0, 2.0})
		target, _ := tensor.NewTensor([]int{1}, tensor.Int32, []int32{1})

		ce := NewCrossEntropyLoss("mean")

		loss, err := ce.Forward(logits, target)
		if err != nil {
			t.Fatalf("CrossEntropy forward failed: %v", err)
		}

		// -ln(0.731059) = 0.313262
		expectedLoss := float32(0.313262)
		actualLoss := loss.Data.([]float32)[0]
		if math.Abs(float64(actualLoss-expectedLoss)) > 1e-5 {
			t.Errorf("Expected loss %.6f, got %.6f", expectedLoss, actualLoss)
		}
	})

	t.Run("CrossEntropy backward pass", func(t *testing.T) {
		// Simple case: 1 sample, 2 classes
		logits, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, []float32{1.0, 2.0})
		target, _ := tensor.NewTensor([]int{1}, tensor.Int32, []int32{1})

		ce := NewCrossEntropyLoss("mean")

		grad, err := ce.Backward(logits, target)
		if err != nil {
			t.Fatalf("CrossEntropy backward failed: %v", err)
		}

		// Check gradient shape
		if len(grad.Shape) != 2 || grad.Shape[0] != 1 || grad.Shape[1] != 2 {
			t.Errorf("Expected gradient shape [1, 2], got %v", grad.Shape)
		}

		// Gradient is softmax probabilities minus one-hot target
		gradData := grad.Data.([]float32)

		// For the target class: softmax_prob - 1 = 0.731059 - 1 = -0.268941
		if math.Abs(float64(gradData[1]+0.268941)) > 1e-5 {
			t.Errorf("Gradient for target class: expected %.6f, got %.6f", -0.268941, gradData[1])
		}

		// For the non-target class: softmax_prob - 0 = 0.268941
		if math.Abs(float64(gradData[0]-0.268941)) > 1e-5 {
			t.Errorf("Gradient for non-target class: expected %.6f, got %.6f", 0.268941, gradData[0])
		}

		// Gradients over a row sum to zero
		if math.Abs(float64(gradData[0]+gradData[1])) > 1e-6 {
			t.Errorf("Row gradients should sum to zero, got %.6f", gradData[0]+gradData[1])
		}
	})

	t.Run("CrossEntropy sum reduction scales gradient", func(t *testing.T) {
		logits, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1.0, 2.0, 0.5, 0.5})
		target, _ := tensor.NewTensor([]int{2}, tensor.Int32, []int32{1, 0})

		mean := NewCrossEntropyLoss("mean")
		sum := NewCrossEntropyLoss("sum")

		meanLoss, err := mean.Forward(logits, target)
		if err != nil {
			t.Fatalf("Mean forward failed: %v", err)
		}
		sumLoss, err := sum.Forward(logits, target)
		if err != nil {
			t.Fatalf("Sum forward failed: %v", err)
		}

		// Sum loss should be N times the mean loss (N=2 here)
		ratio := sumLoss.Data.([]float32)[0] / meanLoss.Data.([]float32)[0]
		if math.Abs(float64(ratio-2.0)) > 1e-5 {
			t.Errorf("Expected sum/mean ratio 2.0, got %.6f", ratio)
		}
	})

	t.Run("CrossEntropy with invalid inputs", func(t *testing.T) {
		// Wrong shape logits
		logits, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1.0, 2.0})
		target, _ := tensor.NewTensor([]int{1}, tensor.Int32, []int32{0})

		ce := NewCrossEntropyLoss("mean")

		_, err := ce.Forward(logits, target)
		if err == nil {
			t.Error("Expected error for 1D logits tensor")
		}

		// Wrong dtype
		logits2, _ := tensor.NewTensor([]int{1, 2}, tensor.Int32, []int32{1, 2})
		target2, _ := tensor.NewTensor([]int{1}, tensor.Int32, []int32{0})

		_, err = ce.Forward(logits2, target2)
		if err == nil {
			t.Error("Expected error for Int32 logits tensor")
		}

		// Out-of-range class index
		logits3, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, []float32{1.0, 2.0})
		target3, _ := tensor.NewTensor([]int{1}, tensor.Int32, []int32{5})

		_, err = ce.Forward(logits3, target3)
		if err == nil {
			t.Error("Expected error for out-of-range target class")
		}
	})
}

func TestSoftmax(t *testing.T) {
	t.Run("Softmax numerical properties", func(t *testing.T) {
		logits, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32,
			[]float32{1.0, 2.0, 3.0, 0.0, 1.0, 2.0})

		ce := NewCrossEntropyLoss("mean")

		probs, err := ce.softmax(logits)
		if err != nil {
			t.Fatalf("Softmax failed: %v", err)
		}

		probsData := probs.Data.([]float32)

		// Check that probabilities sum to 1 for each sample
		for i := 0; i < 2; i++ {
			sum := float32(0.0)
			for j := 0; j < 3; j++ {
				prob := probsData[i*3+j]
				sum += prob

				// Each probability should be positive
				if prob <= 0 {
					t.Errorf("Probability should be positive, got %.6f at [%d, %d]", prob, i, j)
				}
			}

			// Sum should be approximately 1
			if math.Abs(float64(sum-1.0)) > 1e-6 {
				t.Errorf("Probabilities should sum to 1, got %.6f for sample %d", sum, i)
			}
		}
	})

	t.Run("Softmax is shift invariant", func(t *testing.T) {
		ce := NewCrossEntropyLoss("mean")

		logits, _ := tensor.NewTensor([]int{1, 3}, tensor.Float32, []float32{1.0, 2.0, 3.0})
		shifted, _ := tensor.NewTensor([]int{1, 3}, tensor.Float32, []float32{101.0, 102.0, 103.0})

		probs, err := ce.softmax(logits)
		if err != nil {
			t.Fatalf("Softmax failed: %v", err)
		}
		shiftedProbs, err := ce.softmax(shifted)
		if err != nil {
			t.Fatalf("Softmax on shifted logits failed: %v", err)
		}

		a := probs.Data.([]float32)
		b := shiftedProbs.Data.([]float32)
		for i := range a {
			if math.Abs(float64(a[i]-b[i])) > 1e-6 {
				t.Errorf("Shifted softmax diverges at %d: %.6f vs %.6f", i, a[i], b[i])
			}
		}
	})
}
