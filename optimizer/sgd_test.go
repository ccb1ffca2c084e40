package optimizer

import (
	"math"
	"testing"

	"github.com/tsawler/wastenet/tensor"
)

func TestSGDOptimizer(t *testing.T) {
	t.Run("Basic SGD update", func(t *testing.T) {
		// Create a simple parameter tensor
		data := []float32{1.0, 2.0, 3.0}
		param, err := tensor.NewTensor([]int{3}, tensor.Float32, data)
		if err != nil {
			t.Fatalf("Failed to create parameter tensor: %v", err)
		}
		param.SetRequiresGrad(true)

		// Set gradient
		gradData := []float32{0.1, 0.2, 0.3}
		grad, err := tensor.NewTensor([]int{3}, tensor.Float32, gradData)
		if err != nil {
			t.Fatalf("Failed to create gradient tensor: %v", err)
		}
		param.SetGrad(grad)

		// Create SGD optimizer
		params := []*tensor.Tensor{param}
		sgd := NewSGD(params, 0.1, 0.0, 0.0, 0.0, false)

		// Perform one step
		err = sgd.Step()
		if err != nil {
			t.Fatalf("SGD step failed: %v", err)
		}

		// Check updated parameters: new_param = old_param - lr * grad
		expectedData := []float32{0.99, 1.98, 2.97} // 1.0 - 0.1*0.1, 2.0 - 0.1*0.2, 3.0 - 0.1*0.3
		actualData := param.Data.([]float32)

		for i, expected := range expectedData {
			if math.Abs(float64(actualData[i]-expected)) > 1e-6 {
				t.Errorf("Parameter %d: expected %.6f, got %.6f", i, expected, actualData[i])
			}
		}
	})

	t.Run("SGD with momentum", func(t *testing.T) {
		// Create parameter tensor
		data := []float32{1.0, 2.0}
		param, err := tensor.NewTensor([]int{2}, tensor.Float32, data)
		if err != nil {
			t.Fatalf("Failed to create parameter tensor: %v", err)
		}
		param.SetRequiresGrad(true)

		// Create SGD optimizer with momentum
		params := []*tensor.Tensor{param}
		sgd := NewSGD(params, 0.1, 0.9, 0.0, 0.0, false)

		// First step
		gradData1 := []float32{0.1, 0.2}
		grad1, _ := tensor.NewTensor([]int{2}, tensor.Float32, gradData1)
		param.SetGrad(grad1)

		err = sgd.Step()
		if err != nil {
			t.Fatalf("First SGD step failed: %v", err)
		}

		// Second step with different gradient
		gradData2 := []float32{0.2, 0.1}
		grad2, _ := tensor.NewTensor([]int{2}, tensor.Float32, gradData2)
		param.SetGrad(grad2)

		err = sgd.Step()
		if err != nil {
			t.Fatalf("Second SGD step failed: %v", err)
		}

		// Step 1: v = g1, p = p - 0.1*v -> [0.99, 1.98]
		// Step 2: v = 0.9*g1 + g2 = [0.29, 0.28], p -> [0.961, 1.952]
		expectedData := []float32{0.961, 1.952}
		actualData := param.Data.([]float32)

		for i, expected := range expectedData {
			if math.Abs(float64(actualData[i]-expected)) > 1e-5 {
				t.Errorf("Parameter %d: expected %.6f, got %.6f", i, expected, actualData[i])
			}
		}
	})

	t.Run("SGD with weight decay", func(t *testing.T) {
		param, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{1.0})
		param.SetRequiresGrad(true)

		grad, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{0.1})
		param.SetGrad(grad)

		sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0.0, 0.1, 0.0, false)

		if err := sgd.Step(); err != nil {
			t.Fatalf("SGD step failed: %v", err)
		}

		// Effective gradient = 0.1 + 0.1*1.0 = 0.2, so p = 1.0 - 0.1*0.2 = 0.98
		actualData := param.Data.([]float32)
		if math.Abs(float64(actualData[0]-0.98)) > 1e-6 {
			t.Errorf("Expected parameter 0.98 with weight decay, got %.6f", actualData[0])
		}
	})

	t.Run("SGD skips parameters without gradients", func(t *testing.T) {
		param, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1.0, 2.0})
		param.SetRequiresGrad(true)

		sgd := NewSGD([]*tensor.Tensor{param}, 0.1, 0.0, 0.0, 0.0, false)

		if err := sgd.Step(); err != nil {
			t.Fatalf("SGD step failed: %v", err)
		}

		actualData := param.Data.([]float32)
		if actualData[0] != 1.0 || actualData[1] != 2.0 {
			t.Error("Parameters without gradients should be untouched")
		}
	})
}

func TestSGDStateRoundTrip(t *testing.T) {
	// Train one optimizer for a step so it accumulates velocity
	param1, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1.0, 2.0})
	param1.SetRequiresGrad(true)

	sgd1 := NewSGD([]*tensor.Tensor{param1}, 0.1, 0.9, 0.0, 0.0, false)

	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{0.1, 0.2})
	param1.SetGrad(grad)
	if err := sgd1.Step(); err != nil {
		t.Fatalf("SGD step failed: %v", err)
	}

	state, err := sgd1.State()
	if err != nil {
		t.Fatalf("Failed to extract SGD state: %v", err)
	}

	if state.Type != "SGD" {
		t.Errorf("Expected state type SGD, got %s", state.Type)
	}
	if len(state.StateData) != 1 {
		t.Fatalf("Expected 1 velocity buffer in state, got %d", len(state.StateData))
	}

	// Restore into a second optimizer over a parameter at the same values
	param2, _ := tensor.NewTensor([]int{2}, tensor.Float32,
		append([]float32(nil), param1.Data.([]float32)...))
	param2.SetRequiresGrad(true)

	sgd2 := NewSGD([]*tensor.Tensor{param2}, 0.1, 0.9, 0.0, 0.0, false)
	if err := sgd2.LoadState(state); err != nil {
		t.Fatalf("Failed to load SGD state: %v", err)
	}

	// Both optimizers take an identical next step
	nextGrad := []float32{0.2, 0.1}
	g1, _ := tensor.NewTensor([]int{2}, tensor.Float32, append([]float32(nil), nextGrad...))
	g2, _ := tensor.NewTensor([]int{2}, tensor.Float32, append([]float32(nil), nextGrad...))
	param1.SetGrad(g1)
	param2.SetGrad(g2)

	if err := sgd1.Step(); err != nil {
		t.Fatalf("SGD step failed: %v", err)
	}
	if err := sgd2.Step(); err != nil {
		t.Fatalf("SGD step failed: %v", err)
	}

	data1 := param1.Data.([]float32)
	data2 := param2.Data.([]float32)
	for i := range data1 {
		if math.Abs(float64(data1[i]-data2[i])) > 1e-7 {
			t.Errorf("Parameter %d diverged after state restore: %.6f vs %.6f", i, data1[i], data2[i])
		}
	}
}
