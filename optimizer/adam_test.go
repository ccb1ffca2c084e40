package optimizer

import (
	"math"
	"testing"

	"github.com/tsawler/wastenet/tensor"
)

func TestAdamOptimizer(t *testing.T) {
	t.Run("Basic Adam update", func(t *testing.T) {
		// Create a simple parameter tensor
		data := []float32{1.0, 2.0}
		param, err := tensor.NewTensor([]int{2}, tensor.Float32, data)
		if err != nil {
			t.Fatalf("Failed to create parameter tensor: %v", err)
		}
		param.SetRequiresGrad(true)

		// Set gradient
		gradData := []float32{0.1, 0.2}
		grad, err := tensor.NewTensor([]int{2}, tensor.Float32, gradData)
		if err != nil {
			t.Fatalf("Failed to create gradient tensor: %v", err)
		}
		param.SetGrad(grad)

		// Create Adam optimizer
		params := []*tensor.Tensor{param}
		adam := NewAdam(params, 0.001, 0.9, 0.999, 1e-8, 0.0)

		// Perform one step
		err = adam.Step()
		if err != nil {
			t.Fatalf("Adam step failed: %v", err)
		}

		// On the first step the bias-corrected update is approximately lr
		// regardless of gradient magnitude
		actualData := param.Data.([]float32)

		if math.Abs(float64(actualData[0]-0.999)) > 1e-5 {
			t.Errorf("Expected parameter ~0.999 after first Adam step, got %.6f", actualData[0])
		}
		if math.Abs(float64(actualData[1]-1.999)) > 1e-5 {
			t.Errorf("Expected parameter ~1.999 after first Adam step, got %.6f", actualData[1])
		}
	})

	t.Run("Adam with multiple steps", func(t *testing.T) {
		// Create parameter tensor
		data := []float32{1.0}
		param, err := tensor.NewTensor([]int{1}, tensor.Float32, data)
		if err != nil {
			t.Fatalf("Failed to create parameter tensor: %v", err)
		}
		param.SetRequiresGrad(true)

		// Create Adam optimizer
		params := []*tensor.Tensor{param}
		adam := NewAdam(params, 0.01, 0.9, 0.999, 1e-8, 0.0)

		// Perform multiple steps with consistent gradient
		for i := 0; i < 10; i++ {
			gradData := []float32{0.1}
			grad, _ := tensor.NewTensor([]int{1}, tensor.Float32, gradData)
			param.SetGrad(grad)

			err = adam.Step()
			if err != nil {
				t.Fatalf("Adam step %d failed: %v", i, err)
			}
		}

		// After multiple steps with consistent positive gradient, parameter should decrease
		actualData := param.Data.([]float32)
		if actualData[0] >= 1.0 {
			t.Errorf("After 10 steps, parameter should be smaller than initial value 1.0, got %.6f", actualData[0])
		}
	})
}

func TestAdamStateRoundTrip(t *testing.T) {
	param1, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{1.0, 2.0})
	param1.SetRequiresGrad(true)

	adam1 := NewAdam([]*tensor.Tensor{param1}, 0.001, 0.9, 0.999, 1e-8, 0.0)

	grad, _ := tensor.NewTensor([]int{2}, tensor.Float32, []float32{0.1, 0.2})
	param1.SetGrad(grad)
	if err := adam1.Step(); err != nil {
		t.Fatalf("Adam step failed: %v", err)
	}

	state, err := adam1.State()
	if err != nil {
		t.Fatalf("Failed to extract Adam state: %v", err)
	}

	if state.Type != "Adam" {
		t.Errorf("Expected state type Adam, got %s", state.Type)
	}
	// First and second moment buffers for the single parameter
	if len(state.StateData) != 2 {
		t.Fatalf("Expected 2 state buffers, got %d", len(state.StateData))
	}

	param2, _ := tensor.NewTensor([]int{2}, tensor.Float32,
		append([]float32(nil), param1.Data.([]float32)...))
	param2.SetRequiresGrad(true)

	adam2 := NewAdam([]*tensor.Tensor{param2}, 0.001, 0.9, 0.999, 1e-8, 0.0)
	if err := adam2.LoadState(state); err != nil {
		t.Fatalf("Failed to load Adam state: %v", err)
	}

	// Loading mismatched state types is rejected
	sgd := NewSGD([]*tensor.Tensor{param2}, 0.1, 0.0, 0.0, 0.0, false)
	if err := sgd.LoadState(state); err == nil {
		t.Error("Expected error loading Adam state into SGD")
	}

	// Both optimizers take an identical next step
	nextGrad := []float32{0.2, 0.1}
	g1, _ := tensor.NewTensor([]int{2}, tensor.Float32, append([]float32(nil), nextGrad...))
	g2, _ := tensor.NewTensor([]int{2}, tensor.Float32, append([]float32(nil), nextGrad...))
	param1.SetGrad(g1)
	param2.SetGrad(g2)

	if err := adam1.Step(); err != nil {
		t.Fatalf("Adam step failed: %v", err)
	}
	if err := adam2.Step(); err != nil {
		t.Fatalf("Adam step failed: %v", err)
	}

	data1 := param1.Data.([]float32)
	data2 := param2.Data.([]float32)
	for i := range data1 {
		if math.Abs(float64(data1[i]-data2[i])) > 1e-7 {
			t.Errorf("Parameter %d diverged after state restore: %.6f vs %.6f", i, data1[i], data2[i])
		}
	}
}
