package tensor

import (
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("ValidFloat32", func(t *testing.T) {
		data := []float32{1, 2, 3, 4, 5, 6}
		tensor, err := NewTensor([]int{2, 3}, Float32, data)
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		if tensor.NumElems != 6 {
			t.Errorf("expected 6 elements, got %d", tensor.NumElems)
		}
		if tensor.Strides[0] != 3 || tensor.Strides[1] != 1 {
			t.Errorf("unexpected strides: %v", tensor.Strides)
		}
	})

	t.Run("ScalarFill", func(t *testing.T) {
		tensor, err := NewTensor([]int{2, 2}, Float32, float32(7))
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		data := tensor.Data.([]float32)
		for i, v := range data {
			if v != 7 {
				t.Errorf("element %d is %v, want 7", i, v)
			}
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2})
		if err == nil {
			t.Error("expected error for mismatched data length")
		}
	})

	t.Run("InvalidShape", func(t *testing.T) {
		_, err := NewTensor([]int{2, 0}, Float32, nil)
		if err == nil {
			t.Error("expected error for zero dimension")
		}
	})

	t.Run("NilDataAllocates", func(t *testing.T) {
		tensor, err := NewTensor([]int{3}, Int32, nil)
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if len(tensor.Data.([]int32)) != 3 {
			t.Error("expected allocated backing slice")
		}
	})
}

func TestZerosOnes(t *testing.T) {
	zeros, err := Zeros([]int{2, 2}, Float32)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}
	for i, v := range zeros.Data.([]float32) {
		if v != 0 {
			t.Errorf("zeros element %d is %v", i, v)
		}
	}

	ones, err := Ones([]int{2, 2}, Float32)
	if err != nil {
		t.Fatalf("Ones failed: %v", err)
	}
	for i, v := range ones.Data.([]float32) {
		if v != 1 {
			t.Errorf("ones element %d is %v", i, v)
		}
	}
}

func TestReshape(t *testing.T) {
	tensor, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}

	t.Run("Valid", func(t *testing.T) {
		reshaped, err := tensor.Reshape([]int{3, 2})
		if err != nil {
			t.Fatalf("Reshape failed: %v", err)
		}
		if reshaped.Shape[0] != 3 || reshaped.Shape[1] != 2 {
			t.Errorf("unexpected shape: %v", reshaped.Shape)
		}
		// Data is shared, not copied.
		reshaped.Data.([]float32)[0] = 99
		if tensor.Data.([]float32)[0] != 99 {
			t.Error("reshape should view the same data")
		}
	})

	t.Run("ElementCountMismatch", func(t *testing.T) {
		_, err := tensor.Reshape([]int{4, 2})
		if err == nil {
			t.Error("expected error for element count mismatch")
		}
	})
}

func TestFlatten(t *testing.T) {
	tensor, err := Zeros([]int{2, 3, 4, 4}, Float32)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}

	flat, err := tensor.Flatten()
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if flat.Shape[0] != 2 || flat.Shape[1] != 48 {
		t.Errorf("unexpected flattened shape: %v", flat.Shape)
	}
}

func TestClone(t *testing.T) {
	original, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}

	clone, err := original.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	clone.Data.([]float32)[0] = 100
	if original.Data.([]float32)[0] != 1 {
		t.Error("clone should not share data with original")
	}
}

func TestItem(t *testing.T) {
	scalar := FromScalar(3.5, Float32)
	v, err := scalar.Item()
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if v.(float32) != 3.5 {
		t.Errorf("expected 3.5, got %v", v)
	}

	multi, _ := Zeros([]int{2}, Float32)
	if _, err := multi.Item(); err == nil {
		t.Error("expected error for multi-element tensor")
	}
}

func TestAtSetAt(t *testing.T) {
	tensor, err := Zeros([]int{2, 3}, Float32)
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}

	if err := tensor.SetAt(5.0, 1, 2); err != nil {
		t.Fatalf("SetAt failed: %v", err)
	}

	v, err := tensor.At(1, 2)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if v != 5.0 {
		t.Errorf("expected 5.0, got %v", v)
	}

	if _, err := tensor.At(2, 0); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestCopyDataFrom(t *testing.T) {
	dst, _ := Zeros([]int{2, 2}, Float32)
	src, _ := NewTensor([]int{4}, Float32, []float32{1, 2, 3, 4})

	// Shapes may differ; only the element count must match.
	if err := dst.CopyDataFrom(src); err != nil {
		t.Fatalf("CopyDataFrom failed: %v", err)
	}
	if dst.Data.([]float32)[3] != 4 {
		t.Error("data was not copied")
	}

	small, _ := Zeros([]int{2}, Float32)
	if err := dst.CopyDataFrom(small); err == nil {
		t.Error("expected error for element count mismatch")
	}
}
