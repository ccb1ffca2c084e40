package tensor

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func TestElementwiseOps(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	b, _ := NewTensor([]int{2, 2}, Float32, []float32{5, 6, 7, 8})

	t.Run("Add", func(t *testing.T) {
		r, err := Add(a, b)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		expected := []float32{6, 8, 10, 12}
		for i, v := range r.Data.([]float32) {
			if v != expected[i] {
				t.Errorf("element %d: got %v, want %v", i, v, expected[i])
			}
		}
	})

	t.Run("Sub", func(t *testing.T) {
		r, err := Sub(b, a)
		if err != nil {
			t.Fatalf("Sub failed: %v", err)
		}
		for i, v := range r.Data.([]float32) {
			if v != 4 {
				t.Errorf("element %d: got %v, want 4", i, v)
			}
		}
	})

	t.Run("Mul", func(t *testing.T) {
		r, err := Mul(a, b)
		if err != nil {
			t.Fatalf("Mul failed: %v", err)
		}
		expected := []float32{5, 12, 21, 32}
		for i, v := range r.Data.([]float32) {
			if v != expected[i] {
				t.Errorf("element %d: got %v, want %v", i, v, expected[i])
			}
		}
	})

	t.Run("DivByZero", func(t *testing.T) {
		zero, _ := Zeros([]int{2, 2}, Float32)
		if _, err := Div(a, zero); err == nil {
			t.Error("expected division by zero error")
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		c, _ := Zeros([]int{3}, Float32)
		if _, err := Add(a, c); err == nil {
			t.Error("expected shape mismatch error")
		}
	})
}

func TestScale(t *testing.T) {
	a, _ := NewTensor([]int{3}, Float32, []float32{1, -2, 3})
	r, err := Scale(a, 2.5)
	if err != nil {
		t.Fatalf("Scale failed: %v", err)
	}
	expected := []float32{2.5, -5, 7.5}
	for i, v := range r.Data.([]float32) {
		if !almostEqual(v, expected[i], 1e-6) {
			t.Errorf("element %d: got %v, want %v", i, v, expected[i])
		}
	}
}

func TestReLUOp(t *testing.T) {
	a, _ := NewTensor([]int{4}, Float32, []float32{-1, 0, 2, -3})
	r, err := ReLU(a)
	if err != nil {
		t.Fatalf("ReLU failed: %v", err)
	}
	expected := []float32{0, 0, 2, 0}
	for i, v := range r.Data.([]float32) {
		if v != expected[i] {
			t.Errorf("element %d: got %v, want %v", i, v, expected[i])
		}
	}
}

func TestMatMul(t *testing.T) {
	t.Run("KnownProduct", func(t *testing.T) {
		a, _ := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
		b, _ := NewTensor([]int{3, 2}, Float32, []float32{7, 8, 9, 10, 11, 12})

		r, err := MatMul(a, b)
		if err != nil {
			t.Fatalf("MatMul failed: %v", err)
		}
		expected := []float32{58, 64, 139, 154}
		for i, v := range r.Data.([]float32) {
			if !almostEqual(v, expected[i], 1e-5) {
				t.Errorf("element %d: got %v, want %v", i, v, expected[i])
			}
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		a, _ := Zeros([]int{2, 3}, Float32)
		b, _ := Zeros([]int{2, 3}, Float32)
		if _, err := MatMul(a, b); err == nil {
			t.Error("expected dimension mismatch error")
		}
	})
}

func TestTranspose(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	r, err := Transpose(a)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	if r.Shape[0] != 3 || r.Shape[1] != 2 {
		t.Fatalf("unexpected shape: %v", r.Shape)
	}
	expected := []float32{1, 4, 2, 5, 3, 6}
	for i, v := range r.Data.([]float32) {
		if v != expected[i] {
			t.Errorf("element %d: got %v, want %v", i, v, expected[i])
		}
	}
}

func TestSoftmax(t *testing.T) {
	t.Run("RowsSumToOne", func(t *testing.T) {
		logits, _ := NewTensor([]int{2, 4}, Float32, []float32{1, 2, 3, 4, -1, 0, 1, 2})
		probs, err := Softmax(logits)
		if err != nil {
			t.Fatalf("Softmax failed: %v", err)
		}

		data := probs.Data.([]float32)
		for row := 0; row < 2; row++ {
			var sum float32
			for j := 0; j < 4; j++ {
				sum += data[row*4+j]
			}
			if !almostEqual(sum, 1.0, 1e-5) {
				t.Errorf("row %d sums to %v", row, sum)
			}
		}
	})

	t.Run("UniformLogits", func(t *testing.T) {
		logits, _ := Zeros([]int{1, 8}, Float32)
		probs, err := Softmax(logits)
		if err != nil {
			t.Fatalf("Softmax failed: %v", err)
		}
		for i, v := range probs.Data.([]float32) {
			if !almostEqual(v, 0.125, 1e-6) {
				t.Errorf("element %d: got %v, want 0.125", i, v)
			}
		}
	})

	t.Run("LargeLogitsStable", func(t *testing.T) {
		logits, _ := NewTensor([]int{1, 2}, Float32, []float32{1000, 1000})
		probs, err := Softmax(logits)
		if err != nil {
			t.Fatalf("Softmax failed: %v", err)
		}
		for _, v := range probs.Data.([]float32) {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Error("softmax overflowed on large logits")
			}
		}
	})
}

func TestArgMax(t *testing.T) {
	scores, _ := NewTensor([]int{3, 4}, Float32, []float32{
		0.1, 0.7, 0.1, 0.1,
		0.9, 0.0, 0.05, 0.05,
		0.2, 0.2, 0.2, 0.4,
	})

	indices, err := ArgMax(scores)
	if err != nil {
		t.Fatalf("ArgMax failed: %v", err)
	}

	expected := []int32{1, 0, 3}
	for i, v := range indices.Data.([]int32) {
		if v != expected[i] {
			t.Errorf("row %d: got %d, want %d", i, v, expected[i])
		}
	}
}

func TestSumMean(t *testing.T) {
	a, _ := NewTensor([]int{4}, Float32, []float32{1, 2, 3, 4})

	s, err := Sum(a)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if v, _ := s.Item(); v.(float32) != 10 {
		t.Errorf("Sum: got %v, want 10", v)
	}

	m, err := Mean(a)
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if v, _ := m.Item(); v.(float32) != 2.5 {
		t.Errorf("Mean: got %v, want 2.5", v)
	}
}
