package tensor

import (
	"fmt"
)

// Item returns the sole element of a one-element tensor.
func (t *Tensor) Item() (interface{}, error) {
	if t.NumElems != 1 {
		return nil, fmt.Errorf("Item requires a one-element tensor, got %d elements", t.NumElems)
	}

	switch t.DType {
	case Float32:
		return t.Data.([]float32)[0], nil
	case Int32:
		return t.Data.([]int32)[0], nil
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Clone returns a deep copy carrying no autograd state.
func (t *Tensor) Clone() (*Tensor, error) {
	var data interface{}
	switch t.DType {
	case Float32:
		src := t.Data.([]float32)
		dst := make([]float32, len(src))
		copy(dst, src)
		data = dst
	case Int32:
		src := t.Data.([]int32)
		dst := make([]int32, len(src))
		copy(dst, src)
		data = dst
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}

	return NewTensor(append([]int(nil), t.Shape...), t.DType, data)
}

// Float32Data returns the backing slice of a Float32 tensor.
func (t *Tensor) Float32Data() ([]float32, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("tensor is %s, not Float32", t.DType)
	}
	return t.Data.([]float32), nil
}

// Int32Data returns the backing slice of an Int32 tensor.
func (t *Tensor) Int32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor is %s, not Int32", t.DType)
	}
	return t.Data.([]int32), nil
}

// At reads one Float32 element by multi-dimensional index.
func (t *Tensor) At(indices ...int) (float32, error) {
	if t.DType != Float32 {
		return 0, fmt.Errorf("At only supports Float32 tensors")
	}
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for dimension %d (size %d)", idx, i, t.Shape[i])
		}
		flat += idx * t.Strides[i]
	}

	return t.Data.([]float32)[flat], nil
}

// SetAt writes one Float32 element by multi-dimensional index.
func (t *Tensor) SetAt(value float32, indices ...int) error {
	if t.DType != Float32 {
		return fmt.Errorf("SetAt only supports Float32 tensors")
	}
	if len(indices) != len(t.Shape) {
		return fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return fmt.Errorf("index %d out of range for dimension %d (size %d)", idx, i, t.Shape[i])
		}
		flat += idx * t.Strides[i]
	}

	t.Data.([]float32)[flat] = value
	return nil
}

// CopyDataFrom overwrites this tensor's elements with src's, leaving shape
// and autograd state untouched. Used when restoring weight snapshots.
func (t *Tensor) CopyDataFrom(src *Tensor) error {
	if t.DType != src.DType {
		return fmt.Errorf("dtype mismatch: %s vs %s", t.DType, src.DType)
	}
	if t.NumElems != src.NumElems {
		return fmt.Errorf("element count mismatch: %d vs %d", t.NumElems, src.NumElems)
	}

	switch t.DType {
	case Float32:
		copy(t.Data.([]float32), src.Data.([]float32))
	case Int32:
		copy(t.Data.([]int32), src.Data.([]int32))
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}
