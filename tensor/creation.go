package tensor

import (
	"fmt"
	"math/rand"
	"time"
)

func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	strides := calculateStrides(shape)

	t := &Tensor{
		Shape:    shape,
		Strides:  strides,
		DType:    dtype,
		NumElems: numElems,
	}

	if data != nil {
		if err := t.setData(data); err != nil {
			return nil, err
		}
	} else {
		switch dtype {
		case Float32:
			t.Data = make([]float32, numElems)
		case Int32:
			t.Data = make([]int32, numElems)
		default:
			return nil, fmt.Errorf("unsupported dtype: %s", dtype)
		}
	}

	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		switch d := data.(type) {
		case []float32:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case float32:
			slice := make([]float32, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Float32 tensor: %T", data)
		}
	case Int32:
		switch d := data.(type) {
		case []int32:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case int32:
			slice := make([]int32, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Int32 tensor: %T", data)
		}
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

func Zeros(shape []int, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, nil)
}

func Ones(shape []int, dtype DType) (*Tensor, error) {
	t, err := Zeros(shape, dtype)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = 1.0
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = 1
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Ones: %s", dtype)
	}

	return t, nil
}

// FromScalar wraps a single value in a one-element tensor.
func FromScalar(value float64, dtype DType) *Tensor {
	switch dtype {
	case Int32:
		t, _ := NewTensor([]int{1}, Int32, []int32{int32(value)})
		return t
	default:
		t, _ := NewTensor([]int{1}, Float32, []float32{float32(value)})
		return t
	}
}

func Full(shape []int, value interface{}, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, value)
}

// Random fills a Float32 tensor with uniform values in [0,1). The source is
// time-seeded; deterministic initialization goes through the training
// package's seeded initializers instead.
func Random(shape []int, dtype DType) (*Tensor, error) {
	if dtype != Float32 {
		return nil, fmt.Errorf("Random only supports Float32 dtype")
	}

	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	slice := make([]float32, numElems)
	for i := range slice {
		slice[i] = rng.Float32()
	}

	return NewTensor(shape, dtype, slice)
}

func RandomNormal(shape []int, mean, std float32, dtype DType) (*Tensor, error) {
	if dtype != Float32 {
		return nil, fmt.Errorf("RandomNormal only supports Float32 dtype")
	}

	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	slice := make([]float32, numElems)
	for i := range slice {
		slice[i] = float32(rng.NormFloat64())*std + mean
	}

	return NewTensor(shape, dtype, slice)
}
