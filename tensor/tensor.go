package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// Operation is implemented by every differentiable op. Forward is invoked by
// the corresponding *Autograd wrapper; Backward receives the gradient flowing
// into the op's output and returns one gradient per input (nil for inputs
// that do not need one).
type Operation interface {
	Forward(inputs ...*Tensor) (*Tensor, error)
	Backward(gradOut *Tensor) ([]*Tensor, error)
	Inputs() []*Tensor
}

// Tensor is a dense, row-major, CPU-resident array. Data holds either
// []float32 or []int32 depending on DType. Tensors produced by *Autograd
// operations carry a creator link used by Backward to walk the graph.
type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, elements=%d)", t.Shape, t.DType, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, nil until Backward has reached this
// tensor.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// SetGrad replaces the accumulated gradient
func (t *Tensor) SetGrad(grad *Tensor) {
	t.grad = grad
}

// ZeroGrad drops the accumulated gradient. Optimizers call this on every
// parameter at the start of a step.
func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// ZeroGrad drops the accumulated gradients of a set of tensors
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t != nil {
			t.ZeroGrad()
		}
	}
}

// Detach returns a tensor sharing this tensor's data but severed from the
// autograd graph.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: must have at least one dimension")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
