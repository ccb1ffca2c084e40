package tensor

import (
	"fmt"
)

// reduceGradientToShape sums a gradient down to a broadcast input's shape.
// Handles the trailing-dimension broadcast used by bias additions:
// [batch, features] reduced to [features].
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if sameShape(grad.Shape, targetShape) {
		return grad, nil
	}

	if len(targetShape) == 1 && len(grad.Shape) == 2 && grad.Shape[1] == targetShape[0] {
		rows := grad.Shape[0]
		cols := grad.Shape[1]
		data := grad.Data.([]float32)
		out := make([]float32, cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out[j] += data[i*cols+j]
			}
		}
		return NewTensor(targetShape, Float32, out)
	}

	return nil, fmt.Errorf("cannot reduce gradient of shape %v to %v", grad.Shape, targetShape)
}

// accumulateGrad adds g into t's gradient slot.
func accumulateGrad(t *Tensor, g *Tensor) error {
	if t.grad == nil {
		t.grad = g
		return nil
	}
	sum, err := Add(t.grad, g)
	if err != nil {
		return fmt.Errorf("gradient accumulation failed: %w", err)
	}
	t.grad = sum
	return nil
}

// attachCreator links the op to its output when any input participates in
// the graph, so eval-only paths stay creator-free.
func attachCreator(out *Tensor, op Operation) {
	for _, in := range op.Inputs() {
		if in.requiresGrad || in.creator != nil {
			out.creator = op
			return
		}
	}
}

// Backward walks the graph rooted at t in reverse topological order,
// accumulating gradients into every tensor that requires them. seed is the
// gradient of the final objective with respect to t; nil means all-ones,
// which is the usual seed for a scalar loss.
func (t *Tensor) Backward(seed *Tensor) error {
	if t.creator == nil && !t.requiresGrad {
		return fmt.Errorf("tensor does not participate in an autograd graph")
	}

	if seed == nil {
		ones, err := Ones(t.Shape, t.DType)
		if err != nil {
			return err
		}
		seed = ones
	}
	if !sameShape(seed.Shape, t.Shape) {
		return fmt.Errorf("seed gradient shape %v does not match tensor shape %v", seed.Shape, t.Shape)
	}

	visited := make(map[*Tensor]bool)
	var order []*Tensor
	var visit func(node *Tensor)
	visit = func(node *Tensor) {
		if visited[node] {
			return
		}
		visited[node] = true
		if node.creator != nil {
			for _, in := range node.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, node)
	}
	visit(t)

	if err := accumulateGrad(t, seed); err != nil {
		return err
	}

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.creator == nil || node.grad == nil {
			continue
		}

		grads, err := node.creator.Backward(node.grad)
		if err != nil {
			return fmt.Errorf("backward through %T failed: %w", node.creator, err)
		}

		inputs := node.creator.Inputs()
		if len(grads) != len(inputs) {
			return fmt.Errorf("%T returned %d gradients for %d inputs", node.creator, len(grads), len(inputs))
		}

		for j, in := range inputs {
			if grads[j] == nil {
				continue
			}
			if !in.requiresGrad && in.creator == nil {
				continue
			}
			if err := accumulateGrad(in, grads[j]); err != nil {
				return err
			}
		}
	}

	return nil
}

// AddOp adds two tensors, broadcasting a 1D right operand across rows.
type AddOp struct {
	a, b *Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.a = inputs[0]
	op.b = inputs[1]

	if sameShape(op.a.Shape, op.b.Shape) {
		return Add(op.a, op.b)
	}

	// Row broadcast: [batch, features] + [features].
	if len(op.a.Shape) == 2 && len(op.b.Shape) == 1 && op.a.Shape[1] == op.b.Shape[0] {
		rows := op.a.Shape[0]
		cols := op.a.Shape[1]
		aData := op.a.Data.([]float32)
		bData := op.b.Data.([]float32)
		out := make([]float32, rows*cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out[i*cols+j] = aData[i*cols+j] + bData[j]
			}
		}
		return NewTensor(op.a.Shape, Float32, out)
	}

	return nil, fmt.Errorf("AddOp: incompatible shapes %v and %v", op.a.Shape, op.b.Shape)
}

func (op *AddOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradB, err := reduceGradientToShape(gradOut, op.b.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradOut, gradB}, nil
}

func (op *AddOp) Inputs() []*Tensor {
	return []*Tensor{op.a, op.b}
}

// SubOp subtracts two same-shape tensors.
type SubOp struct {
	a, b *Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.a = inputs[0]
	op.b = inputs[1]
	return Sub(op.a, op.b)
}

func (op *SubOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	neg, err := Scale(gradOut, -1)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradOut, neg}, nil
}

func (op *SubOp) Inputs() []*Tensor {
	return []*Tensor{op.a, op.b}
}

// MulOp multiplies two same-shape tensors elementwise.
type MulOp struct {
	a, b *Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.a = inputs[0]
	op.b = inputs[1]
	return Mul(op.a, op.b)
}

func (op *MulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := Mul(gradOut, op.b)
	if err != nil {
		return nil, err
	}
	gradB, err := Mul(gradOut, op.a)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

func (op *MulOp) Inputs() []*Tensor {
	return []*Tensor{op.a, op.b}
}

// MatMulOp multiplies two 2D tensors.
type MatMulOp struct {
	a, b *Tensor
}

func (op *MatMulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.a = inputs[0]
	op.b = inputs[1]
	return MatMul(op.a, op.b)
}

func (op *MatMulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// dA = gradOut @ B^T, dB = A^T @ gradOut
	bT, err := Transpose(op.b)
	if err != nil {
		return nil, err
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		return nil, err
	}
	aT, err := Transpose(op.a)
	if err != nil {
		return nil, err
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		return nil, err
	}
	return []*Tensor{gradA, gradB}, nil
}

func (op *MatMulOp) Inputs() []*Tensor {
	return []*Tensor{op.a, op.b}
}

// ReLUOp zeroes negatives, passing gradients only where the input was
// positive.
type ReLUOp struct {
	input *Tensor
}

func (op *ReLUOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]
	return ReLU(op.input)
}

func (op *ReLUOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	inData := op.input.Data.([]float32)
	gData := gradOut.Data.([]float32)
	out := make([]float32, len(gData))
	for i := range gData {
		if inData[i] > 0 {
			out[i] = gData[i]
		}
	}
	grad, err := NewTensor(op.input.Shape, Float32, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

func (op *ReLUOp) Inputs() []*Tensor {
	return []*Tensor{op.input}
}

// ReshapeOp changes shape; gradients flow back reshaped to the input.
type ReshapeOp struct {
	input    *Tensor
	newShape []int
}

func (op *ReshapeOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]
	return op.input.Reshape(op.newShape)
}

func (op *ReshapeOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := gradOut.Reshape(op.input.Shape)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

func (op *ReshapeOp) Inputs() []*Tensor {
	return []*Tensor{op.input}
}

func AddAutograd(a, b *Tensor) (*Tensor, error) {
	op := &AddOp{}
	out, err := op.Forward(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func SubAutograd(a, b *Tensor) (*Tensor, error) {
	op := &SubOp{}
	out, err := op.Forward(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func MulAutograd(a, b *Tensor) (*Tensor, error) {
	op := &MulOp{}
	out, err := op.Forward(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	op := &MatMulOp{}
	out, err := op.Forward(a, b)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func ReLUAutograd(a *Tensor) (*Tensor, error) {
	op := &ReLUOp{}
	out, err := op.Forward(a)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func ReshapeAutograd(a *Tensor, shape []int) (*Tensor, error) {
	op := &ReshapeOp{newShape: append([]int(nil), shape...)}
	out, err := op.Forward(a)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}
