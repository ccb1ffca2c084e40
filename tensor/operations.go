package tensor

import (
	"fmt"
	"math"
)

func checkCompatibility(t1, t2 *Tensor) error {
	if t1.DType != t2.DType {
		return fmt.Errorf("tensors must have same dtype: %s vs %s", t1.DType, t2.DType)
	}
	return nil
}

func checkShapesCompatible(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 || len(shape2) == 0 {
		return nil, fmt.Errorf("cannot operate on empty tensors")
	}

	if !sameShape(shape1, shape2) {
		return nil, fmt.Errorf("tensor shapes must match: %v vs %v", shape1, shape2)
	}

	return shape1, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] + data2[i]
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] + data2[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Add: %s", t1.DType)
	}

	return result, nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] - data2[i]
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] - data2[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Sub: %s", t1.DType)
	}

	return result, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] * data2[i]
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			resultData[i] = data1[i] * data2[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Mul: %s", t1.DType)
	}

	return result, nil
}

func Div(t1, t2 *Tensor) (*Tensor, error) {
	if err := checkCompatibility(t1, t2); err != nil {
		return nil, err
	}

	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape, t1.DType)
	if err != nil {
		return nil, err
	}

	switch t1.DType {
	case Float32:
		data1 := t1.Data.([]float32)
		data2 := t2.Data.([]float32)
		resultData := result.Data.([]float32)

		for i := 0; i < t1.NumElems; i++ {
			if data2[i] == 0 {
				return nil, fmt.Errorf("division by zero at index %d", i)
			}
			resultData[i] = data1[i] / data2[i]
		}
	case Int32:
		data1 := t1.Data.([]int32)
		data2 := t2.Data.([]int32)
		resultData := result.Data.([]int32)

		for i := 0; i < t1.NumElems; i++ {
			if data2[i] == 0 {
				return nil, fmt.Errorf("division by zero at index %d", i)
			}
			resultData[i] = data1[i] / data2[i]
		}
	default:
		return nil, fmt.Errorf("unsupported dtype for Div: %s", t1.DType)
	}

	return result, nil
}

// Scale multiplies every element by a scalar.
func Scale(t *Tensor, factor float64) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Scale only supports Float32 tensors")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	f := float32(factor)
	for i := range data {
		resultData[i] = data[i] * f
	}

	return result, nil
}

func ReLU(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("ReLU only supports Float32 tensors")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := range data {
		if data[i] > 0 {
			resultData[i] = data[i]
		}
	}

	return result, nil
}

func Exp(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Exp only supports Float32 tensors")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := range data {
		resultData[i] = float32(math.Exp(float64(data[i])))
	}

	return result, nil
}

func Sqrt(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sqrt only supports Float32 tensors")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := range data {
		resultData[i] = float32(math.Sqrt(float64(data[i])))
	}

	return result, nil
}

func Log(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Log only supports Float32 tensors")
	}

	result, err := Zeros(t.Shape, t.DType)
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float32)
	resultData := result.Data.([]float32)
	for i := range data {
		if data[i] <= 0 {
			return nil, fmt.Errorf("Log of non-positive value at index %d", i)
		}
		resultData[i] = float32(math.Log(float64(data[i])))
	}

	return result, nil
}

// Softmax normalizes each row of a 2D tensor into a probability
// distribution, with max subtraction for numerical stability.
func Softmax(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Softmax only supports Float32 tensors")
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Softmax expects 2D tensor [batch, classes], got shape %v", t.Shape)
	}

	rows := t.Shape[0]
	cols := t.Shape[1]
	data := t.Data.([]float32)
	result := make([]float32, len(data))

	for i := 0; i < rows; i++ {
		offset := i * cols

		maxVal := data[offset]
		for j := 1; j < cols; j++ {
			if data[offset+j] > maxVal {
				maxVal = data[offset+j]
			}
		}

		var sum float32
		for j := 0; j < cols; j++ {
			e := float32(math.Exp(float64(data[offset+j] - maxVal)))
			result[offset+j] = e
			sum += e
		}

		for j := 0; j < cols; j++ {
			result[offset+j] /= sum
		}
	}

	return NewTensor(t.Shape, t.DType, result)
}

// MatMul computes the product of two 2D Float32 tensors.
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if t1.DType != Float32 || t2.DType != Float32 {
		return nil, fmt.Errorf("MatMul only supports Float32 tensors")
	}
	if len(t1.Shape) != 2 || len(t2.Shape) != 2 {
		return nil, fmt.Errorf("MatMul expects 2D tensors, got shapes %v and %v", t1.Shape, t2.Shape)
	}
	if t1.Shape[1] != t2.Shape[0] {
		return nil, fmt.Errorf("MatMul dimension mismatch: %v x %v", t1.Shape, t2.Shape)
	}

	m := t1.Shape[0]
	k := t1.Shape[1]
	n := t2.Shape[1]

	a := t1.Data.([]float32)
	b := t2.Data.([]float32)
	out := make([]float32, m*n)

	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := a[i*k+p]
			if av == 0 {
				continue
			}
			rowB := b[p*n : (p+1)*n]
			rowOut := out[i*n : (i+1)*n]
			for j := 0; j < n; j++ {
				rowOut[j] += av * rowB[j]
			}
		}
	}

	return NewTensor([]int{m, n}, Float32, out)
}

// Transpose swaps the two axes of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Transpose only supports Float32 tensors")
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Transpose expects 2D tensor, got shape %v", t.Shape)
	}

	rows := t.Shape[0]
	cols := t.Shape[1]
	data := t.Data.([]float32)
	out := make([]float32, len(data))

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = data[i*cols+j]
		}
	}

	return NewTensor([]int{cols, rows}, Float32, out)
}

// Sum reduces all elements to a one-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sum only supports Float32 tensors")
	}

	data := t.Data.([]float32)
	var sum float32
	for _, v := range data {
		sum += v
	}

	return NewTensor([]int{1}, Float32, []float32{sum})
}

// Mean reduces all elements to their arithmetic mean.
func Mean(t *Tensor) (*Tensor, error) {
	s, err := Sum(t)
	if err != nil {
		return nil, err
	}
	return Scale(s, 1.0/float64(t.NumElems))
}

// ArgMax returns, for a 2D Float32 tensor, the column index of the largest
// value in each row as an Int32 tensor of shape [rows].
func ArgMax(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("ArgMax only supports Float32 tensors")
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("ArgMax expects 2D tensor, got shape %v", t.Shape)
	}

	rows := t.Shape[0]
	cols := t.Shape[1]
	data := t.Data.([]float32)
	out := make([]int32, rows)

	for i := 0; i < rows; i++ {
		offset := i * cols
		best := 0
		bestVal := data[offset]
		for j := 1; j < cols; j++ {
			if data[offset+j] > bestVal {
				bestVal = data[offset+j]
				best = j
			}
		}
		out[i] = int32(best)
	}

	return NewTensor([]int{rows}, Int32, out)
}

// Reshape returns a tensor viewing the same data with a new shape. The
// element count must be unchanged.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of %d elements to shape %v", t.NumElems, shape)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

// Flatten collapses all trailing dimensions into one, keeping the leading
// (batch) dimension.
func (t *Tensor) Flatten() (*Tensor, error) {
	if len(t.Shape) < 2 {
		return nil, fmt.Errorf("Flatten expects at least 2 dimensions, got shape %v", t.Shape)
	}
	return t.Reshape([]int{t.Shape[0], t.NumElems / t.Shape[0]})
}
