package tensor

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// parallelOverBatch fans work for n independent samples out to at most
// NumCPU goroutines. fn must only touch state owned by its sample.
func parallelOverBatch(n int, fn func(sample int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func convOutputDim(in, kernel, stride, padding int) (int, error) {
	out := (in+2*padding-kernel)/stride + 1
	if out <= 0 {
		return 0, fmt.Errorf("kernel %d with stride %d and padding %d does not fit input %d", kernel, stride, padding, in)
	}
	return out, nil
}

// LinearOp applies a fully connected transform y = x W^T + b with the
// weight stored [outputs, inputs], one row per output neuron.
type LinearOp struct {
	input  *Tensor
	weight *Tensor
	bias   *Tensor
}

func (op *LinearOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]
	op.weight = inputs[1]
	if len(inputs) > 2 {
		op.bias = inputs[2]
	}

	if len(op.input.Shape) != 2 {
		return nil, fmt.Errorf("Linear expects 2D input [batch, features], got shape %v", op.input.Shape)
	}
	if len(op.weight.Shape) != 2 {
		return nil, fmt.Errorf("Linear expects 2D weight [outputs, inputs], got shape %v", op.weight.Shape)
	}

	batch := op.input.Shape[0]
	inFeatures := op.input.Shape[1]
	outFeatures := op.weight.Shape[0]
	if op.weight.Shape[1] != inFeatures {
		return nil, fmt.Errorf("Linear feature mismatch: input has %d, weight expects %d", inFeatures, op.weight.Shape[1])
	}

	inData := op.input.Data.([]float32)
	wData := op.weight.Data.([]float32)
	var bData []float32
	if op.bias != nil {
		if op.bias.Shape[0] != outFeatures {
			return nil, fmt.Errorf("Linear bias length %d does not match %d outputs", op.bias.Shape[0], outFeatures)
		}
		bData = op.bias.Data.([]float32)
	}

	out := make([]float32, batch*outFeatures)

	parallelOverBatch(batch, func(n int) {
		inRow := inData[n*inFeatures : (n+1)*inFeatures]
		outBase := n * outFeatures
		for o := 0; o < outFeatures; o++ {
			wRow := wData[o*inFeatures : (o+1)*inFeatures]
			var sum float32
			if bData != nil {
				sum = bData[o]
			}
			for i, x := range inRow {
				sum += x * wRow[i]
			}
			out[outBase+o] = sum
		}
	})

	return NewTensor([]int{batch, outFeatures}, Float32, out)
}

func (op *LinearOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// dX = gradOut @ W, dW = gradOut^T @ X, db sums over the batch
	gradIn, err := MatMul(gradOut, op.weight)
	if err != nil {
		return nil, err
	}
	gradOutT, err := Transpose(gradOut)
	if err != nil {
		return nil, err
	}
	gradW, err := MatMul(gradOutT, op.input)
	if err != nil {
		return nil, err
	}

	grads := []*Tensor{gradIn, gradW}
	if op.bias != nil {
		gradB, err := reduceGradientToShape(gradOut, op.bias.Shape)
		if err != nil {
			return nil, err
		}
		grads = append(grads, gradB)
	}

	return grads, nil
}

func (op *LinearOp) Inputs() []*Tensor {
	if op.bias != nil {
		return []*Tensor{op.input, op.weight, op.bias}
	}
	return []*Tensor{op.input, op.weight}
}

// Conv2DOp performs a 2D cross-correlation over NCHW input with OIHW
// weights.
type Conv2DOp struct {
	input   *Tensor
	weight  *Tensor
	bias    *Tensor
	stride  int
	padding int
}

func (op *Conv2DOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]
	op.weight = inputs[1]
	if len(inputs) > 2 {
		op.bias = inputs[2]
	}

	if len(op.input.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D expects 4D input [batch, channels, height, width], got shape %v", op.input.Shape)
	}
	if len(op.weight.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D expects 4D weight [filters, channels, kh, kw], got shape %v", op.weight.Shape)
	}
	if op.input.Shape[1] != op.weight.Shape[1] {
		return nil, fmt.Errorf("Conv2D channel mismatch: input has %d, weight expects %d", op.input.Shape[1], op.weight.Shape[1])
	}

	batch := op.input.Shape[0]
	channels := op.input.Shape[1]
	height := op.input.Shape[2]
	width := op.input.Shape[3]
	filters := op.weight.Shape[0]
	kh := op.weight.Shape[2]
	kw := op.weight.Shape[3]

	outH, err := convOutputDim(height, kh, op.stride, op.padding)
	if err != nil {
		return nil, err
	}
	outW, err := convOutputDim(width, kw, op.stride, op.padding)
	if err != nil {
		return nil, err
	}

	inData := op.input.Data.([]float32)
	wData := op.weight.Data.([]float32)
	var bData []float32
	if op.bias != nil {
		if op.bias.Shape[0] != filters {
			return nil, fmt.Errorf("Conv2D bias length %d does not match %d filters", op.bias.Shape[0], filters)
		}
		bData = op.bias.Data.([]float32)
	}

	out := make([]float32, batch*filters*outH*outW)

	parallelOverBatch(batch, func(n int) {
		inBase := n * channels * height * width
		outBase := n * filters * outH * outW
		for f := 0; f < filters; f++ {
			wBase := f * channels * kh * kw
			var bias float32
			if bData != nil {
				bias = bData[f]
			}
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					sum := bias
					for c := 0; c < channels; c++ {
						inChan := inBase + c*height*width
						wChan := wBase + c*kh*kw
						for i := 0; i < kh; i++ {
							ih := oh*op.stride - op.padding + i
							if ih < 0 || ih >= height {
								continue
							}
							inRow := inChan + ih*width
							wRow := wChan + i*kw
							for j := 0; j < kw; j++ {
								iw := ow*op.stride - op.padding + j
								if iw < 0 || iw >= width {
									continue
								}
								sum += inData[inRow+iw] * wData[wRow+j]
							}
						}
					}
					out[outBase+(f*outH+oh)*outW+ow] = sum
				}
			}
		}
	})

	return NewTensor([]int{batch, filters, outH, outW}, Float32, out)
}

func (op *Conv2DOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	batch := op.input.Shape[0]
	channels := op.input.Shape[1]
	height := op.input.Shape[2]
	width := op.input.Shape[3]
	filters := op.weight.Shape[0]
	kh := op.weight.Shape[2]
	kw := op.weight.Shape[3]
	outH := gradOut.Shape[2]
	outW := gradOut.Shape[3]

	inData := op.input.Data.([]float32)
	wData := op.weight.Data.([]float32)
	gData := gradOut.Data.([]float32)

	gradIn := make([]float32, len(inData))

	workers := runtime.NumCPU()
	if workers > batch {
		workers = batch
	}
	if workers < 1 {
		workers = 1
	}

	// Each worker accumulates weight/bias gradients locally; the per-sample
	// input-gradient regions are disjoint so they need no copies.
	partialW := make([][]float32, workers)
	partialB := make([][]float32, workers)
	for w := 0; w < workers; w++ {
		partialW[w] = make([]float32, len(wData))
		partialB[w] = make([]float32, filters)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * batch / workers
		end := (w + 1) * batch / workers
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			gw := partialW[worker]
			gb := partialB[worker]
			for n := start; n < end; n++ {
				inBase := n * channels * height * width
				outBase := n * filters * outH * outW
				for f := 0; f < filters; f++ {
					wBase := f * channels * kh * kw
					for oh := 0; oh < outH; oh++ {
						for ow := 0; ow < outW; ow++ {
							g := gData[outBase+(f*outH+oh)*outW+ow]
							if g == 0 {
								continue
							}
							gb[f] += g
							for c := 0; c < channels; c++ {
								inChan := inBase + c*height*width
								wChan := wBase + c*kh*kw
								for i := 0; i < kh; i++ {
									ih := oh*op.stride - op.padding + i
									if ih < 0 || ih >= height {
										continue
									}
									inRow := inChan + ih*width
									wRow := wChan + i*kw
									for j := 0; j < kw; j++ {
										iw := ow*op.stride - op.padding + j
										if iw < 0 || iw >= width {
											continue
										}
										gradIn[inRow+iw] += wData[wRow+j] * g
										gw[wRow+j] += inData[inRow+iw] * g
									}
								}
							}
						}
					}
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	gradW := make([]float32, len(wData))
	for w := 0; w < workers; w++ {
		for i, v := range partialW[w] {
			gradW[i] += v
		}
	}

	gradInT, err := NewTensor(op.input.Shape, Float32, gradIn)
	if err != nil {
		return nil, err
	}
	gradWT, err := NewTensor(op.weight.Shape, Float32, gradW)
	if err != nil {
		return nil, err
	}

	grads := []*Tensor{gradInT, gradWT}
	if op.bias != nil {
		gradB := make([]float32, filters)
		for w := 0; w < workers; w++ {
			for i, v := range partialB[w] {
				gradB[i] += v
			}
		}
		gradBT, err := NewTensor(op.bias.Shape, Float32, gradB)
		if err != nil {
			return nil, err
		}
		grads = append(grads, gradBT)
	}

	return grads, nil
}

func (op *Conv2DOp) Inputs() []*Tensor {
	if op.bias != nil {
		return []*Tensor{op.input, op.weight, op.bias}
	}
	return []*Tensor{op.input, op.weight}
}

// MaxPool2DOp takes the max over each pooling window, remembering the
// winning input index for the backward scatter.
type MaxPool2DOp struct {
	input      *Tensor
	kernelSize int
	stride     int
	padding    int
	switches   []int32
}

func (op *MaxPool2DOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]

	if len(op.input.Shape) != 4 {
		return nil, fmt.Errorf("MaxPool2D expects 4D input [batch, channels, height, width], got shape %v", op.input.Shape)
	}

	batch := op.input.Shape[0]
	channels := op.input.Shape[1]
	height := op.input.Shape[2]
	width := op.input.Shape[3]

	outH, err := convOutputDim(height, op.kernelSize, op.stride, op.padding)
	if err != nil {
		return nil, err
	}
	outW, err := convOutputDim(width, op.kernelSize, op.stride, op.padding)
	if err != nil {
		return nil, err
	}

	inData := op.input.Data.([]float32)
	out := make([]float32, batch*channels*outH*outW)
	op.switches = make([]int32, len(out))

	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			chanBase := (n*channels + c) * height * width
			outChan := (n*channels + c) * outH * outW
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					best := float32(math.Inf(-1))
					bestIdx := int32(-1)
					for i := 0; i < op.kernelSize; i++ {
						ih := oh*op.stride - op.padding + i
						if ih < 0 || ih >= height {
							continue
						}
						for j := 0; j < op.kernelSize; j++ {
							iw := ow*op.stride - op.padding + j
							if iw < 0 || iw >= width {
								continue
							}
							idx := chanBase + ih*width + iw
							if inData[idx] > best {
								best = inData[idx]
								bestIdx = int32(idx)
							}
						}
					}
					outIdx := outChan + oh*outW + ow
					out[outIdx] = best
					op.switches[outIdx] = bestIdx
				}
			}
		}
	}

	return NewTensor([]int{batch, channels, outH, outW}, Float32, out)
}

func (op *MaxPool2DOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gData := gradOut.Data.([]float32)
	if len(gData) != len(op.switches) {
		return nil, fmt.Errorf("MaxPool2D backward size mismatch: %d gradients, %d switches", len(gData), len(op.switches))
	}

	gradIn := make([]float32, op.input.NumElems)
	for i, src := range op.switches {
		if src >= 0 {
			gradIn[src] += gData[i]
		}
	}

	grad, err := NewTensor(op.input.Shape, Float32, gradIn)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

func (op *MaxPool2DOp) Inputs() []*Tensor {
	return []*Tensor{op.input}
}

// BatchNormOp normalizes with batch statistics (training mode). Per-channel
// moments are computed over the batch dimension for 2D input and over
// batch and spatial dimensions for 4D input.
type BatchNormOp struct {
	input  *Tensor
	gamma  *Tensor
	beta   *Tensor
	eps    float64
	xhat   []float32
	invStd []float32
	counts int
	mean   []float32
	vari   []float32
}

func (op *BatchNormOp) channelLayout() (channels, spatial int, err error) {
	switch len(op.input.Shape) {
	case 2:
		return op.input.Shape[1], 1, nil
	case 4:
		return op.input.Shape[1], op.input.Shape[2] * op.input.Shape[3], nil
	default:
		return 0, 0, fmt.Errorf("BatchNorm expects 2D or 4D input, got shape %v", op.input.Shape)
	}
}

// channelIndex maps a flat data index to its channel for either layout.
func (op *BatchNormOp) forEach(channels, spatial int, fn func(flatIdx, channel int)) {
	batch := op.input.Shape[0]
	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			base := (n*channels + c) * spatial
			for s := 0; s < spatial; s++ {
				fn(base+s, c)
			}
		}
	}
}

func (op *BatchNormOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	op.input = inputs[0]
	op.gamma = inputs[1]
	op.beta = inputs[2]

	channels, spatial, err := op.channelLayout()
	if err != nil {
		return nil, err
	}
	if op.gamma.Shape[0] != channels || op.beta.Shape[0] != channels {
		return nil, fmt.Errorf("BatchNorm parameter length mismatch: input has %d channels, gamma %d, beta %d",
			channels, op.gamma.Shape[0], op.beta.Shape[0])
	}

	batch := op.input.Shape[0]
	op.counts = batch * spatial

	inData := op.input.Data.([]float32)
	gammaData := op.gamma.Data.([]float32)
	betaData := op.beta.Data.([]float32)

	op.mean = make([]float32, channels)
	op.vari = make([]float32, channels)
	op.forEach(channels, spatial, func(idx, c int) {
		op.mean[c] += inData[idx]
	})
	for c := range op.mean {
		op.mean[c] /= float32(op.counts)
	}
	op.forEach(channels, spatial, func(idx, c int) {
		d := inData[idx] - op.mean[c]
		op.vari[c] += d * d
	})
	for c := range op.vari {
		op.vari[c] /= float32(op.counts)
	}

	op.invStd = make([]float32, channels)
	for c := range op.invStd {
		op.invStd[c] = float32(1.0 / math.Sqrt(float64(op.vari[c])+op.eps))
	}

	op.xhat = make([]float32, len(inData))
	out := make([]float32, len(inData))
	op.forEach(channels, spatial, func(idx, c int) {
		xh := (inData[idx] - op.mean[c]) * op.invStd[c]
		op.xhat[idx] = xh
		out[idx] = gammaData[c]*xh + betaData[c]
	})

	return NewTensor(op.input.Shape, Float32, out)
}

func (op *BatchNormOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	channels, spatial, err := op.channelLayout()
	if err != nil {
		return nil, err
	}

	gData := gradOut.Data.([]float32)
	gammaData := op.gamma.Data.([]float32)

	gradGamma := make([]float32, channels)
	gradBeta := make([]float32, channels)
	op.forEach(channels, spatial, func(idx, c int) {
		gradGamma[c] += gData[idx] * op.xhat[idx]
		gradBeta[c] += gData[idx]
	})

	m := float32(op.counts)
	gradIn := make([]float32, len(gData))
	op.forEach(channels, spatial, func(idx, c int) {
		gradIn[idx] = gammaData[c] * op.invStd[c] / m *
			(m*gData[idx] - gradBeta[c] - op.xhat[idx]*gradGamma[c])
	})

	gradInT, err := NewTensor(op.input.Shape, Float32, gradIn)
	if err != nil {
		return nil, err
	}
	gradGammaT, err := NewTensor(op.gamma.Shape, Float32, gradGamma)
	if err != nil {
		return nil, err
	}
	gradBetaT, err := NewTensor(op.beta.Shape, Float32, gradBeta)
	if err != nil {
		return nil, err
	}

	return []*Tensor{gradInT, gradGammaT, gradBetaT}, nil
}

func (op *BatchNormOp) Inputs() []*Tensor {
	return []*Tensor{op.input, op.gamma, op.beta}
}

// DropoutOp zeroes each element with probability rate and rescales
// survivors by 1/(1-rate) so activations keep their expected magnitude.
type DropoutOp struct {
	input *Tensor
	rate  float32
	mask  []float32
}

func (op *DropoutOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	return nil, fmt.Errorf("DropoutOp must be driven through DropoutAutograd")
}

func (op *DropoutOp) forward(input *Tensor, rng *rand.Rand) (*Tensor, error) {
	op.input = input
	if op.rate < 0 || op.rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0,1), got %v", op.rate)
	}

	inData := input.Data.([]float32)
	op.mask = make([]float32, len(inData))
	out := make([]float32, len(inData))
	keep := 1.0 / (1.0 - op.rate)

	for i := range inData {
		if rng.Float32() >= op.rate {
			op.mask[i] = float32(keep)
			out[i] = inData[i] * float32(keep)
		}
	}

	return NewTensor(input.Shape, Float32, out)
}

func (op *DropoutOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gData := gradOut.Data.([]float32)
	out := make([]float32, len(gData))
	for i := range gData {
		out[i] = gData[i] * op.mask[i]
	}

	grad, err := NewTensor(op.input.Shape, Float32, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

func (op *DropoutOp) Inputs() []*Tensor {
	return []*Tensor{op.input}
}

// LinearAutograd applies a fully connected transform and records it on the
// graph. bias may be nil.
func LinearAutograd(input, weight, bias *Tensor) (*Tensor, error) {
	op := &LinearOp{}
	var out *Tensor
	var err error
	if bias != nil {
		out, err = op.Forward(input, weight, bias)
	} else {
		out, err = op.Forward(input, weight)
	}
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

// Conv2DAutograd runs a 2D convolution and records it on the graph. bias
// may be nil.
func Conv2DAutograd(input, weight, bias *Tensor, stride, padding int) (*Tensor, error) {
	op := &Conv2DOp{stride: stride, padding: padding}
	var out *Tensor
	var err error
	if bias != nil {
		out, err = op.Forward(input, weight, bias)
	} else {
		out, err = op.Forward(input, weight)
	}
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

func MaxPool2DAutograd(input *Tensor, kernelSize, stride, padding int) (*Tensor, error) {
	op := &MaxPool2DOp{kernelSize: kernelSize, stride: stride, padding: padding}
	out, err := op.Forward(input)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

// BatchNormAutograd normalizes input with batch statistics, returning the
// output along with the per-channel mean and variance so callers can update
// running estimates.
func BatchNormAutograd(input, gamma, beta *Tensor, eps float64) (*Tensor, []float32, []float32, error) {
	op := &BatchNormOp{eps: eps}
	out, err := op.Forward(input, gamma, beta)
	if err != nil {
		return nil, nil, nil, err
	}
	attachCreator(out, op)
	return out, op.mean, op.vari, nil
}

func DropoutAutograd(input *Tensor, rate float32, rng *rand.Rand) (*Tensor, error) {
	op := &DropoutOp{rate: rate}
	out, err := op.forward(input, rng)
	if err != nil {
		return nil, err
	}
	attachCreator(out, op)
	return out, nil
}

// BatchNormInference normalizes with previously accumulated running
// statistics; no graph is recorded.
func BatchNormInference(input, gamma, beta *Tensor, runningMean, runningVar []float32, eps float64) (*Tensor, error) {
	op := &BatchNormOp{input: input, gamma: gamma, beta: beta, eps: eps}
	channels, spatial, err := op.channelLayout()
	if err != nil {
		return nil, err
	}
	if len(runningMean) != channels || len(runningVar) != channels {
		return nil, fmt.Errorf("running statistics length mismatch: input has %d channels, mean %d, var %d",
			channels, len(runningMean), len(runningVar))
	}

	inData := input.Data.([]float32)
	gammaData := gamma.Data.([]float32)
	betaData := beta.Data.([]float32)
	out := make([]float32, len(inData))

	invStd := make([]float32, channels)
	for c := range invStd {
		invStd[c] = float32(1.0 / math.Sqrt(float64(runningVar[c])+eps))
	}

	op.forEach(channels, spatial, func(idx, c int) {
		out[idx] = gammaData[c]*(inData[idx]-runningMean[c])*invStd[c] + betaData[c]
	})

	return NewTensor(input.Shape, Float32, out)
}
