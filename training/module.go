package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/wastenet/tensor"
)

// Global random source for deterministic initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization and dropout masks
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// ResolveSeed returns the seed a run should use. Zero means "pick one":
// a value drawn uniformly from [2^16, 2^32), so it never collides with the
// small hand-typed seeds and still fits in a config file for replaying the
// run.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	const lo = int64(1) << 16
	const hi = int64(1) << 32
	return lo + rand.Int63n(hi-lo)
}

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                       // Sets module to training mode
	Eval()                        // Sets module to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}

// Linear implements a fully connected (dense) layer: y = xW + b
type Linear struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	training bool
}

// NewLinear creates a new Linear layer
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	// Initialize weights using Xavier/Glorot uniform initialization
	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weightData := make([]float32, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	// Weight rows are output neurons: [outputSize, inputSize], the layout
	// checkpoints and the ONNX exporter expect
	weight, err := tensor.NewTensor([]int{outputSize, inputSize}, tensor.Float32, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{
		weight:   weight,
		training: true,
	}

	if bias {
		// Initialize bias to zeros
		biasData := make([]float32, outputSize)
		biasT, err := tensor.NewTensor([]int{outputSize}, tensor.Float32, biasData)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		linear.bias = biasT
	}

	return linear, nil
}

// Forward performs the forward pass: y = xW^T + b
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}

	inputSize := input.Shape[1]
	if inputSize != l.weight.Shape[1] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[1], inputSize)
	}

	output, err := tensor.LinearAutograd(input, l.weight, l.bias)
	if err != nil {
		return nil, fmt.Errorf("linear forward failed: %v", err)
	}

	return output, nil
}

// Parameters returns the trainable parameters
func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// Train sets the module to training mode
func (l *Linear) Train() {
	l.training = true
}

// Eval sets the module to evaluation mode
func (l *Linear) Eval() {
	l.training = false
}

// IsTraining returns true if in training mode
func (l *Linear) IsTraining() bool {
	return l.training
}

// ReLU implements ReLU activation function module
type ReLU struct {
	training bool
}

// NewReLU creates a new ReLU activation module
func NewReLU() *ReLU {
	return &ReLU{training: true}
}

// Forward performs ReLU activation
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input)
}

// Parameters returns empty slice (ReLU has no parameters)
func (r *ReLU) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (r *ReLU) Train() {
	r.training = true
}

// Eval sets the module to evaluation mode
func (r *ReLU) Eval() {
	r.training = false
}

// IsTraining returns true if in training mode
func (r *ReLU) IsTraining() bool {
	return r.training
}

// Conv2D implements a 2D convolution layer
type Conv2D struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	padding  int
	training bool
}

// NewConv2D creates a new Conv2D layer
func NewConv2D(inputChannels, outputChannels, kernelSize, stride, padding int, bias bool) (*Conv2D, error) {
	// Initialize weights using Xavier/Glorot initialization for conv layers
	// fan_in = input_channels * kernel_size * kernel_size
	// fan_out = output_channels * kernel_size * kernel_size
	fanIn := float64(inputChannels * kernelSize * kernelSize)
	fanOut := float64(outputChannels * kernelSize * kernelSize)
	bound := math.Sqrt(6.0 / (fanIn + fanOut))

	weightData := make([]float32, outputChannels*inputChannels*kernelSize*kernelSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	// Weight shape: [output_channels, input_channels, kernel_height, kernel_width]
	weight, err := tensor.NewTensor([]int{outputChannels, inputChannels, kernelSize, kernelSize}, tensor.Float32, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	conv := &Conv2D{
		weight:   weight,
		stride:   stride,
		padding:  padding,
		training: true,
	}

	if bias {
		// Initialize bias to zeros
		biasData := make([]float32, outputChannels)
		biasT, err := tensor.NewTensor([]int{outputChannels}, tensor.Float32, biasData)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		conv.bias = biasT
	}

	return conv, nil
}

// Forward performs 2D convolution
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("Conv2D expects 4D input [batch_size, channels, height, width], got shape %v", input.Shape)
	}

	return tensor.Conv2DAutograd(input, c.weight, c.bias, c.stride, c.padding)
}

// Parameters returns the trainable parameters
func (c *Conv2D) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

// Train sets the module to training mode
func (c *Conv2D) Train() {
	c.training = true
}

// Eval sets the module to evaluation mode
func (c *Conv2D) Eval() {
	c.training = false
}

// IsTraining returns true if in training mode
func (c *Conv2D) IsTraining() bool {
	return c.training
}

// BatchNorm implements batch normalization over the feature dimension of 2D
// input [batch, features] or the channel dimension of 4D input [batch,
// channels, height, width]. Running statistics accumulate with
// running = (1-momentum)*running + momentum*batch, so a small momentum keeps
// the running estimates slow-moving.
type BatchNorm struct {
	numFeatures int
	eps         float64
	momentum    float64
	gamma       *tensor.Tensor // Scale parameter
	beta        *tensor.Tensor // Shift parameter
	runningMean []float32
	runningVar  []float32
	training    bool
}

// NewBatchNorm creates a new batch normalization layer
func NewBatchNorm(numFeatures int, eps, momentum float64) (*BatchNorm, error) {
	if numFeatures <= 0 {
		return nil, fmt.Errorf("numFeatures must be positive, got %d", numFeatures)
	}
	if eps <= 0 {
		eps = 1e-5
	}
	if momentum <= 0 {
		momentum = 0.1
	}

	// Initialize gamma to ones
	gammaData := make([]float32, numFeatures)
	for i := range gammaData {
		gammaData[i] = 1.0
	}
	gamma, err := tensor.NewTensor([]int{numFeatures}, tensor.Float32, gammaData)
	if err != nil {
		return nil, fmt.Errorf("failed to create gamma tensor: %v", err)
	}
	gamma.SetRequiresGrad(true)

	// Initialize beta to zeros
	betaData := make([]float32, numFeatures)
	beta, err := tensor.NewTensor([]int{numFeatures}, tensor.Float32, betaData)
	if err != nil {
		return nil, fmt.Errorf("failed to create beta tensor: %v", err)
	}
	beta.SetRequiresGrad(true)

	// Running mean starts at zero, running variance at one
	runningMean := make([]float32, numFeatures)
	runningVar := make([]float32, numFeatures)
	for i := range runningVar {
		runningVar[i] = 1.0
	}

	return &BatchNorm{
		numFeatures: numFeatures,
		eps:         eps,
		momentum:    momentum,
		gamma:       gamma,
		beta:        beta,
		runningMean: runningMean,
		runningVar:  runningVar,
		training:    true,
	}, nil
}

// Forward performs batch normalization. In training mode batch statistics
// normalize the input and update the running estimates; in eval mode the
// running estimates are used instead.
func (bn *BatchNorm) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input.DType != tensor.Float32 {
		return nil, fmt.Errorf("BatchNorm only supports Float32 tensors")
	}
	if len(input.Shape) != 2 && len(input.Shape) != 4 {
		return nil, fmt.Errorf("BatchNorm expects 2D or 4D input, got shape %v", input.Shape)
	}
	if input.Shape[1] != bn.numFeatures {
		return nil, fmt.Errorf("input features mismatch: expected %d, got %d", bn.numFeatures, input.Shape[1])
	}

	if !bn.training {
		return tensor.BatchNormInference(input, bn.gamma, bn.beta, bn.runningMean, bn.runningVar, bn.eps)
	}

	output, batchMean, batchVar, err := tensor.BatchNormAutograd(input, bn.gamma, bn.beta, bn.eps)
	if err != nil {
		return nil, err
	}

	for i := range bn.runningMean {
		bn.runningMean[i] = float32((1.0-bn.momentum)*float64(bn.runningMean[i]) + bn.momentum*float64(batchMean[i]))
		bn.runningVar[i] = float32((1.0-bn.momentum)*float64(bn.runningVar[i]) + bn.momentum*float64(batchVar[i]))
	}

	return output, nil
}

// RunningStats returns the running mean and variance estimates
func (bn *BatchNorm) RunningStats() (mean, variance []float32) {
	return bn.runningMean, bn.runningVar
}

// SetRunningStats replaces the running estimates, used when restoring a
// model from a checkpoint
func (bn *BatchNorm) SetRunningStats(mean, variance []float32) error {
	if len(mean) != bn.numFeatures || len(variance) != bn.numFeatures {
		return fmt.Errorf("running statistics size mismatch: expected %d features, got mean=%d variance=%d",
			bn.numFeatures, len(mean), len(variance))
	}
	copy(bn.runningMean, mean)
	copy(bn.runningVar, variance)
	return nil
}

// Parameters returns the trainable parameters
func (bn *BatchNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{bn.gamma, bn.beta}
}

// Train sets the module to training mode
func (bn *BatchNorm) Train() {
	bn.training = true
}

// Eval sets the module to evaluation mode
func (bn *BatchNorm) Eval() {
	bn.training = false
}

// IsTraining returns true if in training mode
func (bn *BatchNorm) IsTraining() bool {
	return bn.training
}

// MaxPool2D implements 2D max pooling
type MaxPool2D struct {
	poolSize int
	stride   int
	training bool
}

// NewMaxPool2D creates a new max pooling layer. A stride of zero defaults to
// the pool size (non-overlapping windows).
func NewMaxPool2D(poolSize, stride int) (*MaxPool2D, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("poolSize must be positive, got %d", poolSize)
	}
	if stride <= 0 {
		stride = poolSize
	}
	return &MaxPool2D{
		poolSize: poolSize,
		stride:   stride,
		training: true,
	}, nil
}

// Forward performs max pooling
func (p *MaxPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("MaxPool2D expects 4D input [batch_size, channels, height, width], got shape %v", input.Shape)
	}
	return tensor.MaxPool2DAutograd(input, p.poolSize, p.stride, 0)
}

// Parameters returns empty slice (MaxPool2D has no parameters)
func (p *MaxPool2D) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (p *MaxPool2D) Train() {
	p.training = true
}

// Eval sets the module to evaluation mode
func (p *MaxPool2D) Eval() {
	p.training = false
}

// IsTraining returns true if in training mode
func (p *MaxPool2D) IsTraining() bool {
	return p.training
}

// Flatten collapses all dimensions after the batch dimension
type Flatten struct {
	training bool
}

// NewFlatten creates a new Flatten module
func NewFlatten() *Flatten {
	return &Flatten{training: true}
}

// Forward flattens [batch, d1, d2, ...] into [batch, d1*d2*...]
func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("Flatten expects at least 2D input, got shape %v", input.Shape)
	}

	flatSize := 1
	for _, dim := range input.Shape[1:] {
		flatSize *= dim
	}

	return tensor.ReshapeAutograd(input, []int{input.Shape[0], flatSize})
}

// Parameters returns empty slice (Flatten has no parameters)
func (f *Flatten) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (f *Flatten) Train() {
	f.training = true
}

// Eval sets the module to evaluation mode
func (f *Flatten) Eval() {
	f.training = false
}

// IsTraining returns true if in training mode
func (f *Flatten) IsTraining() bool {
	return f.training
}

// Dropout zeroes a fraction of activations during training and rescales the
// survivors by 1/(1-rate). In eval mode the input passes through untouched.
type Dropout struct {
	rate     float32
	training bool
}

// NewDropout creates a new Dropout module
func NewDropout(rate float32) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %v", rate)
	}
	return &Dropout{
		rate:     rate,
		training: true,
	}, nil
}

// Forward applies dropout in training mode, identity in eval mode
func (d *Dropout) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		return input, nil
	}
	return tensor.DropoutAutograd(input, d.rate, globalRng)
}

// Rate returns the configured drop probability
func (d *Dropout) Rate() float32 {
	return d.rate
}

// Parameters returns empty slice (Dropout has no parameters)
func (d *Dropout) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (d *Dropout) Train() {
	d.training = true
}

// Eval sets the module to evaluation mode
func (d *Dropout) Eval() {
	d.training = false
}

// IsTraining returns true if in training mode
func (d *Dropout) IsTraining() bool {
	return d.training
}

// Sequential chains modules together in sequence
type Sequential struct {
	modules  []Module
	training bool
}

// NewSequential creates a new Sequential container
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules:  modules,
		training: true,
	}
}

// Add appends a module to the sequence
func (s *Sequential) Add(module Module) *Sequential {
	s.modules = append(s.modules, module)
	return s
}

// Modules returns the contained modules in order
func (s *Sequential) Modules() []Module {
	return s.modules
}

// Forward passes input through all modules in sequence
func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	current := input
	for i, module := range s.modules {
		output, err := module.Forward(current)
		if err != nil {
			return nil, fmt.Errorf("error in module %d: %v", i, err)
		}
		current = output
	}
	return current, nil
}

// Parameters returns all trainable parameters from all modules
func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Train sets all modules to training mode
func (s *Sequential) Train() {
	s.training = true
	for _, module := range s.modules {
		module.Train()
	}
}

// Eval sets all modules to evaluation mode
func (s *Sequential) Eval() {
	s.training = false
	for _, module := range s.modules {
		module.Eval()
	}
}

// IsTraining returns true if in training mode
func (s *Sequential) IsTraining() bool {
	return s.training
}
