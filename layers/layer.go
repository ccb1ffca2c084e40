package layers

import (
	"fmt"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	Conv2D
	ReLU
	Softmax
	MaxPool2D
	Dropout
	BatchNorm
	Flatten
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case Softmax:
		return "Softmax"
	case MaxPool2D:
		return "MaxPool2D"
	case Dropout:
		return "Dropout"
	case BatchNorm:
		return "BatchNorm"
	case Flatten:
		return "Flatten"
	default:
		return "Unknown"
	}
}

// LayerSpec defines layer configuration for the model runtime.
// This is pure configuration - no execution logic
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`

	// Non-learnable parameters (e.g., BatchNorm running statistics)
	// These are restored when a saved model is rebuilt but are not
	// counted as learnable parameters
	RunningStatistics map[string][]float32 `json:"running_statistics,omitempty"`
}

// ModelSpec defines a complete neural network model as layer configuration
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct neural network models
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder
func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{
		layers:     make([]LayerSpec, 0),
		inputShape: inputShape,
		compiled:   false,
	}
}

// AddLayer adds a layer specification to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddDense adds a dense (fully connected) layer to the model.
// The input size is inferred during compilation; inputs with more than
// two dimensions are flattened automatically.
func (mb *ModelBuilder) AddDense(outputSize int, useBias bool, name string) *ModelBuilder {
	layer := LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    useBias,
		},
	}
	return mb.AddLayer(layer)
}

// AddConv2D adds a 2D convolution layer to the model.
// The input channel count is inferred during compilation.
func (mb *ModelBuilder) AddConv2D(
	outputChannels, kernelSize, stride, padding int,
	useBias bool, name string,
) *ModelBuilder {
	layer := LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	}
	return mb.AddLayer(layer)
}

// AddReLU adds a ReLU activation to the model
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	layer := LayerSpec{
		Type:       ReLU,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
	return mb.AddLayer(layer)
}

// AddSoftmax adds a Softmax activation to the model
func (mb *ModelBuilder) AddSoftmax(axis int, name string) *ModelBuilder {
	layer := LayerSpec{
		Type: Softmax,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	}
	return mb.AddLayer(layer)
}

// AddMaxPool2D adds a 2D max pooling layer to the model.
// A stride of 0 defaults to the pool size, matching the common
// non-overlapping pooling configuration.
func (mb *ModelBuilder) AddMaxPool2D(poolSize, stride int, name string) *ModelBuilder {
	layer := LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_size": poolSize,
			"stride":    stride,
		},
	}
	return mb.AddLayer(layer)
}

// AddDropout adds a Dropout layer to the model
func (mb *ModelBuilder) AddDropout(rate float32, name string) *ModelBuilder {
	layer := LayerSpec{
		Type: Dropout,
		Name: name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	}
	return mb.AddLayer(layer)
}

// AddBatchNorm adds a Batch Normalization layer to the model.
// Momentum follows the running-statistics update
// running = (1-momentum)*running + momentum*batch.
func (mb *ModelBuilder) AddBatchNorm(numFeatures int, eps float32, momentum float32, affine bool, name string) *ModelBuilder {
	layer := LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"num_features": numFeatures,
			"eps":          eps,
			"momentum":     momentum,
			"affine":       affine,
		},
	}
	return mb.AddLayer(layer)
}

// AddFlatten adds a Flatten layer that collapses all non-batch dimensions
func (mb *ModelBuilder) AddFlatten(name string) *ModelBuilder {
	layer := LayerSpec{
		Type:       Flatten,
		Name:       name,
		Parameters: map[string]interface{}{},
	}
	return mb.AddLayer(layer)
}

// Compile computes shapes and parameter metadata for the model
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: mb.inputShape,
		Compiled:   false,
	}

	copy(model.Layers, mb.layers)

	// Compute shapes and parameter information
	currentShape := mb.inputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range model.Layers {
		layer := &model.Layers[i]

		// Set input shape for this layer
		layer.InputShape = make([]int, len(currentShape))
		copy(layer.InputShape, currentShape)

		// Compute output shape and parameters based on layer type
		outputShape, paramShapes, paramCount, err := mb.computeLayerInfo(layer, currentShape)
		if err != nil {
			return nil, fmt.Errorf("failed to compute layer %d (%s) info: %v", i, layer.Name, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		// Add to global parameter information
		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount

		// Update current shape for next layer
		currentShape = outputShape
	}

	model.OutputShape = currentShape
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

// computeLayerInfo computes output shape and parameter information for a layer
func (mb *ModelBuilder) computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Dense:
		return mb.computeDenseInfo(layer, inputShape)
	case Conv2D:
		return mb.computeConv2DInfo(layer, inputShape)
	case MaxPool2D:
		return mb.computeMaxPool2DInfo(layer, inputShape)
	case BatchNorm:
		return mb.computeBatchNormInfo(layer, inputShape)
	case Flatten:
		return mb.computeFlattenInfo(layer, inputShape)
	case ReLU, Softmax, Dropout:
		return mb.computeActivationInfo(layer, inputShape)
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

// computeDenseInfo computes dense layer information
func (mb *ModelBuilder) computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("dense layer requires at least 2D input")
	}

	outputSize := getIntParam(layer.Parameters, "output_size", 0)
	if outputSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing output_size parameter")
	}

	useBias := getBoolParam(layer.Parameters, "use_bias", true)

	// Compute input size by flattening all dimensions except batch
	// For 2D input [batch, features]: input_size = features
	// For 4D input [batch, channels, height, width]: input_size = channels * height * width
	inputSize := 1
	for i := 1; i < len(inputShape); i++ {
		inputSize *= inputShape[i]
	}

	// Update layer parameters with computed input size
	layer.Parameters["input_size"] = inputSize

	// Output shape: Dense layer always outputs 2D [batch, outputSize]
	// regardless of input dimensionality (handles automatic flattening)
	batchSize := inputShape[0]
	outputShape := []int{batchSize, outputSize}

	// Parameter shapes: weights + optional bias
	var paramShapes [][]int
	paramCount := int64(0)

	// Weight matrix: [outputSize, inputSize], one row per output neuron
	weightShape := []int{outputSize, inputSize}
	paramShapes = append(paramShapes, weightShape)
	paramCount += int64(inputSize * outputSize)

	// Bias vector: [outputSize] (if enabled)
	if useBias {
		biasShape := []int{outputSize}
		paramShapes = append(paramShapes, biasShape)
		paramCount += int64(outputSize)
	}

	return outputShape, paramShapes, paramCount, nil
}

// computeConv2DInfo computes Conv2D layer information
func (mb *ModelBuilder) computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("Conv2D layer requires 4D input [batch, channels, height, width]")
	}

	outputChannels := getIntParam(layer.Parameters, "output_channels", 0)
	if outputChannels <= 0 {
		return nil, nil, 0, fmt.Errorf("missing output_channels parameter")
	}

	kernelSize := getIntParam(layer.Parameters, "kernel_size", 0)
	if kernelSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing kernel_size parameter")
	}

	stride := getIntParam(layer.Parameters, "stride", 1)
	padding := getIntParam(layer.Parameters, "padding", 0)
	useBias := getBoolParam(layer.Parameters, "use_bias", true)

	// Extract input dimensions
	batchSize := inputShape[0]
	inputChannels := inputShape[1]
	inputHeight := inputShape[2]
	inputWidth := inputShape[3]

	// Update layer parameters with computed input channels
	layer.Parameters["input_channels"] = inputChannels

	// Compute output dimensions
	outputHeight := (inputHeight+2*padding-kernelSize)/stride + 1
	outputWidth := (inputWidth+2*padding-kernelSize)/stride + 1

	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, fmt.Errorf("kernel size %d exceeds input dimensions %dx%d", kernelSize, inputHeight, inputWidth)
	}

	outputShape := []int{batchSize, outputChannels, outputHeight, outputWidth}

	// Parameter shapes: weights + optional bias
	var paramShapes [][]int
	paramCount := int64(0)

	// Weight tensor: [outputChannels, inputChannels, kernelSize, kernelSize]
	weightShape := []int{outputChannels, inputChannels, kernelSize, kernelSize}
	paramShapes = append(paramShapes, weightShape)
	paramCount += int64(outputChannels * inputChannels * kernelSize * kernelSize)

	// Bias vector: [outputChannels] (if enabled)
	if useBias {
		biasShape := []int{outputChannels}
		paramShapes = append(paramShapes, biasShape)
		paramCount += int64(outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

// computeMaxPool2DInfo computes max pooling layer information
func (mb *ModelBuilder) computeMaxPool2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D layer requires 4D input [batch, channels, height, width]")
	}

	poolSize := getIntParam(layer.Parameters, "pool_size", 0)
	if poolSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing pool_size parameter")
	}

	stride := getIntParam(layer.Parameters, "stride", 0)
	if stride <= 0 {
		stride = poolSize
		layer.Parameters["stride"] = stride
	}

	batchSize := inputShape[0]
	channels := inputShape[1]
	inputHeight := inputShape[2]
	inputWidth := inputShape[3]

	outputHeight := (inputHeight-poolSize)/stride + 1
	outputWidth := (inputWidth-poolSize)/stride + 1

	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, fmt.Errorf("pool size %d exceeds input dimensions %dx%d", poolSize, inputHeight, inputWidth)
	}

	outputShape := []int{batchSize, channels, outputHeight, outputWidth}

	// Pooling has no trainable parameters
	return outputShape, [][]int{}, 0, nil
}

// computeBatchNormInfo computes batch normalization layer information
func (mb *ModelBuilder) computeBatchNormInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("batch norm layer requires at least 2D input")
	}

	numFeatures := getIntParam(layer.Parameters, "num_features", 0)
	if numFeatures <= 0 {
		return nil, nil, 0, fmt.Errorf("missing num_features parameter")
	}

	affine := getBoolParam(layer.Parameters, "affine", true)

	// BatchNorm doesn't change the input shape - it normalizes along the feature dimension
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)

	// Validate num_features matches the appropriate dimension
	// For 2D input [batch, features]: features dimension is index 1
	// For 4D input [batch, channels, height, width]: channels dimension is index 1
	expectedFeatures := inputShape[1]
	if numFeatures != expectedFeatures {
		return nil, nil, 0, fmt.Errorf("num_features (%d) doesn't match input feature dimension (%d)", numFeatures, expectedFeatures)
	}

	var paramShapes [][]int
	var paramCount int64

	if affine {
		// Learnable scale (gamma) and shift (beta) parameters
		// Both have shape [num_features]
		paramShapes = append(paramShapes, []int{numFeatures}) // gamma (scale)
		paramShapes = append(paramShapes, []int{numFeatures}) // beta (shift)
		paramCount = int64(numFeatures * 2)
	}

	// Note: running_mean and running_var are not trainable parameters.
	// They travel with the spec in RunningStatistics instead.

	return outputShape, paramShapes, paramCount, nil
}

// computeFlattenInfo computes flatten layer information
func (mb *ModelBuilder) computeFlattenInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("flatten layer requires at least 2D input")
	}

	flatSize := 1
	for i := 1; i < len(inputShape); i++ {
		flatSize *= inputShape[i]
	}

	outputShape := []int{inputShape[0], flatSize}

	return outputShape, [][]int{}, 0, nil
}

func (mb *ModelBuilder) computeActivationInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	// Activation layers don't change shape and have no parameters
	outputShape := make([]int, len(inputShape))
	copy(outputShape, inputShape)

	return outputShape, [][]int{}, 0, nil
}

// Validate checks that a model spec (typically one decoded from a saved
// artifact) is internally consistent before it is turned into a runtime model
func (ms *ModelSpec) Validate() error {
	if !ms.Compiled {
		return fmt.Errorf("model spec is not compiled")
	}
	if len(ms.Layers) == 0 {
		return fmt.Errorf("model spec has no layers")
	}

	for i, layer := range ms.Layers {
		if len(layer.InputShape) == 0 || len(layer.OutputShape) == 0 {
			return fmt.Errorf("layer %d (%s) is missing shape information", i, layer.Name)
		}
		if i > 0 {
			prev := ms.Layers[i-1].OutputShape
			if !shapesEqual(prev, layer.InputShape) {
				return fmt.Errorf("layer %d (%s) input shape %v doesn't match previous output shape %v",
					i, layer.Name, layer.InputShape, prev)
			}
		}
	}

	first := ms.Layers[0].InputShape
	if !shapesEqual(ms.InputShape, first) {
		return fmt.Errorf("model input shape %v doesn't match first layer input shape %v", ms.InputShape, first)
	}
	last := ms.Layers[len(ms.Layers)-1].OutputShape
	if !shapesEqual(ms.OutputShape, last) {
		return fmt.Errorf("model output shape %v doesn't match last layer output shape %v", ms.OutputShape, last)
	}

	totalParams := int64(0)
	for _, layer := range ms.Layers {
		totalParams += layer.ParameterCount
	}
	if totalParams != ms.TotalParameters {
		return fmt.Errorf("total parameter count %d doesn't match sum of layer parameters %d", ms.TotalParameters, totalParams)
	}

	return nil
}

// NumClasses returns the width of the model's output layer
func (ms *ModelSpec) NumClasses() int {
	if len(ms.OutputShape) < 2 {
		return 0
	}
	return ms.OutputShape[len(ms.OutputShape)-1]
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	summary := fmt.Sprintf("Model Summary:\n")
	summary += fmt.Sprintf("Input Shape: %v\n", ms.InputShape)
	summary += fmt.Sprintf("Output Shape: %v\n", ms.OutputShape)
	summary += fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters)
	summary += fmt.Sprintf("Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		summary += fmt.Sprintf("Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type.String())
		summary += fmt.Sprintf("  Input:  %v\n", layer.InputShape)
		summary += fmt.Sprintf("  Output: %v\n", layer.OutputShape)
		summary += fmt.Sprintf("  Params: %d\n", layer.ParameterCount)
		summary += "\n"
	}

	return summary
}

func shapesEqual(a, b []int) bool {
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

// IntParam returns a named integer parameter, or defaultValue if absent
func (l *LayerSpec) IntParam(key string, defaultValue int) int {
	return getIntParam(l.Parameters, key, defaultValue)
}

// BoolParam returns a named boolean parameter, or defaultValue if absent
func (l *LayerSpec) BoolParam(key string, defaultValue bool) bool {
	return getBoolParam(l.Parameters, key, defaultValue)
}

// FloatParam returns a named float parameter, or defaultValue if absent
func (l *LayerSpec) FloatParam(key string, defaultValue float32) float32 {
	return getFloatParam(l.Parameters, key, defaultValue)
}

// Parameter map helpers. Specs decoded from JSON carry numbers as float64,
// so integer parameters accept both representations.

func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	if val, exists := params[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
		// Handle float64 conversion
		if floatVal, ok := val.(float64); ok {
			return int(floatVal)
		}
	}
	return defaultValue
}

func getBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, exists := params[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return defaultValue
}

func getFloatParam(params map[string]interface{}, key string, defaultValue float32) float32 {
	if val, exists := params[key]; exists {
		if floatVal, ok := val.(float32); ok {
			return floatVal
		}
		// Handle float64 conversion
		if floatVal, ok := val.(float64); ok {
			return float32(floatVal)
		}
	}
	return defaultValue
}
