package checkpoints

import (
	"fmt"
	"os"
	"time"

	"github.com/tsawler/wastenet/layers"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

// ONNXExporter handles conversion of model checkpoints to ONNX format
type ONNXExporter struct {
	model *ModelProto
}

// NewONNXExporter creates a new ONNX exporter
func NewONNXExporter() *ONNXExporter {
	return &ONNXExporter{}
}

// ExportToONNX converts a checkpoint to ONNX format
func (oe *ONNXExporter) ExportToONNX(checkpoint *Checkpoint, path string) error {
	// Create ONNX model proto
	model := &ModelProto{
		IrVersion:       7,                                                // ONNX IR version 7
		OpsetImport:     []*OperatorSetIdProto{{Domain: "", Version: 13}}, // Opset 13
		ProducerName:    "wastenet",
		ProducerVersion: "1.0.0",
		ModelVersion:    1,
	}

	// Create the computation graph
	graph, err := oe.buildONNXGraph(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to build ONNX graph: %v", err)
	}

	model.Graph = graph
	oe.model = model

	// Serialize to protobuf
	data, err := proto.Marshal(protoadapt.MessageV2Of(model))
	if err != nil {
		return fmt.Errorf("failed to marshal ONNX model: %v", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %v", err)
	}

	return nil
}

// buildONNXGraph creates the ONNX computation graph from the model spec
func (oe *ONNXExporter) buildONNXGraph(checkpoint *Checkpoint) (*GraphProto, error) {
	graph := &GraphProto{
		Name: "wastenet-model",
	}

	// Create weight map for easy lookup
	weightMap := make(map[string]WeightTensor)
	for _, weight := range checkpoint.Weights {
		weightMap[weight.Name] = weight
	}

	// Track tensor names for graph connectivity
	currentTensorName := "input"

	// Add input tensor
	inputShape := checkpoint.ModelSpec.InputShape
	inputInfo := &ValueInfoProto{
		Name: "input",
		Type: &TypeProto{
			Value: &TypeProto_TensorType{
				TensorType: &TypeProto_Tensor{
					ElemType: TensorProto_DataType_FLOAT,
					Shape: &TensorShapeProto{
						Dim: oe.createDimensions(inputShape),
					},
				},
			},
		},
	}
	graph.Input = append(graph.Input, inputInfo)

	// Process each layer and create corresponding ONNX nodes
	for layerIdx := range checkpoint.ModelSpec.Layers {
		layerSpec := &checkpoint.ModelSpec.Layers[layerIdx]

		var nodes []*NodeProto
		var initializers []*TensorProto
		var err error

		switch layerSpec.Type {
		case layers.Conv2D:
			nodes, initializers, currentTensorName, err = oe.createConv2DNode(layerSpec, weightMap, currentTensorName)
		case layers.Dense:
			nodes, initializers, currentTensorName, err = oe.createDenseNode(layerSpec, weightMap, currentTensorName)
		case layers.ReLU:
			nodes, currentTensorName = oe.createReLUNode(layerSpec, currentTensorName)
		case layers.BatchNorm:
			nodes, initializers, currentTensorName, err = oe.createBatchNormNode(layerSpec, weightMap, currentTensorName)
		case layers.MaxPool2D:
			nodes, currentTensorName = oe.createMaxPoolNode(layerSpec, currentTensorName)
		case layers.Flatten:
			nodes, currentTensorName = oe.createFlattenNode(layerSpec, currentTensorName)
		case layers.Dropout:
			nodes, currentTensorName = oe.createDropoutNode(layerSpec, currentTensorName)
		case layers.Softmax:
			nodes, currentTensorName = oe.createSoftmaxNode(layerSpec, currentTensorName)
		default:
			return nil, fmt.Errorf("unsupported layer type for ONNX export: %s", layerSpec.Type.String())
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create ONNX node for layer %s: %v", layerSpec.Name, err)
		}

		// Add nodes and initializers to graph
		graph.Node = append(graph.Node, nodes...)
		graph.Initializer = append(graph.Initializer, initializers...)
	}

	// Add output tensor
	outputShape := checkpoint.ModelSpec.OutputShape
	outputInfo := &ValueInfoProto{
		Name: currentTensorName, // Final tensor name
		Type: &TypeProto{
			Value: &TypeProto_TensorType{
				TensorType: &TypeProto_Tensor{
					ElemType: TensorProto_DataType_FLOAT,
					Shape: &TensorShapeProto{
						Dim: oe.createDimensions(outputShape),
					},
				},
			},
		},
	}
	graph.Output = append(graph.Output, outputInfo)

	return graph, nil
}

// createConv2DNode creates ONNX Conv node
func (oe *ONNXExporter) createConv2DNode(layerSpec *layers.LayerSpec, weightMap map[string]WeightTensor, inputTensor string) ([]*NodeProto, []*TensorProto, string, error) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	kernelSize := layerSpec.IntParam("kernel_size", 3)
	stride := layerSpec.IntParam("stride", 1)
	padding := layerSpec.IntParam("padding", 0)
	useBias := layerSpec.BoolParam("use_bias", true)

	// Create Conv node
	convNode := &NodeProto{
		OpType: "Conv",
		Name:   layerName,
		Input:  []string{inputTensor, fmt.Sprintf("%s.weight", layerName)},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "kernel_shape", Ints: []int64{int64(kernelSize), int64(kernelSize)}},
			{Name: "strides", Ints: []int64{int64(stride), int64(stride)}},
			{Name: "pads", Ints: []int64{int64(padding), int64(padding), int64(padding), int64(padding)}},
		},
	}

	// Add bias if present
	if useBias {
		convNode.Input = append(convNode.Input, fmt.Sprintf("%s.bias", layerName))
	}

	// Create weight initializer
	var initializers []*TensorProto
	weightTensor, ok := weightMap[fmt.Sprintf("%s.weight", layerName)]
	if !ok {
		return nil, nil, "", fmt.Errorf("missing weight tensor for layer %s", layerName)
	}
	weightInit := oe.createTensorProto(fmt.Sprintf("%s.weight", layerName), weightTensor.Shape, weightTensor.Data)
	initializers = append(initializers, weightInit)

	// Create bias initializer if present
	if useBias {
		biasTensor, ok := weightMap[fmt.Sprintf("%s.bias", layerName)]
		if !ok {
			return nil, nil, "", fmt.Errorf("missing bias tensor for layer %s", layerName)
		}
		biasInit := oe.createTensorProto(fmt.Sprintf("%s.bias", layerName), biasTensor.Shape, biasTensor.Data)
		initializers = append(initializers, biasInit)
	}

	return []*NodeProto{convNode}, initializers, outputTensor, nil
}

// createDenseNode creates ONNX MatMul + Add nodes for a Dense layer. Module
// weights are stored [output, input]; MatMul wants [input, output], so the
// matrix transposes on the way out.
func (oe *ONNXExporter) createDenseNode(layerSpec *layers.LayerSpec, weightMap map[string]WeightTensor, inputTensor string) ([]*NodeProto, []*TensorProto, string, error) {
	layerName := layerSpec.Name
	matmulOutput := fmt.Sprintf("%s_matmul", layerName)
	finalOutput := fmt.Sprintf("%s_output", layerName)

	useBias := layerSpec.BoolParam("use_bias", true)

	// Create MatMul node
	matmulNode := &NodeProto{
		OpType: "MatMul",
		Name:   fmt.Sprintf("%s_matmul_op", layerName),
		Input:  []string{inputTensor, fmt.Sprintf("%s.weight", layerName)},
		Output: []string{matmulOutput},
	}

	var nodes []*NodeProto
	nodes = append(nodes, matmulNode)

	// Create initializers
	var initializers []*TensorProto
	weightTensor, ok := weightMap[fmt.Sprintf("%s.weight", layerName)]
	if !ok {
		return nil, nil, "", fmt.Errorf("missing weight tensor for layer %s", layerName)
	}
	if len(weightTensor.Shape) != 2 {
		return nil, nil, "", fmt.Errorf("dense weight for layer %s must be 2D, got shape %v", layerName, weightTensor.Shape)
	}
	weightInit := oe.createTensorProto(fmt.Sprintf("%s.weight", layerName),
		[]int{weightTensor.Shape[1], weightTensor.Shape[0]},
		transposeMatrix(weightTensor.Data, weightTensor.Shape[0], weightTensor.Shape[1]))
	initializers = append(initializers, weightInit)

	outputTensor := matmulOutput

	// Add bias if present
	if useBias {
		biasTensor, ok := weightMap[fmt.Sprintf("%s.bias", layerName)]
		if !ok {
			return nil, nil, "", fmt.Errorf("missing bias tensor for layer %s", layerName)
		}
		biasInit := oe.createTensorProto(fmt.Sprintf("%s.bias", layerName), biasTensor.Shape, biasTensor.Data)
		initializers = append(initializers, biasInit)

		// Create Add node for bias
		addNode := &NodeProto{
			OpType: "Add",
			Name:   fmt.Sprintf("%s_add_bias", layerName),
			Input:  []string{matmulOutput, fmt.Sprintf("%s.bias", layerName)},
			Output: []string{finalOutput},
		}
		nodes = append(nodes, addNode)
		outputTensor = finalOutput
	}

	return nodes, initializers, outputTensor, nil
}

// createReLUNode creates ONNX Relu node
func (oe *ONNXExporter) createReLUNode(layerSpec *layers.LayerSpec, inputTensor string) ([]*NodeProto, string) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	reluNode := &NodeProto{
		OpType: "Relu",
		Name:   layerName,
		Input:  []string{inputTensor},
		Output: []string{outputTensor},
	}

	return []*NodeProto{reluNode}, outputTensor
}

// createBatchNormNode creates ONNX BatchNormalization node. Running
// statistics come from the layer spec when present; a freshly initialized
// model exports zero mean and unit variance.
func (oe *ONNXExporter) createBatchNormNode(layerSpec *layers.LayerSpec, weightMap map[string]WeightTensor, inputTensor string) ([]*NodeProto, []*TensorProto, string, error) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	eps := layerSpec.FloatParam("eps", 1e-5)
	momentum := layerSpec.FloatParam("momentum", 0.1)

	if !layerSpec.BoolParam("affine", true) {
		return nil, nil, "", fmt.Errorf("ONNX export requires affine BatchNorm (learnable parameters)")
	}

	// BatchNormalization requires: input, scale, bias, mean, var
	batchNormNode := &NodeProto{
		OpType: "BatchNormalization",
		Name:   layerName,
		Input: []string{
			inputTensor,
			fmt.Sprintf("%s.weight", layerName), // scale (gamma)
			fmt.Sprintf("%s.bias", layerName),   // bias (beta)
			fmt.Sprintf("%s.running_mean", layerName),
			fmt.Sprintf("%s.running_var", layerName),
		},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "epsilon", F: eps},
			{Name: "momentum", F: momentum},
		},
	}

	// Create initializers
	var initializers []*TensorProto

	// Scale (gamma)
	scaleTensor, ok := weightMap[fmt.Sprintf("%s.weight", layerName)]
	if !ok {
		return nil, nil, "", fmt.Errorf("missing gamma tensor for layer %s", layerName)
	}
	scaleInit := oe.createTensorProto(fmt.Sprintf("%s.weight", layerName), scaleTensor.Shape, scaleTensor.Data)
	initializers = append(initializers, scaleInit)

	// Bias (beta)
	biasTensor, ok := weightMap[fmt.Sprintf("%s.bias", layerName)]
	if !ok {
		return nil, nil, "", fmt.Errorf("missing beta tensor for layer %s", layerName)
	}
	biasInit := oe.createTensorProto(fmt.Sprintf("%s.bias", layerName), biasTensor.Shape, biasTensor.Data)
	initializers = append(initializers, biasInit)

	numFeatures := scaleTensor.Shape[0]

	runningMean := make([]float32, numFeatures)
	runningVar := make([]float32, numFeatures)
	for i := range runningVar {
		runningVar[i] = 1.0
	}
	if layerSpec.RunningStatistics != nil {
		if mean, ok := layerSpec.RunningStatistics["running_mean"]; ok && len(mean) == numFeatures {
			copy(runningMean, mean)
		}
		if variance, ok := layerSpec.RunningStatistics["running_var"]; ok && len(variance) == numFeatures {
			copy(runningVar, variance)
		}
	}

	meanInit := oe.createTensorProto(fmt.Sprintf("%s.running_mean", layerName), []int{numFeatures}, runningMean)
	initializers = append(initializers, meanInit)

	varInit := oe.createTensorProto(fmt.Sprintf("%s.running_var", layerName), []int{numFeatures}, runningVar)
	initializers = append(initializers, varInit)

	return []*NodeProto{batchNormNode}, initializers, outputTensor, nil
}

// createMaxPoolNode creates ONNX MaxPool node
func (oe *ONNXExporter) createMaxPoolNode(layerSpec *layers.LayerSpec, inputTensor string) ([]*NodeProto, string) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	poolSize := layerSpec.IntParam("pool_size", 2)
	stride := layerSpec.IntParam("stride", poolSize)

	maxPoolNode := &NodeProto{
		OpType: "MaxPool",
		Name:   layerName,
		Input:  []string{inputTensor},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "kernel_shape", Ints: []int64{int64(poolSize), int64(poolSize)}},
			{Name: "strides", Ints: []int64{int64(stride), int64(stride)}},
			{Name: "pads", Ints: []int64{0, 0, 0, 0}},
		},
	}

	return []*NodeProto{maxPoolNode}, outputTensor
}

// createFlattenNode creates ONNX Flatten node
func (oe *ONNXExporter) createFlattenNode(layerSpec *layers.LayerSpec, inputTensor string) ([]*NodeProto, string) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	flattenNode := &NodeProto{
		OpType: "Flatten",
		Name:   layerName,
		Input:  []string{inputTensor},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "axis", I: 1},
		},
	}

	return []*NodeProto{flattenNode}, outputTensor
}

// createDropoutNode creates ONNX Dropout node
func (oe *ONNXExporter) createDropoutNode(layerSpec *layers.LayerSpec, inputTensor string) ([]*NodeProto, string) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	rate := layerSpec.FloatParam("rate", 0.5)

	dropoutNode := &NodeProto{
		OpType: "Dropout",
		Name:   layerName,
		Input:  []string{inputTensor},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "ratio", F: rate},
		},
	}

	return []*NodeProto{dropoutNode}, outputTensor
}

// createSoftmaxNode creates ONNX Softmax node
func (oe *ONNXExporter) createSoftmaxNode(layerSpec *layers.LayerSpec, inputTensor string) ([]*NodeProto, string) {
	layerName := layerSpec.Name
	outputTensor := fmt.Sprintf("%s_output", layerName)

	axis := layerSpec.IntParam("axis", -1)

	softmaxNode := &NodeProto{
		OpType: "Softmax",
		Name:   layerName,
		Input:  []string{inputTensor},
		Output: []string{outputTensor},
		Attribute: []*AttributeProto{
			{Name: "axis", I: int64(axis)},
		},
	}

	return []*NodeProto{softmaxNode}, outputTensor
}

// Helper functions

// createDimensions creates ONNX tensor shape dimensions
func (oe *ONNXExporter) createDimensions(shape []int) []*TensorShapeProto_Dimension {
	dims := make([]*TensorShapeProto_Dimension, len(shape))
	for i, size := range shape {
		dims[i] = &TensorShapeProto_Dimension{
			Value: &TensorShapeProto_Dimension_DimValue{DimValue: int64(size)},
		}
	}
	return dims
}

// createTensorProto creates ONNX tensor initializer
func (oe *ONNXExporter) createTensorProto(name string, shape []int, data []float32) *TensorProto {
	dims := make([]int64, len(shape))
	for i, s := range shape {
		dims[i] = int64(s)
	}

	return &TensorProto{
		Name:      name,
		DataType:  TensorProto_DataType_FLOAT,
		Dims:      dims,
		FloatData: data,
	}
}

// transposeMatrix reorders a row-major rows x cols matrix into cols x rows
func transposeMatrix(data []float32, rows, cols int) []float32 {
	out := make([]float32, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = data[r*cols+c]
		}
	}
	return out
}

// ONNXImporter handles importing ONNX models back into checkpoint form
type ONNXImporter struct{}

// NewONNXImporter creates a new ONNX importer
func NewONNXImporter() *ONNXImporter {
	return &ONNXImporter{}
}

// ImportFromONNX converts an ONNX model to checkpoint format
func (oi *ONNXImporter) ImportFromONNX(path string) (*Checkpoint, error) {
	// Read ONNX file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %v", err)
	}

	// Parse ONNX protobuf
	var model ModelProto
	if err := proto.Unmarshal(data, protoadapt.MessageV2Of(&model)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ONNX model: %v", err)
	}

	// Convert ONNX graph to a model spec plus weights
	modelSpec, weights, err := oi.convertGraph(&model)
	if err != nil {
		return nil, fmt.Errorf("failed to convert ONNX model: %v", err)
	}

	// Create checkpoint
	checkpoint := &Checkpoint{
		ModelSpec: modelSpec,
		Weights:   weights,
		TrainingState: TrainingState{
			Epoch:        0,
			Step:         0,
			LearningRate: 0.001, // Default
		},
		Metadata: CheckpointMetadata{
			Version:     "1.0.0",
			Framework:   "wastenet",
			CreatedAt:   time.Now(),
			Description: fmt.Sprintf("Imported from ONNX (producer: %s)", model.ProducerName),
		},
	}

	return checkpoint, nil
}

// convertGraph converts an ONNX graph to a compiled model specification
func (oi *ONNXImporter) convertGraph(model *ModelProto) (*layers.ModelSpec, []WeightTensor, error) {
	graph := model.Graph
	if graph == nil {
		return nil, nil, fmt.Errorf("ONNX model has no graph")
	}

	// Parse input shape
	if len(graph.Input) == 0 {
		return nil, nil, fmt.Errorf("ONNX model has no inputs")
	}

	inputInfo := graph.Input[0]
	inputShape := oi.extractShapeFromValueInfo(inputInfo)
	if len(inputShape) == 0 {
		return nil, nil, fmt.Errorf("ONNX model input %s has no shape information", inputInfo.Name)
	}

	// Create weight map from initializers
	weightMap := make(map[string][]float32)
	shapeMap := make(map[string][]int)

	for _, initializer := range graph.Initializer {
		weightMap[initializer.Name] = initializer.FloatData
		shape := make([]int, len(initializer.Dims))
		for i, dim := range initializer.Dims {
			shape[i] = int(dim)
		}
		shapeMap[initializer.Name] = shape
	}

	// Build layer specifications from ONNX nodes
	var layerSpecs []layers.LayerSpec
	var weights []WeightTensor

	// First pass: identify MatMul+Add pairs for bias absorption
	matmulAddPairs := oi.identifyMatMulAddPairs(graph.Node)

	for i, node := range graph.Node {
		// Skip Add nodes that are part of MatMul+Add pairs
		if oi.isAddNodeInPair(node, matmulAddPairs) {
			continue
		}

		layerSpec, layerWeights, err := oi.convertNode(node, weightMap, shapeMap)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert ONNX node %s: %v", node.Name, err)
		}

		// For MatMul nodes that are part of a pair, add the bias weight
		if node.OpType == "MatMul" {
			if addNode, hasBias := matmulAddPairs[i]; hasBias {
				biasWeights, err := oi.extractBiasFromAddNode(addNode, weightMap, shapeMap, layerSpec.Name)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to extract bias from Add node %s: %v", addNode.Name, err)
				}
				layerWeights = append(layerWeights, biasWeights...)
				layerSpec.Parameters["use_bias"] = true
			}
		}

		if layerSpec != nil {
			layerSpecs = append(layerSpecs, *layerSpec)
		}
		weights = append(weights, layerWeights...)
	}

	// Create model builder and compile
	builder := layers.NewModelBuilder(inputShape)
	for _, spec := range layerSpecs {
		builder.AddLayer(spec)
	}

	modelSpec, err := builder.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile imported model: %v", err)
	}

	return modelSpec, weights, nil
}

// convertNode converts a single ONNX node to a layer spec and its weights
func (oi *ONNXImporter) convertNode(node *NodeProto, weightMap map[string][]float32, shapeMap map[string][]int) (*layers.LayerSpec, []WeightTensor, error) {
	switch node.OpType {
	case "Conv":
		return oi.convertConvNode(node, weightMap, shapeMap)
	case "MatMul":
		return oi.convertMatMulNode(node, weightMap, shapeMap)
	case "Relu":
		return oi.convertReluNode(node), nil, nil
	case "BatchNormalization":
		return oi.convertBatchNormNode(node, weightMap, shapeMap)
	case "MaxPool":
		return oi.convertMaxPoolNode(node)
	case "Flatten":
		return oi.convertFlattenNode(node), nil, nil
	case "Dropout":
		return oi.convertDropoutNode(node), nil, nil
	case "Softmax":
		return oi.convertSoftmaxNode(node), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ONNX operation: %s", node.OpType)
	}
}

func (oi *ONNXImporter) extractShapeFromValueInfo(info *ValueInfoProto) []int {
	tensorType := info.Type.GetTensorType()
	if tensorType == nil {
		return nil
	}

	shape := tensorType.Shape
	if shape == nil {
		return nil
	}

	dims := make([]int, len(shape.Dim))
	for i, dim := range shape.Dim {
		dims[i] = int(dim.GetDimValue())
	}

	return dims
}

// convertMatMulNode converts ONNX MatMul to a Dense layer. ONNX stores the
// weight [input_size, output_size]; the dense module stores [output, input],
// so the matrix transposes on the way in.
func (oi *ONNXImporter) convertMatMulNode(node *NodeProto, weightMap map[string][]float32, shapeMap map[string][]int) (*layers.LayerSpec, []WeightTensor, error) {
	if len(node.Input) < 2 {
		return nil, nil, fmt.Errorf("MatMul node %s: expected 2 inputs [X, W], got %d", node.Name, len(node.Input))
	}

	weightName := node.Input[1]
	weightData, exists := weightMap[weightName]
	if !exists {
		return nil, nil, fmt.Errorf("MatMul node %s: weight tensor %s not found", node.Name, weightName)
	}

	weightShape, exists := shapeMap[weightName]
	if !exists {
		return nil, nil, fmt.Errorf("MatMul node %s: weight shape for %s not found", node.Name, weightName)
	}

	if len(weightShape) != 2 {
		return nil, nil, fmt.Errorf("MatMul node %s: weight tensor must be 2D, got shape %v", node.Name, weightShape)
	}

	inputSize := weightShape[0]
	outputSize := weightShape[1]
	if len(weightData) != inputSize*outputSize {
		return nil, nil, fmt.Errorf("MatMul node %s: weight data has %d values, shape %v needs %d",
			node.Name, len(weightData), weightShape, inputSize*outputSize)
	}

	// Dense layers export as "<name>_matmul_op"; strip the suffix so the
	// weight names match what ExtractWeightsFromTensors produces
	layerName := node.Name
	if n := len(layerName); n > len("_matmul_op") && layerName[n-len("_matmul_op"):] == "_matmul_op" {
		layerName = layerName[:n-len("_matmul_op")]
	}

	weightTensor := WeightTensor{
		Name:  fmt.Sprintf("%s.weight", layerName),
		Shape: []int{outputSize, inputSize},
		Data:  transposeMatrix(weightData, inputSize, outputSize),
		Layer: layerName,
		Type:  "weight",
	}

	layerSpec := &layers.LayerSpec{
		Type: layers.Dense,
		Name: layerName,
		Parameters: map[string]interface{}{
			"input_size":  inputSize,
			"output_size": outputSize,
			"use_bias":    false, // Pure MatMul, bias added separately via Add node
		},
	}

	return layerSpec, []WeightTensor{weightTensor}, nil
}

func (oi *ONNXImporter) convertConvNode(node *NodeProto, weightMap map[string][]float32, shapeMap map[string][]int) (*layers.LayerSpec, []WeightTensor, error) {
	// Extract Conv attributes from ONNX node
	var kernelShape []int64
	var strides []int64
	var pads []int64

	for _, attr := range node.Attribute {
		switch attr.Name {
		case "kernel_shape":
			kernelShape = attr.Ints
		case "strides":
			strides = attr.Ints
		case "pads":
			pads = attr.Ints
		}
	}

	if len(kernelShape) != 2 {
		return nil, nil, fmt.Errorf("Conv node %s: only 2D convolutions supported, got kernel_shape %v", node.Name, kernelShape)
	}
	if len(strides) != 2 {
		return nil, nil, fmt.Errorf("Conv node %s: strides must be 2D, got %v", node.Name, strides)
	}
	if len(pads) != 4 {
		return nil, nil, fmt.Errorf("Conv node %s: pads must be [top, left, bottom, right], got %v", node.Name, pads)
	}

	// Uniform padding, square kernels, uniform strides only
	if pads[0] != pads[1] || pads[1] != pads[2] || pads[2] != pads[3] {
		return nil, nil, fmt.Errorf("Conv node %s: only uniform padding supported, got %v", node.Name, pads)
	}
	if kernelShape[0] != kernelShape[1] {
		return nil, nil, fmt.Errorf("Conv node %s: only square kernels supported, got %v", node.Name, kernelShape)
	}
	if strides[0] != strides[1] {
		return nil, nil, fmt.Errorf("Conv node %s: only uniform strides supported, got %v", node.Name, strides)
	}

	// Extract weight tensor (ONNX format: [output_channels, input_channels, kernel_h, kernel_w])
	if len(node.Input) < 2 {
		return nil, nil, fmt.Errorf("Conv node %s: expected at least 2 inputs (input, weight), got %d", node.Name, len(node.Input))
	}

	weightName := node.Input[1]
	weightData, exists := weightMap[weightName]
	if !exists {
		return nil, nil, fmt.Errorf("Conv node %s: weight tensor %s not found", node.Name, weightName)
	}

	weightShape, exists := shapeMap[weightName]
	if !exists {
		return nil, nil, fmt.Errorf("Conv node %s: weight shape for %s not found", node.Name, weightName)
	}

	if len(weightShape) != 4 {
		return nil, nil, fmt.Errorf("Conv node %s: weight tensor must be 4D, got shape %v", node.Name, weightShape)
	}

	outputChannels := weightShape[0]
	inputChannels := weightShape[1]
	kernelH := weightShape[2]
	kernelW := weightShape[3]

	if int64(kernelH) != kernelShape[0] || int64(kernelW) != kernelShape[1] {
		return nil, nil, fmt.Errorf("Conv node %s: kernel shape mismatch: weight %dx%d vs attribute %v",
			node.Name, kernelH, kernelW, kernelShape)
	}

	// Check for bias (optional third input)
	useBias := len(node.Input) >= 3
	var layerWeights []WeightTensor

	weightTensor := WeightTensor{
		Name:  fmt.Sprintf("%s.weight", node.Name),
		Shape: weightShape,
		Data:  weightData,
		Layer: node.Name,
		Type:  "weight",
	}
	layerWeights = append(layerWeights, weightTensor)

	if useBias {
		biasName := node.Input[2]
		biasData, exists := weightMap[biasName]
		if !exists {
			return nil, nil, fmt.Errorf("Conv node %s: bias tensor %s not found", node.Name, biasName)
		}

		biasShape, exists := shapeMap[biasName]
		if !exists {
			return nil, nil, fmt.Errorf("Conv node %s: bias shape for %s not found", node.Name, biasName)
		}

		if len(biasShape) != 1 || biasShape[0] != outputChannels {
			return nil, nil, fmt.Errorf("Conv node %s: bias shape must be [%d], got %v",
				node.Name, outputChannels, biasShape)
		}

		biasTensor := WeightTensor{
			Name:  fmt.Sprintf("%s.bias", node.Name),
			Shape: biasShape,
			Data:  biasData,
			Layer: node.Name,
			Type:  "bias",
		}
		layerWeights = append(layerWeights, biasTensor)
	}

	layerSpec := &layers.LayerSpec{
		Type: layers.Conv2D,
		Name: node.Name,
		Parameters: map[string]interface{}{
			"input_channels":  inputChannels,
			"output_channels": outputChannels,
			"kernel_size":     int(kernelShape[0]),
			"stride":          int(strides[0]),
			"padding":         int(pads[0]),
			"use_bias":        useBias,
		},
	}

	return layerSpec, layerWeights, nil
}

func (oi *ONNXImporter) convertReluNode(node *NodeProto) *layers.LayerSpec {
	return &layers.LayerSpec{
		Type:       layers.ReLU,
		Name:       node.Name,
		Parameters: map[string]interface{}{},
	}
}

func (oi *ONNXImporter) convertBatchNormNode(node *NodeProto, weightMap map[string][]float32, shapeMap map[string][]int) (*layers.LayerSpec, []WeightTensor, error) {
	// ONNX BatchNormalization inputs: [X, scale, B, input_mean, input_var]
	if len(node.Input) < 5 {
		return nil, nil, fmt.Errorf("BatchNorm node %s: expected 5 inputs [X, scale, B, mean, var], got %d",
			node.Name, len(node.Input))
	}

	eps := float32(1e-5)
	momentum := float32(0.1)

	for _, attr := range node.Attribute {
		switch attr.Name {
		case "epsilon":
			eps = attr.F
		case "momentum":
			momentum = attr.F
		}
	}

	scaleName := node.Input[1] // gamma
	biasName := node.Input[2]  // beta
	meanName := node.Input[3]  // running mean
	varName := node.Input[4]   // running variance

	var layerWeights []WeightTensor

	scaleData, exists := weightMap[scaleName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: scale tensor %s not found", node.Name, scaleName)
	}
	scaleShape, exists := shapeMap[scaleName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: scale shape for %s not found", node.Name, scaleName)
	}

	if len(scaleShape) != 1 {
		return nil, nil, fmt.Errorf("BatchNorm node %s: scale tensor must be 1D, got shape %v", node.Name, scaleShape)
	}
	numFeatures := scaleShape[0]

	layerWeights = append(layerWeights, WeightTensor{
		Name:  fmt.Sprintf("%s.weight", node.Name),
		Shape: scaleShape,
		Data:  scaleData,
		Layer: node.Name,
		Type:  "gamma",
	})

	biasData, exists := weightMap[biasName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: bias tensor %s not found", node.Name, biasName)
	}
	biasShape, exists := shapeMap[biasName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: bias shape for %s not found", node.Name, biasName)
	}

	if len(biasShape) != 1 || biasShape[0] != numFeatures {
		return nil, nil, fmt.Errorf("BatchNorm node %s: bias shape must be [%d], got %v",
			node.Name, numFeatures, biasShape)
	}

	layerWeights = append(layerWeights, WeightTensor{
		Name:  fmt.Sprintf("%s.bias", node.Name),
		Shape: biasShape,
		Data:  biasData,
		Layer: node.Name,
		Type:  "beta",
	})

	runningMeanData, exists := weightMap[meanName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: mean tensor %s not found", node.Name, meanName)
	}
	meanShape, exists := shapeMap[meanName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: mean shape for %s not found", node.Name, meanName)
	}
	if len(meanShape) != 1 || meanShape[0] != numFeatures {
		return nil, nil, fmt.Errorf("BatchNorm node %s: mean shape must be [%d], got %v",
			node.Name, numFeatures, meanShape)
	}

	runningVarData, exists := weightMap[varName]
	if !exists {
		return nil, nil, fmt.Errorf("BatchNorm node %s: variance tensor %s not found", node.Name, varName)
	}

	// Running statistics ride along in the layer spec rather than the weight
	// list: they are not learnable parameters
	layerSpec := &layers.LayerSpec{
		Type: layers.BatchNorm,
		Name: node.Name,
		Parameters: map[string]interface{}{
			"num_features": numFeatures,
			"eps":          eps,
			"momentum":     momentum,
			"affine":       true,
		},
		RunningStatistics: map[string][]float32{
			"running_mean": runningMeanData,
			"running_var":  runningVarData,
		},
	}

	return layerSpec, layerWeights, nil
}

func (oi *ONNXImporter) convertMaxPoolNode(node *NodeProto) (*layers.LayerSpec, []WeightTensor, error) {
	var kernelShape []int64
	var strides []int64

	for _, attr := range node.Attribute {
		switch attr.Name {
		case "kernel_shape":
			kernelShape = attr.Ints
		case "strides":
			strides = attr.Ints
		case "pads":
			for _, p := range attr.Ints {
				if p != 0 {
					return nil, nil, fmt.Errorf("MaxPool node %s: padded pooling not supported, got pads %v", node.Name, attr.Ints)
				}
			}
		}
	}

	if len(kernelShape) != 2 || kernelShape[0] != kernelShape[1] {
		return nil, nil, fmt.Errorf("MaxPool node %s: only square kernels supported, got %v", node.Name, kernelShape)
	}

	poolSize := int(kernelShape[0])
	stride := poolSize
	if len(strides) == 2 {
		if strides[0] != strides[1] {
			return nil, nil, fmt.Errorf("MaxPool node %s: only uniform strides supported, got %v", node.Name, strides)
		}
		stride = int(strides[0])
	}

	layerSpec := &layers.LayerSpec{
		Type: layers.MaxPool2D,
		Name: node.Name,
		Parameters: map[string]interface{}{
			"pool_size": poolSize,
			"stride":    stride,
		},
	}

	return layerSpec, nil, nil
}

func (oi *ONNXImporter) convertFlattenNode(node *NodeProto) *layers.LayerSpec {
	return &layers.LayerSpec{
		Type:       layers.Flatten,
		Name:       node.Name,
		Parameters: map[string]interface{}{},
	}
}

func (oi *ONNXImporter) convertDropoutNode(node *NodeProto) *layers.LayerSpec {
	rate := float32(0.5) // Default
	for _, attr := range node.Attribute {
		if attr.Name == "ratio" {
			rate = attr.F
		}
	}

	return &layers.LayerSpec{
		Type: layers.Dropout,
		Name: node.Name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	}
}

func (oi *ONNXImporter) convertSoftmaxNode(node *NodeProto) *layers.LayerSpec {
	axis := -1 // Default
	for _, attr := range node.Attribute {
		if attr.Name == "axis" {
			axis = int(attr.I)
		}
	}

	return &layers.LayerSpec{
		Type: layers.Softmax,
		Name: node.Name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	}
}

// identifyMatMulAddPairs identifies MatMul+Add pairs for bias absorption
func (oi *ONNXImporter) identifyMatMulAddPairs(nodes []*NodeProto) map[int]*NodeProto {
	pairs := make(map[int]*NodeProto)

	for i, node := range nodes {
		if node.OpType == "MatMul" && i+1 < len(nodes) {
			nextNode := nodes[i+1]
			if nextNode.OpType == "Add" {
				// The Add node must consume the MatMul output
				if len(nextNode.Input) >= 2 && len(node.Output) >= 1 {
					if nextNode.Input[0] == node.Output[0] {
						pairs[i] = nextNode
					}
				}
			}
		}
	}

	return pairs
}

// isAddNodeInPair checks if an Add node is part of a MatMul+Add pair
func (oi *ONNXImporter) isAddNodeInPair(node *NodeProto, pairs map[int]*NodeProto) bool {
	if node.OpType != "Add" {
		return false
	}

	for _, addNode := range pairs {
		if addNode.Name == node.Name {
			return true
		}
	}

	return false
}

// extractBiasFromAddNode extracts bias weights from an Add node
func (oi *ONNXImporter) extractBiasFromAddNode(addNode *NodeProto, weightMap map[string][]float32, shapeMap map[string][]int, layerName string) ([]WeightTensor, error) {
	if len(addNode.Input) < 2 {
		return nil, fmt.Errorf("Add node %s: expected 2 inputs, got %d", addNode.Name, len(addNode.Input))
	}

	// The bias tensor is the second input
	biasName := addNode.Input[1]
	biasData, exists := weightMap[biasName]
	if !exists {
		return nil, fmt.Errorf("Add node %s: bias tensor %s not found", addNode.Name, biasName)
	}

	biasShape, exists := shapeMap[biasName]
	if !exists {
		return nil, fmt.Errorf("Add node %s: bias shape for %s not found", addNode.Name, biasName)
	}

	biasTensor := WeightTensor{
		Name:  fmt.Sprintf("%s.bias", layerName),
		Shape: biasShape,
		Data:  biasData,
		Layer: layerName,
		Type:  "bias",
	}

	return []WeightTensor{biasTensor}, nil
}
