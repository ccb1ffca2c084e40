package layers

import "fmt"

// Defaults for the stock waste sorting classifier.
const (
	WasteNumClasses    = 8
	WasteImageSize     = 256
	WasteImageChannels = 3
)

// Batch normalization settings shared by every normalization layer in the
// stock architecture. The momentum is applied as
// running = (1-momentum)*running + momentum*batch.
const (
	wasteBatchNormEps      = 1e-3
	wasteBatchNormMomentum = 0.01
)

// NewWasteClassifier builds the stock CNN used for waste sorting: four
// convolution blocks (Conv2D -> ReLU -> BatchNorm -> MaxPool -> Dropout)
// with 32/64/128/256 filters, followed by a dense classification head.
// Convolutions use 3x3 kernels with no padding; pooling is 2x2.
// The returned spec is compiled and ready to be turned into a runtime model.
func NewWasteClassifier(batchSize, numClasses, imageSize int) (*ModelSpec, error) {
	inputShape := []int{batchSize, WasteImageChannels, imageSize, imageSize}

	builder := NewModelBuilder(inputShape)

	filters := []int{32, 64, 128, 256}
	for i, f := range filters {
		n := i + 1
		builder.
			AddConv2D(f, 3, 1, 0, true, layerName("conv", n)).
			AddReLU(layerName("relu", n)).
			AddBatchNorm(f, wasteBatchNormEps, wasteBatchNormMomentum, true, layerName("bn", n)).
			AddMaxPool2D(2, 2, layerName("pool", n)).
			AddDropout(0.25, layerName("drop", n))
	}

	builder.
		AddFlatten("flatten").
		AddDense(512, true, "fc1").
		AddReLU("relu5").
		AddBatchNorm(512, wasteBatchNormEps, wasteBatchNormMomentum, true, "bn5").
		AddDropout(0.5, "drop5").
		AddDense(numClasses, true, "fc2").
		AddSoftmax(-1, "softmax")

	return builder.Compile()
}

func layerName(prefix string, index int) string {
	return fmt.Sprintf("%s%d", prefix, index)
}
