// Package preprocessing decodes images into the float32 CHW layout the
// network consumes.
package preprocessing

import (
	"fmt"
	"image"
	"io"

	// Registered decoders for the formats the dataset scanner indexes
	_ "image/jpeg"
	_ "image/png"
)

// ImageProcessor resizes decoded images to a fixed square size and emits
// channels-first float32 data in [0, 1]. It holds no mutable state, so one
// instance can serve concurrent decoders.
type ImageProcessor struct {
	targetSize int
}

// NewImageProcessor creates a processor emitting targetSize x targetSize
// images
func NewImageProcessor(targetSize int) *ImageProcessor {
	return &ImageProcessor{targetSize: targetSize}
}

// TargetSize returns the output edge length
func (p *ImageProcessor) TargetSize() int {
	return p.targetSize
}

// ProcessedImage is a decoded image ready for network input
type ProcessedImage struct {
	Data     []float32 // CHW layout, length Channels*Height*Width
	Width    int
	Height   int
	Channels int
}

// DecodeAndPreprocess decodes an image and resizes it by nearest-neighbor
// sampling. Aspect ratio is not preserved: the source maps onto the square
// target the way the network was trained.
func (p *ImageProcessor) DecodeAndPreprocess(reader io.Reader) (*ProcessedImage, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return p.Preprocess(img), nil
}

// Preprocess converts an already decoded image
func (p *ImageProcessor) Preprocess(img image.Image) *ProcessedImage {
	size := p.targetSize
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	scaleX := float64(width) / float64(size)
	scaleY := float64(height) / float64(size)

	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		srcY := bounds.Min.Y + int(float64(y)*scaleY)
		if srcY >= bounds.Max.Y {
			srcY = bounds.Max.Y - 1
		}
		for x := 0; x < size; x++ {
			srcX := bounds.Min.X + int(float64(x)*scaleX)
			if srcX >= bounds.Max.X {
				srcX = bounds.Max.X - 1
			}

			r, g, b, _ := img.At(srcX, srcY).RGBA()

			idx := y*size + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	return &ProcessedImage{
		Data:     data,
		Width:    size,
		Height:   size,
		Channels: 3,
	}
}
