package dataloader

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tsawler/wastenet/tensor"
	"github.com/tsawler/wastenet/vision/dataset"
	"github.com/tsawler/wastenet/vision/preprocessing"
)

// Config controls how a TensorDataset decodes and caches images
type Config struct {
	ImageSize int           // output edge length, required
	CacheSize int           // decoded images kept; 0 caches the whole dataset
	Cache     *CacheManager // optional shared cache, overrides CacheSize
}

// TensorDataset serves an image folder as decoded tensors: each sample is a
// [3, size, size] float32 image in [0, 1] and a single int32 class index.
// Decoded data lands in the cache, so epochs after the first skip the decode
// entirely.
type TensorDataset struct {
	files     *dataset.ImageFolderDataset
	processor *preprocessing.ImageProcessor
	cache     *CacheManager
	imageSize int
}

// NewTensorDataset wraps an indexed image folder
func NewTensorDataset(files *dataset.ImageFolderDataset, cfg Config) (*TensorDataset, error) {
	if files == nil {
		return nil, fmt.Errorf("files dataset cannot be nil")
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", cfg.ImageSize)
	}

	cache := cfg.Cache
	if cache == nil {
		size := cfg.CacheSize
		if size <= 0 {
			size = files.Len()
		}
		cache = NewCacheManager(size)
	}

	return &TensorDataset{
		files:     files,
		processor: preprocessing.NewImageProcessor(cfg.ImageSize),
		cache:     cache,
		imageSize: cfg.ImageSize,
	}, nil
}

// Len returns the number of samples
func (td *TensorDataset) Len() int {
	return td.files.Len()
}

// Classes returns the class names in index order
func (td *TensorDataset) Classes() []string {
	return td.files.ClassNames()
}

// Cache returns the decode cache, for sharing with another dataset
func (td *TensorDataset) Cache() *CacheManager {
	return td.cache
}

// CacheStats returns decode cache statistics
func (td *TensorDataset) CacheStats() CacheStats {
	return td.cache.Stats()
}

// Get decodes (or recalls) one sample as an image tensor and a label tensor
func (td *TensorDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	path, label, err := td.files.GetItem(idx)
	if err != nil {
		return nil, nil, err
	}

	data, err := td.decode(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	img, err := tensor.NewTensor([]int{3, td.imageSize, td.imageSize}, tensor.Float32, data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build image tensor for %s: %w", path, err)
	}
	lbl, err := tensor.NewTensor([]int{1}, tensor.Int32, []int32{int32(label)})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build label tensor for %s: %w", path, err)
	}
	return img, lbl, nil
}

func (td *TensorDataset) decode(path string) ([]float32, error) {
	if data, ok := td.cache.Get(path); ok {
		return data, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	processed, err := td.processor.DecodeAndPreprocess(file)
	if err != nil {
		return nil, err
	}

	td.cache.Put(path, processed.Data)
	return processed.Data, nil
}

// Warmup decodes every not-yet-cached sample with numWorkers goroutines and
// returns how many images are now decodable. Images that fail to decode are
// skipped here and surface as errors when a batch actually needs them.
func (td *TensorDataset) Warmup(ctx context.Context, numWorkers int) (int, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	n := td.files.Len()
	if numWorkers > n {
		numWorkers = n
	}

	counts := make([]int, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < n; i += numWorkers {
				if ctx.Err() != nil {
					return
				}
				path, _, err := td.files.GetItem(i)
				if err != nil {
					continue
				}
				if _, err := td.decode(path); err == nil {
					counts[worker]++
				}
			}
		}(w)
	}
	wg.Wait()

	decoded := 0
	for _, c := range counts {
		decoded += c
	}
	return decoded, ctx.Err()
}
