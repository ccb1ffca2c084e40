package dataloader

import (
	"fmt"

	"github.com/tsawler/wastenet/training"
	"github.com/tsawler/wastenet/vision/dataset"
)

// NewSharedLoaders builds the loader pair for a training run: a shuffled
// train loader and a sequential validation loader, both decoding through the
// given cache. Passing a nil cache creates one sized for both datasets;
// passing the same cache across runs lets a batch-size sweep reuse every
// decoded image. The validation loader is nil when valFiles is empty.
func NewSharedLoaders(
	trainFiles, valFiles *dataset.ImageFolderDataset,
	imageSize, batchSize, numWorkers int,
	cache *CacheManager,
) (trainLoader, valLoader *training.DataLoader, err error) {
	if trainFiles == nil || trainFiles.Len() == 0 {
		return nil, nil, fmt.Errorf("train dataset is empty")
	}
	if batchSize <= 0 {
		return nil, nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	if cache == nil {
		total := trainFiles.Len()
		if valFiles != nil {
			total += valFiles.Len()
		}
		cache = NewCacheManager(total)
	}

	trainDS, err := NewTensorDataset(trainFiles, Config{ImageSize: imageSize, Cache: cache})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap train dataset: %w", err)
	}
	trainLoader = training.NewDataLoader(trainDS, batchSize, true, numWorkers)

	if valFiles != nil && valFiles.Len() > 0 {
		valDS, err := NewTensorDataset(valFiles, Config{ImageSize: imageSize, Cache: cache})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to wrap validation dataset: %w", err)
		}
		valLoader = training.NewDataLoader(valDS, batchSize, false, numWorkers)
	}

	return trainLoader, valLoader, nil
}
