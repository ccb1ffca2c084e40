package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/tsawler/wastenet/tensor"
)

// Dataset is the minimal interface batch loading is built on
type Dataset interface {
	Len() int                                                           // Total number of samples
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) // Returns a single sample
}

// DataLoader provides batching, shuffling, and parallel batch assembly
type DataLoader struct {
	dataset    Dataset
	batchSize  int
	shuffle    bool
	numWorkers int
	indices    []int
	position   int
	rng        *rand.Rand
	mutex      sync.Mutex
}

// NewDataLoader creates a new DataLoader. The shuffle order derives from the
// global random seed, so runs are reproducible after SetRandomSeed.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, numWorkers int) *DataLoader {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	datasetLen := dataset.Len()
	indices := make([]int, datasetLen)
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:    dataset,
		batchSize:  batchSize,
		shuffle:    shuffle,
		numWorkers: numWorkers,
		indices:    indices,
		position:   0,
		rng:        rand.New(rand.NewSource(globalRng.Int63())),
	}
}

// SetSeed reseeds the loader's shuffle order independently of the global seed
func (dl *DataLoader) SetSeed(seed int64) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	dl.rng = rand.New(rand.NewSource(seed))
}

// Batch represents a batch of data and labels
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// BatchSize returns the configured batch size
func (dl *DataLoader) BatchSize() int {
	return dl.batchSize
}

// Reset resets the data loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		// Shuffle indices for new epoch
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := dl.rng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	// Calculate batch end position
	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	actualBatchSize := batchEnd - dl.position
	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	// Load batch data
	batch, err := dl.loadBatch(batchIndices, actualBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}

	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch loads a batch of samples and combines them into batched tensors.
// Samples are fetched and copied by numWorkers goroutines, each writing to a
// disjoint offset of the batch buffers.
func (dl *DataLoader) loadBatch(indices []int, batchSize int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	// Load first sample to determine shapes and types
	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %v", indices[0], err)
	}

	// Determine batch shapes. Single-element labels (class indices) collapse
	// to a 1D [batchSize] tensor, which is what the classification loss
	// expects.
	dataShape := append([]int{batchSize}, firstData.Shape...)
	var labelShape []int
	if firstLabel.NumElems == 1 {
		labelShape = []int{batchSize}
	} else {
		labelShape = append([]int{batchSize}, firstLabel.Shape...)
	}

	// Create batch tensors
	batchData, err := tensor.Zeros(dataShape, firstData.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch data tensor: %v", err)
	}

	batchLabels, err := tensor.Zeros(labelShape, firstLabel.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch labels tensor: %v", err)
	}

	// The first sample is already loaded; copy it while the workers handle
	// the rest
	if err := dl.copyInto(batchData, firstData, 0); err != nil {
		return nil, fmt.Errorf("failed to copy data for sample 0: %v", err)
	}
	if err := dl.copyInto(batchLabels, firstLabel, 0); err != nil {
		return nil, fmt.Errorf("failed to copy label for sample 0: %v", err)
	}

	workers := dl.numWorkers
	if workers > len(indices)-1 {
		workers = len(indices) - 1
	}

	if workers <= 1 {
		for i := 1; i < len(indices); i++ {
			if err := dl.loadSample(batchData, batchLabels, indices[i], i); err != nil {
				return nil, err
			}
		}
	} else {
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for i := 1 + worker; i < len(indices); i += workers {
					if err := dl.loadSample(batchData, batchLabels, indices[i], i); err != nil {
						errs[worker] = err
						return
					}
				}
			}(w)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}

	return &Batch{
		Data:   batchData,
		Labels: batchLabels,
	}, nil
}

// loadSample fetches one sample and copies it into the batch buffers
func (dl *DataLoader) loadSample(batchData, batchLabels *tensor.Tensor, datasetIdx, batchIdx int) error {
	data, label, err := dl.dataset.Get(datasetIdx)
	if err != nil {
		return fmt.Errorf("failed to load sample %d: %v", datasetIdx, err)
	}

	if err := dl.copyInto(batchData, data, batchIdx); err != nil {
		return fmt.Errorf("failed to copy data for sample %d: %v", batchIdx, err)
	}
	if err := dl.copyInto(batchLabels, label, batchIdx); err != nil {
		return fmt.Errorf("failed to copy label for sample %d: %v", batchIdx, err)
	}
	return nil
}

// copyInto copies a sample tensor into a specific position in the batch tensor
func (dl *DataLoader) copyInto(batchTensor, sampleTensor *tensor.Tensor, batchIndex int) error {
	if batchTensor.DType != sampleTensor.DType {
		return fmt.Errorf("dtype mismatch: batch %s, sample %s", batchTensor.DType, sampleTensor.DType)
	}

	// Calculate the offset for this batch index
	sampleSize := sampleTensor.NumElems
	offset := batchIndex * sampleSize

	switch batchTensor.DType {
	case tensor.Float32:
		batchData := batchTensor.Data.([]float32)
		sampleData := sampleTensor.Data.([]float32)

		if len(sampleData) != sampleSize {
			return fmt.Errorf("sample data size mismatch: expected %d, got %d", sampleSize, len(sampleData))
		}

		copy(batchData[offset:offset+sampleSize], sampleData)

	case tensor.Int32:
		batchData := batchTensor.Data.([]int32)
		sampleData := sampleTensor.Data.([]int32)

		if len(sampleData) != sampleSize {
			return fmt.Errorf("sample data size mismatch: expected %d, got %d", sampleSize, len(sampleData))
		}

		copy(batchData[offset:offset+sampleSize], sampleData)

	default:
		return fmt.Errorf("unsupported dtype for batch copying: %s", batchTensor.DType)
	}

	return nil
}

// Iterator returns a channel-based iterator for easy use in training loops
func (dl *DataLoader) Iterator() <-chan *Batch {
	batchChan := make(chan *Batch, 1)

	go func() {
		defer close(batchChan)

		dl.Reset()

		for dl.HasNext() {
			batch, err := dl.Next()
			if err != nil {
				fmt.Printf("DataLoader error: %v\n", err)
				return
			}

			if batch == nil {
				break
			}

			batchChan <- batch
		}
	}()

	return batchChan
}

// SimpleDataset provides a basic implementation of Dataset for testing and simple use cases
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []*tensor.Tensor
}

// NewSimpleDataset creates a new SimpleDataset
func NewSimpleDataset(data, labels []*tensor.Tensor) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: got %d and %d", len(data), len(labels))
	}

	return &SimpleDataset{
		data:   data,
		labels: labels,
	}, nil
}

// Len returns the number of samples in the dataset
func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

// Get returns a sample at the given index
func (ds *SimpleDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}

	return ds.data[idx], ds.labels[idx], nil
}

// RandomDataset generates random data for testing purposes. Each index
// produces the same sample across epochs, so training behavior on it is
// reproducible.
type RandomDataset struct {
	size       int
	dataShape  []int
	labelShape []int
	dataType   tensor.DType
	labelType  tensor.DType
	numClasses int
	seed       int64
}

// NewRandomDataset creates a new RandomDataset
func NewRandomDataset(size int, dataShape []int, labelShape []int, dataType, labelType tensor.DType, numClasses int) *RandomDataset {
	return &RandomDataset{
		size:       size,
		dataShape:  dataShape,
		labelShape: labelShape,
		dataType:   dataType,
		labelType:  labelType,
		numClasses: numClasses,
		seed:       globalRng.Int63(),
	}
}

// Len returns the size of the dataset
func (rd *RandomDataset) Len() int {
	return rd.size
}

// Get generates a random sample deterministic in idx
func (rd *RandomDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= rd.size {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, rd.size)
	}

	rng := rand.New(rand.NewSource(rd.seed + int64(idx)))

	// Generate random data
	switch rd.dataType {
	case tensor.Float32:
		dataSize := 1
		for _, dim := range rd.dataShape {
			dataSize *= dim
		}

		randomData := make([]float32, dataSize)
		for i := range randomData {
			randomData[i] = rng.Float32()*2.0 - 1.0 // Range [-1, 1]
		}

		data, err = tensor.NewTensor(rd.dataShape, rd.dataType, randomData)

	case tensor.Int32:
		dataSize := 1
		for _, dim := range rd.dataShape {
			dataSize *= dim
		}

		randomData := make([]int32, dataSize)
		for i := range randomData {
			randomData[i] = int32(rng.Intn(256)) // Range [0, 255]
		}

		data, err = tensor.NewTensor(rd.dataShape, rd.dataType, randomData)

	default:
		return nil, nil, fmt.Errorf("unsupported data type: %s", rd.dataType)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to create data tensor: %v", err)
	}

	// Generate random label
	switch rd.labelType {
	case tensor.Int32:
		labelSize := 1
		for _, dim := range rd.labelShape {
			labelSize *= dim
		}

		randomLabel := make([]int32, labelSize)
		for i := range randomLabel {
			randomLabel[i] = int32(rng.Intn(rd.numClasses))
		}

		label, err = tensor.NewTensor(rd.labelShape, rd.labelType, randomLabel)

	case tensor.Float32:
		labelSize := 1
		for _, dim := range rd.labelShape {
			labelSize *= dim
		}

		randomLabel := make([]float32, labelSize)
		for i := range randomLabel {
			randomLabel[i] = rng.Float32()
		}

		label, err = tensor.NewTensor(rd.labelShape, rd.labelType, randomLabel)

	default:
		return nil, nil, fmt.Errorf("unsupported label type: %s", rd.labelType)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to create label tensor: %v", err)
	}

	return data, label, nil
}
