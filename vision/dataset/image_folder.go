// Package dataset indexes image directories where each subdirectory names a
// class. It deals only in file paths and labels; decoding and batching live
// in the preprocessing and dataloader packages.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// ImageFolderDataset is an index over a class-per-subdirectory image tree.
// Class indices follow the sorted subdirectory names, so two scans of trees
// with the same class set agree on the label mapping.
type ImageFolderDataset struct {
	root       string
	imagePaths []string
	labels     []int
	classNames []string
	classToIdx map[string]int
}

// DefaultExtensions returns the image extensions scanned when none are given
func DefaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png"}
}

// NewImageFolderDataset scans root and indexes every image under its class
// subdirectories
func NewImageFolderDataset(root string, extensions []string) (*ImageFolderDataset, error) {
	return NewImageFolderDatasetExcluding(root, extensions, nil)
}

// NewImageFolderDatasetExcluding scans root, skipping subdirectories whose
// name appears in exclude. Used to keep a held-out directory under the train
// root from being indexed as a class.
func NewImageFolderDatasetExcluding(root string, extensions, exclude []string) (*ImageFolderDataset, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions()
	}
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root %s: %w", root, err)
	}

	ds := &ImageFolderDataset{
		root:       root,
		classToIdx: make(map[string]int),
	}

	// os.ReadDir returns entries sorted by name, which fixes the class order
	for _, entry := range entries {
		if !entry.IsDir() || excluded[entry.Name()] {
			continue
		}

		className := entry.Name()
		classDir := filepath.Join(root, className)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read class directory %s: %w", classDir, err)
		}

		classIdx := len(ds.classNames)
		ds.classNames = append(ds.classNames, className)
		ds.classToIdx[className] = classIdx

		for _, file := range files {
			if file.IsDir() || !extSet[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			ds.imagePaths = append(ds.imagePaths, filepath.Join(classDir, file.Name()))
			ds.labels = append(ds.labels, classIdx)
		}
	}

	if len(ds.classNames) == 0 {
		return nil, fmt.Errorf("no class directories found in %s", root)
	}
	if len(ds.imagePaths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}

	return ds, nil
}

// Root returns the directory the dataset was scanned from
func (d *ImageFolderDataset) Root() string {
	return d.root
}

// Len returns the number of indexed images
func (d *ImageFolderDataset) Len() int {
	return len(d.imagePaths)
}

// GetItem returns the image path and class index at the given position
func (d *ImageFolderDataset) GetItem(index int) (string, int, error) {
	if index < 0 || index >= len(d.imagePaths) {
		return "", 0, fmt.Errorf("index %d out of range [0, %d)", index, len(d.imagePaths))
	}
	return d.imagePaths[index], d.labels[index], nil
}

// NumClasses returns the number of classes
func (d *ImageFolderDataset) NumClasses() int {
	return len(d.classNames)
}

// ClassNames returns the class names in index order
func (d *ImageFolderDataset) ClassNames() []string {
	return append([]string(nil), d.classNames...)
}

// ClassIndex returns the index of a class name
func (d *ImageFolderDataset) ClassIndex(name string) (int, bool) {
	idx, ok := d.classToIdx[name]
	return idx, ok
}

// ClassDistribution returns the number of indexed images per class
func (d *ImageFolderDataset) ClassDistribution() map[string]int {
	dist := make(map[string]int, len(d.classNames))
	for _, name := range d.classNames {
		dist[name] = 0
	}
	for _, label := range d.labels {
		dist[d.classNames[label]]++
	}
	return dist
}

// Split partitions the dataset into disjoint train and validation subsets.
// The validation subset holds round(valFraction * N) samples chosen by a
// shuffle seeded with seed, so the same inputs always produce the same
// partition.
func (d *ImageFolderDataset) Split(valFraction float64, seed int64) (train, val *ImageFolderDataset, err error) {
	if valFraction < 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in [0, 1), got %g", valFraction)
	}

	n := len(d.imagePaths)
	valSize := int(math.Round(valFraction * float64(n)))
	if valSize >= n {
		return nil, nil, fmt.Errorf("validation fraction %g leaves no training samples", valFraction)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	return d.Subset(indices[:n-valSize]), d.Subset(indices[n-valSize:]), nil
}

// Subset returns a dataset view over the given indices. The class mapping is
// shared with the parent.
func (d *ImageFolderDataset) Subset(indices []int) *ImageFolderDataset {
	subset := &ImageFolderDataset{
		root:       d.root,
		imagePaths: make([]string, len(indices)),
		labels:     make([]int, len(indices)),
		classNames: d.classNames,
		classToIdx: d.classToIdx,
	}
	for i, idx := range indices {
		subset.imagePaths[i] = d.imagePaths[idx]
		subset.labels[i] = d.labels[idx]
	}
	return subset
}

// String summarizes the dataset and its class distribution
func (d *ImageFolderDataset) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ImageFolderDataset(%s): %d samples, %d classes\n", d.root, len(d.imagePaths), len(d.classNames))

	dist := d.ClassDistribution()
	for _, name := range d.classNames {
		fmt.Fprintf(&sb, "  %s: %d\n", name, dist[name])
	}
	return sb.String()
}
