package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsawler/wastenet/logging"
)

// ValSubdirName is the directory under the train root holding held-out
// images. When present it is never indexed as a class.
const ValSubdirName = "val"

// NewWasteDataset indexes the waste image tree. training selects the train
// root itself; otherwise the held-out directory beneath it is indexed.
func NewWasteDataset(root string, training bool) (*ImageFolderDataset, error) {
	if training {
		return NewImageFolderDatasetExcluding(root, nil, []string{ValSubdirName})
	}
	return NewImageFolderDataset(filepath.Join(root, ValSubdirName), nil)
}

// HasHeldOutDir reports whether the train root carries a held-out directory
func HasHeldOutDir(root string) bool {
	info, err := os.Stat(filepath.Join(root, ValSubdirName))
	return err == nil && info.IsDir()
}

// LoadWasteSplits resolves the train and validation datasets for a training
// run. A held-out directory under the root is authoritative when present;
// otherwise the validation set is carved out of the train set with the given
// fraction and seed. Class distributions land in the debug log either way.
func LoadWasteSplits(root string, valFraction float64, seed int64, log *logging.Logger) (train, val *ImageFolderDataset, err error) {
	if log == nil {
		log = logging.Discard()
	}

	if HasHeldOutDir(root) {
		train, err = NewWasteDataset(root, true)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to index training images: %w", err)
		}
		val, err = NewWasteDataset(root, false)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to index held-out images: %w", err)
		}

		// The label mapping follows sorted class names, so a held-out tree
		// with a different class set would silently relabel everything
		if err := sameClasses(train, val); err != nil {
			return nil, nil, err
		}
		log.Debug("using held-out directory for validation",
			"root", root, "train_samples", train.Len(), "val_samples", val.Len())
	} else {
		var full *ImageFolderDataset
		full, err = NewWasteDataset(root, true)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to index training images: %w", err)
		}
		train, val, err = full.Split(valFraction, seed)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to split dataset: %w", err)
		}
		log.Debug("no held-out directory, splitting train root",
			"root", root, "val_fraction", valFraction, "seed", seed,
			"train_samples", train.Len(), "val_samples", val.Len())
	}

	logDistribution(log, "train", train)
	logDistribution(log, "validation", val)
	return train, val, nil
}

func sameClasses(a, b *ImageFolderDataset) error {
	aNames := a.ClassNames()
	bNames := b.ClassNames()
	if len(aNames) != len(bNames) {
		return fmt.Errorf("held-out classes %v don't match training classes %v", bNames, aNames)
	}
	for i := range aNames {
		if aNames[i] != bNames[i] {
			return fmt.Errorf("held-out classes %v don't match training classes %v", bNames, aNames)
		}
	}
	return nil
}

func logDistribution(log *logging.Logger, split string, d *ImageFolderDataset) {
	dist := d.ClassDistribution()
	for _, name := range d.classNames {
		log.Debug("class distribution", "split", split, "class", name, "count", dist[name])
	}
}
