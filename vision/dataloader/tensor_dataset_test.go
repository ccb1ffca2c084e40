package dataloader

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/wastenet/tensor"
	"github.com/tsawler/wastenet/vision/dataset"
)

// writeImageTree builds a two-class tree of solid-color 2x2 PNGs: glass
// images are red, metal images are blue
func writeImageTree(t *testing.T) *dataset.ImageFolderDataset {
	t.Helper()
	root := t.TempDir()

	writeSolid := func(class, name string, c color.RGBA) {
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create class dir: %v", err)
		}
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Failed to create image file: %v", err)
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("Failed to encode PNG: %v", err)
		}
	}

	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	writeSolid("glass", "g1.png", red)
	writeSolid("glass", "g2.png", red)
	writeSolid("metal", "m1.png", blue)
	writeSolid("metal", "m2.png", blue)

	files, err := dataset.NewImageFolderDataset(root, nil)
	if err != nil {
		t.Fatalf("Failed to scan tree: %v", err)
	}
	return files
}

func TestNewTensorDataset(t *testing.T) {
	files := writeImageTree(t)

	if _, err := NewTensorDataset(nil, Config{ImageSize: 8}); err == nil {
		t.Error("Expected error for nil files")
	}
	if _, err := NewTensorDataset(files, Config{}); err == nil {
		t.Error("Expected error for zero image size")
	}

	ds, err := NewTensorDataset(files, Config{ImageSize: 8})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}
	if ds.Len() != 4 {
		t.Errorf("Expected 4 samples, got %d", ds.Len())
	}
	if classes := ds.Classes(); len(classes) != 2 || classes[0] != "glass" {
		t.Errorf("Unexpected classes: %v", classes)
	}
}

func TestTensorDatasetGet(t *testing.T) {
	files := writeImageTree(t)
	ds, err := NewTensorDataset(files, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	img, label, err := ds.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if len(img.Shape) != 3 || img.Shape[0] != 3 || img.Shape[1] != 4 || img.Shape[2] != 4 {
		t.Errorf("Expected image shape [3 4 4], got %v", img.Shape)
	}
	if img.DType != tensor.Float32 {
		t.Errorf("Expected float32 image, got %s", img.DType)
	}

	// Sample 0 is red glass: full red channel, empty blue channel
	data, err := img.Float32Data()
	if err != nil {
		t.Fatalf("Failed to read image data: %v", err)
	}
	plane := 4 * 4
	if data[0] != 1.0 || data[2*plane] != 0.0 {
		t.Errorf("Expected red pixel, got r=%f b=%f", data[0], data[2*plane])
	}

	if len(label.Shape) != 1 || label.Shape[0] != 1 || label.DType != tensor.Int32 {
		t.Errorf("Expected [1] int32 label, got %v %s", label.Shape, label.DType)
	}
	labelData, err := label.Int32Data()
	if err != nil {
		t.Fatalf("Failed to read label: %v", err)
	}
	if labelData[0] != 0 {
		t.Errorf("Expected glass label 0, got %d", labelData[0])
	}

	// Metal samples carry label 1 and blue pixels
	img, label, err = ds.Get(2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, _ = img.Float32Data()
	if data[2*plane] != 1.0 || data[0] != 0.0 {
		t.Errorf("Expected blue pixel, got b=%f r=%f", data[2*plane], data[0])
	}
	labelData, _ = label.Int32Data()
	if labelData[0] != 1 {
		t.Errorf("Expected metal label 1, got %d", labelData[0])
	}

	if _, _, err := ds.Get(99); err == nil {
		t.Error("Expected error for out-of-range index")
	}
}

func TestTensorDatasetCaching(t *testing.T) {
	files := writeImageTree(t)
	ds, err := NewTensorDataset(files, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	if _, _, err := ds.Get(0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	stats := ds.CacheStats()
	if stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("First access should miss and fill: %+v", stats)
	}

	if _, _, err := ds.Get(0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	stats = ds.CacheStats()
	if stats.Hits != 1 {
		t.Errorf("Second access should hit: %+v", stats)
	}
}

func TestTensorDatasetUndecodableImage(t *testing.T) {
	files := writeImageTree(t)
	root := files.Root()
	if err := os.WriteFile(filepath.Join(root, "glass", "broken.png"), []byte("junk"), 0644); err != nil {
		t.Fatalf("Failed to write broken image: %v", err)
	}

	rescanned, err := dataset.NewImageFolderDataset(root, nil)
	if err != nil {
		t.Fatalf("Failed to rescan: %v", err)
	}
	ds, err := NewTensorDataset(rescanned, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	var sawError bool
	for i := 0; i < ds.Len(); i++ {
		if _, _, err := ds.Get(i); err != nil {
			sawError = true
		}
	}
	if !sawError {
		t.Error("Expected an error for the undecodable image")
	}
}

func TestWarmup(t *testing.T) {
	files := writeImageTree(t)
	ds, err := NewTensorDataset(files, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	decoded, err := ds.Warmup(context.Background(), 2)
	if err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	if decoded != 4 {
		t.Errorf("Expected 4 decoded images, got %d", decoded)
	}
	if stats := ds.CacheStats(); stats.Size != 4 {
		t.Errorf("Expected 4 cached images, got %d", stats.Size)
	}

	// A second pass runs entirely from the cache
	decoded, err = ds.Warmup(context.Background(), 2)
	if err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	if decoded != 4 {
		t.Errorf("Expected 4 decodable images on the warm pass, got %d", decoded)
	}
}

func TestWarmupCancellation(t *testing.T) {
	files := writeImageTree(t)
	ds, err := NewTensorDataset(files, Config{ImageSize: 4})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ds.Warmup(ctx, 2); err == nil {
		t.Error("Expected context error from cancelled warmup")
	}
}

func TestSharedCacheAcrossDatasets(t *testing.T) {
	files := writeImageTree(t)
	cache := NewCacheManager(10)

	first, err := NewTensorDataset(files, Config{ImageSize: 4, Cache: cache})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}
	second, err := NewTensorDataset(files, Config{ImageSize: 4, Cache: cache})
	if err != nil {
		t.Fatalf("Failed to create dataset: %v", err)
	}

	if _, _, err := first.Get(0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, _, err := second.Get(0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	stats := cache.Stats()
	if stats.Size != 1 {
		t.Errorf("Shared cache should decode each file once, got %d entries", stats.Size)
	}
	if stats.Hits != 1 {
		t.Errorf("Second dataset should hit the shared cache, got %d hits", stats.Hits)
	}
}

func TestNewSharedLoaders(t *testing.T) {
	trainFiles := writeImageTree(t)
	valFiles := writeImageTree(t)

	t.Run("Validation errors", func(t *testing.T) {
		if _, _, err := NewSharedLoaders(nil, nil, 4, 2, 1, nil); err == nil {
			t.Error("Expected error for empty train dataset")
		}
		if _, _, err := NewSharedLoaders(trainFiles, valFiles, 4, 0, 1, nil); err == nil {
			t.Error("Expected error for zero batch size")
		}
	})

	t.Run("Loader pair over one cache", func(t *testing.T) {
		cache := NewCacheManager(10)
		trainLoader, valLoader, err := NewSharedLoaders(trainFiles, valFiles, 4, 2, 1, cache)
		if err != nil {
			t.Fatalf("NewSharedLoaders failed: %v", err)
		}
		if trainLoader == nil || valLoader == nil {
			t.Fatal("Expected both loaders")
		}
		if trainLoader.Len() != 2 {
			t.Errorf("Expected 2 train batches, got %d", trainLoader.Len())
		}

		trainLoader.Reset()
		batch, err := trainLoader.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		shape := batch.Data.Shape
		if len(shape) != 4 || shape[0] != 2 || shape[1] != 3 || shape[2] != 4 || shape[3] != 4 {
			t.Errorf("Expected batch shape [2 3 4 4], got %v", shape)
		}
		if len(batch.Labels.Shape) != 1 || batch.Labels.Shape[0] != 2 {
			t.Errorf("Expected label shape [2], got %v", batch.Labels.Shape)
		}

		// Drain both loaders; every decode lands in the shared cache
		for trainLoader.HasNext() {
			if _, err := trainLoader.Next(); err != nil {
				t.Fatalf("Next failed: %v", err)
			}
		}
		valLoader.Reset()
		for valLoader.HasNext() {
			if _, err := valLoader.Next(); err != nil {
				t.Fatalf("Next failed: %v", err)
			}
		}
		if stats := cache.Stats(); stats.Size != 8 {
			t.Errorf("Expected 8 cached images, got %d", stats.Size)
		}
	})

	t.Run("Nil validation dataset yields nil loader", func(t *testing.T) {
		trainLoader, valLoader, err := NewSharedLoaders(trainFiles, nil, 4, 2, 1, nil)
		if err != nil {
			t.Fatalf("NewSharedLoaders failed: %v", err)
		}
		if trainLoader == nil {
			t.Fatal("Expected a train loader")
		}
		if valLoader != nil {
			t.Error("Expected nil validation loader")
		}
	})
}
