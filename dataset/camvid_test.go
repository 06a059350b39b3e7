package dataset

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writePNG renders a solid-color image file for loader tests.
func writePNG(t *testing.T, path string, c color.RGBA, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// camvidFixture lays out {root}/train and {root}/trainannot with n samples.
// Sample i uses the annotation color of class i.
func camvidFixture(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	imgDir := filepath.Join(root, "train")
	annotDir := filepath.Join(root, "trainannot")
	for _, dir := range []string{imgDir, annotDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%04d.png", i)
		writePNG(t, filepath.Join(imgDir, name), color.RGBA{100, 150, 200, 255}, 8, 6)
		writePNG(t, filepath.Join(annotDir, name), CamVidEncoding[i%len(CamVidEncoding)].Color, 8, 6)
	}
	return root
}

func TestNewCamVidValidation(t *testing.T) {
	root := camvidFixture(t, 2)

	if _, err := NewCamVid(root, "holdout", 1, 4, 4); err == nil {
		t.Error("expected error for unknown split")
	}
	if _, err := NewCamVid(root, "train", 0, 4, 4); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := NewCamVid(root, "val", 1, 4, 4); err == nil {
		t.Error("expected error for empty split directory")
	}
}

func TestNewCamVidRejectsUnpairedAnnotations(t *testing.T) {
	root := camvidFixture(t, 2)
	extra := filepath.Join(root, "trainannot", "9999.png")
	writePNG(t, extra, CamVidEncoding[0].Color, 8, 6)

	if _, err := NewCamVid(root, "train", 1, 4, 4); err == nil {
		t.Error("expected error when image and annotation counts differ")
	}
}

func TestCamVidBatching(t *testing.T) {
	root := camvidFixture(t, 5)
	cv, err := NewCamVid(root, "train", 2, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cv.Len() != 3 {
		t.Errorf("5 samples at batch size 2 should yield 3 batches, got %d", cv.Len())
	}
	if cv.NumClasses() != 12 {
		t.Errorf("expected 12 classes, got %d", cv.NumClasses())
	}

	full, err := cv.Batch(0)
	if err != nil {
		t.Fatalf("batch load failed: %v", err)
	}
	if full.Samples != 2 {
		t.Errorf("expected 2 samples in full batch, got %d", full.Samples)
	}
	if err := full.Validate(); err != nil {
		t.Errorf("loaded batch failed validation: %v", err)
	}

	// The last batch carries the remainder.
	tail, err := cv.Batch(2)
	if err != nil {
		t.Fatalf("tail batch load failed: %v", err)
	}
	if tail.Samples != 1 {
		t.Errorf("expected 1 sample in tail batch, got %d", tail.Samples)
	}

	if _, err := cv.Batch(3); err == nil {
		t.Error("expected error for out-of-range batch index")
	}
}

func TestCamVidPixelScaling(t *testing.T) {
	root := camvidFixture(t, 1)
	cv, err := NewCamVid(root, "train", 1, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, err := cv.Batch(0)
	if err != nil {
		t.Fatalf("batch load failed: %v", err)
	}

	// The fixture image is solid {100, 150, 200}; after scaling every pixel
	// should hold those values divided by 255.
	expected := []float32{100.0 / 255.0, 150.0 / 255.0, 200.0 / 255.0}
	for c := 0; c < 3; c++ {
		if diff := batch.Images[c] - expected[c]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("channel %d: expected %f, got %f", c, expected[c], batch.Images[c])
		}
	}
}

func TestCamVidOneHotLabels(t *testing.T) {
	root := camvidFixture(t, 3)
	cv, err := NewCamVid(root, "train", 3, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, err := cv.Batch(0)
	if err != nil {
		t.Fatalf("batch load failed: %v", err)
	}

	classes := batch.TrueClasses()
	pixelsPerSample := 4 * 4
	for s := 0; s < 3; s++ {
		for p := 0; p < pixelsPerSample; p++ {
			if got := classes[s*pixelsPerSample+p]; got != s {
				t.Fatalf("sample %d pixel %d: expected class %d, got %d", s, p, s, got)
			}
		}
	}

	// Exactly one hot entry per pixel.
	for p := 0; p < batch.Pixels(); p++ {
		var sum float32
		for c := 0; c < batch.Classes; c++ {
			sum += batch.Labels[p*batch.Classes+c]
		}
		if sum != 1 {
			t.Fatalf("pixel %d: one-hot sum %f", p, sum)
		}
	}
}

func TestClassOfExactColors(t *testing.T) {
	root := camvidFixture(t, 1)
	cv, err := NewCamVid(root, "train", 1, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, cc := range CamVidEncoding {
		if got := cv.ClassOf(cc.Color); got != i {
			t.Errorf("%s: expected class %d, got %d", cc.Name, i, got)
		}
	}
}

func TestClassOfNearestColor(t *testing.T) {
	root := camvidFixture(t, 1)
	cv, err := NewCamVid(root, "train", 1, 4, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Slightly off the "road" color from compression artifacts.
	off := color.RGBA{126, 66, 130, 255}
	if got := cv.ClassOf(off); got != 3 {
		t.Errorf("expected near-road color to map to class 3, got %d", got)
	}

	// Second lookup hits the cache and must agree.
	if got := cv.ClassOf(off); got != 3 {
		t.Errorf("cached lookup disagreed, got %d", got)
	}
}
