package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/tsawler/go-segment/dataset"
)

// RenderClassMap paints per-pixel class ids into an image using the
// dataset's annotation colors. Class ids outside the encoding render black.
func RenderClassMap(classes []int, height, width int, encoding []dataset.ClassColor) (*image.RGBA, error) {
	if len(classes) != height*width {
		return nil, fmt.Errorf("class map has %d entries for %dx%d image", len(classes), height, width)
	}
	if len(encoding) == 0 {
		return nil, fmt.Errorf("empty color encoding")
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			class := classes[y*width+x]
			if class >= 0 && class < len(encoding) {
				img.SetRGBA(x, y, encoding[class].Color)
			}
		}
	}
	return img, nil
}

// RenderScores converts per-pixel class scores to a class map by argmax and
// renders it. Scores are laid out [pixel][class], matching model output.
func RenderScores(scores []float32, height, width, numClasses int, encoding []dataset.ClassColor) (*image.RGBA, error) {
	pixels := height * width
	if len(scores) != pixels*numClasses {
		return nil, fmt.Errorf("score buffer has %d entries for %d pixels x %d classes", len(scores), pixels, numClasses)
	}

	classes := make([]int, pixels)
	for p := 0; p < pixels; p++ {
		best := 0
		bestScore := scores[p*numClasses]
		for c := 1; c < numClasses; c++ {
			if s := scores[p*numClasses+c]; s > bestScore {
				bestScore = s
				best = c
			}
		}
		classes[p] = best
	}
	return RenderClassMap(classes, height, width, encoding)
}

// SavePNG writes the image to path, creating parent directories as needed.
func SavePNG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %v", path, err)
	}
	return nil
}

// PredictionRenderer renders a fixed sample batch's predictions after each
// epoch, one PNG per sample, so training progress is visible as images.
type PredictionRenderer struct {
	dir      string
	sample   *dataset.Batch
	encoding []dataset.ClassColor
	predict  func(*dataset.Batch) ([]float32, error)
}

// NewPredictionRenderer creates a renderer over one held-out batch. predict
// produces per-pixel class scores for the batch, typically Model.Predict.
func NewPredictionRenderer(dir string, sample *dataset.Batch, encoding []dataset.ClassColor, predict func(*dataset.Batch) ([]float32, error)) (*PredictionRenderer, error) {
	if sample == nil {
		return nil, fmt.Errorf("sample batch cannot be nil")
	}
	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sample batch: %v", err)
	}
	if predict == nil {
		return nil, fmt.Errorf("predict function cannot be nil")
	}
	return &PredictionRenderer{
		dir:      dir,
		sample:   sample,
		encoding: encoding,
		predict:  predict,
	}, nil
}

// RenderEpoch predicts the sample batch and writes one class-map PNG per
// sample under {dir}/epoch_{epoch}/.
func (r *PredictionRenderer) RenderEpoch(epoch int) error {
	scores, err := r.predict(r.sample)
	if err != nil {
		return fmt.Errorf("prediction failed: %v", err)
	}

	pixelsPerSample := r.sample.Height * r.sample.Width
	stride := pixelsPerSample * r.sample.Classes
	epochDir := filepath.Join(r.dir, fmt.Sprintf("epoch_%03d", epoch))

	for s := 0; s < r.sample.Samples; s++ {
		img, err := RenderScores(scores[s*stride:(s+1)*stride], r.sample.Height, r.sample.Width, r.sample.Classes, r.encoding)
		if err != nil {
			return fmt.Errorf("sample %d: %v", s, err)
		}
		path := filepath.Join(epochDir, fmt.Sprintf("sample_%02d.png", s))
		if err := SavePNG(img, path); err != nil {
			return fmt.Errorf("sample %d: %v", s, err)
		}
	}
	return nil
}
