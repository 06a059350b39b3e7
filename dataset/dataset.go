// Package dataset provides batched data sources for segmentation training:
// an indexable BatchSource interface, an in-memory SliceSource, the CamVid
// directory loader and a worker-pool prefetcher.
package dataset

import (
	"fmt"
	"image/color"
)

// Batch holds one batch of images and their one-hot label maps as flat
// float32 buffers. Images are laid out [sample][row][col][channel] and
// labels [sample][row][col][class].
type Batch struct {
	Images []float32
	Labels []float32

	Samples  int
	Height   int
	Width    int
	Channels int
	Classes  int
}

// Pixels returns the number of pixels across all samples in the batch.
func (b *Batch) Pixels() int {
	return b.Samples * b.Height * b.Width
}

// Validate checks that the buffer lengths match the declared dimensions.
// A mismatch indicates a corrupt sample, not a transient fault.
func (b *Batch) Validate() error {
	if b.Samples <= 0 || b.Height <= 0 || b.Width <= 0 {
		return fmt.Errorf("invalid batch dimensions %dx%dx%d", b.Samples, b.Height, b.Width)
	}
	if want := b.Pixels() * b.Channels; len(b.Images) != want {
		return fmt.Errorf("image buffer size mismatch: expected %d, got %d", want, len(b.Images))
	}
	if want := b.Pixels() * b.Classes; len(b.Labels) != want {
		return fmt.Errorf("label buffer size mismatch: expected %d, got %d", want, len(b.Labels))
	}
	return nil
}

// TrueClasses derives the per-pixel ground-truth class ids from the one-hot
// label buffer by taking the argmax class per pixel.
func (b *Batch) TrueClasses() []int {
	pixels := b.Pixels()
	classes := make([]int, pixels)
	for i := 0; i < pixels; i++ {
		maxIdx := 0
		maxVal := b.Labels[i*b.Classes]
		for c := 1; c < b.Classes; c++ {
			if v := b.Labels[i*b.Classes+c]; v > maxVal {
				maxVal = v
				maxIdx = c
			}
		}
		classes[i] = maxIdx
	}
	return classes
}

// BatchError reports a failure loading or validating the batch at a known
// index, so callers can surface which part of the pass was malformed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ClassColor associates a class id (by position) with its display name and
// annotation color.
type ClassColor struct {
	Name  string
	Color color.RGBA
}

// BatchSource is an indexable sequence of batches. One full iteration over
// [0, Len()) is one epoch. Implementations must be safe for concurrent
// Batch calls with distinct indices; consumers own any ordering guarantees.
type BatchSource interface {
	// Len returns the number of batches per epoch.
	Len() int

	// Batch loads the batch at the given index.
	Batch(i int) (*Batch, error)

	// NumClasses returns the label class count, including any trailing
	// "unlabelled" class.
	NumClasses() int

	// ColorEncoding maps class ids to display colors. Used only by the
	// visualization layer; may be nil for synthetic sources.
	ColorEncoding() []ClassColor
}

// SliceSource is a BatchSource over batches already in memory. Useful for
// tests and small corpora.
type SliceSource struct {
	batches  []*Batch
	classes  int
	encoding []ClassColor
}

// NewSliceSource creates a source over the given batches.
func NewSliceSource(batches []*Batch, numClasses int, encoding []ClassColor) (*SliceSource, error) {
	for i, b := range batches {
		if b.Classes != numClasses {
			return nil, fmt.Errorf("batch %d: class count %d does not match source %d", i, b.Classes, numClasses)
		}
	}
	return &SliceSource{batches: batches, classes: numClasses, encoding: encoding}, nil
}

// Len returns the number of batches.
func (s *SliceSource) Len() int {
	return len(s.batches)
}

// Batch returns the batch at the given index.
func (s *SliceSource) Batch(i int) (*Batch, error) {
	if i < 0 || i >= len(s.batches) {
		return nil, fmt.Errorf("batch index %d out of range [0, %d)", i, len(s.batches))
	}
	return s.batches[i], nil
}

// NumClasses returns the class count.
func (s *SliceSource) NumClasses() int {
	return s.classes
}

// ColorEncoding returns the class color table, if any.
func (s *SliceSource) ColorEncoding() []ClassColor {
	return s.encoding
}
