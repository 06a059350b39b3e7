package dataset

import (
	"errors"
	"fmt"
	"testing"
)

func makeBatch(samples, height, width, channels, classes int) *Batch {
	return &Batch{
		Images:   make([]float32, samples*height*width*channels),
		Labels:   make([]float32, samples*height*width*classes),
		Samples:  samples,
		Height:   height,
		Width:    width,
		Channels: channels,
		Classes:  classes,
	}
}

func TestBatchPixels(t *testing.T) {
	b := makeBatch(2, 3, 4, 3, 5)
	if b.Pixels() != 24 {
		t.Errorf("expected 24 pixels, got %d", b.Pixels())
	}
}

func TestBatchValidate(t *testing.T) {
	b := makeBatch(1, 2, 2, 3, 4)
	if err := b.Validate(); err != nil {
		t.Errorf("well-formed batch failed validation: %v", err)
	}

	b.Images = b.Images[:len(b.Images)-1]
	if err := b.Validate(); err == nil {
		t.Error("expected validation error for truncated image buffer")
	}

	b = makeBatch(1, 2, 2, 3, 4)
	b.Labels = append(b.Labels, 0)
	if err := b.Validate(); err == nil {
		t.Error("expected validation error for oversized label buffer")
	}

	b = makeBatch(1, 2, 2, 3, 4)
	b.Samples = 0
	if err := b.Validate(); err == nil {
		t.Error("expected validation error for zero samples")
	}
}

func TestBatchTrueClasses(t *testing.T) {
	b := &Batch{
		Images:   make([]float32, 3),
		Labels:   []float32{1, 0, 0, 0, 0, 1, 0, 1, 0},
		Samples:  1,
		Height:   1,
		Width:    3,
		Channels: 1,
		Classes:  3,
	}

	classes := b.TrueClasses()
	expected := []int{0, 2, 1}
	for i, c := range classes {
		if c != expected[i] {
			t.Errorf("pixel %d: expected class %d, got %d", i, expected[i], c)
		}
	}
}

func TestSliceSource(t *testing.T) {
	batches := []*Batch{
		makeBatch(1, 2, 2, 3, 4),
		makeBatch(1, 2, 2, 3, 4),
	}
	src, err := NewSliceSource(batches, 4, CamVidEncoding[:4])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if src.Len() != 2 {
		t.Errorf("expected 2 batches, got %d", src.Len())
	}
	if src.NumClasses() != 4 {
		t.Errorf("expected 4 classes, got %d", src.NumClasses())
	}
	if len(src.ColorEncoding()) != 4 {
		t.Errorf("expected 4 color entries, got %d", len(src.ColorEncoding()))
	}

	if _, err := src.Batch(1); err != nil {
		t.Errorf("valid index failed: %v", err)
	}
	if _, err := src.Batch(2); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, err := src.Batch(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestSliceSourceRejectsClassMismatch(t *testing.T) {
	batches := []*Batch{makeBatch(1, 2, 2, 3, 4)}
	if _, err := NewSliceSource(batches, 5, nil); err == nil {
		t.Error("expected error when batch classes do not match source")
	}
}

func TestBatchErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("decode failed")
	err := &BatchError{Index: 7, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
	if err.Error() != "batch 7: decode failed" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
