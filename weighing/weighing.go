// Package weighing computes per-class loss weights from pixel-frequency
// statistics accumulated over one streaming pass of a labeled dataset.
package weighing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gonum/floats"

	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/dataset"
)

// ENetSmoothing is the smoothing constant of the frequency-weighing
// formula w = 1 / ln(c + p). It keeps the denominator inside
// [ln(c), ln(c+1)] for any pixel probability, so weights never reach zero
// or infinity. The value matches the reference formulation exactly since
// it determines downstream loss scaling.
const ENetSmoothing = 1.02

// ErrEmptyDataset reports a weighing pass that yielded zero pixels.
var ErrEmptyDataset = errors.New("weighing: dataset pass yielded zero pixels")

// Method selects the class weighing algorithm.
type Method int

const (
	// None applies no weighting: every class weight is 1.
	None Method = iota
	// ENet uses frequency weighing: w = 1 / ln(ENetSmoothing + p_c).
	ENet
	// MedianFreq uses median-frequency balancing: w = median(freq) / freq_c.
	MedianFreq
)

func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case ENet:
		return "enet"
	case MedianFreq:
		return "mfb"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMethod resolves a configuration value to a Method. Unrecognized
// names are a configuration error, surfaced before any dataset pass.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "none":
		return None, nil
	case "enet":
		return ENet, nil
	case "mfb":
		return MedianFreq, nil
	default:
		return None, &config.ConfigurationError{Option: "weighing", Value: name}
	}
}

// Compute produces the class weight vector for the requested method from
// one full pass over src. Accumulation is batch-streamed: only per-class
// counters of size numClasses are held, never the dataset itself.
func Compute(src dataset.BatchSource, numClasses int, method Method) ([]float64, error) {
	switch method {
	case None:
		weights := make([]float64, numClasses)
		for i := range weights {
			weights[i] = 1
		}
		return weights, nil
	case ENet:
		return enetWeighing(src, numClasses)
	case MedianFreq:
		return medianFreqBalancing(src, numClasses)
	default:
		return nil, &config.ConfigurationError{Option: "weighing", Value: method.String()}
	}
}

// epochStreamer is satisfied by sources that deliver an epoch through a
// worker pool. Weight accumulation is commutative, so batch arrival order
// does not matter and the concurrent path is taken whenever available.
type epochStreamer interface {
	Epoch() <-chan dataset.IndexedBatch
}

// forEachBatch visits every batch of one epoch, concurrently loaded when the
// source supports it, and applies fn on the accumulating goroutine.
func forEachBatch(src dataset.BatchSource, fn func(*dataset.Batch)) error {
	if streamer, ok := src.(epochStreamer); ok {
		stream := streamer.Epoch()
		for ib := range stream {
			if ib.Err != nil {
				// Drain so the workers can finish before returning.
				for range stream {
				}
				return fmt.Errorf("weighing pass failed at batch %d: %v", ib.Index, ib.Err)
			}
			fn(ib.Batch)
		}
		return nil
	}

	for i := 0; i < src.Len(); i++ {
		batch, err := src.Batch(i)
		if err != nil {
			return fmt.Errorf("weighing pass failed at batch %d: %v", i, err)
		}
		fn(batch)
	}
	return nil
}

// enetWeighing computes w_c = 1 / ln(ENetSmoothing + p_c) where p_c is the
// empirical pixel probability of class c across the entire pass.
func enetWeighing(src dataset.BatchSource, numClasses int) ([]float64, error) {
	counts := make([]float64, numClasses)

	err := forEachBatch(src, func(batch *dataset.Batch) {
		for _, class := range batch.TrueClasses() {
			counts[class]++
		}
	})
	if err != nil {
		return nil, err
	}

	total := floats.Sum(counts)
	if total == 0 {
		return nil, ErrEmptyDataset
	}

	weights := make([]float64, numClasses)
	for c, count := range counts {
		weights[c] = 1.0 / math.Log(ENetSmoothing+count/total)
	}
	return weights, nil
}

// medianFreqBalancing computes freq_c = (pixels of class c) / (pixels of
// the images containing class c) and w_c = median(freq) / freq_c. The
// median is taken over classes that appear in the dataset; a class absent
// from the entire pass gets weight 0 by policy rather than dividing by
// zero.
func medianFreqBalancing(src dataset.BatchSource, numClasses int) ([]float64, error) {
	classPixels := make([]float64, numClasses)
	imagePixels := make([]float64, numClasses)
	present := make([]bool, numClasses)
	var totalPixels float64

	err := forEachBatch(src, func(batch *dataset.Batch) {
		classes := batch.TrueClasses()
		perImage := batch.Height * batch.Width
		totalPixels += float64(len(classes))

		for s := 0; s < batch.Samples; s++ {
			for c := range present {
				present[c] = false
			}
			for _, class := range classes[s*perImage : (s+1)*perImage] {
				classPixels[class]++
				present[class] = true
			}
			for c, ok := range present {
				if ok {
					imagePixels[c] += float64(perImage)
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if totalPixels == 0 {
		return nil, ErrEmptyDataset
	}

	freqs := make([]float64, numClasses)
	var observed []float64
	for c := range freqs {
		if imagePixels[c] > 0 {
			freqs[c] = classPixels[c] / imagePixels[c]
			observed = append(observed, freqs[c])
		}
	}

	med := median(observed)
	weights := make([]float64, numClasses)
	for c, freq := range freqs {
		if freq > 0 {
			weights[c] = med / freq
		}
	}
	return weights, nil
}

// ApplyIgnoreUnlabelled forces the final class weight to 0. The trailing
// class is the "unlabelled" class by convention and should never
// contribute to the loss when the option is set. Applied by the caller
// after the estimator runs, regardless of algorithm.
func ApplyIgnoreUnlabelled(weights []float64) {
	if len(weights) > 0 {
		weights[len(weights)-1] = 0
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
