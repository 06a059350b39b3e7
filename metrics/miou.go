// Package metrics implements the streaming evaluation metrics used during
// segmentation training. The central type is MeanIoU, a confusion-matrix
// based mean Intersection-over-Union metric that accumulates across batches.
package metrics

import "fmt"

// MeanIoU is a stateful streaming metric over an N x N confusion
// accumulator indexed [true_class][predicted_class]. The accumulator is
// integer-valued to avoid floating drift across many batches and is owned
// exclusively by one metric instance; concurrent updates must be serialized
// by the caller.
type MeanIoU struct {
	NumClasses  int
	Matrix      [][]int64
	TotalPixels int64
}

// NewMeanIoU creates a metric for numClasses classes, including any
// trailing "unlabelled" class.
func NewMeanIoU(numClasses int) *MeanIoU {
	matrix := make([][]int64, numClasses)
	for i := range matrix {
		matrix[i] = make([]int64, numClasses)
	}
	return &MeanIoU{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset zeroes the confusion accumulator. Called once before a fresh
// training or evaluation pass.
func (m *MeanIoU) Reset() {
	for i := range m.Matrix {
		for j := range m.Matrix[i] {
			m.Matrix[i][j] = 0
		}
	}
	m.TotalPixels = 0
}

// UpdateLabels accumulates a batch of per-pixel predicted and true class
// ids. The slices must have the same length; any pixel count is accepted.
// Pixels with out-of-range ids are skipped rather than corrupting the
// accumulator.
func (m *MeanIoU) UpdateLabels(predicted, truth []int) error {
	if len(predicted) != len(truth) {
		return fmt.Errorf("label length mismatch: predicted %d, truth %d", len(predicted), len(truth))
	}

	for i := range predicted {
		p := predicted[i]
		tr := truth[i]
		if p < 0 || p >= m.NumClasses || tr < 0 || tr >= m.NumClasses {
			continue
		}
		m.Matrix[tr][p]++
		m.TotalPixels++
	}
	return nil
}

// UpdateScores accumulates a batch from raw per-class model scores and
// one-hot (or score-encoded) ground truth. Both buffers are flattened
// pixel-major: pixels * NumClasses values. The predicted id per pixel is
// the argmax over its class scores; ground truth is derived the same way.
func (m *MeanIoU) UpdateScores(scores, truth []float32, pixels int) error {
	expected := pixels * m.NumClasses
	if len(scores) != expected {
		return fmt.Errorf("scores length mismatch: expected %d, got %d", expected, len(scores))
	}
	if len(truth) != expected {
		return fmt.Errorf("truth length mismatch: expected %d, got %d", expected, len(truth))
	}

	for i := 0; i < pixels; i++ {
		p := argmax(scores[i*m.NumClasses : (i+1)*m.NumClasses])
		tr := argmax(truth[i*m.NumClasses : (i+1)*m.NumClasses])
		m.Matrix[tr][p]++
		m.TotalPixels++
	}
	return nil
}

// Result returns the per-class IoU values and their arithmetic mean.
// IoU for class c is TP/(TP+FP+FN); a class that never appears as truth or
// prediction in the accumulated window scores 0 and is still included in
// the mean, so reported scores stay comparable across runs.
func (m *MeanIoU) Result() ([]float64, float64) {
	perClass := make([]float64, m.NumClasses)
	sum := 0.0

	for c := 0; c < m.NumClasses; c++ {
		tp := float64(m.Matrix[c][c])

		var fp, fn float64
		for other := 0; other < m.NumClasses; other++ {
			if other != c {
				fp += float64(m.Matrix[other][c])
				fn += float64(m.Matrix[c][other])
			}
		}

		denom := tp + fp + fn
		if denom > 0 {
			perClass[c] = tp / denom
		}
		sum += perClass[c]
	}

	if m.NumClasses == 0 {
		return perClass, 0.0
	}
	return perClass, sum / float64(m.NumClasses)
}

// Mean returns only the mean IoU.
func (m *MeanIoU) Mean() float64 {
	_, mean := m.Result()
	return mean
}

// Accuracy returns the overall pixel accuracy of the accumulated window.
func (m *MeanIoU) Accuracy() float64 {
	if m.TotalPixels == 0 {
		return 0.0
	}

	var correct int64
	for c := 0; c < m.NumClasses; c++ {
		correct += m.Matrix[c][c]
	}
	return float64(correct) / float64(m.TotalPixels)
}

func argmax(scores []float32) int {
	maxIdx := 0
	maxVal := scores[0]
	for j := 1; j < len(scores); j++ {
		if scores[j] > maxVal {
			maxVal = scores[j]
			maxIdx = j
		}
	}
	return maxIdx
}
