package model

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/tsawler/go-segment/checkpoints"
	"github.com/tsawler/go-segment/dataset"
	"github.com/tsawler/go-segment/metrics"
)

// KindPixelNet is PixelNet's stable registry identifier.
const KindPixelNet = "PixelNet"

// PixelNet is a per-pixel linear softmax classifier: each pixel's class
// scores are an affine function of its channel values. It stands in for a
// full encoder-decoder network so the training loop, checkpointing and
// evaluation have a real trainable collaborator; the architecture itself is
// intentionally minimal.
type PixelNet struct {
	numClasses int
	channels   int

	// weights holds channels+1 values per class; the final value is the
	// class bias.
	weights  []float32
	momentum []float32

	opt      Optimizer
	lossName string
	compiled bool
	steps    int
}

// NewPixelNet creates an untrained classifier for the given class count and
// image channel count. Parameters start at zero, which for a linear softmax
// model is a uniform prediction.
func NewPixelNet(numClasses, channels int) *PixelNet {
	stride := channels + 1
	return &PixelNet{
		numClasses: numClasses,
		channels:   channels,
		weights:    make([]float32, numClasses*stride),
		momentum:   make([]float32, numClasses*stride),
	}
}

// NumClasses returns the class count the model predicts over.
func (pn *PixelNet) NumClasses() int {
	return pn.numClasses
}

// Compile sets the optimizer and loss. Only categorical cross-entropy is
// supported; it is the loss the per-pixel weight map contract is defined
// against.
func (pn *PixelNet) Compile(opt Optimizer, loss string) error {
	if loss != "categorical_crossentropy" {
		return fmt.Errorf("unsupported loss %q", loss)
	}
	if opt.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %f", opt.LearningRate)
	}
	if opt.Momentum < 0 || opt.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1), got %f", opt.Momentum)
	}
	pn.opt = opt
	pn.lossName = loss
	pn.compiled = true
	return nil
}

// SetLearningRate overrides the optimizer learning rate. Called by the
// orchestrator at every epoch boundary to apply the decay schedule.
func (pn *PixelNet) SetLearningRate(lr float64) {
	pn.opt.LearningRate = lr
}

// LearningRate returns the current effective learning rate.
func (pn *PixelNet) LearningRate() float64 {
	return pn.opt.LearningRate
}

// Forward computes per-pixel class scores for a batch. The result is
// flattened pixel-major: Pixels() * numClasses values.
func (pn *PixelNet) Forward(batch *dataset.Batch) []float32 {
	pixels := batch.Pixels()
	scores := make([]float32, pixels*pn.numClasses)
	stride := pn.channels + 1

	for i := 0; i < pixels; i++ {
		px := batch.Images[i*batch.Channels : (i+1)*batch.Channels]
		for c := 0; c < pn.numClasses; c++ {
			w := pn.weights[c*stride : (c+1)*stride]
			z := w[pn.channels] // bias
			for k := 0; k < pn.channels; k++ {
				z += w[k] * px[k]
			}
			scores[i*pn.numClasses+c] = z
		}
	}
	return scores
}

// Predict returns per-pixel class scores for a batch without touching the
// model parameters.
func (pn *PixelNet) Predict(batch *dataset.Batch) ([]float32, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if batch.Channels != pn.channels {
		return nil, fmt.Errorf("batch has %d channels, model expects %d", batch.Channels, pn.channels)
	}
	if batch.Classes != pn.numClasses {
		return nil, fmt.Errorf("batch has %d classes, model expects %d", batch.Classes, pn.numClasses)
	}
	return pn.Forward(batch), nil
}

// FitOneEpoch streams the source once, applying one SGD step per batch.
// Each pixel's loss and gradient are scaled by classWeights indexed by the
// pixel's true class; weight 0 removes the pixel from the loss entirely.
func (pn *PixelNet) FitOneEpoch(src dataset.BatchSource, classWeights []float64) (EpochMetrics, error) {
	if !pn.compiled {
		return EpochMetrics{}, fmt.Errorf("model must be compiled before training")
	}
	if classWeights != nil && len(classWeights) != pn.numClasses {
		return EpochMetrics{}, fmt.Errorf("class weight count %d does not match %d classes", len(classWeights), pn.numClasses)
	}

	miou := metrics.NewMeanIoU(pn.numClasses)
	var totalLoss, totalWeight float64

	for i := 0; i < src.Len(); i++ {
		batch, err := src.Batch(i)
		if err != nil {
			return EpochMetrics{}, &dataset.BatchError{Index: i, Err: err}
		}
		if err := batch.Validate(); err != nil {
			return EpochMetrics{}, &dataset.BatchError{Index: i, Err: err}
		}

		loss, weight, err := pn.trainBatch(batch, classWeights, miou)
		if err != nil {
			return EpochMetrics{}, &dataset.BatchError{Index: i, Err: err}
		}
		totalLoss += loss
		totalWeight += weight
		pn.steps++
	}

	avgLoss := 0.0
	if totalWeight > 0 {
		avgLoss = totalLoss / totalWeight
	}
	return EpochMetrics{
		Loss:     avgLoss,
		Accuracy: miou.Accuracy(),
		MeanIoU:  miou.Mean(),
	}, nil
}

// trainBatch runs forward, loss and one optimizer step for a single batch.
// Returns the summed weighted loss and the summed pixel weight.
func (pn *PixelNet) trainBatch(batch *dataset.Batch, classWeights []float64, miou *metrics.MeanIoU) (float64, float64, error) {
	if batch.Channels != pn.channels {
		return 0, 0, fmt.Errorf("batch has %d channels, model expects %d", batch.Channels, pn.channels)
	}
	if batch.Classes != pn.numClasses {
		return 0, 0, fmt.Errorf("batch has %d classes, model expects %d", batch.Classes, pn.numClasses)
	}

	pixels := batch.Pixels()
	truth := batch.TrueClasses()
	scores := pn.Forward(batch)

	stride := pn.channels + 1
	grad := make([]float32, len(pn.weights))
	probs := make([]float64, pn.numClasses)

	var lossSum, weightSum float64
	predicted := make([]int, pixels)

	for i := 0; i < pixels; i++ {
		softmax(scores[i*pn.numClasses:(i+1)*pn.numClasses], probs)

		trueClass := truth[i]
		pixelWeight := 1.0
		if classWeights != nil {
			pixelWeight = classWeights[trueClass]
		}

		if probs[trueClass] > 0 {
			lossSum += -pixelWeight * math.Log(probs[trueClass])
		}
		weightSum += pixelWeight

		maxIdx := 0
		for c := 1; c < pn.numClasses; c++ {
			if probs[c] > probs[maxIdx] {
				maxIdx = c
			}
		}
		predicted[i] = maxIdx

		px := batch.Images[i*batch.Channels : (i+1)*batch.Channels]
		for c := 0; c < pn.numClasses; c++ {
			y := 0.0
			if c == trueClass {
				y = 1.0
			}
			g := float32((probs[c] - y) * pixelWeight)
			base := c * stride
			for k := 0; k < pn.channels; k++ {
				grad[base+k] += g * px[k]
			}
			grad[base+pn.channels] += g
		}
	}

	if err := miou.UpdateLabels(predicted, truth); err != nil {
		return 0, 0, err
	}

	// SGD with momentum, gradients averaged over the batch's pixels.
	lr := float32(pn.opt.LearningRate)
	mom := float32(pn.opt.Momentum)
	scale := float32(1.0) / float32(pixels)
	for j := range pn.weights {
		pn.momentum[j] = mom*pn.momentum[j] - lr*grad[j]*scale
		pn.weights[j] += pn.momentum[j]
	}

	return lossSum, weightSum, nil
}

// Evaluate runs one read-only pass and returns the aggregate metrics. The
// model parameters are not touched.
func (pn *PixelNet) Evaluate(src dataset.BatchSource) (map[string]float64, error) {
	miou := metrics.NewMeanIoU(pn.numClasses)
	var totalLoss float64
	var totalPixels int
	probs := make([]float64, pn.numClasses)

	for i := 0; i < src.Len(); i++ {
		batch, err := src.Batch(i)
		if err != nil {
			return nil, &dataset.BatchError{Index: i, Err: err}
		}
		if err := batch.Validate(); err != nil {
			return nil, &dataset.BatchError{Index: i, Err: err}
		}

		truth := batch.TrueClasses()
		scores := pn.Forward(batch)
		pixels := batch.Pixels()
		predicted := make([]int, pixels)

		for p := 0; p < pixels; p++ {
			softmax(scores[p*pn.numClasses:(p+1)*pn.numClasses], probs)
			if probs[truth[p]] > 0 {
				totalLoss += -math.Log(probs[truth[p]])
			}
			maxIdx := 0
			for c := 1; c < pn.numClasses; c++ {
				if probs[c] > probs[maxIdx] {
					maxIdx = c
				}
			}
			predicted[p] = maxIdx
		}
		totalPixels += pixels

		if err := miou.UpdateLabels(predicted, truth); err != nil {
			return nil, err
		}
	}

	avgLoss := 0.0
	if totalPixels > 0 {
		avgLoss = totalLoss / float64(totalPixels)
	}
	return map[string]float64{
		"loss":     avgLoss,
		"accuracy": miou.Accuracy(),
		"mean_iou": miou.Mean(),
	}, nil
}

// Snapshot captures the current parameters as a checkpoint.
func (pn *PixelNet) Snapshot() *checkpoints.Checkpoint {
	stride := pn.channels + 1
	weights := make([]float32, len(pn.weights))
	copy(weights, pn.weights)
	momentum := make([]float32, len(pn.momentum))
	copy(momentum, pn.momentum)

	return &checkpoints.Checkpoint{
		Spec: checkpoints.ModelSpec{
			Kind:       KindPixelNet,
			NumClasses: pn.numClasses,
			Channels:   pn.channels,
		},
		Weights: []checkpoints.WeightTensor{
			{Name: "classifier.weight", Shape: []int{pn.numClasses, stride}, Data: weights, Type: "weight"},
			{Name: "classifier.momentum", Shape: []int{pn.numClasses, stride}, Data: momentum, Type: "momentum"},
		},
		TrainingState: checkpoints.TrainingState{
			LearningRate: pn.opt.LearningRate,
			Steps:        pn.steps,
		},
	}
}

// Save writes the model to a checkpoint file. The format follows the path
// extension: ".bin" for the binary format, JSON otherwise.
func (pn *PixelNet) Save(path string) error {
	return checkpoints.NewSaver(formatForPath(path)).Save(pn.Snapshot(), path)
}

// restore loads parameters from a checkpoint into the model.
func (pn *PixelNet) restore(cp *checkpoints.Checkpoint) error {
	stride := pn.channels + 1
	expected := pn.numClasses * stride

	for _, w := range cp.Weights {
		var dst []float32
		switch w.Name {
		case "classifier.weight":
			dst = pn.weights
		case "classifier.momentum":
			dst = pn.momentum
		default:
			return fmt.Errorf("unknown weight tensor %q", w.Name)
		}
		if len(w.Data) != expected {
			return fmt.Errorf("tensor %q: expected %d values, got %d", w.Name, expected, len(w.Data))
		}
		copy(dst, w.Data)
	}

	pn.steps = cp.TrainingState.Steps
	if cp.TrainingState.LearningRate > 0 {
		pn.opt.LearningRate = cp.TrainingState.LearningRate
	}
	return nil
}

func formatForPath(path string) checkpoints.CheckpointFormat {
	if filepath.Ext(path) == ".bin" {
		return checkpoints.FormatBinary
	}
	return checkpoints.FormatJSON
}

// softmax fills probs with the numerically stable softmax of scores.
func softmax(scores []float32, probs []float64) {
	maxVal := scores[0]
	for _, s := range scores[1:] {
		if s > maxVal {
			maxVal = s
		}
	}

	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(float64(s - maxVal))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
}
