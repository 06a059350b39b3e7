// Package model defines the trainable model handle consumed by the
// training orchestrator, the factory registry used to reconstruct models
// from checkpoints, and a per-pixel reference classifier.
package model

import (
	"github.com/tsawler/go-segment/dataset"
)

// Optimizer configures the gradient update applied during FitOneEpoch.
type Optimizer struct {
	LearningRate float64
	Momentum     float64
}

// EpochMetrics reports the aggregate metrics of one full pass.
type EpochMetrics struct {
	Loss     float64
	Accuracy float64
	MeanIoU  float64
}

// Model is the trainable collaborator driven by the orchestrator.
//
// FitOneEpoch streams the source once and applies one optimizer step per
// batch. classWeights, when non-nil, scales each pixel's loss contribution
// by the weight indexed by the pixel's true class; implementations must
// honor this dense per-pixel weighting contract. A nil classWeights means
// uniform weighting.
//
// Evaluate and Predict are read-only: they must not mutate model
// parameters.
type Model interface {
	Compile(opt Optimizer, loss string) error
	SetLearningRate(lr float64)
	FitOneEpoch(src dataset.BatchSource, classWeights []float64) (EpochMetrics, error)
	Evaluate(src dataset.BatchSource) (map[string]float64, error)
	Predict(batch *dataset.Batch) ([]float32, error)
	Save(path string) error
}
