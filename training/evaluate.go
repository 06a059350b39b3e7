package training

import (
	"fmt"

	"github.com/tsawler/go-segment/dataset"
	"github.com/tsawler/go-segment/metrics"
	"github.com/tsawler/go-segment/model"
)

// MetricFunc derives a scalar from the accumulated confusion matrix.
type MetricFunc func(m *metrics.MeanIoU) float64

// EvaluationRunner runs one full held-out pass through a fresh mean-IoU
// accumulation and reports aggregate metrics. The pass is read-only with
// respect to model parameters.
type EvaluationRunner struct {
	model model.Model
	miou  *metrics.MeanIoU
	extra map[string]MetricFunc
}

// NewEvaluationRunner creates a runner for the given model and class count.
func NewEvaluationRunner(m model.Model, numClasses int) *EvaluationRunner {
	return &EvaluationRunner{
		model: m,
		miou:  metrics.NewMeanIoU(numClasses),
		extra: make(map[string]MetricFunc),
	}
}

// Register adds a named scalar metric computed from the confusion matrix
// after the pass completes.
func (r *EvaluationRunner) Register(name string, fn MetricFunc) {
	r.extra[name] = fn
}

// Run streams every batch of src once and returns the metric mapping:
// "loss", "accuracy", "mean_iou", per-class "iou_<id>" entries and any
// registered extras.
func (r *EvaluationRunner) Run(src dataset.BatchSource) (map[string]float64, error) {
	loss, err := scorePass(r.model, src, r.miou)
	if err != nil {
		return nil, wrapBatchError(0, err)
	}

	perClass, mean := r.miou.Result()
	results := map[string]float64{
		"loss":     loss,
		"accuracy": r.miou.Accuracy(),
		"mean_iou": mean,
	}
	for c, iou := range perClass {
		results[fmt.Sprintf("iou_%d", c)] = iou
	}
	for name, fn := range r.extra {
		results[name] = fn(r.miou)
	}
	return results, nil
}

// Matrix exposes the accumulated confusion matrix of the last run, for
// reporting and round-trip verification.
func (r *EvaluationRunner) Matrix() [][]int64 {
	return r.miou.Matrix
}
