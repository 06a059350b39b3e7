// Package training drives the epoch loop for segmentation models: learning
// rate scheduling, per-epoch training and validation passes, checkpoint
// resume and held-out evaluation.
package training

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tsawler/go-segment/dataset"
	"github.com/tsawler/go-segment/metrics"
	"github.com/tsawler/go-segment/model"
)

// State tracks orchestrator progress through a run.
type State int

const (
	Idle State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DataIntegrityError reports a malformed batch encountered mid-run. It
// aborts the run: silently skipping corrupt samples would corrupt the
// confusion matrix and the loss statistics, so the failure surfaces with
// enough context to reproduce.
type DataIntegrityError struct {
	Epoch int
	Batch int
	Err   error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("epoch %d, batch %d: %v", e.Epoch, e.Batch, e.Err)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// Config holds the orchestrator's run parameters.
type Config struct {
	Epochs       int // Exclusive upper epoch bound
	InitialEpoch int // First epoch to run; supplied by the caller on resume

	LearningRate float64    // Base learning rate before decay
	Schedule     LRSchedule // nil means constant

	// ClassWeights scales each pixel's loss by its true class. nil means
	// uniform weighting.
	ClassWeights []float64

	Verbose int // 0 silent, 1 progress bar over epochs, 2 one line per epoch
}

// EpochReport carries the metrics of one completed epoch.
type EpochReport struct {
	Epoch        int
	LearningRate float64
	Train        model.EpochMetrics
	Validation   model.EpochMetrics
	Duration     time.Duration
}

// EpochHook observes completed epochs. Used by the visualization layer to
// log scalars and render predictions; a hook error aborts the run.
type EpochHook func(report EpochReport) error

// Orchestrator drives discrete epochs over [InitialEpoch, Epochs): applies
// the LR schedule, runs one training pass and one validation pass per
// epoch, and forwards reports to registered hooks.
type Orchestrator struct {
	model    model.Model
	trainSrc dataset.BatchSource
	valSrc   dataset.BatchSource
	config   Config

	state   State
	miou    *metrics.MeanIoU
	hooks   []EpochHook
	reports []EpochReport
}

// NewOrchestrator creates an orchestrator. The model may be fresh or
// restored from a checkpoint; resume is expressed solely through
// config.InitialEpoch, never detected from the model.
func NewOrchestrator(m model.Model, trainSrc, valSrc dataset.BatchSource, config Config) (*Orchestrator, error) {
	if m == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if trainSrc == nil {
		return nil, fmt.Errorf("training source cannot be nil")
	}
	if config.Epochs <= config.InitialEpoch {
		return nil, fmt.Errorf("epochs %d must exceed initial epoch %d", config.Epochs, config.InitialEpoch)
	}
	if config.Schedule == nil {
		config.Schedule = &ConstantSchedule{}
	}

	return &Orchestrator{
		model:    m,
		trainSrc: trainSrc,
		valSrc:   valSrc,
		config:   config,
		state:    Idle,
		miou:     metrics.NewMeanIoU(trainSrc.NumClasses()),
	}, nil
}

// AddEpochHook registers a hook invoked after every completed epoch.
func (o *Orchestrator) AddEpochHook(hook EpochHook) {
	o.hooks = append(o.hooks, hook)
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Reports returns the per-epoch reports accumulated so far.
func (o *Orchestrator) Reports() []EpochReport {
	return o.reports
}

// Run executes the training loop to completion or first failure. There is
// no per-batch retry and no state rollback on error; the caller re-invokes
// with a prior checkpoint if needed.
func (o *Orchestrator) Run() ([]EpochReport, error) {
	o.state = Running

	var bar *ProgressBar
	if o.config.Verbose == 1 {
		bar = NewProgressBar("Training", o.config.Epochs-o.config.InitialEpoch)
	}

	for epoch := o.config.InitialEpoch; epoch < o.config.Epochs; epoch++ {
		start := time.Now()

		// Staircase decay is applied before the epoch's batches.
		lr := o.config.Schedule.GetLR(epoch, o.config.LearningRate)
		o.model.SetLearningRate(lr)

		trainMetrics, err := o.model.FitOneEpoch(o.trainSrc, o.config.ClassWeights)
		if err != nil {
			o.state = Idle
			return o.reports, wrapBatchError(epoch, err)
		}

		var valMetrics model.EpochMetrics
		if o.valSrc != nil {
			valMetrics, err = o.validationPass()
			if err != nil {
				o.state = Idle
				return o.reports, wrapBatchError(epoch, err)
			}
		}

		report := EpochReport{
			Epoch:        epoch,
			LearningRate: lr,
			Train:        trainMetrics,
			Validation:   valMetrics,
			Duration:     time.Since(start),
		}
		o.reports = append(o.reports, report)

		for _, hook := range o.hooks {
			if err := hook(report); err != nil {
				o.state = Idle
				return o.reports, fmt.Errorf("epoch %d hook failed: %v", epoch, err)
			}
		}

		switch o.config.Verbose {
		case 1:
			bar.Update(epoch-o.config.InitialEpoch+1, map[string]float64{
				"loss":     report.Train.Loss,
				"val_miou": report.Validation.MeanIoU,
			})
		case 2:
			o.printEpochSummary(report)
		}
	}

	if bar != nil {
		bar.Finish()
	}
	o.state = Completed
	return o.reports, nil
}

// validationPass runs one full pass over the validation source through the
// shared mean-IoU metric, read-only with respect to model parameters.
func (o *Orchestrator) validationPass() (model.EpochMetrics, error) {
	loss, err := scorePass(o.model, o.valSrc, o.miou)
	if err != nil {
		return model.EpochMetrics{}, err
	}
	return model.EpochMetrics{
		Loss:     loss,
		Accuracy: o.miou.Accuracy(),
		MeanIoU:  o.miou.Mean(),
	}, nil
}

func (o *Orchestrator) printEpochSummary(report EpochReport) {
	fmt.Printf("Epoch %d/%d: lr=%.2e, Train Loss=%.4f, Train Acc=%.2f%%, Train mIoU=%.4f",
		report.Epoch+1, o.config.Epochs, report.LearningRate,
		report.Train.Loss, report.Train.Accuracy*100, report.Train.MeanIoU)
	if o.valSrc != nil {
		fmt.Printf(", Val Loss=%.4f, Val Acc=%.2f%%, Val mIoU=%.4f",
			report.Validation.Loss, report.Validation.Accuracy*100, report.Validation.MeanIoU)
	}
	fmt.Printf(", Time=%v\n", report.Duration)
}

// scorePass resets the metric, then streams every batch of src through
// model.Predict, accumulating the confusion matrix and the cross-entropy
// loss. Returns the per-pixel average loss.
func scorePass(m model.Model, src dataset.BatchSource, miou *metrics.MeanIoU) (float64, error) {
	miou.Reset()

	var totalLoss float64
	var totalPixels int

	for i := 0; i < src.Len(); i++ {
		batch, err := src.Batch(i)
		if err != nil {
			return 0, &dataset.BatchError{Index: i, Err: err}
		}
		if err := batch.Validate(); err != nil {
			return 0, &dataset.BatchError{Index: i, Err: err}
		}

		scores, err := m.Predict(batch)
		if err != nil {
			return 0, &dataset.BatchError{Index: i, Err: err}
		}

		pixels := batch.Pixels()
		if err := miou.UpdateScores(scores, batch.Labels, pixels); err != nil {
			return 0, &dataset.BatchError{Index: i, Err: err}
		}

		totalLoss += crossEntropy(scores, batch.TrueClasses(), batch.Classes)
		totalPixels += pixels
	}

	if totalPixels == 0 {
		return 0, nil
	}
	return totalLoss / float64(totalPixels), nil
}

// crossEntropy sums the per-pixel categorical cross-entropy of raw scores
// against true class ids.
func crossEntropy(scores []float32, truth []int, numClasses int) float64 {
	var sum float64
	for i, trueClass := range truth {
		row := scores[i*numClasses : (i+1)*numClasses]

		maxVal := row[0]
		for _, s := range row[1:] {
			if s > maxVal {
				maxVal = s
			}
		}
		var denom float64
		for _, s := range row {
			denom += math.Exp(float64(s - maxVal))
		}
		sum += math.Log(denom) - float64(row[trueClass]-maxVal)
	}
	return sum
}

// wrapBatchError attaches epoch context to a failed pass. Batch-level
// failures keep their index; anything else reports batch -1.
func wrapBatchError(epoch int, err error) error {
	var batchErr *dataset.BatchError
	if errors.As(err, &batchErr) {
		return &DataIntegrityError{Epoch: epoch, Batch: batchErr.Index, Err: batchErr.Err}
	}
	return &DataIntegrityError{Epoch: epoch, Batch: -1, Err: err}
}
