package training

import "math"

// LRSchedule defines a learning rate scheduling strategy. Schedules are
// pure functions of the epoch so a resumed run reproduces the exact
// schedule of a fresh run started at the same epoch.
type LRSchedule interface {
	// GetLR returns the learning rate for the given epoch.
	GetLR(epoch int, baseLR float64) float64

	// GetName returns the schedule name for logging.
	GetName() string
}

// StepDecaySchedule reduces the learning rate by a multiplicative factor
// every DecayEpochs epochs: lr = baseLR * Decay^(epoch / DecayEpochs).
// The integer division makes this a staircase, not a continuous decay.
type StepDecaySchedule struct {
	DecayEpochs int     // Epochs between reductions
	Decay       float64 // Multiplicative decay factor
}

// NewStepDecaySchedule creates a staircase decay schedule.
func NewStepDecaySchedule(decayEpochs int, decay float64) *StepDecaySchedule {
	if decayEpochs <= 0 {
		decayEpochs = 100
	}
	if decay <= 0 || decay > 1 {
		decay = 0.1
	}
	return &StepDecaySchedule{
		DecayEpochs: decayEpochs,
		Decay:       decay,
	}
}

func (s *StepDecaySchedule) GetLR(epoch int, baseLR float64) float64 {
	times := epoch / s.DecayEpochs
	return baseLR * math.Pow(s.Decay, float64(times))
}

func (s *StepDecaySchedule) GetName() string {
	return "StepDecay"
}

// ConstantSchedule maintains a constant learning rate.
type ConstantSchedule struct{}

func (s *ConstantSchedule) GetLR(epoch int, baseLR float64) float64 {
	return baseLR
}

func (s *ConstantSchedule) GetName() string {
	return "Constant"
}
