package config

import "fmt"

// ConfigurationError reports an unrecognized option value. It is raised
// during validation, before any dataset pass begins.
type ConfigurationError struct {
	Option string
	Value  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unrecognized value %q for option %q", e.Value, e.Option)
}

// Config holds the recognized training options.
type Config struct {
	Mode string // "train"

	// Hyperparameters
	BatchSize     int
	Epochs        int
	InitialEpoch  int
	LearningRate  float64
	LRDecay       float64
	LRDecayEpochs int

	// Dataset
	Dataset          string // "camvid"
	DatasetDir       string
	Weighing         string // "enet", "mfb", "none"
	IgnoreUnlabelled bool

	// Settings
	Workers int
	Verbose int // 0 silent, 1 progress bar, 2 one line per epoch

	// Storage
	Name    string
	SaveDir string
	Resume  bool
}

// Default returns a configuration matching the documented option defaults.
func Default() Config {
	return Config{
		Mode:             "train",
		BatchSize:        10,
		Epochs:           300,
		InitialEpoch:     0,
		LearningRate:     5e-4,
		LRDecay:          0.1,
		LRDecayEpochs:    100,
		Dataset:          "camvid",
		DatasetDir:       "data/CamVid",
		Weighing:         "enet",
		IgnoreUnlabelled: true,
		Workers:          4,
		Verbose:          1,
		Name:             "LinkNet",
		SaveDir:          "checkpoints",
	}
}

// Validate checks every enumerated option and returns a ConfigurationError
// for the first unrecognized value.
func (c *Config) Validate() error {
	if c.Mode != "train" {
		return &ConfigurationError{Option: "mode", Value: c.Mode}
	}
	if c.Dataset != "camvid" {
		return &ConfigurationError{Option: "dataset", Value: c.Dataset}
	}
	switch c.Weighing {
	case "enet", "mfb", "none":
	default:
		return &ConfigurationError{Option: "weighing", Value: c.Weighing}
	}
	if c.Verbose < 0 || c.Verbose > 2 {
		return &ConfigurationError{Option: "verbose", Value: fmt.Sprintf("%d", c.Verbose)}
	}
	if c.BatchSize <= 0 {
		return &ConfigurationError{Option: "batch_size", Value: fmt.Sprintf("%d", c.BatchSize)}
	}
	if c.Epochs <= 0 {
		return &ConfigurationError{Option: "epochs", Value: fmt.Sprintf("%d", c.Epochs)}
	}
	if c.LRDecayEpochs <= 0 {
		return &ConfigurationError{Option: "lr_decay_epochs", Value: fmt.Sprintf("%d", c.LRDecayEpochs)}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}
