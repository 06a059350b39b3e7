// Package checkpoints persists and restores model snapshots. A checkpoint
// carries the model spec (enough to reconstruct the architecture through a
// factory registry), the weight tensors and the training state at save
// time. One file per named model, overwritten on each save.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointFormat defines the serialization format.
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatBinary
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Ext returns the file extension used by the format.
func (cf CheckpointFormat) Ext() string {
	if cf == FormatBinary {
		return "bin"
	}
	return "json"
}

// CheckpointError reports a missing or incompatible checkpoint. Fatal on
// resume: falling back to a fresh model would silently mix stale component
// registrations with new parameters.
type CheckpointError struct {
	Path string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// ModelSpec identifies the architecture stored in a checkpoint. Kind is the
// stable component identifier resolved through the factory registry at load
// time.
type ModelSpec struct {
	Kind       string `json:"kind"`
	NumClasses int    `json:"num_classes"`
	Channels   int    `json:"channels"`
}

// WeightTensor is one named parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Type  string    `json:"type"` // "weight", "bias", "momentum", ...
}

// TrainingState captures the training progress at save time. The stored
// epoch is informational: resume restarts at the caller-supplied initial
// epoch, never at this value.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	LearningRate float64 `json:"learning_rate"`
	Steps        int     `json:"steps"`
}

// CheckpointMetadata contains checkpoint provenance.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Checkpoint is a complete serialized model snapshot.
type Checkpoint struct {
	Spec          ModelSpec          `json:"spec"`
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// Path returns the checkpoint path convention
// {saveDir}/{name}/{name}.{ext} for a named model.
func Path(saveDir, name string, format CheckpointFormat) string {
	return filepath.Join(saveDir, name, name+"."+format.Ext())
}

// Saver handles saving and loading checkpoints in a fixed format.
type Saver struct {
	format CheckpointFormat
}

// NewSaver creates a checkpoint saver for the specified format.
func NewSaver(format CheckpointFormat) *Saver {
	return &Saver{format: format}
}

// Save writes a checkpoint, creating parent directories as needed and
// overwriting any previous file at the path.
func (s *Saver) Save(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-segment"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &CheckpointError{Path: path, Err: err}
	}

	switch s.format {
	case FormatJSON:
		return s.saveJSON(checkpoint, path)
	case FormatBinary:
		return s.saveBinary(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

// Load reads a checkpoint from disk.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	switch s.format {
	case FormatJSON:
		return s.loadJSON(path)
	case FormatBinary:
		return s.loadBinary(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

func (s *Saver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to encode checkpoint: %v", err)}
	}
	return nil
}

func (s *Saver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &CheckpointError{Path: path, Err: err}
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to decode checkpoint: %v", err)}
	}
	return &checkpoint, nil
}
