package model

import (
	"fmt"

	"github.com/tsawler/go-segment/checkpoints"
)

// Factory constructs a model of one registered kind from a checkpoint.
type Factory func(cp *checkpoints.Checkpoint) (Model, error)

// Registry maps stable component identifiers to constructors. Checkpoint
// loading resolves the stored spec kind through this table, so every
// architecture that may appear in a checkpoint must be registered before
// resume.
type Registry map[string]Factory

// DefaultRegistry returns a registry with the built-in model kinds.
func DefaultRegistry() Registry {
	return Registry{
		KindPixelNet: pixelNetFromCheckpoint,
	}
}

// Load reads a checkpoint and reconstructs the model it describes. The
// format follows the path extension. An unregistered kind is a checkpoint
// error: proceeding with a fresh model against a stale registry is a
// correctness risk, so the caller gets the failure instead.
func Load(path string, reg Registry) (Model, error) {
	cp, err := checkpoints.NewSaver(formatForPath(path)).Load(path)
	if err != nil {
		return nil, err
	}

	factory, ok := reg[cp.Spec.Kind]
	if !ok {
		return nil, &checkpoints.CheckpointError{
			Path: path,
			Err:  fmt.Errorf("no factory registered for model kind %q", cp.Spec.Kind),
		}
	}
	return factory(cp)
}

func pixelNetFromCheckpoint(cp *checkpoints.Checkpoint) (Model, error) {
	if cp.Spec.Kind != KindPixelNet {
		return nil, fmt.Errorf("expected kind %q, got %q", KindPixelNet, cp.Spec.Kind)
	}
	if cp.Spec.NumClasses <= 0 || cp.Spec.Channels <= 0 {
		return nil, fmt.Errorf("invalid model spec: %+v", cp.Spec)
	}

	pn := NewPixelNet(cp.Spec.NumClasses, cp.Spec.Channels)
	if err := pn.restore(cp); err != nil {
		return nil, err
	}
	return pn, nil
}
