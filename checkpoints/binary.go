package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// The binary format stores the checkpoint as a protobuf-marshaled
// structpb.Struct. The structure mirrors the JSON form exactly, so the two
// formats stay interchangeable field for field.

func (s *Saver) saveBinary(checkpoint *Checkpoint, path string) error {
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to encode checkpoint: %v", err)}
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to restructure checkpoint: %v", err)}
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to build checkpoint struct: %v", err)}
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to marshal checkpoint: %v", err)}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	return nil
}

func (s *Saver) loadBinary(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CheckpointError{Path: path, Err: err}
	}

	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to unmarshal checkpoint: %v", err)}
	}

	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to restructure checkpoint: %v", err)}
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(raw, &checkpoint); err != nil {
		return nil, &CheckpointError{Path: path, Err: fmt.Errorf("failed to decode checkpoint: %v", err)}
	}
	return &checkpoint, nil
}
