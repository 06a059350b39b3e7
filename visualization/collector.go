// Package visualization records training progress for offline inspection:
// a per-epoch scalar log in JSON Lines form and PNG renders of predicted
// class maps in the dataset's annotation colors.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tsawler/go-segment/training"
)

// ScalarRecord is one epoch's metrics as a JSON Lines entry. External plot
// tooling consumes the log without any coupling to the training loop.
type ScalarRecord struct {
	Model        string    `json:"model_name"`
	Epoch        int       `json:"epoch"`
	LearningRate float64   `json:"learning_rate"`
	TrainLoss    float64   `json:"train_loss"`
	TrainAcc     float64   `json:"train_accuracy"`
	TrainMeanIoU float64   `json:"train_mean_iou"`
	ValLoss      float64   `json:"val_loss"`
	ValAcc       float64   `json:"val_accuracy"`
	ValMeanIoU   float64   `json:"val_mean_iou"`
	Duration     float64   `json:"duration_seconds"`
	Timestamp    time.Time `json:"timestamp"`
}

// Collector accumulates per-epoch scalar records and appends them to a
// JSON Lines file as they arrive, so a crashed run still leaves a usable
// log of the epochs it completed.
type Collector struct {
	modelName string
	path      string

	mu      sync.Mutex
	records []ScalarRecord
}

// NewCollector creates a collector writing to {dir}/{modelName}_scalars.jsonl.
func NewCollector(modelName, dir string) (*Collector, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}
	return &Collector{
		modelName: modelName,
		path:      filepath.Join(dir, modelName+"_scalars.jsonl"),
	}, nil
}

// Record appends one epoch's metrics to the in-memory history and to the
// log file.
func (c *Collector) Record(report training.EpochReport) error {
	record := ScalarRecord{
		Model:        c.modelName,
		Epoch:        report.Epoch,
		LearningRate: report.LearningRate,
		TrainLoss:    report.Train.Loss,
		TrainAcc:     report.Train.Accuracy,
		TrainMeanIoU: report.Train.MeanIoU,
		ValLoss:      report.Validation.Loss,
		ValAcc:       report.Validation.Accuracy,
		ValMeanIoU:   report.Validation.MeanIoU,
		Duration:     report.Duration.Seconds(),
		Timestamp:    time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode scalar record: %v", err)
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open scalar log: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append scalar record: %v", err)
	}
	return nil
}

// Records returns the records collected so far.
func (c *Collector) Records() []ScalarRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ScalarRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Path returns the scalar log file path.
func (c *Collector) Path() string {
	return c.path
}

// EpochHook adapts the collector to the orchestrator's hook interface.
func (c *Collector) EpochHook() training.EpochHook {
	return func(report training.EpochReport) error {
		return c.Record(report)
	}
}

// LoadScalars reads a JSON Lines scalar log back into records.
func LoadScalars(path string) ([]ScalarRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scalar log: %v", err)
	}

	var records []ScalarRecord
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var record ScalarRecord
		if err := decoder.Decode(&record); err != nil {
			return nil, fmt.Errorf("malformed scalar log %s: %v", path, err)
		}
		records = append(records, record)
	}
	return records, nil
}
