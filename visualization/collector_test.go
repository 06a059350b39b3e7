package visualization

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tsawler/go-segment/model"
	"github.com/tsawler/go-segment/training"
)

func sampleReport(epoch int) training.EpochReport {
	return training.EpochReport{
		Epoch:        epoch,
		LearningRate: 0.5,
		Train:        model.EpochMetrics{Loss: 0.25, Accuracy: 0.875, MeanIoU: 0.75},
		Validation:   model.EpochMetrics{Loss: 0.5, Accuracy: 0.75, MeanIoU: 0.5},
		Duration:     2 * time.Second,
	}
}

func TestCollectorAppendsRecords(t *testing.T) {
	c, err := NewCollector("LinkNet", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for epoch := 0; epoch < 3; epoch++ {
		if err := c.Record(sampleReport(epoch)); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	records := c.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].Epoch != 1 {
		t.Errorf("expected epoch 1, got %d", records[1].Epoch)
	}
	if records[0].Model != "LinkNet" {
		t.Errorf("expected model name LinkNet, got %s", records[0].Model)
	}
	if records[0].TrainLoss != 0.25 || records[0].ValMeanIoU != 0.5 {
		t.Errorf("record does not match report: %+v", records[0])
	}
}

func TestCollectorLogSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector("LinkNet", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for epoch := 0; epoch < 2; epoch++ {
		if err := c.Record(sampleReport(epoch)); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	loaded, err := LoadScalars(c.Path())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 loaded records, got %d", len(loaded))
	}
	if loaded[1].Epoch != 1 || loaded[1].LearningRate != 0.5 {
		t.Errorf("loaded record does not match: %+v", loaded[1])
	}
}

func TestCollectorAppendsAcrossResume(t *testing.T) {
	dir := t.TempDir()

	first, err := NewCollector("LinkNet", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.Record(sampleReport(0)); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// A resumed run creates a fresh collector over the same directory and
	// must not truncate the earlier epochs.
	second, err := NewCollector("LinkNet", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := second.Record(sampleReport(1)); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	loaded, err := LoadScalars(second.Path())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected both runs' records, got %d", len(loaded))
	}
}

func TestCollectorEpochHook(t *testing.T) {
	c, err := NewCollector("LinkNet", t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hook := c.EpochHook()
	if err := hook(sampleReport(0)); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if len(c.Records()) != 1 {
		t.Errorf("expected hook to record one epoch, got %d", len(c.Records()))
	}
}

func TestLoadScalarsMissingFile(t *testing.T) {
	if _, err := LoadScalars(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Error("expected error for missing scalar log")
	}
}
