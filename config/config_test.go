package config

import (
	"errors"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		option string
	}{
		{"UnknownMode", func(c *Config) { c.Mode = "predict" }, "mode"},
		{"UnknownDataset", func(c *Config) { c.Dataset = "cityscapes" }, "dataset"},
		{"UnknownWeighing", func(c *Config) { c.Weighing = "inverse" }, "weighing"},
		{"BadVerbose", func(c *Config) { c.Verbose = 3 }, "verbose"},
		{"ZeroBatch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"ZeroEpochs", func(c *Config) { c.Epochs = 0 }, "epochs"},
		{"ZeroDecayEpochs", func(c *Config) { c.LRDecayEpochs = 0 }, "lr_decay_epochs"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigurationError, got %T", err)
			}
			if cfgErr.Option != test.option {
				t.Errorf("expected option %q, got %q", test.option, cfgErr.Option)
			}
		})
	}
}

func TestValidateClampsWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 1 {
		t.Errorf("expected workers clamped to 1, got %d", cfg.Workers)
	}
}
