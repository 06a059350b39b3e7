package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/tsawler/go-segment/checkpoints"
	"github.com/tsawler/go-segment/config"
	"github.com/tsawler/go-segment/dataset"
	"github.com/tsawler/go-segment/model"
	"github.com/tsawler/go-segment/training"
	"github.com/tsawler/go-segment/visualization"
	"github.com/tsawler/go-segment/weighing"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "run mode (train)")
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "samples per batch")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "exclusive upper epoch bound")
	flag.IntVar(&cfg.InitialEpoch, "initial-epoch", cfg.InitialEpoch, "first epoch to run (set when resuming)")
	flag.Float64Var(&cfg.LearningRate, "learning-rate", cfg.LearningRate, "base learning rate")
	flag.Float64Var(&cfg.LRDecay, "lr-decay", cfg.LRDecay, "decay factor per decay period")
	flag.IntVar(&cfg.LRDecayEpochs, "lr-decay-epochs", cfg.LRDecayEpochs, "epochs per decay period")
	flag.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "dataset name (camvid)")
	flag.StringVar(&cfg.DatasetDir, "dataset-dir", cfg.DatasetDir, "dataset root directory")
	flag.StringVar(&cfg.Weighing, "weighing", cfg.Weighing, "class weighing method (enet, mfb, none)")
	flag.BoolVar(&cfg.IgnoreUnlabelled, "ignore-unlabelled", cfg.IgnoreUnlabelled, "force the unlabelled class weight to 0")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "batch loading workers")
	flag.IntVar(&cfg.Verbose, "verbose", cfg.Verbose, "verbosity (0 silent, 1 progress bar, 2 per-epoch lines)")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "model name, used in checkpoint and log paths")
	flag.StringVar(&cfg.SaveDir, "save-dir", cfg.SaveDir, "checkpoint directory")
	flag.BoolVar(&cfg.Resume, "resume", cfg.Resume, "restore the model from its checkpoint before training")

	var (
		height     = flag.Int("height", 360, "input height after resize")
		width      = flag.Int("width", 480, "input width after resize")
		momentum   = flag.Float64("momentum", 0.9, "SGD momentum")
		formatName = flag.String("checkpoint-format", "json", "checkpoint format (json, binary)")
	)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	method, err := weighing.ParseMethod(cfg.Weighing)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var format checkpoints.CheckpointFormat
	switch *formatName {
	case "json":
		format = checkpoints.FormatJSON
	case "binary":
		format = checkpoints.FormatBinary
	default:
		log.Fatalf("Invalid configuration: %v", &config.ConfigurationError{Option: "checkpoint-format", Value: *formatName})
	}

	if err := run(cfg, method, format, *height, *width, *momentum); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

func run(cfg config.Config, method weighing.Method, format checkpoints.CheckpointFormat, height, width int, momentum float64) error {
	trainData, err := dataset.NewCamVid(cfg.DatasetDir, "train", cfg.BatchSize, height, width)
	if err != nil {
		return fmt.Errorf("failed to open training split: %v", err)
	}
	valData, err := dataset.NewCamVid(cfg.DatasetDir, "val", cfg.BatchSize, height, width)
	if err != nil {
		return fmt.Errorf("failed to open validation split: %v", err)
	}

	numClasses := trainData.NumClasses()
	fmt.Printf("Dataset: %s (%d train batches, %d val batches, %d classes)\n",
		cfg.Dataset, trainData.Len(), valData.Len(), numClasses)

	// The weighing pass streams the whole training split once through the
	// worker pool before any training happens.
	fmt.Printf("Computing %s class weights...\n", method)
	weights, err := weighing.Compute(dataset.NewPrefetcher(trainData, cfg.Workers, cfg.Workers), numClasses, method)
	if err != nil {
		return fmt.Errorf("class weighing failed: %v", err)
	}
	if cfg.IgnoreUnlabelled {
		weighing.ApplyIgnoreUnlabelled(weights)
	}
	for c, w := range weights {
		fmt.Printf("  %-12s %.4f\n", trainData.ColorEncoding()[c].Name, w)
	}

	checkpointPath := checkpoints.Path(cfg.SaveDir, cfg.Name, format)
	var m model.Model
	if cfg.Resume {
		m, err = model.Load(checkpointPath, model.DefaultRegistry())
		if err != nil {
			return fmt.Errorf("failed to restore %s: %v", checkpointPath, err)
		}
		fmt.Printf("Restored model from %s\n", checkpointPath)
	} else {
		m = model.NewPixelNet(numClasses, 3)
	}
	if err := m.Compile(model.Optimizer{LearningRate: cfg.LearningRate, Momentum: momentum}, "categorical_crossentropy"); err != nil {
		return fmt.Errorf("failed to compile model: %v", err)
	}

	orchestrator, err := training.NewOrchestrator(m, trainData, valData, training.Config{
		Epochs:       cfg.Epochs,
		InitialEpoch: cfg.InitialEpoch,
		LearningRate: cfg.LearningRate,
		Schedule:     training.NewStepDecaySchedule(cfg.LRDecayEpochs, cfg.LRDecay),
		ClassWeights: weights,
		Verbose:      cfg.Verbose,
	})
	if err != nil {
		return err
	}

	runDir := filepath.Join(cfg.SaveDir, cfg.Name)
	collector, err := visualization.NewCollector(cfg.Name, runDir)
	if err != nil {
		return err
	}
	orchestrator.AddEpochHook(collector.EpochHook())

	if valData.Len() > 0 {
		sample, err := valData.Batch(0)
		if err != nil {
			return fmt.Errorf("failed to load render sample: %v", err)
		}
		renderer, err := visualization.NewPredictionRenderer(filepath.Join(runDir, "predictions"), sample, valData.ColorEncoding(), m.Predict)
		if err != nil {
			return err
		}
		orchestrator.AddEpochHook(func(report training.EpochReport) error {
			if (report.Epoch+1)%10 == 0 || report.Epoch == cfg.Epochs-1 {
				return renderer.RenderEpoch(report.Epoch)
			}
			return nil
		})
	}

	if _, err := orchestrator.Run(); err != nil {
		return err
	}

	if err := m.Save(checkpointPath); err != nil {
		return fmt.Errorf("failed to save checkpoint: %v", err)
	}
	fmt.Printf("Saved model to %s\n", checkpointPath)
	fmt.Printf("Scalar log at %s\n", collector.Path())

	testData, err := dataset.NewCamVid(cfg.DatasetDir, "test", cfg.BatchSize, height, width)
	if err != nil {
		fmt.Printf("Skipping held-out evaluation: %v\n", err)
		return nil
	}

	fmt.Println("Evaluating on the test split...")
	runner := training.NewEvaluationRunner(m, numClasses)
	results, err := runner.Run(testData)
	if err != nil {
		return fmt.Errorf("evaluation failed: %v", err)
	}
	printMetrics(results, trainData.ColorEncoding())
	return nil
}

func printMetrics(results map[string]float64, encoding []dataset.ClassColor) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		label := name
		// Per-class entries are keyed iou_<id>; show the class name too.
		var id int
		if n, _ := fmt.Sscanf(name, "iou_%d", &id); n == 1 && id < len(encoding) {
			label = fmt.Sprintf("%s (%s)", name, encoding[id].Name)
		}
		fmt.Printf("  %-24s %.4f\n", label, results[name])
	}
}
