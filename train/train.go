// Package train fits a segmentation model against batch generators,
// logging per-epoch metrics and writing independent checkpoints.
package train

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/device"
	"github.com/sugarme/maskrefine/model"
)

// Defaults of Config.
const (
	DefaultEpochs        = 30
	DefaultStepsPerEpoch = 500
	DefaultValSteps      = 100
	DefaultPrefix        = "maskrefine"
	DefaultLogDir        = "logs"
)

// TimeFormat stamps history file names.
const TimeFormat = "2006-01-02_15-04-05"

// Model is what Train needs from a model.
type Model interface {
	TrainStep(x, y *ts.Tensor) (model.StepMetrics, error)
	EvalStep(x, y *ts.Tensor) (model.StepMetrics, error)
	SaveWeights(path string) error
}

// Config configures Train. Zero values take the defaults.
type Config struct {
	Epochs        int
	StepsPerEpoch int
	ValSteps      int
	LogDir        string
	Prefix        string
	Logger        zerolog.Logger
	Now           func() time.Time
}

func (c *Config) setDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = DefaultEpochs
	}
	if c.StepsPerEpoch <= 0 {
		c.StepsPerEpoch = DefaultStepsPerEpoch
	}
	if c.ValSteps <= 0 {
		c.ValSteps = DefaultValSteps
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// HistoryPath returns the history file of a run started at start.
func HistoryPath(logDir, prefix string, start time.Time) string {
	return filepath.Join(logDir, fmt.Sprintf("%s_history_%s.csv", prefix, start.Format(TimeFormat)))
}

// CheckpointPath returns the checkpoint of an epoch (1-based).
func CheckpointPath(logDir, prefix string, epoch int, valLoss float64) string {
	return filepath.Join(logDir, fmt.Sprintf("%s_weights__%02d__%.2f.gt", prefix, epoch, valLoss))
}

// StepError reports the step at which training failed.
type StepError struct {
	Epoch int
	Step  int
	Phase string // "train" or "val"
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("epoch %d %s step %d: %v", e.Epoch, e.Phase, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Train runs config.Epochs epochs. Each epoch takes StepsPerEpoch batches
// from trainGen for gradient updates, then resets valGen and evaluates
// ValSteps batches. After every epoch the history file is rewritten and a
// checkpoint saved.
//
// A batch that does not fit the model aborts training with a *StepError.
// ctx is checked between epochs only; on cancellation the history so far
// is returned with ctx's error.
func Train(ctx context.Context, m Model, trainGen, valGen Generator, config Config) (History, error) {
	config.setDefaults()

	start := config.Now()
	runID := uuid.New().String()
	historyPath := HistoryPath(config.LogDir, config.Prefix, start)
	logger := config.Logger.With().Str("component", "train").Str("run", runID).Logger()

	logger.Info().
		Int("epochs", config.Epochs).
		Int("steps", config.StepsPerEpoch).
		Int("val_steps", config.ValSteps).
		Str("history", historyPath).
		Msg("training started")

	var history History
	for epoch := 1; epoch <= config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("epoch", epoch).Msg("training cancelled")
			return history, err
		}

		epochStart := time.Now()

		trainMean, err := runPhase(epoch, "train", config.StepsPerEpoch, trainGen, m.TrainStep)
		if err != nil {
			return history, err
		}

		if err := valGen.Reset(); err != nil {
			return history, &StepError{Epoch: epoch, Phase: "val", Err: fmt.Errorf("reset generator: %w", err)}
		}
		valMean, err := runPhase(epoch, "val", config.ValSteps, valGen, m.EvalStep)
		if err != nil {
			return history, err
		}

		rec := Record{
			Epoch:                 epoch,
			Loss:                  trainMean.Loss,
			BinaryAccuracy:        trainMean.Accuracy,
			BinaryCrossEntropy:    trainMean.CrossEntropy,
			Dice:                  trainMean.Dice,
			ValLoss:               valMean.Loss,
			ValBinaryAccuracy:     valMean.Accuracy,
			ValBinaryCrossEntropy: valMean.CrossEntropy,
			ValDice:               valMean.Dice,
			Seconds:               time.Since(epochStart).Seconds(),
		}
		history = append(history, rec)

		if err := WriteHistory(historyPath, history); err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		ckpt := CheckpointPath(config.LogDir, config.Prefix, epoch, rec.ValLoss)
		if err := m.SaveWeights(ckpt); err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		event := logger.Info().
			Int("epoch", epoch).
			Float64("loss", rec.Loss).
			Float64("binary_accuracy", rec.BinaryAccuracy).
			Float64("val_loss", rec.ValLoss).
			Float64("val_binary_accuracy", rec.ValBinaryAccuracy).
			Float64("val_dice", rec.ValDice).
			Dur("took", time.Since(epochStart)).
			Str("checkpoint", ckpt)
		if mem, err := device.MemInfo(); err == nil {
			event = event.Float64("used_ram_mib", device.MiB(mem.UsedRAM()))
		}
		event.Msg("epoch done")
	}

	return history, nil
}

type stepFunc func(x, y *ts.Tensor) (model.StepMetrics, error)

// runPhase pulls n batches from gen, one per step, and averages metrics.
func runPhase(epoch int, phase string, n int, gen Generator, step stepFunc) (model.StepMetrics, error) {
	var sum model.StepMetrics
	for i := 1; i <= n; i++ {
		b, err := gen.Next()
		if err != nil {
			return sum, &StepError{Epoch: epoch, Step: i, Phase: phase, Err: err}
		}
		sm, err := step(b.Input, b.Target)
		b.Drop()
		if err != nil {
			return sum, &StepError{Epoch: epoch, Step: i, Phase: phase, Err: err}
		}
		if math.IsNaN(sm.Loss) {
			return sum, &StepError{Epoch: epoch, Step: i, Phase: phase, Err: fmt.Errorf("loss is NaN")}
		}

		sum.Loss += sm.Loss
		sum.Accuracy += sm.Accuracy
		sum.CrossEntropy += sm.CrossEntropy
		sum.Dice += sm.Dice
	}

	k := float64(n)
	return model.StepMetrics{
		Loss:         sum.Loss / k,
		Accuracy:     sum.Accuracy / k,
		CrossEntropy: sum.CrossEntropy / k,
		Dice:         sum.Dice / k,
	}, nil
}
