package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sugarme/maskrefine/data"
	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/train"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var weights string
	var epochs int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the segmentation network on a DAVIS-style dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			if weights == "" {
				weights = cfg.Model.Weights
			}
			if epochs > 0 {
				cfg.Train.Epochs = epochs
			}

			variant := model.Variant(cfg.Model.Variant)
			mode := data.Refinement
			if variant == model.Propagation {
				mode = data.Propagation
			}

			pairs, err := data.Scan(cfg.Data.Root, cfg.Data.Resolution)
			if err != nil {
				return fmt.Errorf("scan dataset: %w", err)
			}
			trainPairs, valPairs := data.SplitBySequence(pairs, cfg.Train.ValSequences, cfg.Train.ValSplit)
			if len(trainPairs) == 0 || len(valPairs) == 0 {
				return fmt.Errorf("dataset split left %d training and %d validation pairs", len(trainPairs), len(valPairs))
			}
			logger.Info().
				Str("component", "train").
				Int("train_pairs", len(trainPairs)).
				Int("val_pairs", len(valPairs)).
				Str("val_sequences", strings.Join(data.Sequences(valPairs), ",")).
				Msg("dataset split")

			rt, err := initRuntime(cfg, logger)
			if err != nil {
				return err
			}
			s, err := openSession(rt, cfg, variant, weights, logger)
			if err != nil {
				return err
			}
			defer s.close()

			opts := data.Options{
				Mode:   mode,
				Width:  cfg.Data.Width,
				Height: cfg.Data.Height,
				Logger: logger,
			}
			trainGen, err := data.NewGenerator(data.NewDataset(trainPairs, s.flow, opts), cfg.Train.BatchSize, true, cfg.Train.Seed)
			if err != nil {
				return err
			}
			valGen, err := data.NewGenerator(data.NewDataset(valPairs, s.flow, opts), cfg.Train.BatchSize, false, cfg.Train.Seed)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			history, err := train.Train(runCtx, s.model, trainGen, valGen, train.Config{
				Epochs:        cfg.Train.Epochs,
				StepsPerEpoch: cfg.Train.StepsPerEpoch,
				ValSteps:      cfg.Train.ValSteps,
				LogDir:        cfg.Train.LogDir,
				Prefix:        cfg.Train.Prefix,
				Logger:        logger,
			})

			if skipped := trainGen.Skipped() + valGen.Skipped(); skipped > 0 {
				logger.Warn().Str("component", "train").Int("skipped", skipped).Msg("samples skipped for shape mismatch")
			}
			if len(history) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(history))
			}

			var stepErr *train.StepError
			if errors.As(err, &stepErr) {
				return fmt.Errorf("training stopped at epoch %d, %s step %d: %w", stepErr.Epoch, stepErr.Phase, stepErr.Step, stepErr.Err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&weights, "weights", "w", "", "Initial weights (overrides model.weights)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "Override train.epochs")
	return cmd
}
