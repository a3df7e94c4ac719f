package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/data"
	"github.com/sugarme/maskrefine/metric"
	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/refine"
)

type maskFlags struct {
	prev, curr, mask, out string
	weights               string
	threshold             float64
}

func (f *maskFlags) register(cmd *cobra.Command, maskUsage string) {
	cmd.Flags().StringVar(&f.prev, "prev", "", "Previous frame")
	cmd.Flags().StringVar(&f.curr, "curr", "", "Current frame")
	cmd.Flags().StringVar(&f.mask, "mask", "", maskUsage)
	cmd.Flags().StringVarP(&f.out, "out", "o", "mask.png", "Output mask (png, jpg or tif)")
	cmd.Flags().StringVarP(&f.weights, "weights", "w", "", "Network weights (overrides model.weights)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", metric.Threshold, "Binarize the output above this probability; 0 keeps probabilities")
	for _, name := range []string{"prev", "curr", "mask"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

// load reads the two frames and the mask as [3,H,W], [3,H,W] and [1,H,W].
func (f *maskFlags) load() (prev, curr, mask *ts.Tensor, err error) {
	var tensors []*ts.Tensor
	for i, path := range []string{f.prev, f.curr, f.mask} {
		img, err := data.ReadImage(path)
		if err != nil {
			for _, x := range tensors {
				x.MustDrop()
			}
			return nil, nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		if i < 2 {
			tensors = append(tensors, data.ImageTensor(img))
		} else {
			tensors = append(tensors, data.MaskTensor(img))
		}
	}
	return tensors[0], tensors[1], tensors[2], nil
}

func newRefineCommand(ctx *commandContext) *cobra.Command {
	var flags maskFlags

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine a coarse mask of the current frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(cmd, ctx, &flags, model.Refinement)
		},
	}
	flags.register(cmd, "Coarse mask of the current frame")
	return cmd
}

func newPropagateCommand(ctx *commandContext) *cobra.Command {
	var flags maskFlags

	cmd := &cobra.Command{
		Use:        "propagate",
		Short:      "Propagate the previous frame's mask to the current frame",
		Deprecated: "mask propagation is kept for existing weights; use refine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(cmd, ctx, &flags, model.Propagation)
		},
	}
	flags.register(cmd, "Mask of the previous frame")
	return cmd
}

func runMask(cmd *cobra.Command, ctx *commandContext, flags *maskFlags, variant model.Variant) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := ctx.logger(cmd.ErrOrStderr())

	weights := flags.weights
	if weights == "" {
		weights = cfg.Model.Weights
	}
	if weights == "" {
		return errors.New("no weights: set model.weights or pass --weights")
	}

	rt, err := initRuntime(cfg, logger)
	if err != nil {
		return err
	}
	s, err := openSession(rt, cfg, variant, weights, logger)
	if err != nil {
		return err
	}
	defer s.close()

	prev, curr, mask, err := flags.load()
	if err != nil {
		return err
	}
	defer prev.MustDrop()
	defer curr.MustDrop()
	defer mask.MustDrop()

	var out *ts.Tensor
	switch variant {
	case model.Propagation:
		p, err := refine.NewPropagator(s.model, s.flow, logger)
		if err != nil {
			return err
		}
		out, err = p.PropagateMask(prev, curr, mask)
		if err != nil {
			return err
		}
	default:
		r, err := refine.NewRefiner(s.model, s.flow, logger)
		if err != nil {
			return err
		}
		out, err = r.RefineMask(prev, curr, mask)
		if err != nil {
			return err
		}
	}
	defer out.MustDrop()

	if err := data.SaveMask(flags.out, out, flags.threshold); err != nil {
		return fmt.Errorf("save mask: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.out)
	return nil
}
