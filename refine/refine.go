// Package refine is the inference entry point: it turns two frames and a
// mask into a refined (or propagated) mask for the current frame.
package refine

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/stack"
	"github.com/sugarme/maskrefine/tsutil"
)

// Predictor is a compiled segmentation model, see model.Model.
type Predictor interface {
	InChannels() int64
	Forward(x *ts.Tensor) (*ts.Tensor, error)
}

// Refiner corrects a coarse mask using the current frame and the optical
// flow from the previous frame.
type Refiner struct {
	model  Predictor
	flow   flow.Estimator
	logger zerolog.Logger
}

// NewRefiner creates a Refiner. m must take refinement stacks.
func NewRefiner(m Predictor, est flow.Estimator, logger zerolog.Logger) (*Refiner, error) {
	if m.InChannels() != stack.RefinementChannels {
		return nil, fmt.Errorf("refiner: model takes %v channels, want %v", m.InChannels(), stack.RefinementChannels)
	}
	return &Refiner{model: m, flow: est, logger: logger}, nil
}

// RefineMask returns the refined [1,H,W] mask of currImage.
//
// prevImage and currImage are [3,H,W], coarseMask is [1,H,W]. The frames
// are padded to a multiple of 8 and at least model.MinSize, the flow prev->curr is computed on them and
// normalised, the refinement stack [curr, mask, flow] goes through the
// network and the result is cropped back to H x W.
func (r *Refiner) RefineMask(prevImage, currImage, coarseMask *ts.Tensor) (*ts.Tensor, error) {
	const op = "refine mask"
	if err := checkFrames(op, prevImage, currImage, coarseMask); err != nil {
		return nil, err
	}
	h, w, _ := tsutil.SpatialSize(currImage)

	padded, err := padAll(prevImage, currImage, coarseMask)
	if err != nil {
		return nil, err
	}
	defer dropAll(padded)
	prev, curr, mask := padded[0], padded[1], padded[2]

	field, err := r.flow.ComputeFlow(prev, curr)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	defer field.Drop()
	if err := field.Normalize(); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	input, err := stack.BuildRefinementInput(curr, mask, field)
	if err != nil {
		return nil, err
	}
	defer input.MustDrop()

	out, err := r.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	r.logger.Debug().Str("component", "refine").Int64("height", h).Int64("width", w).Msg("mask refined")

	return cropOwned(out, h, w)
}

// RefineStack refines the coarse mask held in a [7,H,W] pair stack built
// by stack.BuildPairInput.
func (r *Refiner) RefineStack(pair *ts.Tensor) (*ts.Tensor, error) {
	if len(pair.MustSize()) != 3 {
		return nil, tsutil.NewShapeError("refine stack", "expected a single [7,H,W] stack", pair)
	}
	prev, curr, mask, err := stack.SplitPairInput(pair)
	if err != nil {
		return nil, err
	}
	defer dropAll([]*ts.Tensor{prev, curr, mask})

	return r.RefineMask(prev, curr, mask)
}

// Propagator predicts the current mask from the previous mask and the
// flow, without looking at the current image.
//
// Deprecated: legacy pipeline kept for existing propagation weights; use
// Refiner.
type Propagator struct {
	model  Predictor
	flow   flow.Estimator
	logger zerolog.Logger
}

// NewPropagator creates a Propagator. m must take propagation stacks.
func NewPropagator(m Predictor, est flow.Estimator, logger zerolog.Logger) (*Propagator, error) {
	if m.InChannels() != stack.PropagationChannels {
		return nil, fmt.Errorf("propagator: model takes %v channels, want %v", m.InChannels(), stack.PropagationChannels)
	}
	return &Propagator{model: m, flow: est, logger: logger}, nil
}

// PropagateMask returns the [1,H,W] mask of the current frame predicted
// from prevMask [1,H,W] and the flow prevImage -> currImage.
func (p *Propagator) PropagateMask(prevImage, currImage, prevMask *ts.Tensor) (*ts.Tensor, error) {
	const op = "propagate mask"
	if err := checkFrames(op, prevImage, currImage, prevMask); err != nil {
		return nil, err
	}
	h, w, _ := tsutil.SpatialSize(currImage)

	padded, err := padAll(prevImage, currImage, prevMask)
	if err != nil {
		return nil, err
	}
	defer dropAll(padded)

	field, err := p.flow.ComputeFlow(padded[0], padded[1])
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	defer field.Drop()
	if err := field.Normalize(); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	input, err := stack.BuildPropagationInput(padded[2], field)
	if err != nil {
		return nil, err
	}
	defer input.MustDrop()

	out, err := p.model.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	p.logger.Debug().Str("component", "propagate").Int64("height", h).Int64("width", w).Msg("mask propagated")

	return cropOwned(out, h, w)
}

// checkFrames validates two [3,H,W] frames and a [1,H,W] mask.
func checkFrames(op string, prev, curr, mask *ts.Tensor) error {
	for _, x := range []*ts.Tensor{prev, curr, mask} {
		if x == nil {
			return tsutil.NewShapeError(op, "nil input")
		}
		if len(x.MustSize()) != 3 {
			return tsutil.NewShapeError(op, "expected single [C,H,W] tensors", prev, curr, mask)
		}
	}
	if err := tsutil.CheckSameSpatial(op, prev, curr, mask); err != nil {
		return err
	}
	if err := tsutil.CheckChannels(op, prev, stack.ImageChannels); err != nil {
		return err
	}
	if err := tsutil.CheckChannels(op, curr, stack.ImageChannels); err != nil {
		return err
	}
	return tsutil.CheckChannels(op, mask, stack.MaskChannels)
}

// padAll pads every tensor to the same size: a multiple of 8 on each side,
// and never below model.MinSize, the smallest input the net can pool.
func padAll(xs ...*ts.Tensor) ([]*ts.Tensor, error) {
	h, w, err := tsutil.SpatialSize(xs[0])
	if err != nil {
		return nil, err
	}
	h, w = tsutil.AlignedSize(max(h, model.MinSize), max(w, model.MinSize))

	out := make([]*ts.Tensor, 0, len(xs))
	for _, x := range xs {
		p, err := tsutil.PadTo(x, h, w)
		if err != nil {
			dropAll(out)
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func dropAll(xs []*ts.Tensor) {
	for _, x := range xs {
		x.MustDrop()
	}
}

// cropOwned crops out to h x w and frees out.
func cropOwned(out *ts.Tensor, h, w int64) (*ts.Tensor, error) {
	mask, err := tsutil.Crop(out, h, w)
	out.MustDrop()
	return mask, err
}
