// Package stack assembles network inputs by concatenating images, masks
// and flow fields along the channel axis.
//
// Every builder accepts single samples ([C,H,W]) or batches ([N,C,H,W]);
// all parts must share layout, batch size, height and width. On violation a
// *tsutil.ShapeError is returned and no tensor is built.
package stack

import (
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/tsutil"
)

// Channel counts of the inputs.
const (
	ImageChannels = 3
	MaskChannels  = 1
	FlowChannels  = 2

	PropagationChannels = MaskChannels + FlowChannels                  // 3
	RefinementChannels  = ImageChannels + MaskChannels + FlowChannels  // 6
	PairChannels        = ImageChannels + ImageChannels + MaskChannels // 7
)

type part struct {
	name     string
	x        *ts.Tensor
	channels int64
}

// build validates parts and concatenates them in order.
func build(op string, parts ...part) (*ts.Tensor, error) {
	xs := make([]*ts.Tensor, 0, len(parts))
	for _, p := range parts {
		if p.x == nil {
			return nil, tsutil.NewShapeError(op, p.name+" is nil")
		}
		xs = append(xs, p.x)
	}
	if err := tsutil.CheckSameSpatial(op, xs...); err != nil {
		return nil, err
	}
	for _, p := range parts {
		if err := tsutil.CheckChannels(op+": "+p.name, p.x, p.channels); err != nil {
			return nil, err
		}
	}

	dim, _ := tsutil.ChannelDim(xs[0])
	return ts.MustCat(xs, dim), nil
}

func fieldTensor(f *flow.Field) *ts.Tensor {
	if f == nil {
		return nil
	}
	return f.Tensor()
}

// BuildPropagationInput stacks the previous mask and the flow field:
// [mask, flow-x, flow-y].
func BuildPropagationInput(maskPrev *ts.Tensor, field *flow.Field) (*ts.Tensor, error) {
	return build("build propagation input",
		part{"mask", maskPrev, MaskChannels},
		part{"flow", fieldTensor(field), FlowChannels},
	)
}

// BuildRefinementInput stacks the current image, the coarse mask and the
// flow field: [R, G, B, mask, flow-x, flow-y].
func BuildRefinementInput(image, mask *ts.Tensor, field *flow.Field) (*ts.Tensor, error) {
	return build("build refinement input",
		part{"image", image, ImageChannels},
		part{"mask", mask, MaskChannels},
		part{"flow", fieldTensor(field), FlowChannels},
	)
}

// BuildPairInput stacks both frames and the coarse mask ahead of flow
// computation: [prev RGB, curr RGB, mask].
func BuildPairInput(prevImage, currImage, coarseMask *ts.Tensor) (*ts.Tensor, error) {
	return build("build pair input",
		part{"previous image", prevImage, ImageChannels},
		part{"current image", currImage, ImageChannels},
		part{"mask", coarseMask, MaskChannels},
	)
}

// SplitPairInput reverses BuildPairInput. The returned tensors are new and
// owned by the caller.
func SplitPairInput(x *ts.Tensor) (prevImage, currImage, coarseMask *ts.Tensor, err error) {
	if err := tsutil.CheckChannels("split pair input", x, PairChannels); err != nil {
		return nil, nil, nil, err
	}
	dim, _ := tsutil.ChannelDim(x)

	prevImage = x.MustNarrow(dim, 0, ImageChannels, false).MustContiguous(true)
	currImage = x.MustNarrow(dim, ImageChannels, ImageChannels, false).MustContiguous(true)
	coarseMask = x.MustNarrow(dim, 2*ImageChannels, MaskChannels, false).MustContiguous(true)

	return prevImage, currImage, coarseMask, nil
}
