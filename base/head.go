package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// NewSegmentationHead creates the output head (nn.SequentialT): a 3x3
// Conv2dRelu cIn -> cHidden followed by a 1x1 conv to cOut and a sigmoid, so
// the output is a probability map in [0,1].
func NewSegmentationHead(p *nn.Path, cIn, cHidden, cOut int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dRelu(p.Sub("conv1"), cIn, cHidden, 3, 1, 1))
	seq.Add(Conv2d(p.Sub("conv2"), cHidden, cOut, 1, 0, 1))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustSigmoid(false)
	}))

	return seq
}
