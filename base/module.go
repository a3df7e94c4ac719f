package base

import (
	"math"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Identity is a ts.Module placeholder.
// It forwards the input tensor as such.
type Identity struct{}

// Forward implement ts.Module for Identity struct
func (i *Identity) Forward(x *ts.Tensor) *ts.Tensor {
	return x.MustShallowClone()
}

// ForwardT implement ts.ModuleT for Identity struct.
// The returned tensor shares storage and autograd history with x.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// Dropout returns a dropout module with probability p, or Identity if p is 0.
func Dropout(p float64) ts.ModuleT {
	if p <= 0 {
		return NewIdentity()
	}
	return nn.NewDropout(p)
}

// HeNormal returns a zero-mean normal initialiser with variance 2/fanIn,
// which keeps activation variance stable through ReLU stacks.
func HeNormal(fanIn int64) nn.Init {
	return nn.NewRandnInit(0, math.Sqrt(2/float64(fanIn)))
}

// Conv2d creates Conv2D module with He-normal weights and zero bias.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = HeNormal(cIn * ksize * ksize)
	config.BsInit = nn.NewConstInit(0)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dRelu creates a SequentialT composing of Conv2D and a ReLU activation.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2d(p, cIn, cOut, ksize, padding, stride))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

// DoubleConv creates two same-padded 3x3 Conv2dRelu layers: cIn -> cMid -> cOut.
// cMid defaults to cOut.
func DoubleConv(p *nn.Path, cIn, cOut int64, cMidOpt ...int64) *nn.SequentialT {
	cMid := cOut
	if len(cMidOpt) > 0 {
		cMid = cMidOpt[0]
	}

	seq := nn.SeqT()
	seq.Add(Conv2dRelu(p.Sub("conv1"), cIn, cMid, 3, 1, 1))
	seq.Add(Conv2dRelu(p.Sub("conv2"), cMid, cOut, 3, 1, 1))

	return seq
}

// UpConv is a learned 2x upsampling layer: a transposed convolution with
// 2x2 kernel and stride 2. The weight is laid out [cIn, cOut, 2, 2] as
// libtorch's conv_transpose2d expects.
type UpConv struct {
	Ws *ts.Tensor
	Bs *ts.Tensor
}

// UpConv2d creates an UpConv: [B cIn H W] => [B cOut 2H 2W].
func UpConv2d(p *nn.Path, cIn, cOut int64) *UpConv {
	return &UpConv{
		Ws: p.MustNewVar("weight", []int64{cIn, cOut, 2, 2}, HeNormal(cIn)), // each output pixel sees one tap per input channel
		Bs: p.MustNewVar("bias", []int64{cOut}, nn.NewConstInit(0)),
	}
}

// Forward implements ts.Module for UpConv.
func (u *UpConv) Forward(x *ts.Tensor) *ts.Tensor {
	// stride=2; padding=0; outputPadding=0; groups=1; dilation=1
	return ts.MustConvTranspose2d(x, u.Ws, u.Bs, []int64{2, 2}, []int64{0, 0}, []int64{0, 0}, 1, []int64{1, 1})
}

// MaxPool2x2 halves spatial resolution: [B C H W] => [B C H/2 W/2].
func MaxPool2x2(x *ts.Tensor) *ts.Tensor {
	// ksize = 2; stride=2; padding=0; dilation=1; ceil=false
	return x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
}
