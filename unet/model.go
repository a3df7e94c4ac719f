package unet

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/base"
	"github.com/sugarme/maskrefine/encoder"
)

// Input channel counts of the two network variants.
const (
	PropagationChannels int64 = 3 // previous mask + 2 flow channels
	RefinementChannels  int64 = 6 // current image + coarse mask + 2 flow channels
)

// Config describes a UNet.
type Config struct {
	InChannels int64
	BaseWidth  int64   // width of the first encoder stage
	Dropout    float64 // dropout on encoder stage 4 and the bottleneck
}

// DefaultConfig returns the 5-level, 64..1024 wide configuration.
func DefaultConfig(inChannels int64) Config {
	return Config{
		InChannels: inChannels,
		BaseWidth:  64,
		Dropout:    0.5,
	}
}

// UNet is a UNET model struct
// Ref: https://arxiv.org/abs/1505.04597
//
// The net accepts any spatial size at run time; sizes that are multiples of
// 16 mirror exactly, others are aligned inside the decoder. Output is a
// single-channel probability mask of the input's height and width.
type UNet struct {
	encoder encoder.Encoder
	decoder *UNetDecoder
	segHead *nn.SequentialT
	config  Config
}

// ForwardT implements ts.ModuleT for UNet struct.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	features := n.encoder.ForwardAll(x, train)
	out := n.decoder.ForwardFeatures(features, train)
	masks := n.segHead.ForwardT(out, train)

	for _, f := range features {
		f.MustDrop()
	}
	out.MustDrop()

	return masks
}

// Config returns the configuration the net was built with.
func (n *UNet) Config() Config {
	return n.config
}

// InChannels returns the expected input channel count.
func (n *UNet) InChannels() int64 {
	return n.config.InChannels
}

// New creates a UNet under path p.
func New(p *nn.Path, config Config) *UNet {
	if config.BaseWidth <= 0 {
		config.BaseWidth = 64
	}

	enc := encoder.NewContractingPath(p.Sub("encoder"), config.InChannels, config.BaseWidth, config.Dropout)
	dec := NewUNetDecoder(p.Sub("decoder"), enc.Channels())

	// cIn=first encoder width, hidden=2, cOut=1 mask
	head := base.NewSegmentationHead(p.Sub("head"), config.BaseWidth, 2, 1)

	return &UNet{
		encoder: enc,
		decoder: dec,
		segHead: head,
		config:  config,
	}
}

// NewPropagationNet creates the 3-channel mask propagation UNet that
// predicts the current mask from the previous mask and optical flow.
//
// Deprecated: mask propagation is a legacy pipeline kept for existing
// weights; use NewRefinementNet.
func NewPropagationNet(p *nn.Path) *UNet {
	return New(p, DefaultConfig(PropagationChannels))
}

// NewRefinementNet creates the 6-channel mask refinement UNet that corrects
// a coarse mask given the current image and optical flow.
func NewRefinementNet(p *nn.Path) *UNet {
	return New(p, DefaultConfig(RefinementChannels))
}
