package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/base"
	"github.com/sugarme/maskrefine/tsutil"
)

// DecoderLayer upsamples with a transposed conv, concatenates the skip
// feature map and runs a double conv.
type DecoderLayer struct {
	Up   *base.UpConv
	Conv *nn.SequentialT
}

// NewDecoderLayer creates a DecoderLayer.
// Up: cIn -> cOut at 2x resolution; Conv: cOut+skip -> cOut.
func NewDecoderLayer(p *nn.Path, cIn, skip, cOut int64) *DecoderLayer {
	return &DecoderLayer{
		Up:   base.UpConv2d(p.Sub("upconv"), cIn, cOut),
		Conv: base.DoubleConv(p, skip+cOut, cOut),
	}
}

// ForwardSkip upsamples x, merges it with skip and forwards through double conv.
// x, skip should be in shape [Batch CHW].
func (d *DecoderLayer) ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor {
	up := d.Up.Forward(x)

	// Odd encoder sizes (e.g. H/8 = 3) make the upsampled map one pixel
	// short of the skip; pad it back the way the skip was pooled.
	skipSize := skip.MustSize()
	upSize := up.MustSize()
	if upSize[2] != skipSize[2] || upSize[3] != skipSize[3] {
		padded, err := tsutil.PadTo(up, skipSize[2], skipSize[3])
		if err != nil {
			panic(fmt.Sprintf("decoder: upsampled %v does not fit skip %v: %v", upSize, skipSize, err))
		}
		up.MustDrop()
		up = padded
	}

	cat := ts.MustCat([]*ts.Tensor{skip, up}, 1)
	up.MustDrop()
	out := d.Conv.ForwardT(cat, train)
	cat.MustDrop()

	return out
}

// UNetDecoder is Decoder struct for UNet model: the expanding path.
type UNetDecoder struct {
	layers []*DecoderLayer
}

// NewUNetDecoder creates UNetDecoder mirroring encoderChannels, which lists
// encoder widths shallowest first with the bottleneck last.
func NewUNetDecoder(p *nn.Path, encoderChannels []int64) *UNetDecoder {
	var layers []*DecoderLayer
	n := len(encoderChannels)
	for i := n - 1; i > 0; i-- {
		cIn := encoderChannels[i]
		skip := encoderChannels[i-1]
		name := fmt.Sprintf("up%d", n-i)
		layers = append(layers, NewDecoderLayer(p.Sub(name), cIn, skip, skip))
	}

	return &UNetDecoder{layers: layers}
}

// ForwardFeatures forwards through encoder features, deepest first.
func (n *UNetDecoder) ForwardFeatures(features []*ts.Tensor, train bool) *ts.Tensor {
	if len(features) != len(n.layers)+1 {
		panic(fmt.Sprintf("decoder: expected %v feature maps, got %v", len(n.layers)+1, len(features)))
	}

	// For base width 64:
	// bottom [B 1024 H/16 W/16]
	// z1     [B  512 H/8  W/8 ]
	// z2     [B  256 H/4  W/4 ]
	// z3     [B  128 H/2  W/2 ]
	// z4     [B   64 H    W   ]
	last := len(features) - 1
	z := features[last]
	for i, l := range n.layers {
		skip := features[last-1-i]
		next := l.ForwardSkip(z, skip, train)
		if i > 0 {
			z.MustDrop()
		}
		z = next
	}

	return z
}
