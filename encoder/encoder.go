package encoder

import (
	"github.com/sugarme/gotch/ts"
)

// Encoder is encoder interface for a image segmentation model.
//
// ForwardAll returns the feature maps a decoder needs, shallowest first;
// the last element is the deepest (bottleneck) representation.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
	Channels() []int64
}
