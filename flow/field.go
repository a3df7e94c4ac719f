package flow

import (
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/tsutil"
)

// Field is a dense optical-flow field, [2,H,W] or [N,2,H,W], channel 0
// horizontal and channel 1 vertical displacement in pixels.
//
// A Field remembers whether it has been normalised so the rescale is
// applied exactly once before it is stacked with images and masks.
type Field struct {
	x          *ts.Tensor
	normalized bool
}

// NewField wraps x, which must have 2 channels. The field takes ownership
// of x.
func NewField(x *ts.Tensor) (*Field, error) {
	if err := tsutil.CheckChannels("flow field", x, 2); err != nil {
		return nil, err
	}
	return &Field{x: x}, nil
}

// Tensor returns the underlying tensor. It stays owned by the field.
func (f *Field) Tensor() *ts.Tensor {
	return f.x
}

// Normalized reports whether Normalize has been applied.
func (f *Field) Normalized() bool {
	return f.normalized
}

// Normalize rescales each channel to zero mean and unit variance. Calling it
// again is a no-op.
func (f *Field) Normalize() error {
	if f.normalized {
		return nil
	}
	n, err := tsutil.NormalizeFlow(f.x)
	if err != nil {
		return err
	}
	f.x.MustDrop()
	f.x = n
	f.normalized = true

	return nil
}

// Drop frees the underlying tensor.
func (f *Field) Drop() {
	if f.x != nil {
		f.x.MustDrop()
		f.x = nil
	}
}
