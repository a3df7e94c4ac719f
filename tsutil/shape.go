package tsutil

import (
	"errors"
	"fmt"

	"github.com/sugarme/gotch/ts"
)

// ErrShapeMismatch is matched by every *ShapeError.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError reports tensors whose shapes cannot be combined by Op.
type ShapeError struct {
	Op     string
	Reason string
	Shapes [][]int64
}

func (e *ShapeError) Error() string {
	if len(e.Shapes) == 0 {
		return fmt.Sprintf("%v: %v: %v", e.Op, ErrShapeMismatch, e.Reason)
	}
	return fmt.Sprintf("%v: %v: %v (shapes %v)", e.Op, ErrShapeMismatch, e.Reason, e.Shapes)
}

// Unwrap lets errors.Is(err, ErrShapeMismatch) match.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// NewShapeError creates a ShapeError recording the sizes of xs.
func NewShapeError(op, reason string, xs ...*ts.Tensor) *ShapeError {
	shapes := make([][]int64, 0, len(xs))
	for _, x := range xs {
		if x == nil {
			shapes = append(shapes, nil)
			continue
		}
		shapes = append(shapes, x.MustSize())
	}
	return &ShapeError{Op: op, Reason: reason, Shapes: shapes}
}

// ChannelDim returns the channel axis of a CHW or NCHW tensor.
func ChannelDim(x *ts.Tensor) (int64, error) {
	rank := len(x.MustSize())
	if rank != 3 && rank != 4 {
		return 0, NewShapeError("channel dim", fmt.Sprintf("expected 3D (CHW) or 4D (NCHW) tensor, got %vD", rank), x)
	}
	return int64(rank - 3), nil
}

// Channels returns the channel count of a CHW or NCHW tensor.
func Channels(x *ts.Tensor) (int64, error) {
	dim, err := ChannelDim(x)
	if err != nil {
		return 0, err
	}
	return x.MustSize()[dim], nil
}

// SpatialSize returns height and width of a CHW or NCHW tensor.
func SpatialSize(x *ts.Tensor) (h, w int64, err error) {
	if _, err = ChannelDim(x); err != nil {
		return 0, 0, err
	}
	size := x.MustSize()
	return size[len(size)-2], size[len(size)-1], nil
}

// CheckSameSpatial verifies that all tensors share rank, batch size (if
// batched), height and width.
func CheckSameSpatial(op string, xs ...*ts.Tensor) error {
	if len(xs) == 0 {
		return nil
	}
	for _, x := range xs {
		if x == nil {
			return NewShapeError(op, "nil tensor", xs...)
		}
		if _, err := ChannelDim(x); err != nil {
			return NewShapeError(op, err.(*ShapeError).Reason, xs...)
		}
	}

	ref := xs[0].MustSize()
	for _, x := range xs[1:] {
		size := x.MustSize()
		if len(size) != len(ref) {
			return NewShapeError(op, "tensors mix batched and unbatched layouts", xs...)
		}
		if len(size) == 4 && size[0] != ref[0] {
			return NewShapeError(op, "batch sizes differ", xs...)
		}
		if size[len(size)-2] != ref[len(ref)-2] || size[len(size)-1] != ref[len(ref)-1] {
			return NewShapeError(op, "height and width differ", xs...)
		}
	}
	return nil
}

// CheckChannels verifies the channel count of x.
func CheckChannels(op string, x *ts.Tensor, want int64) error {
	got, err := Channels(x)
	if err != nil {
		return NewShapeError(op, err.(*ShapeError).Reason, x)
	}
	if got != want {
		return NewShapeError(op, fmt.Sprintf("expected %v channels, got %v", want, got), x)
	}
	return nil
}
