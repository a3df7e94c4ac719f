package tsutil

import (
	"fmt"

	"github.com/sugarme/gotch/ts"
)

// Alignment is the spatial multiple required by four 2x downsamplings of
// the segmentation net.
const Alignment int64 = 8

// PadOffsets returns the zero border needed to bring h and w up to a
// multiple of Alignment. Odd amounts put the extra pixel at bottom/right.
func PadOffsets(h, w int64) (top, bottom, left, right int64) {
	padH := (Alignment - h%Alignment) % Alignment
	padW := (Alignment - w%Alignment) % Alignment
	top = padH / 2
	left = padW / 2
	return top, padH - top, left, padW - left
}

// AlignedSize returns h and w rounded up to a multiple of Alignment.
func AlignedSize(h, w int64) (int64, int64) {
	top, bottom, left, right := PadOffsets(h, w)
	return h + top + bottom, w + left + right
}

// PadToMultipleOf8 zero-pads the last two dims of a CHW or NCHW tensor so
// both become multiples of 8. The input is never modified; aligned input
// comes back as a fresh tensor with the same values.
func PadToMultipleOf8(x *ts.Tensor) (*ts.Tensor, error) {
	h, w, err := SpatialSize(x)
	if err != nil {
		return nil, err
	}
	ah, aw := AlignedSize(h, w)
	return PadTo(x, ah, aw)
}

// PadTo zero-pads x to height h and width w, centring the original content
// (top/left border gets the floor of half the difference). The result never
// shares storage with x.
func PadTo(x *ts.Tensor, h, w int64) (*ts.Tensor, error) {
	h0, w0, err := SpatialSize(x)
	if err != nil {
		return nil, err
	}
	if h < h0 || w < w0 {
		return nil, NewShapeError("pad", fmt.Sprintf("cannot pad %vx%v down to %vx%v", h0, w0, h, w), x)
	}

	size := x.MustSize()
	rank := int64(len(size))
	padded := make([]int64, len(size))
	copy(padded, size)
	padded[rank-2] = h
	padded[rank-1] = w

	out := ts.MustZeros(padded, x.DType(), x.MustDevice())
	rows := out.MustNarrow(rank-2, (h-h0)/2, h0, false)
	region := rows.MustNarrow(rank-1, (w-w0)/2, w0, true)
	region.Copy_(x)
	region.MustDrop()

	return out, nil
}

// Crop undoes PadTo/PadToMultipleOf8: it cuts the centred h x w window out
// of x and returns it as a contiguous tensor that does not share storage
// with x.
func Crop(x *ts.Tensor, h, w int64) (*ts.Tensor, error) {
	h0, w0, err := SpatialSize(x)
	if err != nil {
		return nil, err
	}
	if h > h0 || w > w0 {
		return nil, NewShapeError("crop", fmt.Sprintf("cannot crop %vx%v out of %vx%v", h, w, h0, w0), x)
	}
	if h == h0 && w == w0 {
		return clone(x), nil
	}

	rank := int64(len(x.MustSize()))
	rows := x.MustNarrow(rank-2, (h0-h)/2, h, false)
	window := rows.MustNarrow(rank-1, (w0-w)/2, w, true)

	return window.MustContiguous(true), nil
}

// clone copies x into new storage.
func clone(x *ts.Tensor) *ts.Tensor {
	out := ts.MustZeros(x.MustSize(), x.DType(), x.MustDevice())
	out.Copy_(x)
	return out
}
