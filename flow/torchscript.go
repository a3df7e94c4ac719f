package flow

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// TorchScript runs an exported flow network (PWC-Net, RAFT, ...) whose
// forward takes two [1,3,h,w] frames and returns a [1,2,h',w'] flow.
type TorchScript struct {
	module *ts.CModule
	device gotch.Device
	// InputSize, if set, resizes frames to [h,w] before the forward pass;
	// networks that need a fixed or aligned size use it.
	InputSize []int64
	logger    zerolog.Logger
}

// LoadTorchScript loads the module at path onto device in eval mode.
func LoadTorchScript(path string, device gotch.Device, logger zerolog.Logger) (*TorchScript, error) {
	m, err := ts.ModuleLoadOnDevice(path, device)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", ErrEstimator, path, err)
	}
	m.SetEval()

	logger.Info().Str("component", "flow").Str("path", path).Str("device", fmt.Sprintf("%v", device)).Msg("loaded flow network")

	return &TorchScript{
		module: m,
		device: device,
		logger: logger,
	}, nil
}

// ComputeFlow implements Estimator.
//
// Output at a resolution other than the frames is resized bilinearly and its
// displacements are scaled by the same ratio.
func (t *TorchScript) ComputeFlow(prev, curr *ts.Tensor) (*Field, error) {
	if err := CheckFramePair(prev, curr); err != nil {
		return nil, err
	}
	size := prev.MustSize()
	h, w := size[1], size[2]

	var (
		out *ts.Tensor
		err error
	)
	ts.NoGrad(func() {
		a := t.prepare(prev)
		b := t.prepare(curr)
		out, err = t.module.ForwardTs([]*ts.Tensor{a, b})
		a.MustDrop()
		b.MustDrop()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: forward: %v", ErrEstimator, err)
	}

	osize := out.MustSize()
	if len(osize) != 4 || osize[0] != 1 || osize[1] != 2 {
		out.MustDrop()
		return nil, fmt.Errorf("%w: expected [1,2,h,w] output, got %v", ErrEstimator, osize)
	}

	if osize[2] != h || osize[3] != w {
		t.logger.Debug().Str("component", "flow").Ints64("from", osize[2:]).Ints64("to", []int64{h, w}).Msg("resizing flow")
		out = rescale(out, h, w)
	}

	flow := out.MustSelect(0, 0, true).MustTo(gotch.CPU, true).MustTotype(gotch.Float, true)
	field, err := NewField(flow)
	if err != nil {
		return nil, err
	}
	if err := checkResult(field, prev); err != nil {
		field.Drop()
		return nil, err
	}

	return field, nil
}

// Drop releases the underlying module.
func (t *TorchScript) Drop() {
	t.module.Drop()
}

// prepare turns a [3,H,W] frame into the [1,3,h,w] network input.
func (t *TorchScript) prepare(x *ts.Tensor) *ts.Tensor {
	in := x.MustUnsqueeze(0, false).MustTo(t.device, true).MustTotype(gotch.Float, true)
	if len(t.InputSize) == 2 {
		in = in.MustUpsampleBilinear2d(t.InputSize, false, nil, nil, true)
	}
	return in
}

// rescale resizes a [1,2,h',w'] flow to h x w. Displacements are in pixels
// so they scale with the resize ratio along their axis.
func rescale(x *ts.Tensor, h, w int64) *ts.Tensor {
	size := x.MustSize()
	sx := float32(w) / float32(size[3])
	sy := float32(h) / float32(size[2])

	up := x.MustUpsampleBilinear2d([]int64{h, w}, false, nil, nil, true)
	scale := ts.MustOfSlice([]float32{sx, sy}).MustView([]int64{1, 2, 1, 1}, true).MustTo(up.MustDevice(), true)
	out := up.MustTotype(gotch.Float, true).MustMul(scale, true)
	scale.MustDrop()

	return out
}
