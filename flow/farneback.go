package flow

import (
	"fmt"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
	"gocv.io/x/gocv"
)

// FarnebackConfig holds the parameters of OpenCV's dense Farneback flow.
type FarnebackConfig struct {
	PyrScale   float64
	Levels     int
	WinSize    int
	Iterations int
	PolyN      int
	PolySigma  float64
}

// DefaultFarnebackConfig returns the parameters of the OpenCV samples.
func DefaultFarnebackConfig() FarnebackConfig {
	return FarnebackConfig{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
	}
}

// Farneback estimates dense flow with a classical polynomial-expansion
// method. It needs no model file and is the fallback when no learned
// estimator is configured.
type Farneback struct {
	config FarnebackConfig
}

// NewFarneback creates a Farneback estimator.
func NewFarneback(config FarnebackConfig) *Farneback {
	return &Farneback{config: config}
}

// ComputeFlow implements Estimator.
func (f *Farneback) ComputeFlow(prev, curr *ts.Tensor) (*Field, error) {
	if err := CheckFramePair(prev, curr); err != nil {
		return nil, err
	}

	prevGray, err := grayMat(prev)
	if err != nil {
		return nil, err
	}
	defer prevGray.Close()
	currGray, err := grayMat(curr)
	if err != nil {
		return nil, err
	}
	defer currGray.Close()

	flow := gocv.NewMat()
	defer flow.Close()

	c := f.config
	gocv.CalcOpticalFlowFarneback(prevGray, currGray, &flow, c.PyrScale, c.Levels, c.WinSize, c.Iterations, c.PolyN, c.PolySigma, 0)
	if flow.Empty() {
		return nil, fmt.Errorf("%w: farneback returned no flow", ErrEstimator)
	}

	data, err := flow.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: read flow: %v", ErrEstimator, err)
	}
	vals := make([]float32, len(data))
	copy(vals, data)

	rows, cols := int64(flow.Rows()), int64(flow.Cols())
	// OpenCV stores (dx,dy) interleaved per pixel: HxWx2 -> 2xHxW
	x := ts.MustOfSlice(vals).
		MustView([]int64{rows, cols, 2}, true).
		MustPermute([]int64{2, 0, 1}, true).
		MustContiguous(true)

	field, err := NewField(x)
	if err != nil {
		return nil, err
	}
	if err := checkResult(field, prev); err != nil {
		field.Drop()
		return nil, err
	}
	return field, nil
}

// grayMat converts a [3,H,W] frame in [0,1] to an 8-bit grayscale Mat.
func grayMat(x *ts.Tensor) (gocv.Mat, error) {
	size := x.MustSize()
	h, w := int(size[1]), int(size[2])

	// HWC bytes
	hwc := x.MustTo(gotch.CPU, false).
		MustPermute([]int64{1, 2, 0}, true).
		MustMulScalar(ts.FloatScalar(255), true).
		MustClamp(ts.FloatScalar(0), ts.FloatScalar(255), true).
		MustContiguous(true)
	vals := hwc.Float64Values()
	hwc.MustDrop()

	buf := make([]byte, len(vals))
	for i, v := range vals {
		buf[i] = uint8(v + 0.5)
	}

	rgb, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: frame to mat: %v", ErrEstimator, err)
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)

	return gray, nil
}
