package tsutil

import (
	"math"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// DegenerateStd is the standard deviation below which a flow channel is
// treated as constant.
const DegenerateStd = 1e-12

// NormalizeFlow rescales each of the two flow channels (horizontal,
// vertical) to zero mean and unit (population) standard deviation. Batched
// input is normalised per sample. A constant channel becomes all zeros.
func NormalizeFlow(x *ts.Tensor) (*ts.Tensor, error) {
	if err := CheckChannels("normalize flow", x, 2); err != nil {
		return nil, err
	}

	if len(x.MustSize()) == 3 {
		return normalizeField(x), nil
	}

	batch := x.MustSize()[0]
	samples := make([]*ts.Tensor, 0, batch)
	for i := int64(0); i < batch; i++ {
		sample := x.MustSelect(0, i, false)
		samples = append(samples, normalizeField(sample))
		sample.MustDrop()
	}
	out := ts.MustStack(samples, 0)
	for _, s := range samples {
		s.MustDrop()
	}

	return out, nil
}

// normalizeField normalises a single [2,H,W] field.
func normalizeField(x *ts.Tensor) *ts.Tensor {
	channels := make([]*ts.Tensor, 0, 2)
	for c := int64(0); c < 2; c++ {
		ch := x.MustSelect(0, c, false)
		mean, std := meanStd(ch)

		var n *ts.Tensor
		if std < DegenerateStd {
			n = ts.MustZeros(ch.MustSize(), ch.DType(), ch.MustDevice())
		} else {
			n = ch.MustSubScalar(ts.FloatScalar(mean), false).MustDivScalar(ts.FloatScalar(std), true)
		}
		ch.MustDrop()
		channels = append(channels, n)
	}

	out := ts.MustStack(channels, 0)
	for _, c := range channels {
		c.MustDrop()
	}

	return out
}

// meanStd computes mean and population standard deviation in double
// precision.
func meanStd(x *ts.Tensor) (mean, std float64) {
	m := x.MustMean(gotch.Double, false)
	mean = m.Float64Values()[0]
	m.MustDrop()

	centred := x.MustTotype(gotch.Double, false).MustSubScalar(ts.FloatScalar(mean), true)
	sq := centred.MustMul(centred, false)
	centred.MustDrop()
	v := sq.MustMean(gotch.Double, true)
	variance := v.Float64Values()[0]
	v.MustDrop()

	return mean, math.Sqrt(variance)
}
