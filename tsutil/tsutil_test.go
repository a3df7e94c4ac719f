package tsutil_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
	"gonum.org/v1/gonum/stat"

	"github.com/sugarme/maskrefine/tsutil"
)

func TestPadToMultipleOf8(t *testing.T) {
	sizes := [][2]int64{{1, 1}, {7, 9}, {8, 8}, {13, 854}, {480, 854}, {24, 31}}
	for _, s := range sizes {
		x := ts.MustRand([]int64{3, s[0], s[1]}, gotch.Float, gotch.CPU)
		out, err := tsutil.PadToMultipleOf8(x)
		require.NoError(t, err)

		size := out.MustSize()
		require.Len(t, size, 3)
		require.Zero(t, size[1]%8, "height %v", size[1])
		require.Zero(t, size[2]%8, "width %v", size[2])
		require.GreaterOrEqual(t, size[1], s[0])
		require.Less(t, size[1]-s[0], int64(8))

		// padding is reversible
		back, err := tsutil.Crop(out, s[0], s[1])
		require.NoError(t, err)
		require.Equal(t, x.Float64Values(), back.Float64Values())
	}
}

func TestPadToMultipleOf8Aligned(t *testing.T) {
	x := ts.MustRand([]int64{2, 1, 16, 24}, gotch.Float, gotch.CPU)
	before := x.Float64Values()

	out, err := tsutil.PadToMultipleOf8(x)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 16, 24}, out.MustSize())
	require.Equal(t, before, out.Float64Values())

	// padding the output again changes nothing
	again, err := tsutil.PadToMultipleOf8(out)
	require.NoError(t, err)
	require.Equal(t, before, again.Float64Values())
}

func TestPadAndCropDoNotAlias(t *testing.T) {
	x := ts.MustRand([]int64{1, 8, 16}, gotch.Float, gotch.CPU)
	before := x.Float64Values()
	zeros := ts.MustZeros([]int64{1, 8, 16}, gotch.Float, gotch.CPU)

	padded, err := tsutil.PadToMultipleOf8(x)
	require.NoError(t, err)
	padded.Copy_(zeros)
	require.Equal(t, before, x.Float64Values())

	cropped, err := tsutil.Crop(x, 8, 16)
	require.NoError(t, err)
	cropped.Copy_(zeros)
	require.Equal(t, before, x.Float64Values())
}

func TestPadToMultipleOf8Borders(t *testing.T) {
	// 1x6x6 -> 1x8x8: two rows/cols of zeros split 1 before, 1 after
	x := ts.MustOnes([]int64{1, 6, 6}, gotch.Float, gotch.CPU)
	out, err := tsutil.PadToMultipleOf8(x)
	require.NoError(t, err)

	vals := out.Float64Values()
	require.Len(t, vals, 64)
	// row 0 and column 0 are border, rows/cols 1..6 are content
	require.Equal(t, 0.0, vals[0])
	require.Equal(t, 0.0, vals[8])
	require.Equal(t, 1.0, vals[9])
	require.Equal(t, 1.0, vals[6*8+6])
	require.Equal(t, 0.0, vals[7*8+7])
	require.Equal(t, 36.0, sum(vals))
	require.Equal(t, []int64{1, 6, 6}, x.MustSize())
}

func TestPadOffsets(t *testing.T) {
	top, bottom, left, right := tsutil.PadOffsets(480, 854)
	require.Equal(t, []int64{0, 0, 5, 5}, []int64{top, bottom, left, right})

	top, bottom, left, right = tsutil.PadOffsets(13, 3)
	require.Equal(t, []int64{1, 2, 2, 3}, []int64{top, bottom, left, right})
}

func TestPadRejectsBadRank(t *testing.T) {
	x := ts.MustOnes([]int64{6, 6}, gotch.Float, gotch.CPU)
	_, err := tsutil.PadToMultipleOf8(x)
	require.Error(t, err)
	require.True(t, errors.Is(err, tsutil.ErrShapeMismatch))
}

func TestNormalizeFlow(t *testing.T) {
	x := ts.MustRandn([]int64{2, 12, 20}, gotch.Double, gotch.CPU).MustMulScalar(ts.FloatScalar(3.5), true).MustAddScalar(ts.FloatScalar(-1.25), true)

	out, err := tsutil.NormalizeFlow(x)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 12, 20}, out.MustSize())

	for c := int64(0); c < 2; c++ {
		ch := out.MustSelect(0, c, false)
		vals := ch.Float64Values()
		mean, std := stat.PopMeanStdDev(vals, nil)
		require.InDelta(t, 0.0, mean, 1e-6)
		require.InDelta(t, 1.0, std, 1e-6)
	}
}

func TestNormalizeFlowBatched(t *testing.T) {
	x := ts.MustRand([]int64{3, 2, 8, 8}, gotch.Float, gotch.CPU)
	out, err := tsutil.NormalizeFlow(x)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 8, 8}, out.MustSize())

	sample := out.MustSelect(0, 2, false).MustSelect(0, 1, true)
	mean, std := stat.PopMeanStdDev(sample.Float64Values(), nil)
	require.InDelta(t, 0.0, mean, 1e-5)
	require.InDelta(t, 1.0, std, 1e-5)
}

func TestNormalizeFlowConstantChannel(t *testing.T) {
	horizontal := ts.MustRand([]int64{1, 6, 6}, gotch.Float, gotch.CPU)
	vertical := ts.MustOnes([]int64{1, 6, 6}, gotch.Float, gotch.CPU).MustMulScalar(ts.FloatScalar(4), true)
	x := ts.MustCat([]*ts.Tensor{horizontal, vertical}, 0)

	out, err := tsutil.NormalizeFlow(x)
	require.NoError(t, err)

	v := out.MustSelect(0, 1, false).Float64Values()
	for _, val := range v {
		require.Equal(t, 0.0, val)
	}
	mean, std := stat.PopMeanStdDev(out.MustSelect(0, 0, false).Float64Values(), nil)
	require.InDelta(t, 0.0, mean, 1e-5)
	require.InDelta(t, 1.0, std, 1e-5)
}

func TestNormalizeFlowWrongChannels(t *testing.T) {
	x := ts.MustRand([]int64{3, 6, 6}, gotch.Float, gotch.CPU)
	_, err := tsutil.NormalizeFlow(x)
	var shapeErr *tsutil.ShapeError
	require.ErrorAs(t, err, &shapeErr)
}

func TestCheckSameSpatial(t *testing.T) {
	a := ts.MustOnes([]int64{3, 8, 8}, gotch.Float, gotch.CPU)
	b := ts.MustOnes([]int64{1, 8, 8}, gotch.Float, gotch.CPU)
	c := ts.MustOnes([]int64{1, 8, 9}, gotch.Float, gotch.CPU)
	d := ts.MustOnes([]int64{1, 1, 8, 8}, gotch.Float, gotch.CPU)

	require.NoError(t, tsutil.CheckSameSpatial("test", a, b))
	require.ErrorIs(t, tsutil.CheckSameSpatial("test", a, c), tsutil.ErrShapeMismatch)
	require.ErrorIs(t, tsutil.CheckSameSpatial("test", a, d), tsutil.ErrShapeMismatch)
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}
