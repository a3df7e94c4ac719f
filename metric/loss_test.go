package metric_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/metric"
)

func scalar(x *ts.Tensor) float64 {
	v := x.Float64Values()[0]
	x.MustDrop()
	return v
}

func TestBinaryFocalLoss(t *testing.T) {
	focal := metric.BinaryFocalLoss(2)

	// pt = 1
	pred := ts.MustOfSlice([]float32{1}).MustView([]int64{1, 1, 1}, true)
	target := ts.MustOfSlice([]float32{1}).MustView([]int64{1, 1, 1}, true)
	require.Equal(t, 0.0, scalar(focal(pred, target)))

	// pt = 0 is clamped to Epsilon
	target0 := ts.MustOfSlice([]float32{0}).MustView([]int64{1, 1, 1}, true)
	got := scalar(focal(pred, target0))
	require.False(t, math.IsInf(got, 0) || math.IsNaN(got))
	require.InDelta(t, -math.Log(metric.Epsilon), got, 1e-3)
	require.InDelta(t, 16.118, got, 1e-3)
}

func TestBinaryFocalLossSums(t *testing.T) {
	focal := metric.BinaryFocalLoss(2)

	// pt = 0.5 for both pixels: 2 * 0.25 * log(2)
	pred := ts.MustOfSlice([]float64{0.5, 0.5}).MustView([]int64{1, 1, 2}, true)
	target := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 2}, true)
	require.InDelta(t, 0.5*math.Log(2), scalar(focal(pred, target)), 1e-9)

	// gamma 0 reduces to summed cross-entropy
	ce := metric.BinaryFocalLoss(0)
	require.InDelta(t, 2*math.Log(2), scalar(ce(pred, target)), 1e-9)
}

func TestContrastiveLoss(t *testing.T) {
	pred := ts.MustOfSlice([]float64{0.5, 0.5, 1}).MustView([]int64{1, 1, 3}, true)
	target := ts.MustOfSlice([]float64{1, 0, 1}).MustView([]int64{1, 1, 3}, true)

	// D = 0.125, 0.125, 0
	// y=1: (1-0.125)^2; y=0: 0.125; y=1: 1
	want := 0.875*0.875 + 0.125 + 1
	got := scalar(metric.ContrastiveLoss(1)(pred, target))
	require.InDelta(t, want, got, 1e-9)
}

func TestBinaryCrossEntropy(t *testing.T) {
	pred := ts.MustOfSlice([]float64{0.8, 0.3}).MustView([]int64{1, 1, 2}, true)
	target := ts.MustOfSlice([]float64{1, 0}).MustView([]int64{1, 1, 2}, true)

	want := -(math.Log(0.8) + math.Log(0.7)) / 2
	require.InDelta(t, want, scalar(metric.BinaryCrossEntropy(pred, target)), 1e-9)

	// saturated predictions stay finite
	pred = ts.MustOfSlice([]float64{0, 1}).MustView([]int64{1, 1, 2}, true)
	got := scalar(metric.BinaryCrossEntropy(pred, target))
	require.InDelta(t, -math.Log(metric.Epsilon), got, 1e-6)
}

func TestLossRegistry(t *testing.T) {
	for _, name := range []string{"", metric.BinaryCrossEntropyName, metric.BinaryFocalName, metric.ContrastiveName} {
		fn, err := metric.Loss(name)
		require.NoError(t, err, name)
		require.NotNil(t, fn)
	}

	_, err := metric.Loss("dice")
	require.Error(t, err)
}
