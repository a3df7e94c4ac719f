package metric

import (
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

// Threshold separates foreground from background probabilities.
const Threshold = 0.5

// binarize flattens x and maps values above Threshold to 1, others to 0.
func binarize(x *ts.Tensor) *ts.Tensor {
	flat := x.MustView([]int64{-1}, false)
	return flat.MustGt(ts.FloatScalar(Threshold), true).MustTotype(gotch.Double, true)
}

// BinaryAccuracy returns the fraction of pixels whose thresholded
// prediction equals the thresholded target, as a scalar tensor.
func BinaryAccuracy(pred, target *ts.Tensor) *ts.Tensor {
	p := binarize(pred)
	t := binarize(target)
	eq := p.MustEqTensor(t, true)
	t.MustDrop()

	return eq.MustTotype(gotch.Double, true).MustMean(gotch.Double, true)
}

// DiceCoeff measures overlap between thresholded prediction and target:
// 2|P∩T| / (|P|+|T|). Two empty masks score 1.
// Ref. http://campar.in.tum.de/pub/milletari2016Vnet/milletari2016Vnet.pdf
func DiceCoeff(pred, target *ts.Tensor) float64 {
	p := binarize(pred)
	t := binarize(target)
	overlap, pSum, tSum := counts(p, t)
	p.MustDrop()
	t.MustDrop()

	if pSum+tSum == 0 {
		return 1
	}
	return 2 * overlap / (pSum + tSum)
}

// IoU is the Jaccard index of thresholded prediction and target:
// |P∩T| / |P∪T|. Two empty masks score 1.
func IoU(pred, target *ts.Tensor) float64 {
	p := binarize(pred)
	t := binarize(target)
	overlap, pSum, tSum := counts(p, t)
	p.MustDrop()
	t.MustDrop()

	union := pSum + tSum - overlap
	if union == 0 {
		return 1
	}
	return overlap / union
}

func counts(p, t *ts.Tensor) (overlap, pSum, tSum float64) {
	pt := p.MustMul(t, false)
	overlap = pt.MustSum(gotch.Double, true).Float64Values()[0]
	pSum = p.MustSum(gotch.Double, false).Float64Values()[0]
	tSum = t.MustSum(gotch.Double, false).Float64Values()[0]
	return overlap, pSum, tSum
}
