package metric

import (
	"fmt"

	"github.com/sugarme/gotch/ts"
)

// Epsilon keeps logarithms of probabilities finite.
const Epsilon = 1e-7

// Names of the registered losses.
const (
	BinaryCrossEntropyName = "binary_crossentropy"
	BinaryFocalName        = "binary_focal"
	ContrastiveName        = "contrastive"
)

// LossFunc reduces a predicted probability mask and its ground truth (same
// shape, values in [0,1]) to a scalar training objective.
type LossFunc func(pred, target *ts.Tensor) *ts.Tensor

// Loss returns the registered loss with default parameters.
func Loss(name string) (LossFunc, error) {
	switch name {
	case "", BinaryCrossEntropyName:
		return BinaryCrossEntropy, nil
	case BinaryFocalName:
		return BinaryFocalLoss(2), nil
	case ContrastiveName:
		return ContrastiveLoss(1), nil
	default:
		return nil, fmt.Errorf("unknown loss %q (want %v, %v or %v)", name, BinaryCrossEntropyName, BinaryFocalName, ContrastiveName)
	}
}

// oneMinus returns 1-x.
func oneMinus(x *ts.Tensor) *ts.Tensor {
	return x.MustMulScalar(ts.FloatScalar(-1), false).MustAddScalar(ts.FloatScalar(1), true)
}

// BinaryCrossEntropy is the mean of -(y*log(p) + (1-y)*log(1-p)) with p
// clamped to [Epsilon, 1-Epsilon].
func BinaryCrossEntropy(pred, target *ts.Tensor) *ts.Tensor {
	p := pred.MustClamp(ts.FloatScalar(Epsilon), ts.FloatScalar(1-Epsilon), false)
	p1 := oneMinus(p)
	t1 := oneMinus(target)

	logp := p.MustLog(true)
	logn := p1.MustLog(true)

	// y*log(p)
	tlogp := target.MustMul(logp, false)
	logp.MustDrop()
	// (1-y)*log(1-p)
	t1logn := t1.MustMul(logn, true)
	logn.MustDrop()

	sum := tlogp.MustAdd(t1logn, true)
	t1logn.MustDrop()

	mean := sum.MustMean(pred.DType(), true)

	return mean.MustMulScalar(ts.FloatScalar(-1), true)
}

// BinaryFocalLoss returns the focal loss
//
//	pt   = y*p + (1-y)*(1-p)
//	loss = sum(-(1-pt)^gamma * log(pt))
//
// pt is clamped to [Epsilon, 1] before the log: a pixel with pt=1 costs
// exactly 0 and one with pt=0 costs -log(Epsilon) (about 16.118).
//
// Legacy: kept for training the propagation net; binary_crossentropy is the
// maintained objective.
func BinaryFocalLoss(gamma float64) LossFunc {
	return func(pred, target *ts.Tensor) *ts.Tensor {
		yp := target.MustMul(pred, false)
		t1 := oneMinus(target)
		p1 := oneMinus(pred)
		ynpn := t1.MustMul(p1, true)
		p1.MustDrop()

		pt := yp.MustAdd(ynpn, true).MustClamp(ts.FloatScalar(Epsilon), ts.FloatScalar(1), true)
		ynpn.MustDrop()

		weight := oneMinus(pt).MustPowTensorScalar(ts.FloatScalar(gamma), true)
		logpt := pt.MustLog(true)

		loss := weight.MustMul(logpt, true)
		logpt.MustDrop()

		return loss.MustSum(pred.DType(), true).MustMulScalar(ts.FloatScalar(-1), true)
	}
}

// ContrastiveLoss returns the per-pixel contrastive loss
//
//	D    = 0.5*(y-p)^2
//	loss = sum((1-y)*D + y*max(0, margin-D)^2)
//
// It treats every pixel as its own pair. Legacy, see BinaryFocalLoss.
func ContrastiveLoss(margin float64) LossFunc {
	return func(pred, target *ts.Tensor) *ts.Tensor {
		diff := target.MustSub(pred, false)
		d := diff.MustMul(diff, true).MustMulScalar(ts.FloatScalar(0.5), true)

		// max(0, margin-D)^2
		hinge := d.MustMulScalar(ts.FloatScalar(-1), false).
			MustAddScalar(ts.FloatScalar(margin), true).
			MustRelu(true)
		hinge2 := hinge.MustMul(hinge, true)

		t1 := oneMinus(target)
		neg := t1.MustMul(d, true)
		d.MustDrop()
		pos := target.MustMul(hinge2, false)
		hinge2.MustDrop()

		loss := neg.MustAdd(pos, true)
		pos.MustDrop()

		return loss.MustSum(pred.DType(), true)
	}
}
