package model

import (
	"fmt"
	"math"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/metric"
	"github.com/sugarme/maskrefine/tsutil"
)

// StepMetrics are the metrics tracked for every batch regardless of the
// compiled loss.
type StepMetrics struct {
	Loss         float64
	Accuracy     float64 // binary accuracy
	CrossEntropy float64 // binary cross-entropy
	Dice         float64
}

// checkBatch validates an input stack and its ground-truth masks.
func (m *Model) checkBatch(op string, x, y *ts.Tensor) error {
	if err := m.checkInput(op, x); err != nil {
		return err
	}
	if len(y.MustSize()) != 4 {
		return tsutil.NewShapeError(op, "expected batched [N,1,H,W] target", x, y)
	}
	if err := tsutil.CheckChannels(op, y, 1); err != nil {
		return err
	}
	return tsutil.CheckSameSpatial(op, x, y)
}

// TrainStep runs one gradient update on batch x with targets y.
func (m *Model) TrainStep(x, y *ts.Tensor) (StepMetrics, error) {
	if err := m.checkBatch("train step", x, y); err != nil {
		return StepMetrics{}, err
	}

	input := x.MustTo(m.device, false).MustTotype(gotch.Float, true)
	target := y.MustTo(m.device, false).MustTotype(gotch.Float, true)
	defer target.MustDrop()

	pred := m.net.ForwardT(input, true)
	input.MustDrop()
	defer pred.MustDrop()

	loss := m.loss(pred, target)
	lossVal := loss.Float64Values()[0]
	if math.IsNaN(lossVal) || math.IsInf(lossVal, 0) {
		loss.MustDrop()
		return StepMetrics{}, fmt.Errorf("train step: loss is %v", lossVal)
	}
	if err := m.opt.BackwardStep(loss); err != nil {
		loss.MustDrop()
		return StepMetrics{}, fmt.Errorf("train step: %w", err)
	}
	loss.MustDrop()

	sm := StepMetrics{Loss: lossVal}
	ts.NoGrad(func() {
		p := pred.MustDetach(false)
		scores(&sm, p, target)
		p.MustDrop()
	})

	return sm, nil
}

// EvalStep computes metrics on batch x with targets y without touching the
// parameters.
func (m *Model) EvalStep(x, y *ts.Tensor) (StepMetrics, error) {
	if err := m.checkBatch("eval step", x, y); err != nil {
		return StepMetrics{}, err
	}

	var sm StepMetrics
	ts.NoGrad(func() {
		input := x.MustTo(m.device, false).MustTotype(gotch.Float, true)
		target := y.MustTo(m.device, false).MustTotype(gotch.Float, true)
		pred := m.net.ForwardT(input, false)
		input.MustDrop()

		loss := m.loss(pred, target)
		sm.Loss = loss.Float64Values()[0]
		loss.MustDrop()

		scores(&sm, pred, target)
		pred.MustDrop()
		target.MustDrop()
	})

	return sm, nil
}

func scores(sm *StepMetrics, pred, target *ts.Tensor) {
	acc := metric.BinaryAccuracy(pred, target)
	sm.Accuracy = acc.Float64Values()[0]
	acc.MustDrop()

	bce := metric.BinaryCrossEntropy(pred, target)
	sm.CrossEntropy = bce.Float64Values()[0]
	bce.MustDrop()

	sm.Dice = metric.DiceCoeff(pred, target)
}
