// Package flow adapts optical-flow estimators to the mask refinement
// pipeline. An estimator turns two frames into a dense displacement field;
// how it does so (a learned network, a classical method) is its own
// business.
package flow

import (
	"errors"
	"fmt"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/tsutil"
)

// ErrEstimator marks failures inside an estimator (model load, forward).
var ErrEstimator = errors.New("flow estimator failed")

// Estimator computes the flow from prev to curr. Both images are [3,H,W]
// with values in [0,1]; the result is a [2,H,W] field of the same height
// and width. Implementations do not retry or cache.
type Estimator interface {
	ComputeFlow(prev, curr *ts.Tensor) (*Field, error)
}

// EstimatorFunc lets a plain function act as an Estimator.
type EstimatorFunc func(prev, curr *ts.Tensor) (*Field, error)

// ComputeFlow implements Estimator.
func (f EstimatorFunc) ComputeFlow(prev, curr *ts.Tensor) (*Field, error) {
	return f(prev, curr)
}

// CheckFramePair validates the inputs of ComputeFlow.
func CheckFramePair(prev, curr *ts.Tensor) error {
	const op = "compute flow"
	if err := tsutil.CheckSameSpatial(op, prev, curr); err != nil {
		return err
	}
	if len(prev.MustSize()) != 3 {
		return tsutil.NewShapeError(op, "expected single [3,H,W] frames", prev, curr)
	}
	if err := tsutil.CheckChannels(op, prev, 3); err != nil {
		return err
	}
	return tsutil.CheckChannels(op, curr, 3)
}

// checkResult verifies that an estimator returned a field matching frame.
func checkResult(field *Field, frame *ts.Tensor) error {
	h, w, _ := tsutil.SpatialSize(frame)
	size := field.Tensor().MustSize()
	if len(size) != 3 || size[1] != h || size[2] != w {
		return fmt.Errorf("%w: %v", ErrEstimator, tsutil.NewShapeError("compute flow", fmt.Sprintf("estimator returned %v for %vx%v frames", size, h, w)))
	}
	return nil
}
