package refine_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/refine"
	"github.com/sugarme/maskrefine/stack"
	"github.com/sugarme/maskrefine/tsutil"
	"github.com/sugarme/maskrefine/unet"
)

// recorder is a fake flow estimator returning a random field and
// remembering the frame size it was given.
type recorder struct {
	size []int64
}

func (r *recorder) ComputeFlow(prev, curr *ts.Tensor) (*flow.Field, error) {
	if err := flow.CheckFramePair(prev, curr); err != nil {
		return nil, err
	}
	r.size = prev.MustSize()
	return flow.NewField(ts.MustRandn([]int64{2, r.size[1], r.size[2]}, gotch.Float, gotch.CPU))
}

func narrow(t *testing.T, variant model.Variant) *model.Model {
	m, err := model.New(gotch.CPU, model.Config{Variant: variant, UNet: &unet.Config{BaseWidth: 4}})
	require.NoError(t, err)
	return m
}

func frames(h, w int64) (prev, curr, mask *ts.Tensor) {
	prev = ts.MustRand([]int64{3, h, w}, gotch.Float, gotch.CPU)
	curr = ts.MustRand([]int64{3, h, w}, gotch.Float, gotch.CPU)
	mask = ts.MustRand([]int64{1, h, w}, gotch.Float, gotch.CPU)
	return prev, curr, mask
}

func requireProbabilities(t *testing.T, x *ts.Tensor) {
	for _, v := range x.Float64Values() {
		require.True(t, v >= 0 && v <= 1, "%v", v)
	}
}

func TestRefineMask(t *testing.T) {
	est := &recorder{}
	r, err := refine.NewRefiner(narrow(t, model.Refinement), est, zerolog.Nop())
	require.NoError(t, err)

	prev, curr, mask := frames(13, 21)
	out, err := r.RefineMask(prev, curr, mask)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 13, 21}, out.MustSize())
	requireProbabilities(t, out)

	// flow was computed on the padded frames
	require.Equal(t, []int64{3, 16, 24}, est.size)
}

func TestRefineMaskSmallFrames(t *testing.T) {
	est := &recorder{}
	r, err := refine.NewRefiner(narrow(t, model.Refinement), est, zerolog.Nop())
	require.NoError(t, err)

	// sides below the net's minimum are padded up to it
	prev, curr, mask := frames(5, 8)
	out, err := r.RefineMask(prev, curr, mask)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 5, 8}, out.MustSize())
	require.Equal(t, []int64{3, model.MinSize, model.MinSize}, est.size)

	p, err := refine.NewPropagator(narrow(t, model.Propagation), est, zerolog.Nop())
	require.NoError(t, err)
	prev, curr, mask = frames(8, 20)
	out, err = p.PropagateMask(prev, curr, mask)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 8, 20}, out.MustSize())
	require.Equal(t, []int64{3, model.MinSize, 24}, est.size)
}

func TestRefineStack(t *testing.T) {
	r, err := refine.NewRefiner(narrow(t, model.Refinement), &recorder{}, zerolog.Nop())
	require.NoError(t, err)

	prev, curr, mask := frames(16, 16)
	pair, err := stack.BuildPairInput(prev, curr, mask)
	require.NoError(t, err)

	out, err := r.RefineStack(pair)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 16, 16}, out.MustSize())
}

func TestRefineMaskErrors(t *testing.T) {
	r, err := refine.NewRefiner(narrow(t, model.Refinement), &recorder{}, zerolog.Nop())
	require.NoError(t, err)

	prev, curr, _ := frames(16, 16)
	badMask := ts.MustRand([]int64{1, 16, 24}, gotch.Float, gotch.CPU)
	_, err = r.RefineMask(prev, curr, badMask)
	require.True(t, errors.Is(err, tsutil.ErrShapeMismatch))

	failing := flow.EstimatorFunc(func(prev, curr *ts.Tensor) (*flow.Field, error) {
		return nil, flow.ErrEstimator
	})
	r, err = refine.NewRefiner(narrow(t, model.Refinement), failing, zerolog.Nop())
	require.NoError(t, err)
	_, _, mask := frames(16, 16)
	_, err = r.RefineMask(prev, curr, mask)
	require.True(t, errors.Is(err, flow.ErrEstimator))

	_, err = refine.NewRefiner(narrow(t, model.Propagation), &recorder{}, zerolog.Nop())
	require.Error(t, err)
}

func TestPropagateMask(t *testing.T) {
	p, err := refine.NewPropagator(narrow(t, model.Propagation), &recorder{}, zerolog.Nop())
	require.NoError(t, err)

	prev, curr, mask := frames(20, 17)
	out, err := p.PropagateMask(prev, curr, mask)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 20, 17}, out.MustSize())
	requireProbabilities(t, out)

	_, err = refine.NewPropagator(narrow(t, model.Refinement), &recorder{}, zerolog.Nop())
	require.Error(t, err)
}
