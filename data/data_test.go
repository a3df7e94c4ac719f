package data_test

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/data"
	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/tsutil"
)

// randomFlow is a stand-in estimator.
var randomFlow = flow.EstimatorFunc(func(prev, curr *ts.Tensor) (*flow.Field, error) {
	if err := flow.CheckFramePair(prev, curr); err != nil {
		return nil, err
	}
	size := prev.MustSize()
	return flow.NewField(ts.MustRandn([]int64{2, size[1], size[2]}, gotch.Float, gotch.CPU))
})

func frame(w, h int) image.Image {
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	return img
}

// mask paints the left half white.
func mask(w, h int) image.Image {
	img := imaging.New(w, h, color.NRGBA{A: 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func save(t *testing.T, img image.Image, path string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, imaging.Save(img, path))
}

// davis writes a small DAVIS tree:
//
//	bear: 3 annotated 30x20 frames
//	odd:  2 annotated frames of different height
//	gap:  3 frames, the middle one unannotated
func davis(t *testing.T) string {
	root := t.TempDir()
	img := func(seq, name string) string { return filepath.Join(root, "JPEGImages", "480p", seq, name+".jpg") }
	ann := func(seq, name string) string { return filepath.Join(root, "Annotations", "480p", seq, name+".png") }

	for _, n := range []string{"00000", "00001", "00002"} {
		save(t, frame(30, 20), img("bear", n))
		save(t, mask(30, 20), ann("bear", n))
		save(t, frame(30, 20), img("gap", n))
		if n != "00001" {
			save(t, mask(30, 20), ann("gap", n))
		}
	}
	save(t, frame(30, 20), img("odd", "00000"))
	save(t, mask(30, 20), ann("odd", "00000"))
	save(t, frame(30, 24), img("odd", "00001"))
	save(t, mask(30, 24), ann("odd", "00001"))

	return root
}

func TestScan(t *testing.T) {
	pairs, err := data.Scan(davis(t), "480p")
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	require.Equal(t, []string{"bear", "odd"}, data.Sequences(pairs))
	require.Equal(t, "00000.jpg", filepath.Base(pairs[0].PrevImage))
	require.Equal(t, "00001.png", filepath.Base(pairs[0].CurrMask))

	_, err = data.Scan(t.TempDir(), "480p")
	require.Error(t, err)
}

func TestSplitBySequence(t *testing.T) {
	pairs := []data.Pair{{Sequence: "a"}, {Sequence: "b"}, {Sequence: "b"}, {Sequence: "c"}}

	tr, val := data.SplitBySequence(pairs, []string{"b"}, 0)
	require.Len(t, tr, 2)
	require.Len(t, val, 2)

	tr, val = data.SplitBySequence(pairs, nil, 0.2)
	require.Len(t, tr, 3)
	require.Equal(t, []data.Pair{{Sequence: "c"}}, val)

	tr, val = data.SplitBySequence(pairs, nil, 0)
	require.Len(t, tr, 4)
	require.Empty(t, val)
}

func TestSampleRefinement(t *testing.T) {
	pairs, err := data.Scan(davis(t), "480p")
	require.NoError(t, err)
	ds := data.NewDataset(pairs, randomFlow, data.Options{Mode: data.Refinement})

	s, err := ds.Sample(0)
	require.NoError(t, err)
	require.Equal(t, []int64{6, 24, 32}, s.Input.MustSize())
	require.Equal(t, []int64{1, 24, 32}, s.Target.MustSize())

	for _, v := range s.Target.Float64Values() {
		require.True(t, v == 0 || v == 1, "%v", v)
	}
	// mask channel equals the padded previous mask
	require.Equal(t, s.Target.Float64Values(), s.Input.MustSelect(0, 3, false).Float64Values())
	s.Drop()

	// odd sequence mixes frame sizes
	_, err = ds.Sample(2)
	require.True(t, errors.Is(err, tsutil.ErrShapeMismatch))

	_, err = ds.Sample(3)
	require.Error(t, err)
}

func TestSamplePropagationResized(t *testing.T) {
	pairs, err := data.Scan(davis(t), "480p")
	require.NoError(t, err)
	ds := data.NewDataset(pairs, randomFlow, data.Options{Mode: data.Propagation, Width: 16, Height: 16})
	require.Equal(t, int64(3), ds.Mode().Channels())

	s, err := ds.Sample(0)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 16, 16}, s.Input.MustSize())

	// resizing makes the odd pair usable
	s, err = ds.Sample(2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 16, 16}, s.Target.MustSize())
}

func TestGeneratorSkips(t *testing.T) {
	pairs, err := data.Scan(davis(t), "480p")
	require.NoError(t, err)
	ds := data.NewDataset(pairs, randomFlow, data.Options{})

	g, err := data.NewGenerator(ds, 2, false, 1)
	require.NoError(t, err)

	b, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, []int64{2, 6, 24, 32}, b.Input.MustSize())
	require.Equal(t, []int64{2, 1, 24, 32}, b.Target.MustSize())
	b.Drop()
	require.Equal(t, 0, g.Skipped())

	// odd pair is skipped, then the generator wraps around
	b, err = g.Next()
	require.NoError(t, err)
	require.Equal(t, int64(2), b.Input.MustSize()[0])
	require.Equal(t, 1, g.Skipped())

	require.NoError(t, g.Reset())
	b, err = g.Next()
	require.NoError(t, err)
	require.Equal(t, int64(2), b.Input.MustSize()[0])

	_, err = data.NewGenerator(data.NewDataset(nil, randomFlow, data.Options{}), 2, true, 1)
	require.Error(t, err)
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "frame.tif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, frame(12, 8), nil))
	require.NoError(t, f.Close())

	img, err := data.ReadImage(path)
	require.NoError(t, err)
	require.Equal(t, 12, img.Bounds().Dx())

	x := data.ImageTensor(img)
	require.Equal(t, []int64{3, 8, 12}, x.MustSize())
	vals := x.MustSelect(0, 0, false).Float64Values()
	require.InDelta(t, 200.0/255, vals[0], 1e-6)

	_, err = data.ReadImage(filepath.Join(dir, "frame.bmp"))
	require.Error(t, err)
}

func TestSaveMask(t *testing.T) {
	dir := t.TempDir()
	m := ts.MustOfSlice([]float32{0.25, 0.75, 1, 0, 0.5, 1}).MustView([]int64{1, 2, 3}, true)

	img, err := data.MaskImage(m, 0)
	require.NoError(t, err)
	require.Equal(t, []uint8{64, 191, 255, 0, 128, 255}, img.Pix)

	bin, err := data.MaskImage(m, 0.5)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 255, 255, 0, 0, 255}, bin.Pix)

	for _, name := range []string{"out/mask.png", "out/mask.tif"} {
		path := filepath.Join(dir, name)
		require.NoError(t, data.SaveMask(path, m, 0.5))

		back, err := data.ReadImage(path)
		require.NoError(t, err)
		x := data.MaskTensor(back)
		require.Equal(t, []int64{1, 2, 3}, x.MustSize())
		require.Equal(t, []float64{0, 1, 1, 0, 0, 1}, x.MustView([]int64{-1}, false).Float64Values())
	}

	_, err = data.MaskImage(ts.MustOnes([]int64{2, 2, 3}, gotch.Float, gotch.CPU), 0)
	require.Error(t, err)
}
