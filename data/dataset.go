// Package data reads DAVIS-style video sequences and turns consecutive
// frame pairs into network inputs and ground-truth masks.
//
// Expected layout under root:
//
//	JPEGImages/<resolution>/<sequence>/00000.jpg ...
//	Annotations/<resolution>/<sequence>/00000.png ...
package data

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/stack"
	"github.com/sugarme/maskrefine/tsutil"
)

// Pair is two consecutive annotated frames of a sequence.
type Pair struct {
	Sequence  string
	PrevImage string
	CurrImage string
	PrevMask  string
	CurrMask  string
}

// Scan lists the consecutive frame pairs of every sequence under root.
// Frames without an annotation are left out; a pair is only formed from
// neighbouring annotated frames.
func Scan(root, resolution string) ([]Pair, error) {
	imgRoot := filepath.Join(root, "JPEGImages", resolution)
	maskRoot := filepath.Join(root, "Annotations", resolution)

	seqs, err := os.ReadDir(imgRoot)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", root, err)
	}

	var pairs []Pair
	for _, seq := range seqs {
		if !seq.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(imgRoot, seq.Name()))
		if err != nil {
			return nil, err
		}

		var frames []string
		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if f.IsDir() || (ext != ".jpg" && ext != ".jpeg" && ext != ".png") {
				continue
			}
			frames = append(frames, f.Name())
		}
		sort.Strings(frames)

		for i := 1; i < len(frames); i++ {
			prevMask := maskPath(maskRoot, seq.Name(), frames[i-1])
			currMask := maskPath(maskRoot, seq.Name(), frames[i])
			if !exists(prevMask) || !exists(currMask) {
				continue
			}
			pairs = append(pairs, Pair{
				Sequence:  seq.Name(),
				PrevImage: filepath.Join(imgRoot, seq.Name(), frames[i-1]),
				CurrImage: filepath.Join(imgRoot, seq.Name(), frames[i]),
				PrevMask:  prevMask,
				CurrMask:  currMask,
			})
		}
	}

	return pairs, nil
}

func maskPath(root, seq, frame string) string {
	name := strings.TrimSuffix(frame, filepath.Ext(frame)) + ".png"
	return filepath.Join(root, seq, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Sequences returns the distinct sequence names of pairs in name order.
func Sequences(pairs []Pair) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range pairs {
		if !seen[p.Sequence] {
			seen[p.Sequence] = true
			names = append(names, p.Sequence)
		}
	}
	sort.Strings(names)
	return names
}

// SplitBySequence assigns whole sequences to validation: the named
// valSequences if any, otherwise the last valFraction of the sequences in
// name order (at least one when valFraction > 0).
func SplitBySequence(pairs []Pair, valSequences []string, valFraction float64) (trainPairs, valPairs []Pair) {
	val := make(map[string]bool)
	if len(valSequences) > 0 {
		for _, s := range valSequences {
			val[s] = true
		}
	} else if valFraction > 0 {
		names := Sequences(pairs)
		n := int(float64(len(names))*valFraction + 0.5)
		if n == 0 {
			n = 1
		}
		if n > len(names) {
			n = len(names)
		}
		for _, s := range names[len(names)-n:] {
			val[s] = true
		}
	}

	for _, p := range pairs {
		if val[p.Sequence] {
			valPairs = append(valPairs, p)
		} else {
			trainPairs = append(trainPairs, p)
		}
	}
	return trainPairs, valPairs
}

// Mode selects which network input a Dataset builds.
type Mode int

const (
	// Refinement builds [curr image, coarse mask, flow]; the previous mask
	// serves as the coarse mask.
	Refinement Mode = iota
	// Propagation builds [prev mask, flow].
	Propagation
)

// Channels returns the input channel count of m.
func (m Mode) Channels() int64 {
	if m == Propagation {
		return stack.PropagationChannels
	}
	return stack.RefinementChannels
}

// Sample is one network input and its ground truth.
type Sample struct {
	Input  *ts.Tensor // [C,H,W]
	Target *ts.Tensor // [1,H,W]
}

// Drop frees both tensors.
func (s *Sample) Drop() {
	s.Input.MustDrop()
	s.Target.MustDrop()
}

// Options configures a Dataset.
type Options struct {
	Mode Mode
	// Width and Height, if both set, resize every frame before padding.
	Width, Height int
	Logger        zerolog.Logger
}

// Dataset builds samples from frame pairs.
type Dataset struct {
	pairs   []Pair
	flow    flow.Estimator
	options Options
}

// NewDataset creates a Dataset over pairs using est for optical flow.
func NewDataset(pairs []Pair, est flow.Estimator, options Options) *Dataset {
	return &Dataset{pairs: pairs, flow: est, options: options}
}

// Len returns the number of pairs.
func (ds *Dataset) Len() int {
	return len(ds.pairs)
}

// Mode returns the dataset mode.
func (ds *Dataset) Mode() Mode {
	return ds.options.Mode
}

// Sample loads pair i and builds its input stack and target mask, both
// padded to a multiple of 8. Frames or masks of different sizes give a
// *tsutil.ShapeError.
func (ds *Dataset) Sample(i int) (*Sample, error) {
	if i < 0 || i >= len(ds.pairs) {
		return nil, fmt.Errorf("sample %d out of range [0,%d)", i, len(ds.pairs))
	}
	p := ds.pairs[i]

	prevImg, err := ds.load(p.PrevImage, false)
	if err != nil {
		return nil, err
	}
	currImg, err := ds.load(p.CurrImage, false)
	if err != nil {
		return nil, err
	}
	prevMask, err := ds.load(p.PrevMask, true)
	if err != nil {
		return nil, err
	}
	currMask, err := ds.load(p.CurrMask, true)
	if err != nil {
		return nil, err
	}

	op := fmt.Sprintf("sample %v/%v", p.Sequence, filepath.Base(p.CurrImage))
	parts := []*ts.Tensor{ImageTensor(prevImg), ImageTensor(currImg), MaskTensor(prevMask), MaskTensor(currMask)}
	defer dropAll(parts)
	if err := tsutil.CheckSameSpatial(op, parts...); err != nil {
		return nil, err
	}

	padded := make([]*ts.Tensor, 0, len(parts))
	defer func() { dropAll(padded) }()
	for _, x := range parts {
		px, err := tsutil.PadToMultipleOf8(x)
		if err != nil {
			return nil, err
		}
		padded = append(padded, px)
	}

	field, err := ds.flow.ComputeFlow(padded[0], padded[1])
	if err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}
	defer field.Drop()
	if err := field.Normalize(); err != nil {
		return nil, fmt.Errorf("%v: %w", op, err)
	}

	var input *ts.Tensor
	switch ds.options.Mode {
	case Propagation:
		input, err = stack.BuildPropagationInput(padded[2], field)
	default:
		input, err = stack.BuildRefinementInput(padded[1], padded[2], field)
	}
	if err != nil {
		return nil, err
	}

	return &Sample{Input: input, Target: padded[3].MustShallowClone()}, nil
}

func (ds *Dataset) load(path string, mask bool) (image.Image, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	if ds.options.Width > 0 && ds.options.Height > 0 {
		img = Resize(img, ds.options.Width, ds.options.Height, mask)
	}
	return img, nil
}

func dropAll(xs []*ts.Tensor) {
	for _, x := range xs {
		x.MustDrop()
	}
}
