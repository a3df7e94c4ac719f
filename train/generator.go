package train

import (
	"errors"

	"github.com/sugarme/gotch/ts"
)

// Batch is one step of training data: input stacks [N,C,H,W] and
// ground-truth masks [N,1,H,W]. The consumer owns and drops it.
type Batch struct {
	Input  *ts.Tensor
	Target *ts.Tensor
}

// Drop frees both tensors.
func (b *Batch) Drop() {
	if b.Input != nil {
		b.Input.MustDrop()
	}
	if b.Target != nil {
		b.Target.MustDrop()
	}
}

// Generator is a restartable, in principle infinite sequence of batches.
// Next is called once per step; Reset restarts the sequence.
type Generator interface {
	Next() (*Batch, error)
	Reset() error
}

// ErrEmptyGenerator is returned by a generator with nothing to yield.
var ErrEmptyGenerator = errors.New("generator has no batches")

// SliceGenerator cycles over fixed batches. Each Next returns shallow
// copies, so the caller may drop them while the generator keeps its own.
type SliceGenerator struct {
	batches []Batch
	next    int
}

// NewSliceGenerator creates a SliceGenerator over batches.
func NewSliceGenerator(batches ...Batch) *SliceGenerator {
	return &SliceGenerator{batches: batches}
}

// Next implements Generator.
func (g *SliceGenerator) Next() (*Batch, error) {
	if len(g.batches) == 0 {
		return nil, ErrEmptyGenerator
	}
	b := g.batches[g.next%len(g.batches)]
	g.next++

	return &Batch{
		Input:  b.Input.MustShallowClone(),
		Target: b.Target.MustShallowClone(),
	}, nil
}

// Reset implements Generator.
func (g *SliceGenerator) Reset() error {
	g.next = 0
	return nil
}
