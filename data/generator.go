package data

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/train"
	"github.com/sugarme/maskrefine/tsutil"
)

// Generator yields batches of samples forever, reshuffling after every
// pass over the dataset. It implements train.Generator.
//
// Samples that fail with a shape error are skipped, counted and logged;
// any other error is returned.
type Generator struct {
	ds        *Dataset
	batchSize int
	seed      int64
	shuffle   bool

	rng     *rand.Rand
	order   []int
	pos     int
	skipped int
	logger  zerolog.Logger
}

// NewGenerator creates a Generator. With shuffle off, pairs come in scan
// order.
func NewGenerator(ds *Dataset, batchSize int, shuffle bool, seed int64) (*Generator, error) {
	if ds.Len() == 0 {
		return nil, train.ErrEmptyGenerator
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("generator: invalid batch size %d", batchSize)
	}
	g := &Generator{
		ds:        ds,
		batchSize: batchSize,
		seed:      seed,
		shuffle:   shuffle,
		logger:    ds.options.Logger,
	}
	if err := g.Reset(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reset implements train.Generator: the sequence restarts from the same
// seed.
func (g *Generator) Reset() error {
	g.rng = rand.New(rand.NewSource(g.seed))
	g.newPass()
	return nil
}

func (g *Generator) newPass() {
	g.order = make([]int, g.ds.Len())
	for i := range g.order {
		g.order[i] = i
	}
	if g.shuffle {
		g.rng.Shuffle(len(g.order), func(i, j int) {
			g.order[i], g.order[j] = g.order[j], g.order[i]
		})
	}
	g.pos = 0
}

// Skipped returns how many samples were skipped so far.
func (g *Generator) Skipped() int {
	return g.skipped
}

// Next implements train.Generator.
func (g *Generator) Next() (*train.Batch, error) {
	var (
		inputs  []*ts.Tensor
		targets []*ts.Tensor
		failed  int
	)
	defer func() {
		dropAll(inputs)
		dropAll(targets)
	}()

	for len(inputs) < g.batchSize {
		if g.pos >= len(g.order) {
			g.newPass()
		}
		idx := g.order[g.pos]
		g.pos++

		s, err := g.ds.Sample(idx)
		if err == nil && len(inputs) > 0 {
			err = tsutil.CheckSameSpatial("batch", inputs[0], s.Input)
			if err != nil {
				s.Drop()
			}
		}
		if err != nil {
			if !errors.Is(err, tsutil.ErrShapeMismatch) {
				return nil, err
			}
			g.skipped++
			failed++
			g.logger.Warn().Str("component", "data").Int("sample", idx).Int("skipped", g.skipped).Err(err).Msg("sample skipped")
			if failed >= g.ds.Len() {
				return nil, fmt.Errorf("generator: no usable sample in %d attempts: %w", failed, err)
			}
			continue
		}
		inputs = append(inputs, s.Input)
		targets = append(targets, s.Target)
	}

	return &train.Batch{
		Input:  ts.MustStack(inputs, 0),
		Target: ts.MustStack(targets, 0),
	}, nil
}
