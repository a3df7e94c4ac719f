package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/base"
)

// Stage is one encoder level: double 3x3 conv followed by optional dropout.
// Pooling is applied by the caller so the pre-pool map can serve as a skip.
type Stage struct {
	DoubleConv *nn.SequentialT
	Drop       ts.ModuleT
}

// NewStage creates a Stage.
func NewStage(p *nn.Path, cIn, cOut int64, dropout float64) *Stage {
	return &Stage{
		DoubleConv: base.DoubleConv(p, cIn, cOut),
		Drop:       base.Dropout(dropout),
	}
}

// ForwardT implements ts.ModuleT for Stage.
func (s *Stage) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := s.DoubleConv.ForwardT(x, train)
	out := s.Drop.ForwardT(c, train)
	c.MustDrop()

	return out
}

// ContractingPath is the UNet encoder: 4 conv stages with 2x2 max-pooling
// in between, then a bottleneck stage without pooling.
//
// With base width 64 the stage widths are 64, 128, 256, 512 and the
// bottleneck is 1024. Stage 4 and the bottleneck apply dropout.
type ContractingPath struct {
	stages     []*Stage
	bottleneck *Stage
	channels   []int64
}

// NewContractingPath creates a ContractingPath for cIn input channels.
func NewContractingPath(p *nn.Path, cIn, width int64, dropout float64) *ContractingPath {
	var (
		stages   []*Stage
		channels []int64
	)

	in := cIn
	out := width
	for i := 1; i <= 4; i++ {
		var drop float64
		if i == 4 {
			drop = dropout
		}
		stages = append(stages, NewStage(p.Sub(fmt.Sprintf("stage%d", i)), in, out, drop))
		channels = append(channels, out)
		in = out
		out *= 2
	}

	bottleneck := NewStage(p.Sub("bottleneck"), in, out, dropout)
	channels = append(channels, out)

	return &ContractingPath{
		stages:     stages,
		bottleneck: bottleneck,
		channels:   channels,
	}
}

// ForwardAll implements Encoder interface for ContractingPath.
//
// For x [B C H W] with base width 64 it returns:
// 0- [B   64 H    W   ]
// 1- [B  128 H/2  W/2 ]
// 2- [B  256 H/4  W/4 ]
// 3- [B  512 H/8  W/8 ]
// 4- [B 1024 H/16 W/16]
func (e *ContractingPath) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, 0, len(e.stages)+1)

	input := x
	for i, s := range e.stages {
		f := s.ForwardT(input, train)
		if i > 0 {
			input.MustDrop()
		}
		features = append(features, f)
		input = base.MaxPool2x2(f)
	}

	bottom := e.bottleneck.ForwardT(input, train)
	input.MustDrop()
	features = append(features, bottom)

	return features
}

// Channels implements Encoder interface for ContractingPath.
func (e *ContractingPath) Channels() []int64 {
	return e.channels
}
