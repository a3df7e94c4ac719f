// Package model wraps a segmentation UNet with its parameters, optimizer
// and loss: build, predict, train step and weight files.
package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/maskrefine/metric"
	"github.com/sugarme/maskrefine/tsutil"
	"github.com/sugarme/maskrefine/unet"
)

// ErrWeightMismatch is returned when a weight file does not fit the graph.
var ErrWeightMismatch = errors.New("weights do not match model")

// DefaultLearningRate is the Adam step size.
const DefaultLearningRate = 1e-4

// MinSize is the smallest height and width the four poolings accept.
const MinSize = 16

// Variant names a network variant.
type Variant string

// Network variants.
const (
	Refinement  Variant = "refinement"
	Propagation Variant = "propagation" // legacy
)

// Config configures New.
type Config struct {
	// Variant defaults to Refinement.
	Variant Variant

	// UNet overrides the variant's default network; InChannels is taken
	// from the variant when zero.
	UNet *unet.Config

	LearningRate float64         // default DefaultLearningRate
	Loss         string          // registered loss name, see metric.Loss
	LossFunc     metric.LossFunc // takes precedence over Loss
	Logger       zerolog.Logger
}

// Model owns the var store, the net, the optimizer and the loss.
type Model struct {
	vs       *nn.VarStore
	net      *unet.UNet
	opt      *nn.Optimizer
	loss     metric.LossFunc
	lossName string
	device   gotch.Device
	logger   zerolog.Logger
}

// New builds and compiles a model on device.
func New(device gotch.Device, config Config) (*Model, error) {
	variant := config.Variant
	if variant == "" {
		variant = Refinement
	}

	var cfg unet.Config
	switch variant {
	case Refinement:
		cfg = unet.DefaultConfig(unet.RefinementChannels)
	case Propagation:
		cfg = unet.DefaultConfig(unet.PropagationChannels)
	default:
		return nil, fmt.Errorf("model: unknown variant %q", variant)
	}
	if config.UNet != nil {
		in := cfg.InChannels
		cfg = *config.UNet
		if cfg.InChannels == 0 {
			cfg.InChannels = in
		}
	}

	lossFn := config.LossFunc
	lossName := "custom"
	if lossFn == nil {
		var err error
		if lossFn, err = metric.Loss(config.Loss); err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		lossName = config.Loss
		if lossName == "" {
			lossName = metric.BinaryCrossEntropyName
		}
	}

	lr := config.LearningRate
	if lr == 0 {
		lr = DefaultLearningRate
	}

	vs := nn.NewVarStore(device)
	net := unet.New(vs.Root(), cfg)

	opt, err := nn.DefaultAdamConfig().Build(vs, lr)
	if err != nil {
		return nil, fmt.Errorf("model: build optimizer: %w", err)
	}

	m := &Model{
		vs:       vs,
		net:      net,
		opt:      opt,
		loss:     lossFn,
		lossName: lossName,
		device:   device,
		logger:   config.Logger,
	}

	m.logger.Info().
		Str("component", "model").
		Str("variant", string(variant)).
		Int64("in_channels", cfg.InChannels).
		Int64("base_width", cfg.BaseWidth).
		Str("loss", lossName).
		Float64("lr", lr).
		Int("variables", len(vs.Variables())).
		Msg("model compiled")

	return m, nil
}

// InChannels returns the channel count the net was compiled for.
func (m *Model) InChannels() int64 {
	return m.net.InChannels()
}

// Device returns the device holding the parameters.
func (m *Model) Device() gotch.Device {
	return m.device
}

// VarStore exposes the parameters.
func (m *Model) VarStore() *nn.VarStore {
	return m.vs
}

// Drop frees the parameters. The model is unusable afterwards.
func (m *Model) Drop() {
	m.vs.Destroy()
}

// LossName returns the name of the compiled loss.
func (m *Model) LossName() string {
	return m.lossName
}

// checkInput validates a batched input stack.
func (m *Model) checkInput(op string, x *ts.Tensor) error {
	if len(x.MustSize()) != 4 {
		return tsutil.NewShapeError(op, "expected batched [N,C,H,W] input", x)
	}
	if err := tsutil.CheckChannels(op, x, m.InChannels()); err != nil {
		return err
	}
	h, w, _ := tsutil.SpatialSize(x)
	if h < MinSize || w < MinSize {
		return tsutil.NewShapeError(op, fmt.Sprintf("height and width must be at least %v", MinSize), x)
	}
	return nil
}

// Forward runs inference on a single stack [C,H,W] -> [1,H,W] or a batch
// [N,C,H,W] -> [N,1,H,W].
func (m *Model) Forward(x *ts.Tensor) (*ts.Tensor, error) {
	if len(x.MustSize()) == 3 {
		batch := x.MustUnsqueeze(0, false)
		out, err := m.Predict(batch)
		batch.MustDrop()
		if err != nil {
			return nil, err
		}
		return out.MustSelect(0, 0, true), nil
	}
	return m.Predict(x)
}

// Predict runs a batched forward pass without gradient: [N,C,H,W] ->
// [N,1,H,W] probabilities. The whole batch goes through at once; callers
// size batches to the available memory.
func (m *Model) Predict(x *ts.Tensor) (*ts.Tensor, error) {
	if err := m.checkInput("predict", x); err != nil {
		return nil, err
	}

	var out *ts.Tensor
	ts.NoGrad(func() {
		input := x.MustTo(m.device, false).MustTotype(gotch.Float, true)
		out = m.net.ForwardT(input, false)
		input.MustDrop()
	})

	return out, nil
}

// Var is a named parameter and its shape.
type Var struct {
	Name  string
	Shape []int64
}

// Vars lists the parameters by name.
func (m *Model) Vars() []Var {
	vars := make([]Var, 0)
	for name, x := range m.vs.Variables() {
		vars = append(vars, Var{Name: name, Shape: x.MustSize()})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// NumParams returns the total number of scalar parameters.
func (m *Model) NumParams() int64 {
	var n int64
	for _, v := range m.Vars() {
		c := int64(1)
		for _, d := range v.Shape {
			c *= d
		}
		n += c
	}
	return n
}
