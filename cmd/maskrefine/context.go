package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sugarme/maskrefine/config"
	"github.com/sugarme/maskrefine/device"
	"github.com/sugarme/maskrefine/flow"
	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/unet"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Logging.Level = strings.ToLower(*c.logLevelFlag)
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(out io.Writer) zerolog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return zerolog.Nop()
	}
	return newLogger(out, cfg.Logging)
}

// newLogger builds the process logger. Console output is for terminals,
// json for log shippers.
func newLogger(out io.Writer, cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// session is the model and flow estimator shared by the commands that run
// the network, with their device reservations.
type session struct {
	model *model.Model
	flow  flow.Estimator
	close func()
}

func initRuntime(cfg *config.Config, logger zerolog.Logger) (*device.Runtime, error) {
	return device.Init(device.Config{
		Cuda:           cfg.Device.Cuda,
		MemoryFraction: cfg.Device.MemoryFraction,
	}, logger)
}

// openSession reserves device memory, builds the model and the flow
// estimator. On error everything acquired so far is released.
func openSession(rt *device.Runtime, cfg *config.Config, variant model.Variant, weights string, logger zerolog.Logger) (s *session, err error) {
	if err := rt.Reserve(device.OwnerModel, cfg.Device.ModelFraction); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			rt.Release(device.OwnerModel)
		}
	}()

	m, err := model.New(rt.Device(), model.Config{
		Variant:      variant,
		UNet:         &unet.Config{BaseWidth: cfg.Model.BaseWidth, Dropout: cfg.Model.Dropout},
		LearningRate: cfg.Model.LearningRate,
		Loss:         cfg.Model.Loss,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			m.Drop()
		}
	}()

	if weights != "" {
		if err := m.LoadWeights(weights); err != nil {
			return nil, err
		}
	}

	est, closeFlow, err := newEstimator(cfg, rt, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		model: m,
		flow:  est,
		close: func() {
			closeFlow()
			m.Drop()
			rt.Release(device.OwnerModel)
		},
	}, nil
}

func newEstimator(cfg *config.Config, rt *device.Runtime, logger zerolog.Logger) (flow.Estimator, func(), error) {
	switch cfg.Flow.Kind {
	case "torchscript":
		if err := rt.Reserve(device.OwnerFlow, cfg.Device.FlowFraction); err != nil {
			return nil, nil, err
		}
		est, err := flow.LoadTorchScript(cfg.Flow.ModelPath, rt.Device(), logger)
		if err != nil {
			rt.Release(device.OwnerFlow)
			return nil, nil, err
		}
		if cfg.Flow.InputHeight > 0 {
			est.InputSize = []int64{cfg.Flow.InputHeight, cfg.Flow.InputWidth}
		}
		return est, func() {
			est.Drop()
			rt.Release(device.OwnerFlow)
		}, nil
	case "farneback":
		return flow.NewFarneback(flow.DefaultFarnebackConfig()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown flow estimator %q", cfg.Flow.Kind)
	}
}
