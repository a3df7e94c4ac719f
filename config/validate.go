package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sugarme/maskrefine/metric"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateTrain(); err != nil {
		return err
	}
	if err := c.validateData(); err != nil {
		return err
	}
	if err := c.validateFlow(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateDevice() error {
	d := c.Device
	if d.MemoryFraction <= 0 || d.MemoryFraction > 1 {
		return errors.New("device.memory_fraction must be in (0,1]")
	}
	if d.ModelFraction <= 0 || d.FlowFraction < 0 {
		return errors.New("device.model_fraction must be positive and device.flow_fraction not negative")
	}
	if d.ModelFraction+d.FlowFraction > d.MemoryFraction+1e-9 {
		return fmt.Errorf("device.model_fraction + device.flow_fraction (%.2f) exceeds device.memory_fraction (%.2f)", d.ModelFraction+d.FlowFraction, d.MemoryFraction)
	}
	return nil
}

func (c *Config) validateModel() error {
	switch c.Model.Variant {
	case "refinement", "propagation":
	default:
		return fmt.Errorf("model.variant must be refinement or propagation, got %q", c.Model.Variant)
	}
	if _, err := metric.Loss(c.Model.Loss); err != nil {
		return fmt.Errorf("model.loss: %w", err)
	}
	if c.Model.LearningRate <= 0 {
		return errors.New("model.learning_rate must be positive")
	}
	if c.Model.BaseWidth <= 0 {
		return errors.New("model.base_width must be positive")
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return errors.New("model.dropout must be in [0,1)")
	}
	return nil
}

func (c *Config) validateTrain() error {
	t := c.Train
	if t.Epochs <= 0 || t.StepsPerEpoch <= 0 || t.ValSteps <= 0 {
		return errors.New("train.epochs, train.steps_per_epoch and train.val_steps must be positive")
	}
	if t.BatchSize <= 0 {
		return errors.New("train.batch_size must be positive")
	}
	if t.ValSplit < 0 || t.ValSplit >= 1 {
		return errors.New("train.val_split must be in [0,1)")
	}
	if t.LogDir == "" {
		return errors.New("train.log_dir must be set")
	}
	return nil
}

func (c *Config) validateData() error {
	if (c.Data.Width > 0) != (c.Data.Height > 0) {
		return errors.New("data.width and data.height must be set together")
	}
	if c.Data.Width < 0 || c.Data.Height < 0 {
		return errors.New("data.width and data.height must not be negative")
	}
	return nil
}

func (c *Config) validateFlow() error {
	switch c.Flow.Kind {
	case "farneback":
	case "torchscript":
		if c.Flow.ModelPath == "" {
			return errors.New("flow.model_path must be set when flow.kind is torchscript")
		}
	default:
		return fmt.Errorf("flow.kind must be farneback or torchscript, got %q", c.Flow.Kind)
	}
	if (c.Flow.InputWidth > 0) != (c.Flow.InputHeight > 0) {
		return errors.New("flow.input_width and flow.input_height must be set together")
	}
	return nil
}
