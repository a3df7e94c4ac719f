package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Device selects the compute device and splits its memory.
type Device struct {
	Cuda           bool    `toml:"cuda"`
	MemoryFraction float64 `toml:"memory_fraction"`
	ModelFraction  float64 `toml:"model_fraction"`
	FlowFraction   float64 `toml:"flow_fraction"`
}

// Model configures the segmentation network.
type Model struct {
	Variant      string  `toml:"variant"`
	Loss         string  `toml:"loss"`
	LearningRate float64 `toml:"learning_rate"`
	BaseWidth    int64   `toml:"base_width"`
	Dropout      float64 `toml:"dropout"`
	Weights      string  `toml:"weights"`
}

// Train configures the training loop.
type Train struct {
	Epochs        int      `toml:"epochs"`
	StepsPerEpoch int      `toml:"steps_per_epoch"`
	ValSteps      int      `toml:"val_steps"`
	BatchSize     int      `toml:"batch_size"`
	LogDir        string   `toml:"log_dir"`
	Prefix        string   `toml:"prefix"`
	ValSequences  []string `toml:"val_sequences"`
	ValSplit      float64  `toml:"val_split"`
	Seed          int64    `toml:"seed"`
}

// Data locates the DAVIS-style dataset.
type Data struct {
	Root       string `toml:"root"`
	Resolution string `toml:"resolution"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
}

// Flow selects the optical-flow estimator.
type Flow struct {
	Kind        string `toml:"kind"` // "farneback" or "torchscript"
	ModelPath   string `toml:"model_path"`
	InputWidth  int64  `toml:"input_width"`
	InputHeight int64  `toml:"input_height"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Config holds every setting of maskrefine.
type Config struct {
	Device  Device  `toml:"device"`
	Model   Model   `toml:"model"`
	Train   Train   `toml:"train"`
	Data    Data    `toml:"data"`
	Flow    Flow    `toml:"flow"`
	Logging Logging `toml:"logging"`
}

// Load reads the TOML file at path over the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Model.Variant = strings.ToLower(strings.TrimSpace(c.Model.Variant))
	c.Flow.Kind = strings.ToLower(strings.TrimSpace(c.Flow.Kind))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	for _, p := range []*string{&c.Model.Weights, &c.Train.LogDir, &c.Data.Root, &c.Flow.ModelPath} {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, pathValue[2:])
	}
	return filepath.Clean(pathValue), nil
}

// Sample returns the annotated sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
