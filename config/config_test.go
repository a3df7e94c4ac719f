package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/maskrefine/config"
)

func write(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "maskrefine.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Train.Epochs)
	require.Equal(t, 500, cfg.Train.StepsPerEpoch)
	require.Equal(t, 100, cfg.Train.ValSteps)
	require.Equal(t, 1e-4, cfg.Model.LearningRate)
	require.Equal(t, "refinement", cfg.Model.Variant)
	require.Equal(t, "farneback", cfg.Flow.Kind)
}

func TestLoadOverrides(t *testing.T) {
	path := write(t, `
[model]
variant = "Propagation"
loss = "binary_focal"

[train]
epochs = 2
log_dir = "~/runs"

[flow]
kind = "torchscript"
model_path = "pwc.pt"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "propagation", cfg.Model.Variant)
	require.Equal(t, "binary_focal", cfg.Model.Loss)
	require.Equal(t, 2, cfg.Train.Epochs)
	require.Equal(t, 500, cfg.Train.StepsPerEpoch)
	require.False(t, strings.HasPrefix(cfg.Train.LogDir, "~"))
	require.Equal(t, "pwc.pt", cfg.Flow.ModelPath)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":     "[train]\nepochz = 3\n",
		"variant":           "[model]\nvariant = \"flow\"\n",
		"loss":              "[model]\nloss = \"dice\"\n",
		"fractions":         "[device]\nmodel_fraction = 0.9\nflow_fraction = 0.2\n",
		"memory fraction":   "[device]\nmemory_fraction = 1.5\n",
		"torchscript model": "[flow]\nkind = \"torchscript\"\n",
		"size":              "[data]\nwidth = 864\n",
		"level":             "[logging]\nlevel = \"loud\"\n",
		"epochs":            "[train]\nepochs = 0\n",
	}
	for name, content := range tests {
		_, err := config.Load(write(t, content))
		require.Error(t, err, name)
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestSampleMatchesDefaults(t *testing.T) {
	var fromSample config.Config
	require.NoError(t, toml.Unmarshal([]byte(config.Sample()), &fromSample))

	def := config.Default()
	require.Equal(t, def.Device, fromSample.Device)
	require.Equal(t, def.Model, fromSample.Model)
	require.Equal(t, def.Data, fromSample.Data)
	require.Equal(t, def.Train.Epochs, fromSample.Train.Epochs)
	require.Equal(t, def.Train.BatchSize, fromSample.Train.BatchSize)

	path := filepath.Join(t.TempDir(), "conf", "maskrefine.toml")
	require.NoError(t, config.CreateSample(path))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Train.ValSequences, 6)
}
