package model

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/sugarme/gotch/ts"
)

// LoadWeights replaces the parameters with those stored at path. The file
// must hold exactly the model's variables with identical shapes; otherwise
// ErrWeightMismatch is returned and no parameter is changed.
func (m *Model) LoadWeights(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}

	named, err := ts.LoadMultiWithDevice(path, m.device)
	if err != nil {
		return fmt.Errorf("load weights %q: %w", path, err)
	}
	stored := make(map[string][]int64, len(named))
	for _, nt := range named {
		stored[nt.Name] = nt.Tensor.MustSize()
		nt.Tensor.MustDrop()
	}

	var problems []string
	vars := m.vs.Variables()
	for name, x := range vars {
		shape, ok := stored[name]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("missing %v", name))
		case !reflect.DeepEqual(shape, x.MustSize()):
			problems = append(problems, fmt.Sprintf("%v: stored %v, model %v", name, shape, x.MustSize()))
		}
	}
	for name := range stored {
		if _, ok := vars[name]; !ok {
			problems = append(problems, fmt.Sprintf("unexpected %v", name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		if len(problems) > 5 {
			problems = append(problems[:5], fmt.Sprintf("... %v more", len(problems)-5))
		}
		return fmt.Errorf("load weights %q: %w: %v", path, ErrWeightMismatch, strings.Join(problems, "; "))
	}

	if err := m.vs.Load(path); err != nil {
		return fmt.Errorf("load weights %q: %w", path, err)
	}

	m.logger.Info().Str("component", "model").Str("path", path).Int("variables", len(stored)).Msg("weights loaded")

	return nil
}

// SaveWeights writes all parameters to path, creating its directory.
func (m *Model) SaveWeights(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save weights: %w", err)
		}
	}
	if err := m.vs.Save(path); err != nil {
		return fmt.Errorf("save weights %q: %w", path, err)
	}
	return nil
}
