package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
)

// Record holds the metrics of one epoch. Training metrics are means over
// the epoch's steps, val_ metrics means over the validation steps.
type Record struct {
	Epoch                 int     `dataframe:"epoch"`
	Loss                  float64 `dataframe:"loss"`
	BinaryAccuracy        float64 `dataframe:"binary_accuracy"`
	BinaryCrossEntropy    float64 `dataframe:"binary_crossentropy"`
	Dice                  float64 `dataframe:"dice"`
	ValLoss               float64 `dataframe:"val_loss"`
	ValBinaryAccuracy     float64 `dataframe:"val_binary_accuracy"`
	ValBinaryCrossEntropy float64 `dataframe:"val_binary_crossentropy"`
	ValDice               float64 `dataframe:"val_dice"`
	Seconds               float64 `dataframe:"seconds"`
}

// History is the chronological list of epoch records.
type History []Record

// Last returns the most recent record.
func (h History) Last() (Record, bool) {
	if len(h) == 0 {
		return Record{}, false
	}
	return h[len(h)-1], true
}

// WriteHistory writes h to path as CSV with a header row. The file is
// rewritten in full so a reader never sees a partial table.
func WriteHistory(path string, h History) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	df := dataframe.LoadStructs([]Record(h))
	if df.Err != nil {
		f.Close()
		return fmt.Errorf("history: %w", df.Err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("history: write %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// ReadHistory loads a history CSV written by WriteHistory.
func ReadHistory(path string) (History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, fmt.Errorf("history: read %q: %w", path, df.Err)
	}

	epochs, err := df.Col("epoch").Int()
	if err != nil {
		return nil, fmt.Errorf("history: %q: epoch: %w", path, err)
	}

	cols := make(map[string][]float64)
	for _, name := range []string{
		"loss", "binary_accuracy", "binary_crossentropy", "dice",
		"val_loss", "val_binary_accuracy", "val_binary_crossentropy", "val_dice",
		"seconds",
	} {
		s := df.Col(name)
		if s.Err != nil {
			return nil, fmt.Errorf("history: %q: %w", path, s.Err)
		}
		cols[name] = s.Float()
	}

	h := make(History, 0, len(epochs))
	for i, e := range epochs {
		h = append(h, Record{
			Epoch:                 e,
			Loss:                  cols["loss"][i],
			BinaryAccuracy:        cols["binary_accuracy"][i],
			BinaryCrossEntropy:    cols["binary_crossentropy"][i],
			Dice:                  cols["dice"][i],
			ValLoss:               cols["val_loss"][i],
			ValBinaryAccuracy:     cols["val_binary_accuracy"][i],
			ValBinaryCrossEntropy: cols["val_binary_crossentropy"][i],
			ValDice:               cols["val_dice"][i],
			Seconds:               cols["seconds"][i],
		})
	}

	return h, nil
}
