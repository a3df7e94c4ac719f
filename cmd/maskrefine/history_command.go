package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sugarme/maskrefine/train"
)

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "history <file>",
		Short:       "Show a training history file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := train.ReadHistory(args[0])
			if err != nil {
				return err
			}
			if len(h) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No epochs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(h))
			return nil
		},
	}
}

func renderHistory(h train.History) string {
	headers := []string{"Epoch", "Loss", "Accuracy", "Dice", "Val loss", "Val accuracy", "Val dice", "Seconds"}
	aligns := make([]columnAlignment, len(headers))
	for i := range aligns {
		aligns[i] = alignRight
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	rows := make([][]string, 0, len(h))
	for _, r := range h {
		rows = append(rows, []string{
			strconv.Itoa(r.Epoch),
			f(r.Loss),
			f(r.BinaryAccuracy),
			f(r.Dice),
			f(r.ValLoss),
			f(r.ValBinaryAccuracy),
			f(r.ValDice),
			strconv.FormatFloat(r.Seconds, 'f', 1, 64),
		})
	}
	return renderTable(headers, rows, aligns)
}
