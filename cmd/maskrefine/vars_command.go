package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"

	"github.com/sugarme/maskrefine/model"
	"github.com/sugarme/maskrefine/unet"
)

func newVarsCommand(ctx *commandContext) *cobra.Command {
	var weights string

	cmd := &cobra.Command{
		Use:   "vars",
		Short: "List the network's variables, optionally checking a weight file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			m, err := model.New(gotch.CPU, model.Config{
				Variant: model.Variant(cfg.Model.Variant),
				UNet:    &unet.Config{BaseWidth: cfg.Model.BaseWidth, Dropout: cfg.Model.Dropout},
				Loss:    cfg.Model.Loss,
				Logger:  zerolog.Nop(),
			})
			if err != nil {
				return err
			}
			if weights != "" {
				if err := m.LoadWeights(weights); err != nil {
					return err
				}
			}

			vars := m.Vars()
			rows := make([][]string, 0, len(vars))
			for _, v := range vars {
				rows = append(rows, []string{v.Name, fmt.Sprint(v.Shape)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Name", "Shape"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "%s variant, %d input channels, %s parameters\n", cfg.Model.Variant, m.InChannels(), strconv.FormatInt(m.NumParams(), 10))
			return nil
		},
	}

	cmd.Flags().StringVarP(&weights, "weights", "w", "", "Weight file to check against the network")
	return cmd
}
