package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tunedrop/internal/preflight"
	"tunedrop/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that tunedrop can run on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				headers: []string{"Check", "Status", "Detail"},
				rows:    rows,
			}))
			if preflight.Failed(results) {
				return services.Wrap(services.ErrConfiguration, "doctor", "", "", errors.New("one or more checks failed"))
			}
			return nil
		},
	}
}
