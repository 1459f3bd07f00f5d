package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fleet_tracker/internal/seed"
)

func seedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load routes, stages, fleets and assignments from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := seed.Load(file)
			if err != nil {
				return err
			}
			repo, err := a.repository()
			if err != nil {
				return err
			}
			if err := seed.Apply(cmd.Context(), repo, fixtures); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d routes, %d fleets\n",
				color.GreenString("seeded"), len(fixtures.Routes), len(fixtures.Fleets))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yml", "Fixtures file")
	return cmd
}
