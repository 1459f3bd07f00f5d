package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
)

func tripCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Start or end a fleet's trip",
	}

	var (
		fleetNo   string
		direction string
	)
	start := &cobra.Command{
		Use:   "start",
		Short: "Queue a start-trip command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sendCommand(cmd, events.FleetCommand{
				Command: events.CommandStartTrip,
				FleetNo: fleetNo,
				Args:    &events.CommandArgs{Direction: geofence.Direction(direction)},
			})
		},
	}
	start.Flags().StringVar(&direction, "direction", string(geofence.Forward), "forward or reverse")

	end := &cobra.Command{
		Use:   "end",
		Short: "Queue an end-trip command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sendCommand(cmd, events.FleetCommand{Command: events.CommandEndTrip, FleetNo: fleetNo})
		},
	}

	for _, c := range []*cobra.Command{start, end} {
		c.Flags().StringVar(&fleetNo, "fleet", "", "Fleet number")
		c.MarkFlagRequired("fleet")
		cmd.AddCommand(c)
	}
	return cmd
}

func (a *app) sendCommand(cmd *cobra.Command, fc events.FleetCommand) error {
	if err := fc.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	streams, err := a.streamClient(ctx)
	if err != nil {
		return err
	}
	id, err := streams.Publish(ctx, events.CommandStream, fc, map[string]any{"issuedBy": "fleetctl"})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s for %s (%s)\n", color.GreenString("queued"), fc.Command, fc.FleetNo, id)
	return nil
}
