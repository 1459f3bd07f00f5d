package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/movement"
)

func stateCmd(a *app) *cobra.Command {
	var fleetNo string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print a fleet's current movement state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			streams, err := a.streamClient(ctx)
			if err != nil {
				return err
			}
			store := movement.NewRedisStore(streams, movement.RedisStoreOptions{
				ScanWindow:    a.scanWindow(),
				GPSPartitions: a.gpsPartitions(),
			})
			st, err := store.Load(ctx, fleetNo)
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Fprintf(a.out, "%s no movement state for %s\n", color.YellowString("!"), fleetNo)
				return nil
			}
			printState(a, *st)
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetNo, "fleet", "", "Fleet number")
	cmd.MarkFlagRequired("fleet")
	return cmd
}

func printState(a *app, st events.MovementState) {
	label := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(a.out, "%s %s\n", label("Fleet:    "), st.FleetNo)
	fmt.Fprintf(a.out, "%s %s (#%d)\n", label("Route:    "), st.RouteName, st.RouteID)
	fmt.Fprintf(a.out, "%s %s\n", label("Direction:"), st.Direction)
	fmt.Fprintf(a.out, "%s %s\n", label("Stage:    "), st.CurrentStage)
	if st.HasNext() {
		fmt.Fprintf(a.out, "%s %s\n", label("Next:     "), st.NextStage)
	} else {
		fmt.Fprintf(a.out, "%s %s\n", label("Next:     "), color.YellowString("none"))
	}
	if st.TripID != 0 {
		fmt.Fprintf(a.out, "%s #%d\n", label("Trip:     "), st.TripID)
	}
	if st.Terminal {
		fmt.Fprintf(a.out, "%s %s\n", label("Terminal: "), color.MagentaString("yes"))
	}
	fmt.Fprintf(a.out, "%s %s\n", label("Observed: "), st.ObservedAt.Format(time.RFC3339))
}
