package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fleet_tracker/internal/bridge"
	"fleet_tracker/internal/events"
)

func gpsCmd(a *app) *cobra.Command {
	var (
		fleetNo  string
		lat, lng float64
	)
	cmd := &cobra.Command{
		Use:   "gps",
		Short: "Publish a GPS reading as if it came from the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			reading := events.NewGPSReading(fleetNo, lat, lng)
			if err := reading.Validate(); err != nil {
				return err
			}
			payload, err := json.Marshal(reading)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			streams, err := a.streamClient(ctx)
			if err != nil {
				return err
			}
			id, err := bridge.New(streams, a.gpsPartitions()).HandleMessage(ctx, events.TopicGPS, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s on %s\n", color.GreenString("published"), id,
				events.GPSStreamFor(fleetNo, a.gpsPartitions()))
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetNo, "fleet", "", "Fleet number")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	cmd.MarkFlagRequired("fleet")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}
