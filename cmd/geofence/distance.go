// ABOUTME: Distance command for great-circle distances
// ABOUTME: Measures point-to-point or point-to-zone and reports containment

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harper/geofence/internal/geo"
	"github.com/harper/geofence/internal/models"
	"github.com/harper/geofence/internal/ui"
	"github.com/spf13/cobra"
)

var distanceCmd = &cobra.Command{
	Use:   "distance <lat> <lng> [<lat> <lng>]",
	Short: "Measure distance between points or to zones",
	Long: `Measure the haversine distance between two points, or from one point to
every enabled zone.

Examples:
  geofence distance 40.7829 -73.9654 40.7505 -73.9934
  geofence distance 40.7830 -73.9650`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("expected 2 or 4 coordinates, got %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lng, err := parseCoords(args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 4 {
			lat2, lng2, err := parseCoords(args[2], args[3])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, ui.FormatDistance(geo.DistanceMeters(lat, lng, lat2, lng2)))
			return nil
		}

		s, err := openStack()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		zones := s.registry.EnabledZones()
		if len(zones) == 0 {
			_, _ = fmt.Fprintln(out, "No enabled zones.")
			return nil
		}

		point := models.Sample{Latitude: lat, Longitude: lng}
		for _, z := range zones {
			d := geo.SampleDistance(point, z)
			status := color.New(color.Faint).Sprint("outside")
			if geo.IsWithinZone(point, z) {
				status = color.GreenString("inside")
			}
			_, _ = fmt.Fprintf(out, "%-8s %s %s\n", ui.FormatDistance(d), z.Name, status)
		}

		if nearest, d, ok := geo.Nearest(lat, lng, zones); ok {
			_, _ = fmt.Fprintf(out, "\nNearest: %s (%s)\n", color.CyanString(nearest.Name), ui.FormatDistance(d))
		}
		return nil
	},
}

func init() {
	distanceCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(distanceCmd)
}
