package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/process-env/train-tracker-sub001/pkg/tracker"
)

func main() {
	var (
		configPath = flag.String("config", "config.yml", "Config file path")
		station    = flag.String("station", "", "Station id to show arrivals for")
		query      = flag.String("stops", "", "Stop name query")
		route      = flag.String("route", "", "Route filter for stop search")
	)
	flag.Parse()

	client, err := tracker.NewLocal(tracker.Config{ConfigPath: *configPath})
	if err != nil {
		slog.Error("Failed to create tracker client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Stop search mode
	if *query != "" || *route != "" {
		stops, err := client.SearchStops(*query, *route)
		if err != nil {
			slog.Error("Failed to search stops", "error", err)
			os.Exit(1)
		}
		fmt.Printf("\n%d matching stops:\n", len(stops))
		for _, stop := range stops {
			fmt.Printf("- %s (%s) routes=%v\n", stop.Name, stop.ID, stop.Routes)
		}
		return
	}

	// Station arrival board mode
	if *station != "" {
		board, err := client.GetStationArrivals(ctx, *station, false)
		if err != nil {
			slog.Error("Failed to get station arrivals", "station", *station, "error", err)
			os.Exit(1)
		}

		fmt.Printf("\nArrivals at %s (updated %s):\n", board.StopID, board.UpdatedAt.Format("3:04 PM"))
		for _, item := range board.Arrivals {
			fmt.Printf("  %-4s %-22s %s\n", item.RouteID, item.StopName, item.When)
		}
		return
	}

	// Default: live train positions
	positions, err := client.GetTrainPositions(ctx)
	if err != nil {
		slog.Error("Failed to get train positions", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d trains tracked:\n", len(positions))
	for _, pos := range positions {
		fmt.Printf("  %-4s %-24s (%.5f, %.5f) heading %3.0f° next %s eta %s\n",
			pos.RouteID, pos.TripID, pos.Lat, pos.Lon, pos.Heading, pos.NextStopID, pos.ETA)
	}

	for group, ts := range client.GetFeedTimestamps() {
		fmt.Printf("\nFeed %s last updated %s\n", group, ts.Format("3:04:05 PM"))
	}
}
