package tracker

import (
	"context"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/tracker"
)

// ErrUnknownGroup is returned by board queries naming a feed group the
// configuration does not define. Match with errors.Is.
var ErrUnknownGroup = tracker.ErrUnknownGroup

// Client defines the interface for querying derived transit data.
// Abstracts the local engine behind a contract a remote implementation
// could satisfy as well.
type Client interface {
	GetTrainPositions(ctx context.Context, groups ...string) ([]models.TrainPosition, error)
	GetTrainsNearby(ctx context.Context, lat, lon float64, limit int) ([]models.TrainPosition, error)

	GetArrivalBoard(ctx context.Context, groupID, stopID string, useCache bool) (models.ArrivalBoard, error)
	GetStationArrivals(ctx context.Context, stationID string, useCache bool) (models.ArrivalBoard, error)

	SearchStops(query, route string) ([]models.Stop, error)
	GetStop(id string) (*models.Stop, error)

	GetFeedTimestamps() map[string]time.Time
}

// Config holds configuration for the tracker client.
type Config struct {
	ConfigPath string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ConfigPath: "config.yml",
	}
}
