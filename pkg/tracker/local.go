package tracker

import (
	"context"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/config"
	"github.com/process-env/train-tracker-sub001/internal/feed"
	"github.com/process-env/train-tracker-sub001/internal/metrics"
	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/tracker"
)

// LocalClient implements Client on top of the in-process engine.
type LocalClient struct {
	cfg     *config.Config
	service *tracker.Service
	Metrics *metrics.Collector
}

// NewLocal creates a local client from the YAML config at
// cfg.ConfigPath. The topology loads lazily on first query; a load
// failure resurfaces on every query until restart.
func NewLocal(cfg Config) (*LocalClient, error) {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	source := feed.NewHTTPSource(appCfg.FeedGroups, appCfg.APIKey, appCfg.FetchTimeout())

	return &LocalClient{
		cfg:     appCfg,
		service: tracker.New(appCfg, source, collector),
		Metrics: collector,
	}, nil
}

// Config returns the loaded application configuration.
func (c *LocalClient) Config() *config.Config {
	return c.cfg
}

func (c *LocalClient) GetTrainPositions(ctx context.Context, groups ...string) ([]models.TrainPosition, error) {
	return c.service.TrainPositions(ctx, groups...)
}

func (c *LocalClient) GetTrainsNearby(ctx context.Context, lat, lon float64, limit int) ([]models.TrainPosition, error) {
	return c.service.TrainsNearby(ctx, lat, lon, limit)
}

func (c *LocalClient) GetArrivalBoard(ctx context.Context, groupID, stopID string, useCache bool) (models.ArrivalBoard, error) {
	return c.service.ArrivalBoard(ctx, groupID, stopID, useCache)
}

func (c *LocalClient) GetStationArrivals(ctx context.Context, stationID string, useCache bool) (models.ArrivalBoard, error) {
	return c.service.StationArrivals(ctx, stationID, useCache)
}

func (c *LocalClient) SearchStops(query, route string) ([]models.Stop, error) {
	return c.service.SearchStops(query, route)
}

func (c *LocalClient) GetStop(id string) (*models.Stop, error) {
	return c.service.Stop(id)
}

func (c *LocalClient) GetFeedTimestamps() map[string]time.Time {
	return c.service.FeedTimestamps()
}

// Cleanup clears cached results and the memoized topology. Intended
// for a nightly schedule to bound memory.
func (c *LocalClient) Cleanup() {
	c.service.Cleanup()
}
