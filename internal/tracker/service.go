// Package tracker orchestrates the derivation pipeline: it owns the
// topology loader, the result cache, and the shared position map, and
// exposes the query operations the API surface serves.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/process-env/train-tracker-sub001/internal/board"
	"github.com/process-env/train-tracker-sub001/internal/cache"
	"github.com/process-env/train-tracker-sub001/internal/config"
	"github.com/process-env/train-tracker-sub001/internal/feed"
	"github.com/process-env/train-tracker-sub001/internal/headsign"
	"github.com/process-env/train-tracker-sub001/internal/metrics"
	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/position"
	"github.com/process-env/train-tracker-sub001/internal/static"
	"github.com/process-env/train-tracker-sub001/internal/store"
)

// ErrUnknownGroup marks a request naming a feed group the
// configuration does not define.
var ErrUnknownGroup = errors.New("unknown feed group")

// Service is the engine's entry point. All shared mutable state is
// held here explicitly rather than in package globals so tests get
// clean per-instance isolation.
type Service struct {
	cfg     *config.Config
	loader  *static.Loader
	source  feed.Source
	cache   *cache.Cache
	store   *store.Store
	metrics *metrics.Collector

	now func() time.Time
}

// New creates a service over the given source. The topology is loaded
// lazily on first use; a load failure is fatal and resurfaces on every
// operation until the process restarts with valid reference data.
func New(cfg *config.Config, source feed.Source, collector *metrics.Collector) *Service {
	return &Service{
		cfg:     cfg,
		loader:  static.NewLoader(cfg.StopsPath, cfg.TripsPath),
		source:  source,
		cache:   cache.New(),
		store:   store.NewStore(),
		metrics: collector,
		now:     time.Now,
	}
}

// TrainPositions fetches the requested feed groups (all when none are
// given) in parallel, interpolates positions, merges them into the
// keyed train map, and returns the merged view. Cached under the TTL
// with single-flight so a poll burst derives positions once. The
// cache key uses the canonicalized group filter, so reordered or
// duplicated filters share one cached view.
func (s *Service) TrainPositions(ctx context.Context, groups ...string) ([]models.TrainPosition, error) {
	targets := s.targetGroups(groups)
	key := "trains|" + strings.Join(targets, ",")
	v, err := s.getOrCompute(key, func() (any, error) {
		if err := s.refreshPositions(ctx, targets); err != nil {
			return nil, err
		}
		return s.store.Positions(targets...), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.TrainPosition), nil
}

// refreshPositions runs one fetch+interpolate cycle. A single group's
// failure is degraded service, not an error: it is logged and counted
// and the group's previous positions stay untouched.
func (s *Service) refreshPositions(ctx context.Context, targets []string) error {
	idx, err := s.loader.Get()
	if err != nil {
		return err
	}
	interp := position.New(idx, headsign.New(idx))

	g, ctx := errgroup.WithContext(ctx)
	for _, groupID := range targets {
		g.Go(func() error {
			entities, err := s.source.Fetch(ctx, groupID)
			if err != nil {
				log.Printf("tracker: feed group %s unavailable this cycle: %v", groupID, err)
				s.metrics.FeedFetchFailures.WithLabelValues(groupID).Inc()
				return nil
			}
			s.metrics.FeedEntities.WithLabelValues(groupID).Add(float64(len(entities)))
			s.cache.SetFeedTimestamp(groupID, s.now())
			s.store.Merge(groupID, interp.Compute(entities, s.now()))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.metrics.TrainsTracked.Set(float64(s.store.Len()))
	return nil
}

// TrainsNearby returns up to limit current positions closest to a
// coordinate, refreshing the position map first.
func (s *Service) TrainsNearby(ctx context.Context, lat, lon float64, limit int) ([]models.TrainPosition, error) {
	if _, err := s.TrainPositions(ctx); err != nil {
		return nil, err
	}
	return s.store.Nearest(lat, lon, limit), nil
}

// ArrivalBoard returns the upcoming arrivals at one stop from one
// feed group. useCache=false forces a fresh fetch, for callers that
// need the very latest predictions.
func (s *Service) ArrivalBoard(ctx context.Context, groupID, stopID string, useCache bool) (models.ArrivalBoard, error) {
	if s.cfg.Group(groupID) == nil {
		return models.ArrivalBoard{}, fmt.Errorf("%w %q", ErrUnknownGroup, groupID)
	}

	compute := func() (any, error) {
		idx, err := s.loader.Get()
		if err != nil {
			return nil, err
		}
		entities, err := s.source.Fetch(ctx, groupID)
		if err != nil {
			return nil, err
		}
		s.cache.SetFeedTimestamp(groupID, s.now())
		return board.New(idx).Build(stopID, entities, s.now()), nil
	}

	var v any
	var err error
	if useCache {
		v, err = s.getOrCompute("board|"+groupID+"|"+stopID, compute)
	} else {
		v, err = compute()
	}
	if err != nil {
		return models.ArrivalBoard{}, err
	}
	return v.(models.ArrivalBoard), nil
}

// StationArrivals returns the merged board for a parent station: the
// directional child stops are queried in parallel across every feed
// group and combined into one deduplicated, time-ordered board.
func (s *Service) StationArrivals(ctx context.Context, stationID string, useCache bool) (models.ArrivalBoard, error) {
	compute := func() (any, error) {
		idx, err := s.loader.Get()
		if err != nil {
			return nil, err
		}
		entities, err := s.fetchAllTolerant(ctx)
		if err != nil {
			return nil, err
		}

		builder := board.New(idx)
		children := idx.ChildStopIDs(stationID)
		boards := make([]models.ArrivalBoard, len(children))
		g, _ := errgroup.WithContext(ctx)
		for i, childID := range children {
			g.Go(func() error {
				boards[i] = builder.Build(childID, entities, s.now())
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return board.Merge(stationID, s.now(), boards...), nil
	}

	var v any
	var err error
	if useCache {
		v, err = s.getOrCompute("station|"+stationID, compute)
	} else {
		v, err = compute()
	}
	if err != nil {
		return models.ArrivalBoard{}, err
	}
	return v.(models.ArrivalBoard), nil
}

// SearchStops delegates to the topology index.
func (s *Service) SearchStops(query, route string) ([]models.Stop, error) {
	idx, err := s.loader.Get()
	if err != nil {
		return nil, err
	}
	return idx.SearchStops(query, route), nil
}

// Stop returns one stop by id, or nil when unknown.
func (s *Service) Stop(id string) (*models.Stop, error) {
	idx, err := s.loader.Get()
	if err != nil {
		return nil, err
	}
	return idx.GetStop(id), nil
}

// FeedTimestamps reports the last successful poll per feed group so
// dashboards can label staleness. Groups that never succeeded are
// absent.
func (s *Service) FeedTimestamps() map[string]time.Time {
	return s.cache.FeedTimestamps()
}

// Cleanup evicts every cached result, every tracked position, and the
// memoized topology. Run nightly to bound memory from keyed
// per-station caches, to stop serving trains whose runs ended, and to
// pick up refreshed reference files.
func (s *Service) Cleanup() {
	s.cache.Clear()
	for _, groupID := range s.source.Groups() {
		s.store.DropGroup(groupID)
	}
	s.loader.Reset()
}

// getOrCompute wraps the cache with hit/miss accounting.
func (s *Service) getOrCompute(key string, fn func() (any, error)) (any, error) {
	computed := false
	v, err := s.cache.GetOrCompute(key, s.cfg.CacheTTL(), func() (any, error) {
		computed = true
		return fn()
	})
	if computed {
		s.metrics.CacheMisses.Inc()
	} else {
		s.metrics.CacheHits.Inc()
	}
	return v, err
}

// fetchAllTolerant collects entities from every feed group in
// parallel, skipping groups that fail this cycle. It errs only when
// every group fails and nothing was collected.
func (s *Service) fetchAllTolerant(ctx context.Context) ([]models.FeedEntity, error) {
	targets := s.source.Groups()
	results := make([][]models.FeedEntity, len(targets))
	failures := 0

	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, groupID := range targets {
		g.Go(func() error {
			entities, err := s.source.Fetch(ctx, groupID)
			if err != nil {
				log.Printf("tracker: feed group %s unavailable this cycle: %v", groupID, err)
				s.metrics.FeedFetchFailures.WithLabelValues(groupID).Inc()
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			s.cache.SetFeedTimestamp(groupID, s.now())
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures == len(targets) && len(targets) > 0 {
		return nil, fmt.Errorf("all %d feed groups unavailable", failures)
	}

	var all []models.FeedEntity
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// targetGroups canonicalizes the requested filter against the
// configured groups: unknown ids drop, duplicates collapse, and the
// result is sorted so equivalent filters produce one cache key.
func (s *Service) targetGroups(groups []string) []string {
	all := s.source.Groups()
	known := make(map[string]bool, len(all))
	for _, g := range all {
		known[g] = true
	}

	if len(groups) == 0 {
		groups = all
	}
	var out []string
	for _, g := range groups {
		if known[g] {
			out = append(out, g)
			known[g] = false
		}
	}
	sort.Strings(out)
	return out
}
