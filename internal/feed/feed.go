// Package feed fetches GTFS-Realtime snapshots per feed group and
// flattens them into the entity form the derivation pipeline consumes.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/protobuf/proto"

	"github.com/process-env/train-tracker-sub001/internal/config"
	"github.com/process-env/train-tracker-sub001/internal/models"
)

// Source supplies live feed entities. A fetch failure covers one
// group only; callers treat it as "no data this cycle" for that group.
type Source interface {
	Fetch(ctx context.Context, groupID string) ([]models.FeedEntity, error)
	FetchAll(ctx context.Context) ([]models.FeedEntity, error)
	Groups() []string
}

// HTTPSource fetches GTFS-RT protobuf feeds over HTTP, one URL per
// configured feed group.
type HTTPSource struct {
	groups     []config.FeedGroup
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSource creates a source for the given feed groups.
func NewHTTPSource(groups []config.FeedGroup, apiKey string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		groups: groups,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Groups returns the configured feed group ids.
func (s *HTTPSource) Groups() []string {
	ids := make([]string, len(s.groups))
	for i, g := range s.groups {
		ids[i] = g.ID
	}
	return ids
}

// Fetch downloads and decodes one group's feed. Transient HTTP
// failures are retried briefly with exponential backoff before the
// group is given up for this cycle.
func (s *HTTPSource) Fetch(ctx context.Context, groupID string) ([]models.FeedEntity, error) {
	var group *config.FeedGroup
	for i := range s.groups {
		if s.groups[i].ID == groupID {
			group = &s.groups[i]
			break
		}
	}
	if group == nil {
		return nil, fmt.Errorf("unknown feed group %q", groupID)
	}

	b := backoff.WithContext(newFetchBackoff(), ctx)
	data, err := backoff.RetryWithData(func() ([]byte, error) {
		return s.download(ctx, group.URL)
	}, b)
	if err != nil {
		return nil, fmt.Errorf("fetching feed group %s: %w", groupID, err)
	}

	entities, err := Flatten(data)
	if err != nil {
		return nil, fmt.Errorf("decoding feed group %s: %w", groupID, err)
	}
	return entities, nil
}

// FetchAll fetches every configured group sequentially. Callers that
// want per-group parallelism and partial-failure tolerance fan out
// over Groups and Fetch instead.
func (s *HTTPSource) FetchAll(ctx context.Context) ([]models.FeedEntity, error) {
	var all []models.FeedEntity
	for _, g := range s.groups {
		entities, err := s.Fetch(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return all, nil
}

func (s *HTTPSource) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return io.ReadAll(resp.Body)
}

func newFetchBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	return b
}

// Flatten decodes a GTFS-RT FeedMessage and flattens its trip updates
// into feed entities, preserving stop-update order. Entities without
// a trip update are ignored.
func Flatten(data []byte) ([]models.FeedEntity, error) {
	msg := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshaling feed: %w", err)
	}

	var entities []models.FeedEntity
	for _, fe := range msg.Entity {
		tu := fe.GetTripUpdate()
		if tu == nil {
			continue
		}

		entity := models.FeedEntity{
			TripID:  tu.GetTrip().GetTripId(),
			RouteID: tu.GetTrip().GetRouteId(),
		}
		tripRelationship := ""
		if trip := tu.GetTrip(); trip != nil && trip.ScheduleRelationship != nil {
			tripRelationship = trip.GetScheduleRelationship().String()
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			update := models.StopUpdate{StopID: stu.GetStopId()}
			// The stop-level relationship wins; the trip-level one
			// covers updates that omit it.
			if stu != nil && stu.ScheduleRelationship != nil {
				update.ScheduleRelationship = stu.GetScheduleRelationship().String()
			} else {
				update.ScheduleRelationship = tripRelationship
			}
			if arr := stu.GetArrival(); arr != nil && arr.Time != nil {
				t := time.Unix(arr.GetTime(), 0)
				update.Arrival = &t
				if arr.Delay != nil {
					d := arr.GetDelay()
					update.ArrivalDelay = &d
				}
			}
			if dep := stu.GetDeparture(); dep != nil && dep.Time != nil {
				t := time.Unix(dep.GetTime(), 0)
				update.Departure = &t
				if dep.Delay != nil {
					d := dep.GetDelay()
					update.DepartureDelay = &d
				}
			}
			entity.StopUpdates = append(entity.StopUpdates, update)
		}
		entities = append(entities, entity)
	}

	return entities, nil
}
