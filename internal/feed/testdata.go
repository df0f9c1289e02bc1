package feed

import (
	"context"
	"sort"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
)

// MockEntities builds a small set of live entities around the given
// time, shaped like real NYC subway trip updates. Used by tests and
// by local development without feed access.
func MockEntities(now time.Time) []models.FeedEntity {
	return []models.FeedEntity{
		{
			TripID:  "056150_1..S03R",
			RouteID: "1",
			StopUpdates: []models.StopUpdate{
				stopUpdate("127S", now.Add(-30*time.Second), now.Add(-20*time.Second)),
				stopUpdate("631S", now.Add(90*time.Second), now.Add(110*time.Second)),
				stopUpdate("635S", now.Add(4*time.Minute), now.Add(4*time.Minute+20*time.Second)),
			},
		},
		{
			TripID:  "987_N..N31R",
			RouteID: "N",
			StopUpdates: []models.StopUpdate{
				stopUpdate("635N", now.Add(-time.Minute), now.Add(-50*time.Second)),
				stopUpdate("127N", now.Add(2*time.Minute), now.Add(2*time.Minute+15*time.Second)),
			},
		},
		{
			// Single stop update: never displayable as a position.
			TripID:  "060000_7..N97R",
			RouteID: "7",
			StopUpdates: []models.StopUpdate{
				stopUpdate("631N", now.Add(3*time.Minute), now.Add(3*time.Minute)),
			},
		},
	}
}

func stopUpdate(stopID string, arrival, departure time.Time) models.StopUpdate {
	return models.StopUpdate{
		StopID:    stopID,
		Arrival:   &arrival,
		Departure: &departure,
	}
}

// StaticSource serves fixed entities per group, standing in for the
// network source in tests and offline development.
type StaticSource struct {
	ByGroup map[string][]models.FeedEntity
	Err     map[string]error
}

// Fetch returns the canned entities for a group.
func (s *StaticSource) Fetch(_ context.Context, groupID string) ([]models.FeedEntity, error) {
	if err := s.Err[groupID]; err != nil {
		return nil, err
	}
	return s.ByGroup[groupID], nil
}

// FetchAll returns every group's canned entities.
func (s *StaticSource) FetchAll(ctx context.Context) ([]models.FeedEntity, error) {
	var all []models.FeedEntity
	for _, id := range s.Groups() {
		entities, err := s.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return all, nil
}

// Groups returns the canned group ids, sorted.
func (s *StaticSource) Groups() []string {
	ids := make([]string, 0, len(s.ByGroup))
	for id := range s.ByGroup {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
