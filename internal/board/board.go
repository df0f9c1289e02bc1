// Package board assembles deduplicated, time-ordered arrival boards
// from live feed entities.
package board

import (
	"sort"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/static"
)

// Builder collects stop-time predictions into arrival boards.
type Builder struct {
	idx *static.Index
}

// New creates a builder over the given topology index.
func New(idx *static.Index) *Builder {
	return &Builder{idx: idx}
}

// Build returns the board for one stop id: every upcoming prediction
// for that stop across the given entities, sorted ascending by time
// and deduplicated by (trip, stop). Zero eligible updates yield an
// empty, valid board.
func (b *Builder) Build(stopID string, entities []models.FeedEntity, now time.Time) models.ArrivalBoard {
	items := b.collect(stopID, entities, now)
	return finish(stopID, items, now)
}

// BuildStation returns the merged board for a parent station: the
// concatenation of its directional children's items, stably sorted by
// time, then deduplicated keeping the earliest occurrence.
func (b *Builder) BuildStation(stationID string, entities []models.FeedEntity, now time.Time) models.ArrivalBoard {
	var items []models.ArrivalItem
	for _, childID := range b.idx.ChildStopIDs(stationID) {
		items = append(items, b.collect(childID, entities, now)...)
	}
	return finish(stationID, items, now)
}

// Merge combines already-collected boards (e.g. the two directional
// fan-out results of a station query) into one board under boardID.
func Merge(boardID string, now time.Time, boards ...models.ArrivalBoard) models.ArrivalBoard {
	var items []models.ArrivalItem
	for _, bd := range boards {
		items = append(items, bd.Arrivals...)
	}
	return finish(boardID, items, now)
}

func (b *Builder) collect(stopID string, entities []models.FeedEntity, now time.Time) []models.ArrivalItem {
	var items []models.ArrivalItem
	for i := range entities {
		e := &entities[i]
		for j := range e.StopUpdates {
			u := &e.StopUpdates[j]
			if u.StopID != stopID {
				continue
			}
			when := u.When()
			if when == nil || when.Before(now) {
				continue
			}

			name := stopID
			if stop := b.idx.GetStop(stopID); stop != nil {
				name = stop.Name
			}
			items = append(items, models.ArrivalItem{
				StopID:               stopID,
				StopName:             name,
				When:                 when.UTC().Format(time.RFC3339),
				RouteID:              e.RouteID,
				TripID:               e.TripID,
				ScheduleRelationship: u.ScheduleRelationship,
				ArrivalDelay:         u.ArrivalDelay,
				DepartureDelay:       u.DepartureDelay,
			})
		}
	}
	return items
}

// finish applies the board's ordering law: stable sort ascending by
// time so equal-time items keep their source order, then drop
// duplicate (trip, stop) pairs keeping the first, i.e. the earliest.
func finish(boardID string, items []models.ArrivalItem, now time.Time) models.ArrivalBoard {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].When < items[j].When
	})

	seen := make(map[string]bool, len(items))
	deduped := make([]models.ArrivalItem, 0, len(items))
	for _, item := range items {
		key := item.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, item)
	}

	return models.ArrivalBoard{
		StopID:    boardID,
		UpdatedAt: now,
		Arrivals:  deduped,
	}
}
