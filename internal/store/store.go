// Package store holds the process-wide keyed train position map that
// successive feed polls merge into.
package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
)

type record struct {
	position models.TrainPosition
	groupID  string
}

// Store is the shared mutable position map. Positions are keyed by
// trip id: within one merge the last entity for a trip wins, and a
// later merge for the same group replaces that group's record set.
// Whole-map locking; no reader ever observes a half-written record.
type Store struct {
	mu         sync.RWMutex
	trains     map[string]record
	lastUpdate time.Time
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{
		trains: make(map[string]record),
	}
}

// Merge replaces a feed group's record set: the group's trips absent
// from this merge are dropped, so trains that finished their runs
// stop being served. Other groups' records are untouched; a failed
// group simply never calls Merge and cannot corrupt them.
func (s *Store) Merge(groupID string, positions []models.TrainPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tripID, rec := range s.trains {
		if rec.groupID == groupID {
			delete(s.trains, tripID)
		}
	}
	for _, pos := range positions {
		s.trains[pos.TripID] = record{position: pos, groupID: groupID}
	}
	s.lastUpdate = time.Now()
}

// DropGroup removes every position attributed to a feed group. The
// nightly cleanup drops all groups so stale positions never outlive
// the cleared caches.
func (s *Store) DropGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tripID, rec := range s.trains {
		if rec.groupID == groupID {
			delete(s.trains, tripID)
		}
	}
}

// Positions returns the current positions, optionally restricted to
// the given feed groups, sorted by trip id for deterministic output.
func (s *Store) Positions(groups ...string) []models.TrainPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}

	result := make([]models.TrainPosition, 0, len(s.trains))
	for _, rec := range s.trains {
		if len(want) > 0 && !want[rec.groupID] {
			continue
		}
		result = append(result, rec.position)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TripID < result[j].TripID
	})
	return result
}

// Nearest returns up to limit positions closest to a coordinate.
func (s *Store) Nearest(lat, lon float64, limit int) []models.TrainPosition {
	positions := s.Positions()

	sort.Slice(positions, func(i, j int) bool {
		di := distance(lat, lon, positions[i].Lat, positions[i].Lon)
		dj := distance(lat, lon, positions[j].Lat, positions[j].Lon)
		return di < dj
	})

	if limit > 0 && len(positions) > limit {
		positions = positions[:limit]
	}
	return positions
}

// Len returns the number of tracked trains.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trains)
}

// LastUpdate returns the time of the most recent merge.
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// distance calculates the distance between two points using the Haversine formula
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
