package store

import (
	"testing"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
)

func pos(tripID, routeID string, lat, lon float64) models.TrainPosition {
	return models.TrainPosition{TripID: tripID, RouteID: routeID, Lat: lat, Lon: lon}
}

func TestStore(t *testing.T) {
	s := NewStore()

	s.Merge("irt", []models.TrainPosition{
		pos("trip-1", "1", 40.755, -73.987),
		pos("trip-2", "2", 40.752, -73.977),
	})
	s.Merge("bmt", []models.TrainPosition{
		pos("trip-n", "N", 40.735, -73.990),
	})

	t.Run("Positions", func(t *testing.T) {
		all := s.Positions()
		if len(all) != 3 {
			t.Fatalf("Expected 3 positions, got %d", len(all))
		}
		// Sorted by trip id.
		if all[0].TripID != "trip-1" || all[2].TripID != "trip-n" {
			t.Errorf("Expected sorted output, got %v", all)
		}
	})

	t.Run("GroupFilter", func(t *testing.T) {
		irt := s.Positions("irt")
		if len(irt) != 2 {
			t.Errorf("Expected 2 irt positions, got %d", len(irt))
		}
		if none := s.Positions("unknown"); len(none) != 0 {
			t.Errorf("Expected no positions for unknown group, got %d", len(none))
		}
	})

	t.Run("GroupSetReplace", func(t *testing.T) {
		s.Merge("irt", []models.TrainPosition{pos("trip-1", "1", 41.0, -74.0)})

		irt := s.Positions("irt")
		if len(irt) != 1 {
			t.Fatalf("Re-merge must drop the group's absent trips, got %d", len(irt))
		}
		if irt[0].TripID != "trip-1" || irt[0].Lat != 41.0 {
			t.Errorf("Expected replaced trip-1 position, got %+v", irt[0])
		}
		if len(s.Positions("bmt")) != 1 {
			t.Error("Re-merging one group must not touch another group's trips")
		}
	})

	t.Run("LastWriterWinsWithinMerge", func(t *testing.T) {
		s.Merge("bmt", []models.TrainPosition{
			pos("trip-n", "N", 1, 1),
			pos("trip-n", "N", 2, 2),
		})
		bmt := s.Positions("bmt")
		if len(bmt) != 1 || bmt[0].Lat != 2 {
			t.Errorf("Expected last writer to win, got %v", bmt)
		}
	})

	t.Run("DropGroup", func(t *testing.T) {
		s.DropGroup("bmt")
		if len(s.Positions("bmt")) != 0 {
			t.Error("Expected bmt positions dropped")
		}
		if len(s.Positions("irt")) != 1 {
			t.Error("DropGroup must not touch other groups")
		}
	})

	t.Run("Len", func(t *testing.T) {
		if s.Len() != 1 {
			t.Errorf("Expected 1 tracked train, got %d", s.Len())
		}
	})

	t.Run("LastUpdate", func(t *testing.T) {
		if time.Since(s.LastUpdate()) > time.Minute {
			t.Error("Last update time is too old")
		}
	})
}

func TestNearest(t *testing.T) {
	s := NewStore()
	s.Merge("irt", []models.TrainPosition{
		pos("far", "1", 40.889, -73.898),
		pos("near", "1", 40.755, -73.987),
		pos("mid", "1", 40.800, -73.940),
	})

	result := s.Nearest(40.756, -73.987, 2)
	if len(result) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result))
	}
	if result[0].TripID != "near" || result[1].TripID != "mid" {
		t.Errorf("Expected [near mid], got [%s %s]", result[0].TripID, result[1].TripID)
	}
}

func TestDistance(t *testing.T) {
	// Times Square to Grand Central is roughly 0.9-1.0 km.
	d := distance(40.755477, -73.987691, 40.751776, -73.976848)
	if d < 0.8 || d > 1.2 {
		t.Errorf("Expected ~1 km, got %v", d)
	}

	if d := distance(40.0, -73.0, 40.0, -73.0); d != 0 {
		t.Errorf("Expected zero distance, got %v", d)
	}
}
