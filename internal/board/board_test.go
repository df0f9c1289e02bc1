package board

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/static"
)

const stopsCSV = `stop_id,stop_name,stop_lat,stop_lon,parent_station,routes
101,Station 101,40.889248,-73.898583,,1 2
101N,Station 101,40.889500,-73.898600,101,1 2
101S,Station 101,40.889000,-73.898500,101,1 2
202N,Station 202,40.884667,-73.90087,202,1
`

const tripsCSV = `trip_id,route_id,trip_headsign,direction_id,shape_id
AFA24GEN-1038-Sunday-00_056150_1..S03R,1,South Ferry,1,1..S03R
`

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	dir := t.TempDir()
	stopsPath := filepath.Join(dir, "stops.csv")
	tripsPath := filepath.Join(dir, "trips.csv")
	if err := os.WriteFile(stopsPath, []byte(stopsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tripsPath, []byte(tripsCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := static.Load(stopsPath, tripsPath)
	if err != nil {
		t.Fatal(err)
	}
	return New(idx)
}

func update(stopID string, arrival time.Time) models.StopUpdate {
	return models.StopUpdate{StopID: stopID, Arrival: &arrival}
}

func TestBuildFiltersAndSorts(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entities := []models.FeedEntity{
		{TripID: "T1", RouteID: "1", StopUpdates: []models.StopUpdate{
			update("101N", now.Add(5*time.Minute)),
			update("202N", now.Add(7*time.Minute)), // different stop, excluded
		}},
		{TripID: "T2", RouteID: "2", StopUpdates: []models.StopUpdate{
			update("101N", now.Add(2*time.Minute)),
		}},
		{TripID: "T3", RouteID: "1", StopUpdates: []models.StopUpdate{
			update("101N", now.Add(-time.Minute)), // already passed, excluded
		}},
	}

	board := b.Build("101N", entities, now)

	if board.StopID != "101N" {
		t.Errorf("Expected board for 101N, got %s", board.StopID)
	}
	if len(board.Arrivals) != 2 {
		t.Fatalf("Expected 2 arrivals, got %d", len(board.Arrivals))
	}
	if board.Arrivals[0].TripID != "T2" || board.Arrivals[1].TripID != "T1" {
		t.Errorf("Expected [T2 T1] order, got [%s %s]", board.Arrivals[0].TripID, board.Arrivals[1].TripID)
	}
	if board.Arrivals[0].StopName != "Station 101" {
		t.Errorf("Expected resolved stop name, got %q", board.Arrivals[0].StopName)
	}

	if !sort.SliceIsSorted(board.Arrivals, func(i, j int) bool {
		return board.Arrivals[i].When < board.Arrivals[j].When
	}) {
		t.Error("Arrivals must be non-decreasing in time")
	}
}

func TestBuildDepartureFallback(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dep := now.Add(3 * time.Minute)

	entities := []models.FeedEntity{
		{TripID: "T1", RouteID: "1", StopUpdates: []models.StopUpdate{
			{StopID: "101N", Departure: &dep},
			{StopID: "101N"}, // neither time, skipped
		}},
	}

	board := b.Build("101N", entities, now)
	if len(board.Arrivals) != 1 {
		t.Fatalf("Expected 1 arrival from departure fallback, got %d", len(board.Arrivals))
	}
	if board.Arrivals[0].When != dep.UTC().Format(time.RFC3339) {
		t.Errorf("Expected departure time, got %s", board.Arrivals[0].When)
	}
}

func TestBuildScheduleRelationship(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	skipped := now.Add(2 * time.Minute)
	scheduled := now.Add(5 * time.Minute)

	entities := []models.FeedEntity{
		{TripID: "T1", RouteID: "1", StopUpdates: []models.StopUpdate{
			{StopID: "101N", Arrival: &skipped, ScheduleRelationship: "SKIPPED"},
		}},
		{TripID: "T2", RouteID: "1", StopUpdates: []models.StopUpdate{
			{StopID: "101N", Arrival: &scheduled},
		}},
	}

	board := b.Build("101N", entities, now)
	if len(board.Arrivals) != 2 {
		t.Fatalf("Expected 2 arrivals, got %d", len(board.Arrivals))
	}
	if board.Arrivals[0].ScheduleRelationship != "SKIPPED" {
		t.Errorf("Expected SKIPPED surfaced, got %q", board.Arrivals[0].ScheduleRelationship)
	}
	if board.Arrivals[1].ScheduleRelationship != "" {
		t.Errorf("Expected empty relationship on a scheduled item, got %q", board.Arrivals[1].ScheduleRelationship)
	}
}

func TestBuildEmptyBoard(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	board := b.Build("101N", nil, now)
	if board.Arrivals == nil || len(board.Arrivals) != 0 {
		t.Errorf("Expected empty valid board, got %+v", board)
	}
	if !board.UpdatedAt.Equal(now) {
		t.Errorf("Expected UpdatedAt %v, got %v", now, board.UpdatedAt)
	}
}

// A duplicate (trip, stop) pair from a late re-poll collapses to one
// item: the earliest after the stable sort.
func TestStationBoardDedup(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entities := []models.FeedEntity{
		{TripID: "T9", RouteID: "1", StopUpdates: []models.StopUpdate{
			update("101N", noon),
			update("101N", noon.Add(5*time.Minute)),
		}},
		{TripID: "T9", RouteID: "1", StopUpdates: []models.StopUpdate{
			update("101S", noon.Add(2*time.Minute)),
		}},
	}

	board := b.BuildStation("101", entities, now)

	// (T9, 101N) collapses to its earliest item; (T9, 101S) survives
	// separately.
	if len(board.Arrivals) != 2 {
		t.Fatalf("Expected 2 arrivals after dedup, got %d", len(board.Arrivals))
	}
	if board.Arrivals[0].StopID != "101N" || board.Arrivals[0].When != noon.Format(time.RFC3339) {
		t.Errorf("Expected earliest 101N item first, got %+v", board.Arrivals[0])
	}
	if board.Arrivals[1].StopID != "101S" {
		t.Errorf("Expected 101S item second, got %+v", board.Arrivals[1])
	}

	seen := map[string]bool{}
	for _, item := range board.Arrivals {
		key := item.DedupeKey()
		if seen[key] {
			t.Errorf("Duplicate (trip, stop) pair %s on board", key)
		}
		seen[key] = true
	}
}

func TestStationBoardIdenticalDuplicates(t *testing.T) {
	b := newTestBuilder(t)
	now := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)
	when := now.Add(10 * time.Minute)

	entities := []models.FeedEntity{
		{TripID: "T9", RouteID: "1", StopUpdates: []models.StopUpdate{update("101N", when)}},
		{TripID: "T9", RouteID: "1", StopUpdates: []models.StopUpdate{update("101N", when)}},
	}

	board := b.BuildStation("101", entities, now)
	if len(board.Arrivals) != 1 {
		t.Errorf("Expected identical duplicates to collapse to 1, got %d", len(board.Arrivals))
	}
}

func TestMerge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	north := models.ArrivalBoard{StopID: "101N", Arrivals: []models.ArrivalItem{
		{TripID: "T1", StopID: "101N", When: "2025-06-01T12:05:00Z"},
	}}
	south := models.ArrivalBoard{StopID: "101S", Arrivals: []models.ArrivalItem{
		{TripID: "T2", StopID: "101S", When: "2025-06-01T12:02:00Z"},
	}}

	merged := Merge("101", now, north, south)
	if merged.StopID != "101" {
		t.Errorf("Expected merged board id 101, got %s", merged.StopID)
	}
	if len(merged.Arrivals) != 2 || merged.Arrivals[0].TripID != "T2" {
		t.Errorf("Expected T2 first after merge sort, got %+v", merged.Arrivals)
	}
}
