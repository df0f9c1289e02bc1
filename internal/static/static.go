// Package static loads and indexes the immutable stop/trip reference
// data that live feed entities are reconciled against.
package static

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/process-env/train-tracker-sub001/internal/models"
)

// ErrDataLoad marks a reference data load failure. Fatal: the tracker
// cannot serve anything without topology.
var ErrDataLoad = errors.New("reference data load failed")

// suffixMarker separates the service-schedule prefix from the trip
// suffix that live feeds actually report, e.g.
// "AFA24GEN-1038-Sunday-00_000600_1..S03R" -> "000600_1..S03R".
const suffixMarker = "-00_"

// directionPattern captures the letter run after ".." in a shape id;
// the first letter must be N or S to count as a direction.
var directionPattern = regexp.MustCompile(`\.\.([A-Za-z]+)`)

// Index holds the loaded topology and the lookup tables used for
// headsign fallback resolution. Read-only after Load; safe for
// unsynchronized concurrent reads.
type Index struct {
	stops    map[string]*models.Stop
	children map[string][]string // parent id -> child stop ids

	byFullTripID        map[string]*models.TripInfo
	bySuffixTripID      map[string]*models.TripInfo
	byRouteAndShape     map[string]string // "route|shape" -> headsign
	byRouteAndDirection map[string]string // "route|N" or "route|S" -> headsign
}

// Loader memoizes a single Index load. The first caller performs the
// parse; concurrent callers block on the same load and share its
// result, including its error. Reset discards the memo so the nightly
// refresh can pick up new reference files.
//
// Each Reset starts a fresh generation. A Get that raced a Reset
// returns its own generation's load result, never a half-cleared
// state, and an in-flight load of the old files cannot overwrite a
// newer generation.
type Loader struct {
	stopsPath string
	tripsPath string

	mu  sync.Mutex
	gen *loadGeneration
}

type loadGeneration struct {
	once sync.Once
	idx  *Index
	err  error
}

// NewLoader creates a loader for the given stop and trip CSV files.
func NewLoader(stopsPath, tripsPath string) *Loader {
	return &Loader{
		stopsPath: stopsPath,
		tripsPath: tripsPath,
		gen:       &loadGeneration{},
	}
}

// Get returns the memoized Index, loading it on first use.
func (l *Loader) Get() (*Index, error) {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	gen.once.Do(func() {
		gen.idx, gen.err = Load(l.stopsPath, l.tripsPath)
	})
	return gen.idx, gen.err
}

// Reset clears the memoized index. The next Get performs a fresh load.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen = &loadGeneration{}
}

// Load parses the stop and trip reference files and builds the lookup
// indexes. Any read or parse failure is wrapped in ErrDataLoad.
func Load(stopsPath, tripsPath string) (*Index, error) {
	idx := &Index{
		stops:               make(map[string]*models.Stop),
		children:            make(map[string][]string),
		byFullTripID:        make(map[string]*models.TripInfo),
		bySuffixTripID:      make(map[string]*models.TripInfo),
		byRouteAndShape:     make(map[string]string),
		byRouteAndDirection: make(map[string]string),
	}

	if err := idx.loadStops(stopsPath); err != nil {
		return nil, fmt.Errorf("%w: stops %s: %v", ErrDataLoad, stopsPath, err)
	}
	if err := idx.loadTrips(tripsPath); err != nil {
		return nil, fmt.Errorf("%w: trips %s: %v", ErrDataLoad, tripsPath, err)
	}

	return idx, nil
}

// loadStops reads a CSV with header
// stop_id,stop_name,stop_lat,stop_lon,parent_station,routes where
// routes is a space-separated list of route codes.
func (idx *Index) loadStops(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, row := range rows {
		stop := &models.Stop{
			ID:       row["stop_id"],
			Name:     row["stop_name"],
			ParentID: row["parent_station"],
		}
		if stop.ID == "" {
			return fmt.Errorf("row missing stop_id")
		}
		if stop.Lat, err = strconv.ParseFloat(row["stop_lat"], 64); err != nil {
			return fmt.Errorf("stop %s: bad stop_lat: %v", stop.ID, err)
		}
		if stop.Lon, err = strconv.ParseFloat(row["stop_lon"], 64); err != nil {
			return fmt.Errorf("stop %s: bad stop_lon: %v", stop.ID, err)
		}
		if routes := strings.Fields(row["routes"]); len(routes) > 0 {
			stop.Routes = routes
		}

		idx.stops[stop.ID] = stop
		if stop.ParentID != "" {
			idx.children[stop.ParentID] = append(idx.children[stop.ParentID], stop.ID)
		}
	}

	return nil
}

// loadTrips reads a CSV with header
// trip_id,route_id,trip_headsign,direction_id,shape_id.
//
// The full and suffix trip indexes are last-writer-wins while the
// route+shape and route+direction fallback indexes are
// first-writer-wins, keeping one canonical label per route+shape.
// Upstream feeds exhibit this asymmetry; preserve it.
func (idx *Index) loadTrips(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, row := range rows {
		trip := &models.TripInfo{
			TripID:   row["trip_id"],
			RouteID:  row["route_id"],
			Headsign: row["trip_headsign"],
			ShapeID:  row["shape_id"],
		}
		if trip.TripID == "" || trip.RouteID == "" {
			return fmt.Errorf("row missing trip_id or route_id")
		}
		if d := row["direction_id"]; d != "" {
			if trip.DirectionID, err = strconv.Atoi(d); err != nil {
				return fmt.Errorf("trip %s: bad direction_id: %v", trip.TripID, err)
			}
		}

		idx.byFullTripID[trip.TripID] = trip
		if suffix := TripSuffix(trip.TripID); suffix != "" {
			idx.bySuffixTripID[suffix] = trip
		}

		if trip.Headsign == "" || trip.ShapeID == "" {
			continue
		}
		shapeKey := routeShapeKey(trip.RouteID, trip.ShapeID)
		if _, ok := idx.byRouteAndShape[shapeKey]; !ok {
			idx.byRouteAndShape[shapeKey] = trip.Headsign
		}
		if dir := ShapeDirection(trip.ShapeID); dir != "" {
			dirKey := routeDirectionKey(trip.RouteID, dir)
			if _, ok := idx.byRouteAndDirection[dirKey]; !ok {
				idx.byRouteAndDirection[dirKey] = trip.Headsign
			}
		}
	}

	return nil
}

// readCSV loads a headered CSV into one map per row.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, field := range record {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// TripSuffix derives the identifier live feeds report from a full
// static trip id: everything after the first suffixMarker. Empty when
// the marker is absent.
func TripSuffix(tripID string) string {
	if i := strings.Index(tripID, suffixMarker); i >= 0 {
		return tripID[i+len(suffixMarker):]
	}
	return ""
}

// ShapeDirection extracts the direction letter ("N" or "S") from a
// shape id such as "1..S03R" or "N..N31R". Empty when the shape does
// not encode one.
func ShapeDirection(shapeID string) string {
	m := directionPattern.FindStringSubmatch(shapeID)
	if m == nil {
		return ""
	}
	first := strings.ToUpper(m[1][:1])
	if first != "N" && first != "S" {
		return ""
	}
	return first
}

func routeShapeKey(routeID, shapeID string) string {
	return strings.ToUpper(routeID) + "|" + strings.ToUpper(shapeID)
}

func routeDirectionKey(routeID, direction string) string {
	return strings.ToUpper(routeID) + "|" + strings.ToUpper(direction)
}

// Trip looks up a live trip id against the full index first, then the
// suffix index. Nil when unknown.
func (idx *Index) Trip(tripID string) *models.TripInfo {
	if t, ok := idx.byFullTripID[tripID]; ok {
		return t
	}
	if t, ok := idx.bySuffixTripID[tripID]; ok {
		return t
	}
	return nil
}

// HeadsignByRouteShape returns the canonical headsign for a
// route+shape pair, or "".
func (idx *Index) HeadsignByRouteShape(routeID, shapeID string) string {
	return idx.byRouteAndShape[routeShapeKey(routeID, shapeID)]
}

// HeadsignByRouteDirection returns the canonical headsign for a
// route+direction pair, or "".
func (idx *Index) HeadsignByRouteDirection(routeID, direction string) string {
	return idx.byRouteAndDirection[routeDirectionKey(routeID, direction)]
}

// GetStop returns the stop with the given id, or nil.
func (idx *Index) GetStop(stopID string) *models.Stop {
	return idx.stops[stopID]
}

// ChildStopIDs returns the directional child stop ids for a parent
// station. Stations without registered children fall back to the
// N/S suffix convention.
func (idx *Index) ChildStopIDs(stationID string) []string {
	if kids := idx.children[stationID]; len(kids) > 0 {
		out := make([]string, len(kids))
		copy(out, kids)
		sort.Strings(out)
		return out
	}
	return []string{stationID + "N", stationID + "S"}
}

// SearchStops returns stops matching a case-insensitive substring
// query on name or id, optionally filtered to a route. Empty query
// and route return all stops. Results are sorted by id.
func (idx *Index) SearchStops(query, route string) []models.Stop {
	q := strings.ToLower(query)

	var out []models.Stop
	for _, stop := range idx.stops {
		if q != "" &&
			!strings.Contains(strings.ToLower(stop.Name), q) &&
			!strings.Contains(strings.ToLower(stop.ID), q) {
			continue
		}
		if route != "" && !stop.ServesRoute(route) {
			continue
		}
		out = append(out, *stop)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
