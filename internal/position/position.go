// Package position derives interpolated vehicle positions from live
// stop-time predictions and the static stop topology.
package position

import (
	"log"
	"math"
	"time"

	"github.com/process-env/train-tracker-sub001/internal/headsign"
	"github.com/process-env/train-tracker-sub001/internal/models"
	"github.com/process-env/train-tracker-sub001/internal/static"
)

// Interpolator computes train positions. Pure given its index and
// resolver: identical entities and the same now yield identical output.
type Interpolator struct {
	idx      *static.Index
	resolver *headsign.Resolver
}

// New creates an interpolator over the given topology index.
func New(idx *static.Index, resolver *headsign.Resolver) *Interpolator {
	return &Interpolator{idx: idx, resolver: resolver}
}

// Compute derives one position per displayable entity. Entities that
// cannot be placed this cycle (too few stop updates, no segment
// bounding now, dangling stop references, degenerate times) are
// skipped, not errors. Output order is unspecified.
func (ip *Interpolator) Compute(entities []models.FeedEntity, now time.Time) []models.TrainPosition {
	positions := make([]models.TrainPosition, 0, len(entities))
	for i := range entities {
		if pos, ok := ip.computeOne(&entities[i], now); ok {
			positions = append(positions, pos)
		}
	}
	return positions
}

func (ip *Interpolator) computeOne(e *models.FeedEntity, now time.Time) (models.TrainPosition, bool) {
	if e.TripID == "" || e.RouteID == "" || len(e.StopUpdates) < 2 {
		return models.TrainPosition{}, false
	}

	// Find the first stop update still ahead of now; the train sits on
	// the segment between its predecessor and it. No such pair (all
	// stops passed, or the first stop is still ahead) means no
	// displayable state this cycle.
	nextIdx := -1
	for i := range e.StopUpdates {
		arr := e.StopUpdates[i].Arrival
		if arr != nil && arr.After(now) {
			nextIdx = i
			break
		}
	}
	if nextIdx <= 0 {
		return models.TrainPosition{}, false
	}

	prev := &e.StopUpdates[nextIdx-1]
	next := &e.StopUpdates[nextIdx]

	prevStop := ip.idx.GetStop(prev.StopID)
	nextStop := ip.idx.GetStop(next.StopID)
	if prevStop == nil || nextStop == nil {
		log.Printf("position: trip %s references unknown stop (%s or %s), skipping", e.TripID, prev.StopID, next.StopID)
		return models.TrainPosition{}, false
	}

	prevTime := prev.Departure
	if prevTime == nil {
		prevTime = prev.Arrival
	}
	nextTime := next.Arrival
	if prevTime == nil || nextTime == nil || !nextTime.After(*prevTime) {
		return models.TrainPosition{}, false
	}

	progress := now.Sub(*prevTime).Seconds() / nextTime.Sub(*prevTime).Seconds()
	progress = clamp(progress, 0, 1)

	hs := ip.resolver.Resolve(e.TripID, e.RouteID)
	if hs == "" {
		hs = nextStop.Name
	}

	return models.TrainPosition{
		TripID:       e.TripID,
		RouteID:      e.RouteID,
		Lat:          prevStop.Lat + (nextStop.Lat-prevStop.Lat)*progress,
		Lon:          prevStop.Lon + (nextStop.Lon-prevStop.Lon)*progress,
		Heading:      Bearing(prevStop.Lat, prevStop.Lon, nextStop.Lat, nextStop.Lon),
		NextStopID:   nextStop.ID,
		NextStopName: hs,
		ETA:          nextTime.UTC().Format(time.RFC3339),
	}, true
}

// Bearing returns the initial great-circle bearing in degrees from
// point 1 to point 2, normalized to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(deltaLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) -
		math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
