// Package headsign maps live trip identifiers to rider-facing
// destination labels, falling back through progressively coarser
// static lookups when the feed's trip id does not match the schedule.
package headsign

import (
	"regexp"
	"strings"

	"github.com/process-env/train-tracker-sub001/internal/static"
)

// shapeTokenPattern matches the embedded shape token at the tail of a
// live trip id, e.g. "987_N..N31R" -> "N..N31R" or
// "000600_1..S03R" -> "1..S03R". The format is an undocumented feed
// convention; treat this parser as a fragile boundary.
var shapeTokenPattern = regexp.MustCompile(`(?i)_([0-9A-Z]+\.\.(?:N|S)[0-9A-Z]*)$`)

// Resolver resolves headsigns against a loaded topology index.
type Resolver struct {
	idx *static.Index
}

// New creates a resolver over the given index.
func New(idx *static.Index) *Resolver {
	return &Resolver{idx: idx}
}

// Resolve returns the best-known destination label for a live trip id
// and route, or "" when every fallback is exhausted. A missing
// headsign is an expected condition, not an error: callers display a
// substitute label instead.
//
// Tiers, each consulted only when the prior produced nothing:
//  1. exact trip id lookup (full, then suffix index)
//  2. shape token embedded in the trip id -> route+shape index
//  3. direction letter from the same token -> route+direction index
func (r *Resolver) Resolve(liveTripID, routeID string) string {
	for _, tier := range []func(string, string) string{
		r.byTrip,
		r.byShape,
		r.byDirection,
	} {
		if hs := tier(liveTripID, routeID); hs != "" {
			return hs
		}
	}
	return ""
}

func (r *Resolver) byTrip(liveTripID, _ string) string {
	if trip := r.idx.Trip(liveTripID); trip != nil {
		return trip.Headsign
	}
	return ""
}

func (r *Resolver) byShape(liveTripID, routeID string) string {
	token := ShapeToken(liveTripID)
	if token == "" {
		return ""
	}
	return r.idx.HeadsignByRouteShape(routeID, token)
}

func (r *Resolver) byDirection(liveTripID, routeID string) string {
	dir := static.ShapeDirection(ShapeToken(liveTripID))
	if dir == "" {
		return ""
	}
	return r.idx.HeadsignByRouteDirection(routeID, dir)
}

// ShapeToken extracts the shape token from a live trip id, uppercased,
// or "" when the id does not carry one.
func ShapeToken(liveTripID string) string {
	m := shapeTokenPattern.FindStringSubmatch(liveTripID)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}
