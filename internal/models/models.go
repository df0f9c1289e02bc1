package models

import (
	"strings"
	"time"
)

// Stop is a physical platform or a parent station grouping.
// A stop with an empty ParentID that other stops reference is a parent
// station; directional children carry a trailing N/S on their id by
// feed convention (not enforced here).
type Stop struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Routes   []string `json:"routes"`
	ParentID string   `json:"parent_id,omitempty"`
}

// ServesRoute reports whether the stop serves the given route code,
// case-insensitively.
func (s *Stop) ServesRoute(route string) bool {
	for _, r := range s.Routes {
		if strings.EqualFold(r, route) {
			return true
		}
	}
	return false
}

// TripInfo is one scheduled run from the static reference data.
type TripInfo struct {
	TripID      string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	Headsign    string `json:"headsign"`
	DirectionID int    `json:"direction_id"`
	ShapeID     string `json:"shape_id,omitempty"`
}

// StopUpdate is one predicted stop visit within a live trip update.
// ScheduleRelationship carries the feed's relationship label
// ("SKIPPED", "NO_DATA", ...) when the update or its trip declares
// one; empty means scheduled.
type StopUpdate struct {
	StopID               string
	Arrival              *time.Time
	ArrivalDelay         *int32
	Departure            *time.Time
	DepartureDelay       *int32
	ScheduleRelationship string
}

// When returns the arrival time, falling back to departure when the
// feed omits the arrival. Nil when the update carries neither.
func (u *StopUpdate) When() *time.Time {
	if u.Arrival != nil {
		return u.Arrival
	}
	return u.Departure
}

// FeedEntity is one vehicle/trip's live state from a single feed poll.
// TripID is the live, possibly-truncated identifier the feed reports,
// not necessarily a full static trip id.
type FeedEntity struct {
	TripID      string
	RouteID     string
	StopUpdates []StopUpdate
}

// TrainPosition is a derived, continuously-interpolated vehicle
// position. Keyed by TripID so repeated polls update in place.
type TrainPosition struct {
	TripID       string  `json:"trip_id"`
	RouteID      string  `json:"route_id"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Heading      float64 `json:"heading"`
	NextStopID   string  `json:"next_stop_id"`
	NextStopName string  `json:"next_stop_name"`
	ETA          string  `json:"eta"`
}

// ArrivalItem is one predicted stop visit on an arrival board.
type ArrivalItem struct {
	StopID               string `json:"stop_id"`
	StopName             string `json:"stop_name"`
	When                 string `json:"when"`
	RouteID              string `json:"route_id"`
	TripID               string `json:"trip_id"`
	ScheduleRelationship string `json:"schedule_relationship,omitempty"`
	ArrivalDelay         *int32 `json:"arrival_delay,omitempty"`
	DepartureDelay       *int32 `json:"departure_delay,omitempty"`
}

// DedupeKey identifies a unique (trip, stop) visit on a board.
func (a *ArrivalItem) DedupeKey() string {
	return a.TripID + "-" + a.StopID
}

// ArrivalBoard is the deduplicated, time-ordered set of upcoming
// arrivals for one stop or station.
type ArrivalBoard struct {
	StopID    string        `json:"stop_id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Arrivals  []ArrivalItem `json:"arrivals"`
}
