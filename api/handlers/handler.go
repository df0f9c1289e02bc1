package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/process-env/train-tracker-sub001/internal/static"
	"github.com/process-env/train-tracker-sub001/pkg/tracker"
)

// Handler handles HTTP requests
type Handler struct {
	client tracker.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(client tracker.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/trains", h.handleTrains).Methods("GET")
	r.HandleFunc("/trains/nearby", h.handleTrainsNearby).Methods("GET")
	r.HandleFunc("/arrivals/{group}/{stop}", h.handleArrivalBoard).Methods("GET")
	r.HandleFunc("/stations/{id}/arrivals", h.handleStationArrivals).Methods("GET")
	r.HandleFunc("/stops", h.handleSearchStops).Methods("GET")
	r.HandleFunc("/stops/{id}", h.handleStop).Methods("GET")
	r.HandleFunc("/feeds", h.handleFeeds).Methods("GET")
}

// Response wraps API responses
type Response struct {
	Data    interface{} `json:"data"`
	Updated string      `json:"updated,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"title":  "train-tracker",
		"readme": "Live train positions and arrival boards derived from GTFS-RT feeds",
	}
	h.writeJSON(w, response)
}

func (h *Handler) handleTrains(w http.ResponseWriter, r *http.Request) {
	var groups []string
	if g := r.URL.Query().Get("groups"); g != "" {
		groups = strings.Split(g, ",")
	}

	positions, err := h.client.GetTrainPositions(r.Context(), groups...)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, Response{Data: positions, Updated: time.Now().Format(time.RFC3339)})
}

func (h *Handler) handleTrainsNearby(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		h.writeError(w, "Missing lat/lon parameter", http.StatusBadRequest)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lat parameter", http.StatusBadRequest)
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lon parameter", http.StatusBadRequest)
		return
	}

	limit := 5
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit <= 0 {
			h.writeError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	positions, err := h.client.GetTrainsNearby(r.Context(), lat, lon, limit)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, Response{Data: positions, Updated: time.Now().Format(time.RFC3339)})
}

func (h *Handler) handleArrivalBoard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	board, err := h.client.GetArrivalBoard(r.Context(), vars["group"], vars["stop"], useCache(r))
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, Response{Data: board, Updated: board.UpdatedAt.Format(time.RFC3339)})
}

func (h *Handler) handleStationArrivals(w http.ResponseWriter, r *http.Request) {
	stationID := mux.Vars(r)["id"]

	board, err := h.client.GetStationArrivals(r.Context(), stationID, useCache(r))
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, Response{Data: board, Updated: board.UpdatedAt.Format(time.RFC3339)})
}

func (h *Handler) handleSearchStops(w http.ResponseWriter, r *http.Request) {
	stops, err := h.client.SearchStops(r.URL.Query().Get("q"), r.URL.Query().Get("route"))
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, Response{Data: stops})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	stop, err := h.client.GetStop(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	if stop == nil {
		h.writeError(w, "Stop not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, Response{Data: stop})
}

func (h *Handler) handleFeeds(w http.ResponseWriter, r *http.Request) {
	timestamps := h.client.GetFeedTimestamps()

	data := make(map[string]string, len(timestamps))
	for group, t := range timestamps {
		data[group] = t.Format(time.RFC3339)
	}

	h.writeJSON(w, Response{Data: data})
}

// useCache reads the fresh query flag; fresh=1 bypasses the result
// cache.
func useCache(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("fresh")) {
	case "1", "true", "yes":
		return false
	}
	return true
}

// statusFor maps engine errors to HTTP statuses: missing reference
// data is a server fault, unknown identifiers are client faults.
func statusFor(err error) int {
	if errors.Is(err, static.ErrDataLoad) {
		return http.StatusInternalServerError
	}
	if errors.Is(err, tracker.ErrUnknownGroup) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.writeError(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
