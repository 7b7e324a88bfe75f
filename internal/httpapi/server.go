// Package httpapi serves the tracker's view and filter operations as JSON.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"bus-tracker/internal/filter"
	"bus-tracker/internal/logging"
	"bus-tracker/internal/tracker"
	"bus-tracker/internal/transit"
)

const maxBodyBytes = 1 << 16

type Tracker interface {
	View() tracker.View
	Snapshot() tracker.Snapshot
	ToggleRoute(route string) tracker.View
	SetVehicleQuery(q string) tracker.View
	ClearAll() tracker.View
	DismissErrors() tracker.View
}

// Response mirrors the backend's envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Server struct {
	tracker Tracker
	logger  *slog.Logger
}

func New(t Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{tracker: t, logger: logger.With(slog.String("component", "httpapi"))}
}

func (s *Server) Routes() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/healthz", s.healthzHandler)
	router.HandlerFunc(http.MethodGet, "/api/view", s.viewHandler)
	router.HandlerFunc(http.MethodGet, "/api/vehicles", s.vehiclesHandler)
	router.HandlerFunc(http.MethodGet, "/api/stops", s.stopsHandler)
	router.HandlerFunc(http.MethodGet, "/api/routes", s.routesHandler)
	router.HandlerFunc(http.MethodPost, "/api/filters/routes/:route", s.toggleRouteHandler)
	router.HandlerFunc(http.MethodPut, "/api/filters/query", s.setQueryHandler)
	router.HandlerFunc(http.MethodDelete, "/api/filters", s.clearFiltersHandler)
	router.HandlerFunc(http.MethodDelete, "/api/status/errors", s.dismissErrorsHandler)
	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
	})
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, http.StatusNotFound, "not found")
	})
	return s.withLogging(withCORS(router))
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "OK"}})
}

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.tracker.View(), -1)
}

// vehiclesHandler runs the filter over the current canonical set without
// touching the shared filter selection.
func (s *Server) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vs := filter.Vehicles(s.tracker.Snapshot().Vehicles, splitCSV(q.Get("routes")), q.Get("bus"))
	if vs == nil {
		vs = []transit.Vehicle{}
	}
	s.sendData(w, vs, len(vs))
}

func (s *Server) stopsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	stops := filter.Stops(snap.Stops, splitCSV(r.URL.Query().Get("routes")), snap.Services)
	if stops == nil {
		stops = []transit.Stop{}
	}
	s.sendData(w, stops, len(stops))
}

func (s *Server) routesHandler(w http.ResponseWriter, r *http.Request) {
	routes := s.tracker.Snapshot().Routes
	list := make([]transit.Route, 0, len(routes))
	for _, rt := range routes {
		list = append(list, rt)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ShortName < list[j].ShortName })
	s.sendData(w, list, len(list))
}

func (s *Server) toggleRouteHandler(w http.ResponseWriter, r *http.Request) {
	route := strings.TrimSpace(httprouter.ParamsFromContext(r.Context()).ByName("route"))
	if route == "" {
		s.errorResponse(w, http.StatusBadRequest, "route is required")
		return
	}
	s.sendData(w, s.tracker.ToggleRoute(route), -1)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) setQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.sendData(w, s.tracker.SetVehicleQuery(req.Query), -1)
}

func (s *Server) clearFiltersHandler(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.tracker.ClearAll(), -1)
}

func (s *Server) dismissErrorsHandler(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.tracker.DismissErrors(), -1)
}

// sendData writes a success envelope; count < 0 omits the count field.
func (s *Server) sendData(w http.ResponseWriter, data any, count int) {
	resp := Response{Success: true, Data: data}
	if count >= 0 {
		resp.Count = &count
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.LogError(s.logger, "write response failed", err)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
