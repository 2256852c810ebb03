package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/alert"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/obs"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/services/scheduler"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop()
	Status() scheduler.Status
}

type ManualTrigger interface {
	TriggerManual(ctx context.Context, id int64) (*check.Outcome, error)
}

type Subscriptions interface {
	ServeWS(w http.ResponseWriter, r *http.Request, ownerID int64)
}

type Server struct {
	Logger    *zap.Logger
	Scheduler SchedulerControl
	Trigger   ManualTrigger
	Hub       Subscriptions
	Results   check.Repo
	Alerts    alert.Repo
	Health    func(context.Context) error
	// BaseCtx is the parent context for a scheduler started over HTTP.
	BaseCtx context.Context
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", obs.HealthHandler(s.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/scheduler/status", s.handleStatus)
		r.Post("/scheduler/start", s.handleStart)
		r.Post("/scheduler/stop", s.handleStop)

		r.Post("/monitors/{id}/check", s.handleCheck)
		r.Get("/monitors/{id}/results", s.handleResults)
		r.Get("/monitors/{id}/alerts", s.handleAlerts)

		r.Get("/ws", s.handleWS)
	})

	return otelhttp.NewHandler(r, "httpapi")
}

func (s *Server) log(r *http.Request) *zap.Logger {
	l := s.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return obs.WithTrace(r.Context(), l)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	base := s.BaseCtx
	if base == nil {
		base = context.Background()
	}
	if err := s.Scheduler.Start(base); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log(r).Error("start scheduler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start scheduler")
		return
	}
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.Scheduler.Stop()
	writeJSON(w, http.StatusOK, s.Scheduler.Status())
}

type checkResponse struct {
	Outcome *check.Outcome `json:"outcome"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := s.Trigger.TriggerManual(r.Context(), id)
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	case err != nil && o == nil:
		s.log(r).Error("manual check", zap.Int64("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}

	resp := checkResponse{Outcome: o}
	if err != nil {
		s.log(r).Warn("manual check bookkeeping", zap.Int64("monitor_id", id), zap.Error(err))
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.Results == nil {
		writeError(w, http.StatusNotImplemented, "result history unavailable")
		return
	}
	out, err := s.Results.ListByMonitor(r.Context(), id, historyLimit(r))
	if err != nil {
		s.log(r).Error("list results", zap.Int64("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.Alerts == nil {
		writeError(w, http.StatusNotImplemented, "alert history unavailable")
		return
	}
	out, err := s.Alerts.ListByMonitor(r.Context(), id, historyLimit(r))
	if err != nil {
		s.log(r).Error("list alerts", zap.Int64("monitor_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	owner, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || owner <= 0 {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	s.Hub.ServeWS(w, r, owner)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad monitor id")
		return 0, false
	}
	return id, true
}

func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
