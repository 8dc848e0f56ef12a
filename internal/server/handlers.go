package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sym-studio/sym-go/internal/apperr"
	"github.com/sym-studio/sym-go/internal/metrics"
	"github.com/sym-studio/sym-go/internal/realtime"
	"github.com/sym-studio/sym-go/internal/service"
)

// Handler carries the dependencies of the REST and websocket endpoints.
type Handler struct {
	svc     *service.GenerateService
	hub     *realtime.Hub
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewHandler creates the endpoint handler set.
func NewHandler(svc *service.GenerateService, hub *realtime.Hub, collector *metrics.Collector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, hub: hub, metrics: collector, logger: logger}
}

// Routes builds the router.
func Routes(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ai/generate", h.Generate)
		r.Get("/ai/jobs", h.ListJobs)
		r.Get("/ai/jobs/{id}", h.GetJob)
		r.Get("/ai/queue/{id}", h.GetQueueJob)
		r.Get("/ai/models", h.ListModels)
		r.Get("/stats", h.Stats)
	})

	r.Get("/ws/{namespace}", h.Websocket)

	return r
}

type apiError struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperr.HTTPStatus(err), map[string]apiError{
		"error": {Code: apperr.CodeOf(err), Message: err.Error()},
	})
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Generate accepts a generation request and answers 202 with the job id
// before any provider work happens.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("invalid json body"))
		return
	}

	resp, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

// GetJob returns the durable record of a job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListJobs returns the newest records created by a user.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, apperr.Validation("invalid limit: %s", raw))
			return
		}
		limit = n
	}

	jobs, err := h.svc.ListRecords(r.Context(), r.URL.Query().Get("userId"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetQueueJob returns the ephemeral queue-side state of a submission.
func (h *Handler) GetQueueJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetQueueJob(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListModels returns the aggregated model catalog.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"models": h.svc.Models()})
}

// Stats returns the in-memory runtime statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// Websocket upgrades the request into a realtime connection on the named
// namespace.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	ns, ok := realtime.ParseNamespace(chi.URLParam(r, "namespace"))
	if !ok {
		h.writeError(w, apperr.NotFound("namespace", chi.URLParam(r, "namespace")))
		return
	}
	h.hub.Handler(ns)(w, r)
}
