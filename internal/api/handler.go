package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/store"
	"github.com/djlord-it/bizflow/internal/transport/channel"
	"github.com/djlord-it/bizflow/internal/trigger"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// TriggerService is satisfied by *trigger.Service.
type TriggerService interface {
	List(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error)
	Get(ctx context.Context, id int64) (domain.Trigger, error)
	Create(ctx context.Context, in trigger.CreateInput) (domain.Trigger, error)
	Update(ctx context.Context, id int64, in trigger.UpdateInput) (domain.Trigger, error)
	Delete(ctx context.Context, id int64) error
	Toggle(ctx context.Context, id int64) (domain.Trigger, error)
}

// AuditStore reads the event record and trigger execution logs.
type AuditStore interface {
	ListEvents(ctx context.Context, f store.EventFilter) ([]domain.Event, error)
	ListTriggerLogs(ctx context.Context, triggerID int64, limit, offset int) ([]domain.TriggerLog, error)
}

// Ingestor queues an emission for the dispatcher.
type Ingestor interface {
	Emit(ctx context.Context, req domain.EmitRequest) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	triggers TriggerService
	audit    AuditStore
	ingest   Ingestor
	db       HealthChecker
	origins  []string
	limiter  *rate.Limiter
	router   chi.Router
}

func NewHandler(triggers TriggerService, audit AuditStore) *Handler {
	h := &Handler{triggers: triggers, audit: audit}
	h.router = h.routes()
	return h
}

// WithIngestor enables POST /events.
func (h *Handler) WithIngestor(i Ingestor) *Handler {
	h.ingest = i
	return h
}

// WithIngestLimit rejects POST /events with 429 once l is exhausted.
func (h *Handler) WithIngestLimit(l *rate.Limiter) *Handler {
	h.limiter = l
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithCORS allows browser calls from origins. Middleware must precede
// routes in chi, so the router is rebuilt.
func (h *Handler) WithCORS(origins []string) *Handler {
	h.origins = origins
	h.router = h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(h.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.origins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", h.health)
	r.Get("/event-types", h.eventTypes)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.listEvents)
		r.Post("/", h.emitEvent)
	})

	r.Route("/triggers", func(r chi.Router) {
		r.Get("/", h.listTriggers)
		r.Post("/", h.createTrigger)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getTrigger)
			r.Patch("/", h.updateTrigger)
			r.Delete("/", h.deleteTrigger)
			r.Post("/toggle", h.toggleTrigger)
			r.Get("/logs", h.listTriggerLogs)
		})
	})

	return r
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	if h.ingest != nil {
		resp.Components["ingestion"] = "enabled"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) eventTypes(w http.ResponseWriter, r *http.Request) {
	resp := EventTypesResponse{}
	for _, t := range domain.EventTypes() {
		resp.EventTypes = append(resp.EventTypes, string(t))
	}
	for _, t := range domain.ActionTypes() {
		resp.ActionTypes = append(resp.ActionTypes, string(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) emitEvent(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "event ingestion disabled")
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "event rate limit exceeded")
		return
	}

	var req EmitEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	eventType, err := parseEventType(req.EventType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	if err := h.ingest.Emit(r.Context(), domain.EmitRequest{Type: eventType, Payload: req.Payload}); err != nil {
		if errors.Is(err, channel.ErrBufferFull) {
			writeError(w, http.StatusServiceUnavailable, "event buffer full, retry later")
			return
		}
		log.Printf("api: ingest event=%s error: %v", eventType, err)
		writeError(w, http.StatusInternalServerError, "failed to accept event")
		return
	}

	writeJSON(w, http.StatusAccepted, EmitEventResponse{Status: "accepted", EventType: string(eventType)})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := store.EventFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("type"); raw != "" {
		et, err := parseEventType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Type = et
	}

	events, err := h.audit.ListEvents(r.Context(), f)
	if err != nil {
		log.Printf("api: list events error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := ListEventsResponse{Events: make([]EventResponse, len(events))}
	for i, ev := range events {
		resp.Events[i] = toEventResponse(ev)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.triggers.List(r.Context(), domain.EventType(r.URL.Query().Get("eventType")))
	if err != nil {
		h.writeServiceError(w, "list triggers", err)
		return
	}

	resp := ListTriggersResponse{Triggers: make([]TriggerResponse, len(triggers))}
	for i, t := range triggers {
		resp.Triggers[i] = toTriggerResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createTrigger(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in, err := createInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.triggers.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "create trigger", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTriggerResponse(t))
}

func (h *Handler) getTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(w, r)
	if !ok {
		return
	}

	t, err := h.triggers.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get trigger", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (h *Handler) updateTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(w, r)
	if !ok {
		return
	}

	var req UpdateTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in, err := updateInput(req, func() (domain.ActionType, error) {
		t, err := h.triggers.Get(r.Context(), id)
		return t.Action.Type, err
	})
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, "update trigger", err)
		return
	}

	t, err := h.triggers.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, "update trigger", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (h *Handler) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(w, r)
	if !ok {
		return
	}

	if err := h.triggers.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete trigger", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(w, r)
	if !ok {
		return
	}

	t, err := h.triggers.Toggle(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "toggle trigger", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (h *Handler) listTriggerLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(w, r)
	if !ok {
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.triggers.Get(r.Context(), id); err != nil {
		h.writeServiceError(w, "list trigger logs", err)
		return
	}

	logs, err := h.audit.ListTriggerLogs(r.Context(), id, limit, offset)
	if err != nil {
		log.Printf("api: list trigger logs trigger=%d error: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list trigger logs")
		return
	}

	resp := ListTriggerLogsResponse{Logs: make([]TriggerLogResponse, len(logs))}
	for i, l := range logs {
		resp.Logs[i] = toTriggerLogResponse(l)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps trigger service errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var verrs trigger.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verrs.Error(), Details: fieldErrors(verrs)})
	case errors.Is(err, trigger.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, trigger.ErrNotFound):
		writeError(w, http.StatusNotFound, "trigger not found")
	default:
		log.Printf("api: %s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func triggerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid trigger id")
		return 0, false
	}
	return id, true
}

// decodeBody limits and decodes a JSON body, writing the error response
// itself when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
