package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/replay"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminController exposes the dead-letter inspection and replay endpoints.
// These are operator surfaces, not tenant APIs.
type AdminController struct {
	deadLetters   deadletter.Repository
	replayService *replay.Service
}

func NewAdminController(deadLetters deadletter.Repository, replayService *replay.Service) *AdminController {
	return &AdminController{
		deadLetters:   deadLetters,
		replayService: replayService,
	}
}

// ListDeadLetters handles GET /admin/dead-letters. Filters come in as query
// parameters; unreplayed=true narrows to records still eligible for replay.
func (h *AdminController) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 1000", Code: "invalid_limit"})
			return
		}
		limit = n
	}

	recs, err := h.deadLetters.List(r.Context(), filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := DeadLetterListResponse{
		DeadLetters: make([]*DeadLetterResponse, 0, len(recs)),
		Count:       len(recs),
	}
	for _, rec := range recs {
		resp.DeadLetters = append(resp.DeadLetters, FromDeadLetter(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDeadLetter handles GET /admin/dead-letters/{id}.
func (h *AdminController) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid dead letter id", Code: "invalid_id"})
		return
	}

	rec, err := h.deadLetters.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromDeadLetter(rec))
}

// ReplayDeadLetter handles POST /admin/dead-letters/{id}/replay.
func (h *AdminController) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid dead letter id", Code: "invalid_id"})
		return
	}

	if err := h.replayService.ReplaySingle(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "replayed", "id": id.String()})
}

// ReplayBatch handles POST /admin/dead-letters/replay. The body holds an
// optional filter; replay is throttled server-side.
func (h *AdminController) ReplayBatch(w http.ResponseWriter, r *http.Request) {
	var req ReplayBatchRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	filter := deadletter.Filter{
		EventType:      req.EventType,
		Reason:         req.Reason,
		From:           req.From,
		To:             req.To,
		OnlyUnreplayed: true,
	}

	summary, err := h.replayService.ReplayBatch(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func filterFromQuery(r *http.Request) (deadletter.Filter, error) {
	q := r.URL.Query()
	filter := deadletter.Filter{
		EventType:      q.Get("event_type"),
		Reason:         q.Get("reason"),
		OnlyUnreplayed: q.Get("unreplayed") == "true",
	}

	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return deadletter.Filter{}, domainErrors.NewValidationError("from", "must be RFC3339")
		}
		filter.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return deadletter.Filter{}, domainErrors.NewValidationError("to", "must be RFC3339")
		}
		filter.To = &ts
	}
	return filter, nil
}
