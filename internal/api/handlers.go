// Package api exposes HTTP handlers for the micro-action service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/janhstrom/mindreminder-sub000/internal/auth"
	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/persistence"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /v1/micro-actions", h.requireScope(auth.ScopeMicroActionsRead, h.listMicroActions))
	mux.HandleFunc("POST /v1/micro-actions", h.requireScope(auth.ScopeMicroActionsWrite, h.createMicroAction))
	mux.HandleFunc("GET /v1/micro-actions/stats", h.requireScope(auth.ScopeMicroActionsRead, h.stats))
	mux.HandleFunc("GET /v1/micro-actions/{id}", h.requireScope(auth.ScopeMicroActionsRead, h.getMicroAction))
	mux.HandleFunc("PATCH /v1/micro-actions/{id}", h.requireScope(auth.ScopeMicroActionsWrite, h.updateMicroAction))
	mux.HandleFunc("DELETE /v1/micro-actions/{id}", h.requireScope(auth.ScopeMicroActionsWrite, h.deleteMicroAction))
	mux.HandleFunc("POST /v1/micro-actions/{id}/completion", h.requireScope(auth.ScopeMicroActionsWrite, h.complete))
	mux.HandleFunc("DELETE /v1/micro-actions/{id}/completion", h.requireScope(auth.ScopeMicroActionsWrite, h.uncomplete))
	mux.HandleFunc("GET /v1/micro-actions/{id}/history", h.requireScope(auth.ScopeMicroActionsRead, h.history))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireScope rejects requests without claims or without scope. Write implies read.
func (h *Handler) requireScope(scope string, next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		allowed := claims.HasScope(scope)
		if scope == auth.ScopeMicroActionsRead && claims.HasScope(auth.ScopeMicroActionsWrite) {
			allowed = true
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
			return
		}
		next(w, r, claims.Subject)
	}
}

func (h *Handler) createMicroAction(w http.ResponseWriter, r *http.Request, userID string) {
	var req CreateMicroActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.service.CreateMicroAction(r.Context(), userID, req.toInput())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMicroActionResponse(*view))
}

func (h *Handler) getMicroAction(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.service.GetMicroAction(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMicroActionResponse(*view))
}

func (h *Handler) listMicroActions(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	views, next, err := h.service.ListMicroActionsPage(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]MicroActionResponse, 0, len(views))
	for _, view := range views {
		items = append(items, toMicroActionResponse(view))
	}
	writeJSON(w, http.StatusOK, ListMicroActionsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) updateMicroAction(w http.ResponseWriter, r *http.Request, userID string) {
	var req UpdateMicroActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.service.UpdateMicroAction(r.Context(), userID, r.PathValue("id"), req.toPatch())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMicroActionResponse(*view))
}

func (h *Handler) deleteMicroAction(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.service.DeleteMicroAction(r.Context(), userID, r.PathValue("id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, userID string) {
	result, err := h.service.CompleteMicroAction(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	replay := result.Outcome == domain.InsertExisting
	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeJSON(w, status, CompletionResponse{
		CompletionID: result.Event.ID,
		CompletedOn:  result.Event.Day.String(),
		CompletedAt:  result.Event.CompletedAt,
		Replay:       replay,
		MicroAction:  toMicroActionResponse(result.View),
	})
}

func (h *Handler) uncomplete(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.service.UncompleteMicroAction(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMicroActionResponse(*view))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, userID string) {
	days, err := h.service.History(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		MicroActionID: r.PathValue("id"),
		Days:          formatDays(days),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := h.service.GetStats(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:                stats,
		LongestCurrentStreak: stats.LongestCurrentStreak(),
		Date:                 h.service.Today().String(),
	})
}

// writeDomainError maps service errors onto the HTTP error contract.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing user identity")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "micro-action not found")
	case errors.Is(err, domain.ErrTransport):
		h.logger.Warn("persistence_unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable")
	default:
		h.logger.Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func formatDays(days []civil.Date) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.String())
	}
	return out
}
