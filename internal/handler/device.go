package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"socialecho/internal/contextauth"
	"socialecho/internal/middleware"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ContextHandler exposes self-service management of a user's trusted devices.
type ContextHandler struct {
	service *contextauth.Service
	logger  logger.Logger
}

// NewContextHandler creates a new ContextHandler.
func NewContextHandler(service *contextauth.Service, log logger.Logger) *ContextHandler {
	return &ContextHandler{service: service, logger: log}
}

// List returns the caller's stored contexts, optionally filtered by the
// "status" query parameter (trusted, blocked, pending).
func (h *ContextHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var filter contextauth.Filter
	switch r.URL.Query().Get("status") {
	case "trusted":
		filter = contextauth.FilterTrusted
	case "blocked":
		filter = contextauth.FilterBlocked
	case "pending":
		filter = contextauth.FilterPending
	case "":
	default:
		h.respondError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	records, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("Failed to list contexts", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contexts": records,
		"total":    len(records),
	})
}

// Trust marks one of the caller's contexts as trusted.
func (h *ContextHandler) Trust(w http.ResponseWriter, r *http.Request) {
	h.setTrust(w, r, true)
}

// Untrust removes the trusted flag from one of the caller's contexts.
func (h *ContextHandler) Untrust(w http.ResponseWriter, r *http.Request) {
	h.setTrust(w, r, false)
}

func (h *ContextHandler) setTrust(w http.ResponseWriter, r *http.Request, trusted bool) {
	userID, contextID, ok := h.ownedContext(w, r)
	if !ok {
		return
	}

	if err := h.service.SetTrust(r.Context(), userID, contextID, trusted); err != nil {
		h.contextError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"is_trusted": trusted})
}

// Block marks one of the caller's contexts as blocked.
func (h *ContextHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.setBlock(w, r, true)
}

// Unblock removes the blocked flag from one of the caller's contexts.
func (h *ContextHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.setBlock(w, r, false)
}

func (h *ContextHandler) setBlock(w http.ResponseWriter, r *http.Request, blocked bool) {
	userID, contextID, ok := h.ownedContext(w, r)
	if !ok {
		return
	}

	if err := h.service.SetBlock(r.Context(), userID, contextID, blocked); err != nil {
		h.contextError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"is_blocked": blocked})
}

// Delete removes one of the caller's stored contexts.
func (h *ContextHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, contextID, ok := h.ownedContext(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, contextID); err != nil {
		h.contextError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Device removed"})
}

func (h *ContextHandler) ownedContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, uuid.Nil, false
	}

	contextID, err := uuid.Parse(mux.Vars(r)["contextId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid device ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, contextID, true
}

func (h *ContextHandler) contextError(w http.ResponseWriter, err error) {
	if errors.Is(err, secherrors.ErrContextNotFound) {
		h.respondError(w, http.StatusNotFound, "Device not found")
		return
	}

	h.logger.Error("Context operation failed", map[string]interface{}{"error": err.Error()})
	h.respondError(w, http.StatusInternalServerError, "Operation failed")
}

func (h *ContextHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ContextHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
