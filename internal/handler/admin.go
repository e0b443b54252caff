package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"socialecho/internal/audit"
	"socialecho/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// AdminHandler exposes the moderator-only audit log surface.
type AdminHandler struct {
	service  *audit.Service
	stream   *audit.Stream
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *audit.Service, stream *audit.Stream, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		stream:  stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Bearer auth already ran; origin checks add nothing here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// ListLogs returns a page of audit entries, newest first. Supports level,
// type, limit, and offset query parameters.
func (h *AdminHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		Level: q.Get("level"),
		Type:  q.Get("type"),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	entries, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list audit logs", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"total": total,
	})
}

// ClearLogs deletes all audit entries.
func (h *AdminHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		h.logger.Error("Failed to clear audit logs", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Failed to clear logs")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"message": "All logs have been deleted"})
}

// StreamLogs upgrades to a WebSocket and pushes audit entries as they are
// recorded.
func (h *AdminHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	entries, cancel := h.stream.Subscribe()
	defer cancel()

	// Reader goroutine: drain control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
