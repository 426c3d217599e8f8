package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/countdown"
)

// StatusFunc reports the listener's live state for /status.
type StatusFunc func() Status

// Status is the body of GET /status.
type Status struct {
	Subscription string            `json:"subscription"`
	Countdown    string            `json:"countdown"`
	OffsetMs     int64             `json:"offset_ms"`
	Resolved     bool              `json:"offset_resolved"`
	Latest       *countdown.Update `json:"latest,omitempty"`
	Connections  int               `json:"connections"`
}

// WebSocketHandler serves the countdown stream and status endpoints.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	status            StatusFunc
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, status StatusFunc) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm, status: status}
}

// HandleCountdown upgrades the request and streams updates to it.
func (h *WebSocketHandler) HandleCountdown(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleStatus returns a JSON snapshot of the listener.
func (h *WebSocketHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var st Status
	if h.status != nil {
		st = h.status()
	}
	st.Connections = h.connectionManager.ConnectionCount()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Error().Err(err).Msg("failed to write status response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/countdown", h.HandleCountdown)
	mux.HandleFunc("/status", h.HandleStatus)
}
