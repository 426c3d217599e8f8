package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBodyBytes bounds webhook bodies.
const DefaultMaxBodyBytes = 20 << 10

// Handler serves the webhook, ping and health endpoints.
type Handler struct {
	app          *App
	clock        clockwork.Clock
	metrics      MetricsCollector
	MaxBodyBytes int64
}

// NewHandler creates a new ingress Handler.
func NewHandler(app *App, clock clockwork.Clock, metrics MetricsCollector) *Handler {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Handler{app: app, clock: clock, metrics: metrics, MaxBodyBytes: DefaultMaxBodyBytes}
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    int64  `json:"ts,omitempty"`
}

// Webhook handles POST /.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = ErrPayloadTooLarge
		} else {
			err = fmt.Errorf("%w: read body: %v", ErrValidation, err)
		}
		h.fail(w, "", err)
		return
	}

	ev, channelID, err := h.app.Accept(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		h.fail(w, channelID, err)
		return
	}

	h.metrics.Webhook(http.StatusOK, ev.Type)
	logEvent := log.Info().
		Str("channel_id", channelID).
		Str("type", ev.Type).
		Int64("duration", ev.Duration).
		Int64("server_ts", ev.ServerTS).
		Str("secret_fp", h.app.SecretFingerprint())
	if ev.EndsAt != nil {
		logEvent = logEvent.Int64("ends_at", *ev.EndsAt)
	}
	logEvent.Msg("event stored")

	writeJSON(w, http.StatusOK, response{OK: true})
}

func (h *Handler) fail(w http.ResponseWriter, channelID string, err error) {
	status := statusFor(err)
	h.metrics.Webhook(status, "")

	logEvent := log.Warn()
	if status >= http.StatusInternalServerError {
		logEvent = log.Error()
	}
	logEvent.
		Err(err).
		Int("status", status).
		Str("channel_id", channelID).
		Str("secret_fp", h.app.SecretFingerprint()).
		Msg("webhook rejected")

	writeJSON(w, status, response{OK: false, Error: publicMessage(err)})
}

// Ping handles GET /ping.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{OK: true, TS: h.clock.Now().UnixMilli()})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
