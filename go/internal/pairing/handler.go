package pairing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const maxPairBodyBytes = 4 << 10

// Handler serves /pairDevice.
type Handler struct {
	app     *App
	metrics MetricsCollector
}

// NewHandler creates a new pairing Handler.
func NewHandler(app *App, metrics MetricsCollector) *Handler {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Handler{app: app, metrics: metrics}
}

// Routes returns the handler wrapped with permissive CORS. Preflight
// requests are answered with 204 by the CORS layer and never reach
// ServeHTTP.
func (h *Handler) Routes() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusNoContent,
		OptionsPassthrough:   false,
	})
	return c.Handler(http.HandlerFunc(h.ServeHTTP))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.options(w)
	case http.MethodPost:
		h.pair(w, r)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

// options answers an OPTIONS without Access-Control-Request-Method. The
// CORS layer only intercepts real preflights, and device clients probe the
// route with a bare OPTIONS.
func (h *Handler) options(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (h *Handler) pair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPairBodyBytes)).Decode(&req); err != nil {
		h.fail(w, fmt.Errorf("%w: body must be a JSON object", ErrValidation))
		return
	}
	req.UserAgent = r.UserAgent()

	reg, err := h.app.PairDevice(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.metrics.Pair(http.StatusOK)
	writeJSON(w, http.StatusOK, PairResponse{
		OK:           true,
		ChannelID:    reg.ChannelID,
		DeviceID:     reg.DeviceID,
		DeviceSecret: reg.DeviceSecret,
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
		msg = strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
	case errors.Is(err, ErrMisconfigured):
		msg = ErrMisconfigured.Error()
	case errors.Is(err, ErrStore):
		msg = ErrStore.Error()
	}

	h.metrics.Pair(status)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("pairing failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("pairing rejected")
	}
	writeJSON(w, status, errorResponse{OK: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
