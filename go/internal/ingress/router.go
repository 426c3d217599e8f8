package ingress

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RouterConfig configures the public HTTP surface.
type RouterConfig struct {
	// RequestLimit is the per-IP budget for the webhook and pairing routes
	// within Window. Zero disables rate limiting.
	RequestLimit int
	Window       time.Duration
}

// DefaultRouterConfig allows 120 requests per minute per IP.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{RequestLimit: 120, Window: time.Minute}
}

// NewRouter mounts the webhook, ping, health and metrics routes, plus the
// pairing handler at /pairDevice when it is non-nil.
func NewRouter(h *Handler, pairing http.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ping", h.Ping)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RequestLimit > 0 {
			r.Use(rateLimit(cfg))
		}
		r.Post("/", h.Webhook)
		if pairing != nil {
			r.Handle("/pairDevice", pairing)
		}
	})
	return r
}

func rateLimit(cfg RouterConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(cfg.Window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, response{OK: false, Error: "rate limit exceeded"})
		}),
	)
}

// NewServer wraps handler for HTTP/1.1 and cleartext HTTP/2.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
