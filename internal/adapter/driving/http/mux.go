// Package httphandler is the HTTP driving adapter for the issuer and verifier APIs.
package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/credrelay/internal/metrics"
)

// Service names reported by /health.
const (
	IssuerServiceName   = "issuance-service"
	VerifierServiceName = "verification-service"
)

// MuxConfig holds the cross-cutting dependencies shared by both muxes.
type MuxConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer // nil disables GET /metrics
	AllowedOrigins []string
	Version        string
}

// NewIssuerMux creates the issuer's http.Handler with all routes registered and
// wrapped with the shared middleware.
func NewIssuerMux(h *IssuerHandler, cfg MuxConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /issue", h.Issue)
	mux.HandleFunc("GET /credential/{id}", h.GetCredential)
	mux.HandleFunc("HEAD /credential/{id}", h.CredentialExists)
	mux.HandleFunc("GET /credentials", h.ListCredentials)
	mux.HandleFunc("DELETE /credentials", h.ClearCredentials)
	mux.HandleFunc("POST /admin/resync", h.Resync)
	mux.HandleFunc("GET /health", healthHandler(IssuerServiceName, cfg.Version))
	registerMetrics(mux, cfg.Gatherer)

	return wrap(mux, cfg)
}

// NewVerifierMux creates the verifier's http.Handler with all routes registered
// and wrapped with the shared middleware.
func NewVerifierMux(h *VerifierHandler, cfg MuxConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /verify", h.Verify)
	mux.HandleFunc("POST /sync", h.Sync)
	mux.HandleFunc("GET /credentials", h.ListCredentials)
	mux.HandleFunc("GET /health", healthHandler(VerifierServiceName, cfg.Version))
	registerMetrics(mux, cfg.Gatherer)

	return wrap(mux, cfg)
}

func registerMetrics(mux *http.ServeMux, g prometheus.Gatherer) {
	if g == nil {
		return
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// healthHandler returns a liveness handler for the named service.
func healthHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "healthy",
			Service:   service,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   version,
		})
	}
}
