package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/netsentry/netsentry/internal/middleware"
)

// NewRouter constructs the API router with CORS and request-ID middleware.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/threats", h.Threats)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/threats/query", h.Query)
	mux.HandleFunc("GET /api/ips", h.TopIPs)
	mux.HandleFunc("GET /api/ips/{ip}", h.IPStats)
	mux.HandleFunc("GET /api/export.csv", h.Export)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/retry", h.Retry)

	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})

	return middleware.RequestID(c.Handler(mux))
}
