package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/observability"
)

// NewRouter wires the gateway routes, /metrics and the middleware chain.
// Middleware runs only for matched routes; unmatched paths get JSON 404/405 bodies.
func NewRouter(h *Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/api/hello", h.GetHello).Methods(http.MethodGet)
	router.HandleFunc("/api/weather/ny", h.GetWeather).Methods(http.MethodGet)
	router.HandleFunc("/api/load", h.GetLoad).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return router
}
