package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/loadgen"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
)

// HelloMessage is the fixed greeting served by GET /api/hello.
const HelloMessage = "Hello from Go API"

// WeatherErrorLabel is the fixed error label for failed upstream fetches.
const WeatherErrorLabel = "Failed to fetch weather data"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	client   client.WeatherClient
	location client.Location
	logger   *zap.Logger
}

// NewHandler returns a Handler serving weather for New York City.
func NewHandler(weatherClient client.WeatherClient, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		client:   weatherClient,
		location: client.NewYorkCity,
		logger:   logger,
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// GetHello handles GET /api/hello.
func (h *Handler) GetHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: HelloMessage})
}

// GetWeather handles GET /api/weather/ny. Any upstream failure becomes a 500
// carrying the underlying error text; nothing is retried or cached.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	reading, err := h.client.GetCurrentWeather(r.Context(), h.location)
	if err != nil {
		category := client.CategorizeError(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(category)).Inc()
		if category == client.ErrorCategoryCanceled {
			// Caller went away; not an upstream failure.
			logger.Warn("weather fetch canceled",
				zap.String("location", h.location.Name),
				zap.Error(err))
		} else {
			traffic.RecordError()
			logger.Error("weather fetch failed",
				zap.String("location", h.location.Name),
				zap.String("category", string(category)),
				zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   WeatherErrorLabel,
			Message: err.Error(),
		})
		return
	}
	traffic.RecordSuccess()

	report := models.NewWeatherReport(h.location.Name, reading)
	logger.Debug("weather served",
		zap.String("location", report.Location),
		zap.String("conditions", report.Conditions))
	writeJSON(w, http.StatusOK, report)
}

// GetLoad handles GET /api/load?duration=<ms>. The busy loop runs on the
// request goroutine; other requests keep being served on their own goroutines.
func (h *Handler) GetLoad(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	requested := loadgen.ParseDuration(r.URL.Query().Get("duration"))
	result := loadgen.Run(r.Context(), requested)
	observability.LoadTestDuration.Observe(result.Elapsed.Seconds())

	logger.Debug("load test completed",
		zap.Duration("requested", requested),
		zap.Duration("elapsed", result.Elapsed))
	writeJSON(w, http.StatusOK, models.NewLoadReport(result))
}

// notFound and methodNotAllowed keep unmatched requests on the JSON contract.
func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not Found", Message: "no route for " + r.URL.Path})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method Not Allowed", Message: r.Method + " not allowed on " + r.URL.Path})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
