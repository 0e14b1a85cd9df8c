package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
)

// WeatherClient fetches current conditions for a fixed point.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, loc Location) (models.WeatherReading, error)
}

// Location is a named point on the map.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// NewYorkCity is the only location the gateway serves.
var NewYorkCity = Location{
	Name:      "New York City",
	Latitude:  40.7128,
	Longitude: -74.0060,
	Timezone:  "America/New_York",
}

// DefaultAPIURL is the public Open-Meteo forecast endpoint. No API key is required.
const DefaultAPIURL = "https://api.open-meteo.com/v1/forecast"

// currentFields is the Open-Meteo "current" variable list; order is not significant upstream.
const currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,weather_code,wind_speed_10m"

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// OpenMeteoClient calls the Open-Meteo forecast API. One attempt per call; no retries.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

// NewOpenMeteoClient returns a client for apiURL. timeout bounds each call end to end.
func NewOpenMeteoClient(apiURL string, timeout time.Duration) (*OpenMeteoClient, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", apiURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}

	return &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// openMeteoResponse is the subset of the forecast payload we read. Pointer fields
// let us reject bodies that lack the requested variables.
type openMeteoResponse struct {
	Current *struct {
		Time                string   `json:"time"`
		Temperature2m       *float64 `json:"temperature_2m"`
		RelativeHumidity2m  *float64 `json:"relative_humidity_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Precipitation       *float64 `json:"precipitation"`
		WeatherCode         *float64 `json:"weather_code"`
		WindSpeed10m        *float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// GetCurrentWeather issues one GET for loc's current conditions.
func (c *OpenMeteoClient) GetCurrentWeather(ctx context.Context, loc Location) (models.WeatherReading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, loc)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherReading{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observeCall("error", start)

		if isTimeout(err) {
			return models.WeatherReading{}, fmt.Errorf("%w after %s: %w", ErrUpstreamTimeout, c.timeout, err)
		}
		return models.WeatherReading{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observeCall(statusLabel(resp.StatusCode), start)
		return models.WeatherReading{}, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	reading, err := readReading(resp.Body)
	switch {
	case err == nil:
		observeCall("success", start)
	case errors.Is(err, ErrMalformedResponse):
		observeCall("malformed", start)
	default:
		observeCall("error", start)
		if isTimeout(err) {
			return models.WeatherReading{}, fmt.Errorf("%w after %s: %w", ErrUpstreamTimeout, c.timeout, err)
		}
	}
	return reading, err
}

// observeCall records one upstream call under label. A 2xx only counts as
// success once its body has been parsed.
func observeCall(label string, start time.Time) {
	observability.WeatherAPICallsTotal.WithLabelValues(label).Inc()
	observability.WeatherAPIDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func readReading(body io.Reader) (models.WeatherReading, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return models.WeatherReading{}, fmt.Errorf("%w: parse response: %w", ErrMalformedResponse, err)
	}
	return mapResponse(apiResp)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, loc Location) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	params.Set("current", currentFields)
	params.Set("temperature_unit", "fahrenheit")
	params.Set("wind_speed_unit", "mph")
	params.Set("timezone", loc.Timezone)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapResponse(apiResp openMeteoResponse) (models.WeatherReading, error) {
	cur := apiResp.Current
	if cur == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: missing current block", ErrMalformedResponse)
	}
	missing := ""
	switch {
	case cur.Time == "":
		missing = "time"
	case cur.Temperature2m == nil:
		missing = "temperature_2m"
	case cur.RelativeHumidity2m == nil:
		missing = "relative_humidity_2m"
	case cur.ApparentTemperature == nil:
		missing = "apparent_temperature"
	case cur.Precipitation == nil:
		missing = "precipitation"
	case cur.WeatherCode == nil:
		missing = "weather_code"
	case cur.WindSpeed10m == nil:
		missing = "wind_speed_10m"
	}
	if missing != "" {
		return models.WeatherReading{}, fmt.Errorf("%w: missing current.%s", ErrMalformedResponse, missing)
	}

	return models.WeatherReading{
		Time:          cur.Time,
		Temperature:   *cur.Temperature2m,
		FeelsLike:     *cur.ApparentTemperature,
		Humidity:      int(*cur.RelativeHumidity2m),
		Precipitation: *cur.Precipitation,
		WindSpeed:     *cur.WindSpeed10m,
		WeatherCode:   int(*cur.WeatherCode),
	}, nil
}

// isTimeout reports whether err came from the client timeout or a context deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
