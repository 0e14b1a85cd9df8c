package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-gateway/internal/client"
	"github.com/kjstillabower/weather-gateway/internal/models"
	"github.com/kjstillabower/weather-gateway/internal/observability"
	"github.com/kjstillabower/weather-gateway/internal/testhelpers"
	"github.com/kjstillabower/weather-gateway/internal/traffic"
)

type mockWeatherClient struct {
	reading models.WeatherReading
	err     error
	gotLoc  client.Location
	gotCorr string
	calls   int
}

func (m *mockWeatherClient) GetCurrentWeather(ctx context.Context, loc client.Location) (models.WeatherReading, error) {
	m.calls++
	m.gotLoc = loc
	m.gotCorr = observability.CorrelationID(ctx)
	return m.reading, m.err
}

func newTestRouter(t *testing.T, wc client.WeatherClient) (http.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	return NewRouter(NewHandler(wc, logger), logger), logs
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHandler_GetHealth(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{err: errors.New("upstream down")})

	for i := 0; i < 3; i++ {
		w := serve(router, "GET", "/health")
		if w.Code != http.StatusOK {
			t.Fatalf("GET /health status = %d, want 200", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		body := decodeMap(t, w)
		if len(body) != 1 || body["status"] != "ok" {
			t.Errorf("body = %v, want {status: ok}", body)
		}
	}
}

func TestHandler_GetHello(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	w := serve(router, "GET", "/api/hello")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/hello status = %d, want 200", w.Code)
	}
	body := decodeMap(t, w)
	msg, _ := body["message"].(string)
	if msg == "" {
		t.Fatal("message is empty")
	}
	if msg != HelloMessage {
		t.Errorf("message = %q, want %q", msg, HelloMessage)
	}
}

func TestHandler_GetWeather_Success(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	mock := &mockWeatherClient{reading: models.WeatherReading{
		Time:          "2026-10-15T09:00",
		Temperature:   58.3,
		FeelsLike:     55.1,
		Humidity:      72,
		Precipitation: 0.02,
		WindSpeed:     9.4,
		WeatherCode:   0,
	}}
	router, _ := newTestRouter(t, mock)

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var got models.WeatherReport
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := models.WeatherReport{
		Location:      "New York City",
		Timestamp:     "2026-10-15T09:00",
		Temperature:   models.Temperature{Current: 58.3, FeelsLike: 55.1, Unit: "°F"},
		Humidity:      72,
		Precipitation: 0.02,
		WindSpeed:     models.WindSpeed{Value: 9.4, Unit: "mph"},
		Conditions:    "Clear sky",
		Source:        "Open-Meteo API",
	}
	if got != want {
		t.Errorf("report = %+v\nwant %+v", got, want)
	}
	if mock.gotLoc != client.NewYorkCity {
		t.Errorf("client called with %+v, want NewYorkCity", mock.gotLoc)
	}
	if mock.gotLoc.Latitude != 40.7128 || mock.gotLoc.Longitude != -74.0060 {
		t.Errorf("coordinates = (%v, %v), want (40.7128, -74.0060)", mock.gotLoc.Latitude, mock.gotLoc.Longitude)
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("traffic = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestHandler_GetWeather_ResponseKeys(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{reading: models.WeatherReading{WeatherCode: 3}})

	body := decodeMap(t, serve(router, "GET", "/api/weather/ny"))
	for _, key := range []string{"location", "timestamp", "temperature", "humidity", "precipitation", "wind_speed", "conditions", "source"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	temp, _ := body["temperature"].(map[string]interface{})
	for _, key := range []string{"current", "feels_like", "unit"} {
		if _, ok := temp[key]; !ok {
			t.Errorf("temperature missing %q", key)
		}
	}
	wind, _ := body["wind_speed"].(map[string]interface{})
	for _, key := range []string{"value", "unit"} {
		if _, ok := wind[key]; !ok {
			t.Errorf("wind_speed missing %q", key)
		}
	}
}

func TestHandler_GetWeather_Conditions(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Clear sky"},
		{2, "Partly cloudy"},
		{45, "Foggy"},
		{73, "Moderate snow"},
		{95, "Thunderstorm"},
		{999, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			stub := testhelpers.NewStubUpstream(t, testhelpers.ForecastFixture{
				Time:        "2026-10-15T09:00",
				WeatherCode: tt.code,
			})
			wc, err := client.NewOpenMeteoClient(stub.URL, time.Second)
			if err != nil {
				t.Fatalf("NewOpenMeteoClient: %v", err)
			}
			router, _ := newTestRouter(t, wc)

			w := serve(router, "GET", "/api/weather/ny")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			body := decodeMap(t, w)
			if body["conditions"] != tt.want {
				t.Errorf("conditions = %v, want %q", body["conditions"], tt.want)
			}
		})
	}
}

func TestHandler_GetWeather_UpstreamError(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	upstreamErr := fmt.Errorf("%w: HTTP 503", client.ErrUpstreamFailure)
	router, logs := newTestRouter(t, &mockWeatherClient{err: upstreamErr})

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeMap(t, w)
	if body["error"] != "Failed to fetch weather data" {
		t.Errorf("error = %v, want fixed label", body["error"])
	}
	if body["message"] != upstreamErr.Error() {
		t.Errorf("message = %v, want %q", body["message"], upstreamErr.Error())
	}

	entries := logs.FilterMessage("weather fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d 'weather fetch failed' entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.ErrorLevel {
		t.Errorf("log level = %v, want error", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["error"] != upstreamErr.Error() {
		t.Errorf("logged error = %v, want %q", fields["error"], upstreamErr.Error())
	}
	if fields["category"] != "upstream_status" {
		t.Errorf("logged category = %v, want upstream_status", fields["category"])
	}
	if id, _ := fields["correlation_id"].(string); id == "" {
		t.Error("log entry missing correlation_id")
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("traffic = (%d, %d), want (1, 1)", errs, total)
	}
}

// TestHandler_GetWeather_CallerCanceled checks that a client disconnect is not
// counted as an upstream failure.
func TestHandler_GetWeather_CallerCanceled(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()

	canceledErr := fmt.Errorf("http request failed: %w", context.Canceled)
	router, logs := newTestRouter(t, &mockWeatherClient{err: canceledErr})

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeMap(t, w); body["error"] != WeatherErrorLabel {
		t.Errorf("error = %v, want %q", body["error"], WeatherErrorLabel)
	}

	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("logged %d error entries for a canceled fetch, want 0", n)
	}
	if n := logs.FilterMessage("weather fetch canceled").FilterLevelExact(zapcore.WarnLevel).Len(); n != 1 {
		t.Errorf("logged %d 'weather fetch canceled' warnings, want 1", n)
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 0 || total != 0 {
		t.Errorf("traffic = (%d, %d), want (0, 0)", errs, total)
	}
}

// TestHandler_GetWeather_UpstreamTimeout stubs an upstream slower than the client timeout.
func TestHandler_GetWeather_UpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	stub := testhelpers.NewStubUpstreamHandler(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	wc, err := client.NewOpenMeteoClient(stub.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient: %v", err)
	}
	router, _ := newTestRouter(t, wc)

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeMap(t, w)
	if body["error"] != WeatherErrorLabel {
		t.Errorf("error = %v, want %q", body["error"], WeatherErrorLabel)
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "upstream timeout") {
		t.Errorf("message = %q, want upstream timeout text", msg)
	}
}

func TestHandler_GetWeather_MalformedUpstream(t *testing.T) {
	stub := testhelpers.NewStubUpstreamHandler(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})
	wc, err := client.NewOpenMeteoClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient: %v", err)
	}
	router, _ := newTestRouter(t, wc)

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	msg, _ := decodeMap(t, w)["message"].(string)
	if !strings.Contains(msg, "malformed upstream response") {
		t.Errorf("message = %q, want malformed upstream response", msg)
	}
}

// TestHandler_GetWeather_NoCaching verifies each request reaches the upstream.
func TestHandler_GetWeather_NoCaching(t *testing.T) {
	stub := testhelpers.NewStubUpstream(t, testhelpers.DefaultFixture)
	wc, err := client.NewOpenMeteoClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient: %v", err)
	}
	router, _ := newTestRouter(t, wc)

	for i := 0; i < 3; i++ {
		if w := serve(router, "GET", "/api/weather/ny"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
	if got := stub.Calls(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

// TestHandler_GetWeather_NoRetry verifies a failing upstream is called exactly once.
func TestHandler_GetWeather_NoRetry(t *testing.T) {
	stub := testhelpers.NewStubUpstreamHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	wc, err := client.NewOpenMeteoClient(stub.URL, time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient: %v", err)
	}
	router, _ := newTestRouter(t, wc)

	w := serve(router, "GET", "/api/weather/ny")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := stub.Calls(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	msg, _ := decodeMap(t, w)["message"].(string)
	if msg != "upstream failure: HTTP 502" {
		t.Errorf("message = %q, want %q", msg, "upstream failure: HTTP 502")
	}
}

type loadBody struct {
	Message  string  `json:"message"`
	Duration string  `json:"duration"`
	Result   float64 `json:"result"`
}

func getLoad(t *testing.T, router http.Handler, target string) (loadBody, time.Duration) {
	t.Helper()
	start := time.Now()
	w := serve(router, "GET", target)
	took := time.Since(start)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d, want 200", target, w.Code)
	}
	var body loadBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Load test completed" {
		t.Errorf("message = %q, want Load test completed", body.Message)
	}
	return body, took
}

func elapsedMS(t *testing.T, duration string) int {
	t.Helper()
	if !strings.HasSuffix(duration, "ms") {
		t.Fatalf("duration %q missing ms suffix", duration)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(duration, "ms"))
	if err != nil {
		t.Fatalf("duration %q not an integer ms value: %v", duration, err)
	}
	return n
}

func TestHandler_GetLoad_ZeroDuration(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	body, took := getLoad(t, router, "/api/load?duration=0")
	if took > 100*time.Millisecond {
		t.Errorf("request took %v, want near zero", took)
	}
	if ms := elapsedMS(t, body.Duration); ms > 5 {
		t.Errorf("elapsed = %dms, want ~0", ms)
	}
	if body.Result < 0 || math.IsNaN(body.Result) {
		t.Errorf("result = %v, want >= 0", body.Result)
	}
}

func TestHandler_GetLoad_NegativeDuration(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	body, _ := getLoad(t, router, "/api/load?duration=-250")
	if ms := elapsedMS(t, body.Duration); ms > 5 {
		t.Errorf("elapsed = %dms, want ~0", ms)
	}
}

// TestHandler_GetLoad_DefaultDuration covers a missing parameter, a non-numeric
// value and an explicit 100; all should busy-wait about 100ms.
func TestHandler_GetLoad_DefaultDuration(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	for _, target := range []string{"/api/load", "/api/load?duration=abc", "/api/load?duration=", "/api/load?duration=100"} {
		t.Run(target, func(t *testing.T) {
			body, took := getLoad(t, router, target)
			ms := elapsedMS(t, body.Duration)
			if ms < 100 {
				t.Errorf("elapsed = %dms, want >= 100", ms)
			}
			if ms > 600 {
				t.Errorf("elapsed = %dms, want about 100", ms)
			}
			if took < 100*time.Millisecond {
				t.Errorf("request returned after %v, want >= 100ms", took)
			}
			if body.Result <= 0 {
				t.Errorf("result = %v, want > 0", body.Result)
			}
		})
	}
}

func TestHandler_GetLoad_ExplicitDuration(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	body, _ := getLoad(t, router, "/api/load?duration=30")
	ms := elapsedMS(t, body.Duration)
	if ms < 30 || ms > 500 {
		t.Errorf("elapsed = %dms, want about 30", ms)
	}
}

// TestHandler_GetLoad_DoesNotBlockOtherRequests runs a long load request on a real
// server and checks /health still answers promptly.
func TestHandler_GetLoad_DoesNotBlockOtherRequests(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	done := make(chan error, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/api/load?duration=500")
		if err == nil {
			resp.Body.Close()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if took := time.Since(start); took > 300*time.Millisecond {
		t.Errorf("/health took %v while /api/load was running", took)
	}
	if err := <-done; err != nil {
		t.Fatalf("GET /api/load: %v", err)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})

	w := serve(router, "GET", "/api/weather/sf")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/weather/sf status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("404 Content-Type = %q, want application/json", ct)
	}

	w = serve(router, "POST", "/api/hello")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/hello status = %d, want 405", w.Code)
	}
	if body := decodeMap(t, w); body["error"] != "Method Not Allowed" {
		t.Errorf("405 error = %v", body["error"])
	}
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, &mockWeatherClient{})
	_ = serve(router, "GET", "/api/hello")

	w := serve(router, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `httpRequestsTotal{method="GET",route="/api/hello",statusCode="2xx"}`) {
		t.Error("metrics output missing /api/hello request counter")
	}
}
