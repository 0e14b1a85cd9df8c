// Package testhelpers provides Open-Meteo stand-ins for tests in other packages.
package testhelpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
)

// ForecastFixture is the subset of an Open-Meteo "current" block the gateway reads.
type ForecastFixture struct {
	Time                string
	Temperature         float64
	RelativeHumidity    int
	ApparentTemperature float64
	Precipitation       float64
	WeatherCode         int
	WindSpeed           float64
}

// DefaultFixture is a mild drizzly morning in Manhattan.
var DefaultFixture = ForecastFixture{
	Time:                "2026-10-15T09:00",
	Temperature:         58.3,
	RelativeHumidity:    72,
	ApparentTemperature: 55.1,
	Precipitation:       0.02,
	WeatherCode:         51,
	WindSpeed:           9.4,
}

// JSON renders f as an Open-Meteo forecast response body.
func (f ForecastFixture) JSON() string {
	return fmt.Sprintf(`{"latitude":40.710335,"longitude":-73.99307,"timezone":"America/New_York",`+
		`"current_units":{"temperature_2m":"°F","wind_speed_10m":"mp/h"},`+
		`"current":{"time":%q,"interval":900,"temperature_2m":%g,"relative_humidity_2m":%d,`+
		`"apparent_temperature":%g,"precipitation":%g,"weather_code":%d,"wind_speed_10m":%g}}`,
		f.Time, f.Temperature, f.RelativeHumidity, f.ApparentTemperature, f.Precipitation, f.WeatherCode, f.WindSpeed)
}

// StubUpstream is a local Open-Meteo replacement that counts calls.
type StubUpstream struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns how many requests the stub has received.
func (s *StubUpstream) Calls() int64 {
	return s.calls.Load()
}

// NewStubUpstream starts a stub that serves f with 200. It is closed on test cleanup.
func NewStubUpstream(t testing.TB, f ForecastFixture) *StubUpstream {
	t.Helper()
	body := f.JSON()
	return NewStubUpstreamHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

// NewStubUpstreamHandler starts a stub backed by h. It is closed on test cleanup.
func NewStubUpstreamHandler(t testing.TB, h http.HandlerFunc) *StubUpstream {
	t.Helper()
	s := &StubUpstream{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// LiveAPIURL returns the forecast endpoint for live tests, or skips when
// WEATHER_LIVE_TESTS is unset so CI never depends on the public API.
func LiveAPIURL(t testing.TB) string {
	t.Helper()
	if os.Getenv("WEATHER_LIVE_TESTS") == "" {
		t.Skip("WEATHER_LIVE_TESTS not set, skipping live Open-Meteo test")
	}
	if u := os.Getenv("WEATHER_API_URL"); u != "" {
		return u
	}
	return "https://api.open-meteo.com/v1/forecast"
}
