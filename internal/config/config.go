package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerPort                    = "8080"
	defaultReadTimeout                   = 10 * time.Second
	defaultWeatherAPIURL                 = "https://api.open-meteo.com/v1/forecast"
	defaultWeatherAPITimeout             = 5 * time.Second
	defaultShutdownTimeout               = 30 * time.Second
	defaultShutdownInFlightTimeout       = 10 * time.Second
	defaultShutdownInFlightCheckInterval = 100 * time.Millisecond
	defaultTrafficWindow                 = 60 * time.Second
)

// Config holds service configuration. Values come from defaults, then
// config/{ENV_NAME}.yaml, then environment variables (highest precedence).
type Config struct {
	ServerPort string `env:"SERVER_PORT"`
	// ReadTimeout bounds reading request headers and body.
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT"`
	// WriteTimeout is 0 (disabled) by default so long /api/load runs can complete.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT"`

	WeatherAPIURL     string        `env:"WEATHER_API_URL"`
	WeatherAPITimeout time.Duration `env:"WEATHER_API_TIMEOUT"`

	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT"`
	ShutdownInFlightTimeout       time.Duration `env:"SHUTDOWN_INFLIGHT_TIMEOUT"`
	ShutdownInFlightCheckInterval time.Duration

	TrafficWindow time.Duration `env:"METRICS_TRAFFIC_WINDOW"`
}

type fileConfig struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrafficWindow string `yaml:"traffic_window"`
	} `yaml:"metrics"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) relative to the working directory.
// A missing file is not an error; defaults and environment variables still apply.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load with an explicit project root.
func LoadFrom(root string) (*Config, error) {
	envName := os.Getenv("ENV_NAME")
	if envName == "" {
		envName = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(root, "config", envName+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = defaultServerPort
	}
	cfg.ReadTimeout = parseDuration(fc.Server.ReadTimeout, defaultReadTimeout)
	cfg.WriteTimeout = parseDurationOrZero(fc.Server.WriteTimeout, 0)

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = defaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, defaultWeatherAPITimeout)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, defaultShutdownTimeout)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, defaultShutdownInFlightTimeout)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, defaultShutdownInFlightCheckInterval)

	cfg.TrafficWindow = parseDuration(fc.Metrics.TrafficWindow, defaultTrafficWindow)

	// Unset variables leave the file/default values in place.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	// A write deadline at or under the upstream timeout would cut off 500 responses.
	if cfg.WriteTimeout > 0 && cfg.WriteTimeout <= cfg.WeatherAPITimeout {
		cfg.WriteTimeout = cfg.WeatherAPITimeout + time.Second
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is; validate rejects them where they matter.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks loaded values without modifying them.
func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be a number in 1..65535, got %q", cfg.ServerPort)
	}
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must not be negative")
	}
	u, err := url.Parse(cfg.WeatherAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("weather_api.url must be an absolute http(s) URL, got %q", cfg.WeatherAPIURL)
	}
	return nil
}
