package models

// WeatherReading is the current-conditions snapshot taken from the upstream forecast API.
type WeatherReading struct {
	Time          string // ISO-8601 local time as returned upstream
	Temperature   float64
	FeelsLike     float64
	Humidity      int
	Precipitation float64
	WindSpeed     float64
	WeatherCode   int
}

// Temperature is the temperature block of a WeatherReport.
type Temperature struct {
	Current   float64 `json:"current"`
	FeelsLike float64 `json:"feels_like"`
	Unit      string  `json:"unit"`
}

// WindSpeed is the wind block of a WeatherReport.
type WindSpeed struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// WeatherReport is the response body for GET /api/weather/ny.
type WeatherReport struct {
	Location      string      `json:"location"`
	Timestamp     string      `json:"timestamp"`
	Temperature   Temperature `json:"temperature"`
	Humidity      int         `json:"humidity"`
	Precipitation float64     `json:"precipitation"`
	WindSpeed     WindSpeed   `json:"wind_speed"`
	Conditions    string      `json:"conditions"`
	Source        string      `json:"source"`
}

const (
	TemperatureUnit = "°F"
	WindSpeedUnit   = "mph"
	WeatherSource   = "Open-Meteo API"
)

// NewWeatherReport shapes a reading for the given location into the response body.
func NewWeatherReport(location string, r WeatherReading) WeatherReport {
	return WeatherReport{
		Location:  location,
		Timestamp: r.Time,
		Temperature: Temperature{
			Current:   r.Temperature,
			FeelsLike: r.FeelsLike,
			Unit:      TemperatureUnit,
		},
		Humidity:      r.Humidity,
		Precipitation: r.Precipitation,
		WindSpeed: WindSpeed{
			Value: r.WindSpeed,
			Unit:  WindSpeedUnit,
		},
		Conditions: DescribeWeatherCode(r.WeatherCode),
		Source:     WeatherSource,
	}
}
