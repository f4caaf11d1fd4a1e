package domain

import (
	"context"
	"time"
)

// WeatherSample is one reading for a location from the weather provider.
type WeatherSample struct {
	Geo         Geo       `json:"geo"`
	CurrentTemp float64   `json:"current_temp"`
	MaxTemp     float64   `json:"max_temp"`
	MinTemp     float64   `json:"min_temp"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	WeatherCode int       `json:"weather_code"`
	Condition   string    `json:"condition"`
	ObservedAt  time.Time `json:"observed_at"`
}

// WeatherProvider fetches current conditions and today's forecast for a point.
type WeatherProvider interface {
	Fetch(ctx context.Context, geo Geo) (WeatherSample, error)
}

var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherDescription translates a WMO weather code. Unknown codes map to "Unknown".
func WeatherDescription(code int) string {
	if d, ok := weatherCodes[code]; ok {
		return d
	}
	return "Unknown"
}
