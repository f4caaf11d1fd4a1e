// Package openmeteo fetches current conditions and today's forecast from the
// Open-Meteo API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
)

const localTimeLayout = "2006-01-02T15:04"

// Client implements domain.WeatherProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client against baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    metrics,
		logger:     logger,
	}
}

// Fetch returns the conditions at g. Failures wrap domain.ErrFeedUnavailable.
func (c *Client) Fetch(ctx context.Context, g domain.Geo) (domain.WeatherSample, error) {
	params := url.Values{
		"latitude":      {strconv.FormatFloat(g.Lat, 'f', 4, 64)},
		"longitude":     {strconv.FormatFloat(g.Lon, 'f', 4, 64)},
		"current":       {"temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code"},
		"daily":         {"temperature_2m_max,temperature_2m_min"},
		"timezone":      {"Asia/Kolkata"},
		"forecast_days": {"1"},
	}

	start := time.Now()
	body, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.FeedDuration.WithLabelValues("weather").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.WeatherSample{}, fmt.Errorf("weather at %.4f,%.4f: %w: %w", g.Lat, g.Lon, domain.ErrFeedUnavailable, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.WeatherSample{}, fmt.Errorf("decode weather response: %w: %w", domain.ErrFeedUnavailable, err)
	}
	if r.Current.Temperature == nil {
		return domain.WeatherSample{}, fmt.Errorf("weather response has no current temperature: %w", domain.ErrFeedUnavailable)
	}

	s := domain.WeatherSample{
		Geo:         g,
		CurrentTemp: *r.Current.Temperature,
		Humidity:    r.Current.Humidity,
		WindSpeed:   r.Current.WindSpeed,
		WeatherCode: r.Current.WeatherCode,
		Condition:   domain.WeatherDescription(r.Current.WeatherCode),
	}
	// Without a daily forecast, the day's extremes fall back to the current reading.
	s.MaxTemp, s.MinTemp = s.CurrentTemp, s.CurrentTemp
	if len(r.Daily.Max) > 0 && r.Daily.Max[0] != nil {
		s.MaxTemp = *r.Daily.Max[0]
	}
	if len(r.Daily.Min) > 0 && r.Daily.Min[0] != nil {
		s.MinTemp = *r.Daily.Min[0]
	}
	if t, err := time.ParseInLocation(localTimeLayout, r.Current.Time, domain.IST); err == nil {
		s.ObservedAt = t
	}
	return s, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// Open-Meteo API response types.

type response struct {
	Current struct {
		Time        string   `json:"time"`
		Temperature *float64 `json:"temperature_2m"`
		Humidity    float64  `json:"relative_humidity_2m"`
		WindSpeed   float64  `json:"wind_speed_10m"`
		WeatherCode int      `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Max []*float64 `json:"temperature_2m_max"`
		Min []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}
