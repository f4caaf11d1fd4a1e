// Package firms downloads NASA FIRMS MODIS active-fire CSV files and keeps
// the detections that fall inside a bounding box.
package firms

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
)

// Feed file names under the base URL, tried in order.
const (
	Feed24h = "MODIS_C6_1_Global_24h.csv"
	Feed7d  = "MODIS_C6_1_Global_7d.csv"
)

// BBox is an inclusive latitude/longitude rectangle.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Gujarat covers the state with a small margin.
var Gujarat = BBox{MinLat: 20.0, MaxLat: 24.75, MinLon: 68.0, MaxLon: 74.5}

// Contains reports whether g lies inside b.
func (b BBox) Contains(g domain.Geo) bool {
	return g.Lat >= b.MinLat && g.Lat <= b.MaxLat && g.Lon >= b.MinLon && g.Lon <= b.MaxLon
}

// Client implements domain.HotspotSource.
type Client struct {
	httpClient *http.Client
	baseURL    string
	bbox       BBox
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FIRMS client. baseURL is the directory holding the
// global CSV files.
func NewClient(baseURL string, bbox BBox, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		bbox:       bbox,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchHotspots downloads the 24 hour file, falling back to the 7 day file,
// and returns the detections inside the bounding box.
func (c *Client) FetchHotspots(ctx context.Context) ([]domain.Hotspot, error) {
	var errs []error
	for _, feed := range []string{Feed24h, Feed7d} {
		hs, err := c.fetch(ctx, feed)
		if err == nil {
			return hs, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w: %w", feed, domain.ErrFeedUnavailable, ctx.Err())
		}
		c.logger.Warn("fire feed unavailable, trying fallback", "feed", feed, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", feed, err))
	}
	return nil, fmt.Errorf("fetch hotspots: %w: %w", domain.ErrFeedUnavailable, errors.Join(errs...))
}

func (c *Client) fetch(ctx context.Context, feed string) ([]domain.Hotspot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+feed, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fire request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("FIRMS error: status %d: %s", resp.StatusCode, body)
	}

	source := strings.TrimSuffix(strings.TrimPrefix(feed, "MODIS_C6_1_Global_"), ".csv")
	hs, total, skipped, err := Parse(resp.Body, c.bbox, "MODIS_"+source)
	c.metrics.FeedDuration.WithLabelValues("fire").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	c.logger.Info("fire feed downloaded", "feed", feed, "records", total, "in_region", len(hs), "malformed", skipped)
	return hs, nil
}

// Parse reads a FIRMS CSV and returns the detections inside bbox along with
// the number of rows read and the number of malformed rows skipped.
func Parse(r io.Reader, bbox BBox, source string) (hs []domain.Hotspot, total, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range []string{"latitude", "longitude", "confidence", "acq_date"} {
		if _, ok := col[name]; !ok {
			return nil, 0, 0, fmt.Errorf("missing column %q", name)
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, total, skipped, fmt.Errorf("read row %d: %w", total+1, err)
		}
		total++
		h, ok := parseRow(rec, col)
		if !ok {
			skipped++
			continue
		}
		if !bbox.Contains(h.Geo) {
			continue
		}
		h.Source = source
		hs = append(hs, h)
	}
	return hs, total, skipped, nil
}

func parseRow(rec []string, col map[string]int) (domain.Hotspot, bool) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	lat, err1 := strconv.ParseFloat(get("latitude"), 64)
	lon, err2 := strconv.ParseFloat(get("longitude"), 64)
	conf, err3 := strconv.ParseFloat(get("confidence"), 64)
	date, err4 := time.Parse(time.DateOnly, get("acq_date"))
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return domain.Hotspot{}, false
	}

	// acq_time is HHMM in UTC, sometimes without leading zeros.
	if hhmm, err := strconv.Atoi(get("acq_time")); err == nil && hhmm >= 0 && hhmm < 2400 {
		date = date.Add(time.Duration(hhmm/100)*time.Hour + time.Duration(hhmm%100)*time.Minute)
	}
	code, _ := strconv.Atoi(get("type"))

	return domain.Hotspot{
		DetectedAt:   date.UTC(),
		Geo:          domain.Geo{Lat: lat, Lon: lon},
		Confidence:   conf,
		DetectedType: domain.DetectionType(code),
	}, true
}
