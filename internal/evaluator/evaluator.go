// Package evaluator turns weather samples and fire detections into queued
// alerts for subscribed areas.
package evaluator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Fire filtering constants.
const (
	FireMinConfidence = 80
	FireMaxAge        = 24 * time.Hour
)

// Monitored lists the areas that currently have subscribers.
type Monitored interface {
	Areas() []domain.Area
}

// Locator resolves areas to coordinates and back.
type Locator interface {
	Coordinates(a domain.Area) (domain.Geo, bool)
	Nearest(g domain.Geo, maxDistance float64) (domain.Area, bool)
}

// Enqueuer accepts candidate alerts.
type Enqueuer interface {
	Enqueue(ctx context.Context, d domain.Draft) (domain.Alert, error)
}

// FireRecorder keeps the detection audit trail.
type FireRecorder interface {
	Record(ctx context.Context, batch []domain.Hotspot) error
}

// Thresholds configures the evaluator.
type Thresholds struct {
	HotC            float64
	ColdC           float64
	FireMaxDistance float64
}

// Report summarizes one evaluation cycle.
type Report struct {
	Checked  int `json:"checked"`
	Skipped  int `json:"skipped"`
	Enqueued int `json:"enqueued"`
}

// Evaluator compares feed data against thresholds and enqueues alerts.
type Evaluator struct {
	areas    Monitored
	catalog  Locator
	weather  domain.WeatherProvider
	fireFeed domain.HotspotSource
	queue    Enqueuer
	fires    FireRecorder
	cooldown *Cooldown
	limits   Thresholds
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Deps groups the collaborators of an Evaluator.
type Deps struct {
	Areas    Monitored
	Catalog  Locator
	Weather  domain.WeatherProvider
	FireFeed domain.HotspotSource
	Queue    Enqueuer
	Fires    FireRecorder
	Cooldown *Cooldown
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// New creates an Evaluator.
func New(d Deps, limits Thresholds) *Evaluator {
	if d.Cooldown == nil {
		d.Cooldown = NewCooldown(0, d.Clock)
	}
	return &Evaluator{
		areas:    d.Areas,
		catalog:  d.Catalog,
		weather:  d.Weather,
		fireFeed: d.FireFeed,
		queue:    d.Queue,
		fires:    d.Fires,
		cooldown: d.Cooldown,
		limits:   limits,
		clock:    d.Clock,
		logger:   d.Logger,
		metrics:  d.Metrics,
	}
}

// Kind distinguishes the two weather alerts.
type Kind string

const (
	KindHot  Kind = "hot"
	KindCold Kind = "cold"
)

// Candidate is a weather alert that has not been queued yet.
type Candidate struct {
	Kind  Kind
	Draft domain.Draft
}

// CheckWeather returns the candidate alerts for one sample. Hot and cold are
// evaluated independently.
func CheckWeather(area domain.Area, s domain.WeatherSample, hot, cold float64) []Candidate {
	var out []Candidate
	if s.CurrentTemp >= hot || s.MaxTemp >= hot {
		sev := domain.SeverityMedium
		if s.CurrentTemp >= 45 {
			sev = domain.SeverityHigh
		}
		out = append(out, Candidate{Kind: KindHot, Draft: domain.Draft{
			Area:     area,
			Category: domain.CategoryWeather,
			Severity: sev,
			Message: fmt.Sprintf("🌡️ HIGH TEMPERATURE: %.1f°C (Max: %.1f°C) in %s. Stay hydrated and avoid outdoor activities during peak hours.",
				s.CurrentTemp, s.MaxTemp, area),
		}})
	}
	if s.CurrentTemp <= cold || s.MinTemp <= cold {
		sev := domain.SeverityMedium
		if s.CurrentTemp <= 0 {
			sev = domain.SeverityHigh
		}
		out = append(out, Candidate{Kind: KindCold, Draft: domain.Draft{
			Area:     area,
			Category: domain.CategoryWeather,
			Severity: sev,
			Message: fmt.Sprintf("🥶 LOW TEMPERATURE: %.1f°C (Min: %.1f°C) in %s. Keep warm and protect crops from frost.",
				s.CurrentTemp, s.MinTemp, area),
		}})
	}
	return out
}

// EvaluateWeather checks every monitored area. A failed fetch skips that
// area; only queue failures are returned, joined.
func (e *Evaluator) EvaluateWeather(ctx context.Context) (Report, error) {
	var (
		rep  Report
		errs []error
	)
	for _, area := range e.areas.Areas() {
		geo, ok := e.catalog.Coordinates(area)
		if !ok {
			rep.Skipped++
			continue
		}
		sample, err := e.weather.Fetch(ctx, geo)
		if err != nil {
			e.logger.Warn("weather fetch failed, skipping area", "area", area.String(), "error", err)
			e.metrics.FeedErrors.WithLabelValues("weather").Inc()
			rep.Skipped++
			continue
		}
		rep.Checked++

		for _, c := range CheckWeather(area, sample, e.limits.HotC, e.limits.ColdC) {
			ok, err := e.enqueue(ctx, "weather:"+string(c.Kind)+":"+areaKey(area), c.Draft)
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				rep.Enqueued++
			}
		}
	}
	e.logger.Info("weather evaluation complete",
		"checked", rep.Checked, "skipped", rep.Skipped, "enqueued", rep.Enqueued)
	return rep, errors.Join(errs...)
}

// RunFireCycle fetches the latest detections and evaluates them.
func (e *Evaluator) RunFireCycle(ctx context.Context) (Report, error) {
	batch, err := e.fireFeed.FetchHotspots(ctx)
	if err != nil {
		e.metrics.FeedErrors.WithLabelValues("fire").Inc()
		return Report{}, fmt.Errorf("fetch hotspots: %w", err)
	}
	return e.EvaluateFire(ctx, batch)
}

// EvaluateFire maps detections to areas, records all of them, and enqueues
// at most one fire alert per area for recent, high-confidence detections.
// Detections that cannot be mapped are recorded under the unknown area and
// never alert.
func (e *Evaluator) EvaluateFire(ctx context.Context, batch []domain.Hotspot) (Report, error) {
	rep := Report{Checked: len(batch)}
	mapped := make([]domain.Hotspot, len(batch))
	for i, h := range batch {
		if area, ok := e.catalog.Nearest(h.Geo, e.limits.FireMaxDistance); ok {
			h.Area = area
		} else {
			h.Area = domain.UnknownArea
		}
		mapped[i] = h
	}

	var errs []error
	if err := e.fires.Record(ctx, mapped); err != nil {
		e.logger.Error("failed to record fire history", "error", err)
		errs = append(errs, fmt.Errorf("record fire history: %w", err))
	}

	cutoff := e.clock.Now().Add(-FireMaxAge)
	strongest := make(map[domain.Area]domain.Hotspot)
	counts := make(map[domain.Area]int)
	for _, h := range mapped {
		if h.Area.IsUnknown() || h.Confidence < FireMinConfidence || h.DetectedAt.Before(cutoff) {
			rep.Skipped++
			continue
		}
		counts[h.Area]++
		if cur, ok := strongest[h.Area]; !ok || h.Confidence > cur.Confidence {
			strongest[h.Area] = h
		}
	}

	areas := slices.SortedFunc(maps.Keys(strongest), func(a, b domain.Area) int {
		return cmp.Or(cmp.Compare(a.District, b.District), cmp.Compare(a.Taluka, b.Taluka))
	})
	for _, area := range areas {
		ok, err := e.enqueue(ctx, "fire:"+areaKey(area), fireDraft(strongest[area], counts[area]))
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			rep.Enqueued++
		}
	}
	e.logger.Info("fire evaluation complete",
		"detections", rep.Checked, "alerting_areas", len(areas), "enqueued", rep.Enqueued)
	return rep, errors.Join(errs...)
}

func fireDraft(h domain.Hotspot, count int) domain.Draft {
	msg := fmt.Sprintf("🔥 Fire Alert: %s detected in %s. Confidence: %.0f%%.", h.DetectedType, h.Area, h.Confidence)
	if count > 1 {
		msg += fmt.Sprintf(" %d detections in the last 24 hours.", count)
	}
	msg += " Please exercise caution."
	return domain.Draft{
		Area:     h.Area,
		Message:  msg,
		Category: domain.CategoryFire,
		Severity: domain.FireSeverity(h.Confidence),
	}
}

// enqueue applies the cooldown for key and queues d. It reports whether an
// alert was queued.
func (e *Evaluator) enqueue(ctx context.Context, key string, d domain.Draft) (bool, error) {
	if !e.cooldown.Sendable(key) {
		e.logger.Debug("alert suppressed by cooldown", "key", key)
		return false, nil
	}
	a, err := e.queue.Enqueue(ctx, d)
	if err != nil {
		e.logger.Error("failed to enqueue alert", "area", d.Area.String(), "category", d.Category, "error", err)
		return false, fmt.Errorf("enqueue %s alert for %s: %w", d.Category, d.Area, err)
	}
	e.cooldown.Sent(key)
	e.metrics.AlertsEnqueued.WithLabelValues(string(d.Category)).Inc()
	e.logger.Info("alert enqueued", "alert_id", a.ID, "area", d.Area.String(), "category", d.Category, "severity", d.Severity)
	return true, nil
}

func areaKey(a domain.Area) string {
	return a.District + "/" + a.Taluka
}
