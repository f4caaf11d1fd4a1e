package evaluator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bhuj   = domain.Area{District: "Kutch", Taluka: "Bhuj"}
	dholka = domain.Area{District: "Ahmedabad", Taluka: "Dholka"}
	surat  = domain.Area{District: "Surat", Taluka: "Choryasi"}
)

type fakeAreas []domain.Area

func (f fakeAreas) Areas() []domain.Area { return f }

type fakeLocator struct {
	coords  map[domain.Area]domain.Geo
	nearest map[domain.Geo]domain.Area
}

func (f fakeLocator) Coordinates(a domain.Area) (domain.Geo, bool) {
	g, ok := f.coords[a]
	return g, ok
}

func (f fakeLocator) Nearest(g domain.Geo, _ float64) (domain.Area, bool) {
	a, ok := f.nearest[g]
	return a, ok
}

type fakeWeather struct {
	samples map[domain.Geo]domain.WeatherSample
	fail    map[domain.Geo]bool
}

func (f fakeWeather) Fetch(_ context.Context, g domain.Geo) (domain.WeatherSample, error) {
	if f.fail[g] {
		return domain.WeatherSample{}, domain.ErrFeedUnavailable
	}
	return f.samples[g], nil
}

type fakeQueue struct {
	drafts []domain.Draft
	err    error
}

func (q *fakeQueue) Enqueue(_ context.Context, d domain.Draft) (domain.Alert, error) {
	if q.err != nil {
		return domain.Alert{}, q.err
	}
	q.drafts = append(q.drafts, d)
	return domain.Alert{ID: "id", Area: d.Area}, nil
}

type fakeFires struct{ recorded []domain.Hotspot }

func (f *fakeFires) Record(_ context.Context, b []domain.Hotspot) error {
	f.recorded = append(f.recorded, b...)
	return nil
}

type fakeFeed struct {
	batch []domain.Hotspot
	err   error
}

func (f fakeFeed) FetchHotspots(context.Context) ([]domain.Hotspot, error) { return f.batch, f.err }

var (
	geoBhuj   = domain.Geo{Lat: 23.25, Lon: 69.67}
	geoDholka = domain.Geo{Lat: 22.72, Lon: 72.44}
	geoSurat  = domain.Geo{Lat: 21.17, Lon: 72.83}
)

func testLocator() fakeLocator {
	return fakeLocator{
		coords:  map[domain.Area]domain.Geo{bhuj: geoBhuj, dholka: geoDholka, surat: geoSurat},
		nearest: map[domain.Geo]domain.Area{geoBhuj: bhuj, geoDholka: dholka},
	}
}

type fixture struct {
	eval    *Evaluator
	queue   *fakeQueue
	fires   *fakeFires
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newFixture(areas []domain.Area, w fakeWeather, feed fakeFeed, cooldown time.Duration) *fixture {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC))
	f := &fixture{queue: &fakeQueue{}, fires: &fakeFires{}, clock: clock, metrics: observability.NewMetricsForTesting()}
	f.eval = New(Deps{
		Areas:    fakeAreas(areas),
		Catalog:  testLocator(),
		Weather:  w,
		FireFeed: feed,
		Queue:    f.queue,
		Fires:    f.fires,
		Cooldown: NewCooldown(cooldown, clock),
		Clock:    clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  f.metrics,
	}, Thresholds{HotC: 40, ColdC: 5, FireMaxDistance: 0.5})
	return f
}

func TestCheckWeather(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		max, min float64
		want     []Kind
		severity []domain.Severity
	}{
		{"extreme heat", 46, 46, 30, []Kind{KindHot}, []domain.Severity{domain.SeverityHigh}},
		{"forecast max crosses", 38, 41, 25, []Kind{KindHot}, []domain.Severity{domain.SeverityMedium}},
		{"mild", 20, 28, 15, nil, nil},
		{"freezing", -1, 6, -3, []Kind{KindCold}, []domain.Severity{domain.SeverityHigh}},
		{"cold night", 9, 18, 4, []Kind{KindCold}, []domain.Severity{domain.SeverityMedium}},
		{"both", 40, 42, 3, []Kind{KindHot, KindCold}, []domain.Severity{domain.SeverityMedium, domain.SeverityMedium}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckWeather(bhuj, domain.WeatherSample{CurrentTemp: tt.current, MaxTemp: tt.max, MinTemp: tt.min}, 40, 5)
			require.Len(t, got, len(tt.want))
			for i, c := range got {
				assert.Equal(t, tt.want[i], c.Kind)
				assert.Equal(t, tt.severity[i], c.Draft.Severity)
				assert.Equal(t, domain.CategoryWeather, c.Draft.Category)
				assert.Equal(t, bhuj, c.Draft.Area)
			}
		})
	}
}

func TestCheckWeather_Message(t *testing.T) {
	got := CheckWeather(bhuj, domain.WeatherSample{CurrentTemp: 46, MaxTemp: 47.5, MinTemp: 30}, 40, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "🌡️ HIGH TEMPERATURE: 46.0°C (Max: 47.5°C) in Bhuj, Kutch. Stay hydrated and avoid outdoor activities during peak hours.", got[0].Draft.Message)
}

func TestEvaluateWeather_PartialFeedFailure(t *testing.T) {
	w := fakeWeather{
		samples: map[domain.Geo]domain.WeatherSample{
			geoBhuj:  {CurrentTemp: 46, MaxTemp: 46, MinTemp: 30},
			geoSurat: {CurrentTemp: 42, MaxTemp: 43, MinTemp: 30},
		},
		fail: map[domain.Geo]bool{geoDholka: true},
	}
	f := newFixture([]domain.Area{bhuj, dholka, surat}, w, fakeFeed{}, 0)

	rep, err := f.eval.EvaluateWeather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 2, Skipped: 1, Enqueued: 2}, rep)
	require.Len(t, f.queue.drafts, 2)
	assert.Equal(t, bhuj, f.queue.drafts[0].Area)
	assert.Equal(t, surat, f.queue.drafts[1].Area)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.FeedErrors.WithLabelValues("weather")), 0.001)
}

func TestEvaluateWeather_SkipsAreasWithoutCoordinates(t *testing.T) {
	unknown := domain.Area{District: "Kutch", Taluka: "Nowhere"}
	f := newFixture([]domain.Area{unknown}, fakeWeather{}, fakeFeed{}, 0)

	rep, err := f.eval.EvaluateWeather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, f.queue.drafts)
}

func TestEvaluateWeather_Cooldown(t *testing.T) {
	w := fakeWeather{samples: map[domain.Geo]domain.WeatherSample{geoBhuj: {CurrentTemp: 44, MaxTemp: 45, MinTemp: 30}}}
	f := newFixture([]domain.Area{bhuj}, w, fakeFeed{}, 12*time.Hour)
	ctx := context.Background()

	_, err := f.eval.EvaluateWeather(ctx)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	rep, err := f.eval.EvaluateWeather(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Enqueued)

	f.clock.Advance(12 * time.Hour)
	rep, err = f.eval.EvaluateWeather(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Enqueued)
	assert.Len(t, f.queue.drafts, 2)
}

func TestEvaluateWeather_QueueFailureIsReturned(t *testing.T) {
	w := fakeWeather{samples: map[domain.Geo]domain.WeatherSample{
		geoBhuj:   {CurrentTemp: 46, MaxTemp: 46, MinTemp: 30},
		geoDholka: {CurrentTemp: 41, MaxTemp: 41, MinTemp: 30},
	}}
	f := newFixture([]domain.Area{bhuj, dholka}, w, fakeFeed{}, time.Hour)
	f.queue.err = domain.ErrStoreUnavailable

	rep, err := f.eval.EvaluateWeather(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 2, rep.Checked)

	// A failed enqueue does not start the cooldown.
	f.queue.err = nil
	rep, err = f.eval.EvaluateWeather(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Enqueued)
}

func TestEvaluateFire(t *testing.T) {
	f := newFixture(nil, fakeWeather{}, fakeFeed{}, 0)
	now := f.clock.Now()
	batch := []domain.Hotspot{
		{DetectedAt: now.Add(-2 * time.Hour), Geo: geoBhuj, Confidence: 85, DetectedType: "Vegetation"},
		{DetectedAt: now.Add(-3 * time.Hour), Geo: geoBhuj, Confidence: 92, DetectedType: "Active Fire"},
		{DetectedAt: now.Add(-30 * time.Hour), Geo: geoDholka, Confidence: 99, DetectedType: "Vegetation"},
		{DetectedAt: now.Add(-time.Hour), Geo: geoDholka, Confidence: 75, DetectedType: "Vegetation"},
		{DetectedAt: now.Add(-time.Hour), Geo: domain.Geo{Lat: 20.1, Lon: 68.1}, Confidence: 99, DetectedType: "Vegetation"},
	}

	rep, err := f.eval.EvaluateFire(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Enqueued)
	assert.Equal(t, 3, rep.Skipped)

	require.Len(t, f.queue.drafts, 1)
	d := f.queue.drafts[0]
	assert.Equal(t, bhuj, d.Area)
	assert.Equal(t, domain.CategoryFire, d.Category)
	assert.Equal(t, domain.SeverityHigh, d.Severity)
	assert.Equal(t, "🔥 Fire Alert: Active Fire detected in Bhuj, Kutch. Confidence: 92%. 2 detections in the last 24 hours. Please exercise caution.", d.Message)

	require.Len(t, f.fires.recorded, 5)
	assert.Equal(t, domain.UnknownArea, f.fires.recorded[4].Area)
	assert.Equal(t, dholka, f.fires.recorded[3].Area)
}

func TestRunFireCycle_FeedFailure(t *testing.T) {
	f := newFixture(nil, fakeWeather{}, fakeFeed{err: domain.ErrFeedUnavailable}, 0)

	_, err := f.eval.RunFireCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Empty(t, f.queue.drafts)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.FeedErrors.WithLabelValues("fire")), 0.001)
}

func TestRunFireCycle_FetchesAndEvaluates(t *testing.T) {
	clockNow := time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)
	feed := fakeFeed{batch: []domain.Hotspot{{DetectedAt: clockNow.Add(-time.Hour), Geo: geoDholka, Confidence: 81, DetectedType: "Vegetation"}}}
	f := newFixture(nil, fakeWeather{}, feed, 0)

	rep, err := f.eval.RunFireCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Enqueued)
	assert.Equal(t, domain.SeverityMedium, f.queue.drafts[0].Severity)
}

func TestCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCooldown(time.Hour, clock)

	assert.True(t, c.Sendable("k"))
	c.Sent("k")
	assert.False(t, c.Sendable("k"))
	assert.True(t, c.Sendable("other"))
	clock.Advance(time.Hour)
	assert.True(t, c.Sendable("k"))

	assert.True(t, NewCooldown(0, clock).Sendable("k"))
}
