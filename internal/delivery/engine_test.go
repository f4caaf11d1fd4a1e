package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/couchcryptid/taluka-alert-service/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	dholka = domain.Area{District: "Ahmedabad", Taluka: "Dholka"}
	bhuj   = domain.Area{District: "Kutch", Taluka: "Bhuj"}
)

type allAreas struct{}

func (allAreas) Available() bool           { return true }
func (allAreas) Contains(domain.Area) bool { return true }

type mockTransport struct{ mock.Mock }

func (m *mockTransport) Send(ctx context.Context, to domain.SubscriberID, text string) error {
	return m.Called(ctx, to, text).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fixture struct {
	queue   *store.Alerts
	subs    *store.Subscriptions
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 14, 6, 0, 0, 0, time.UTC))
	q, err := store.OpenAlerts(filepath.Join(dir, "alerts.json"), clock)
	require.NoError(t, err)
	s, err := store.OpenSubscriptions(filepath.Join(dir, "subs.json"), allAreas{}, clock)
	require.NoError(t, err)
	return &fixture{queue: q, subs: s, clock: clock, metrics: observability.NewMetricsForTesting()}
}

func (f *fixture) engine(tr Transport, pub EventPublisher, opts Options) *Engine {
	return New(f.queue, f.subs, tr, pub, opts, f.clock, slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics)
}

func (f *fixture) subscribe(t *testing.T, area domain.Area, ids ...domain.SubscriberID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.subs.Subscribe(context.Background(), id, area))
	}
}

func (f *fixture) enqueue(t *testing.T, area domain.Area) domain.Alert {
	t.Helper()
	a, err := f.queue.Enqueue(context.Background(), domain.Draft{Area: area, Message: "Heatwave expected", Category: domain.CategoryWeather})
	require.NoError(t, err)
	return a
}

func (f *fixture) get(t *testing.T, id string) domain.Alert {
	t.Helper()
	a, ok := f.queue.Get(id)
	require.True(t, ok)
	return a
}

func TestSweep_PrunesUnreachableRecipient(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1", "2", "3")
	a := f.enqueue(t, dholka)

	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("1"), mock.Anything).Return(nil).Once()
	tr.On("Send", mock.Anything, domain.SubscriberID("2"), mock.Anything).Return(domain.ErrRecipientNotFound).Once()
	tr.On("Send", mock.Anything, domain.SubscriberID("3"), mock.Anything).Return(nil).Once()

	res, err := f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	tr.AssertExpectations(t)

	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Pruned)
	assert.Zero(t, res.SendFailures)

	got := f.get(t, a.ID)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, domain.OutcomeDelivered, got.Outcome)
	assert.ElementsMatch(t, []domain.SubscriberID{"1", "3"}, f.subs.SubscribersOf(dholka))
	_, stillThere := f.subs.SubscriptionOf("2")
	assert.False(t, stillThere)
}

func TestSweep_ZeroSubscribers(t *testing.T) {
	f := newFixture(t)
	a := f.enqueue(t, bhuj)
	tr := &mockTransport{}

	res, err := f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)

	tr.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, res.NoRecipients)
	got := f.get(t, a.ID)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, domain.OutcomeNoRecipients, got.Outcome)
}

func TestSweep_AllPrunedIsNoRecipients(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, bhuj, "9")
	a := f.enqueue(t, bhuj)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("9"), mock.Anything).Return(domain.ErrRecipientNotFound)

	_, err := f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoRecipients, f.get(t, a.ID).Outcome)
	assert.Zero(t, f.subs.Count())
}

type brokenDirectory struct {
	*store.Subscriptions
}

func (brokenDirectory) Unsubscribe(context.Context, domain.SubscriberID) (bool, error) {
	return false, domain.ErrStoreUnavailable
}

func TestSweep_PruneFailureKeepsAlertPending(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, bhuj, "9")
	a := f.enqueue(t, bhuj)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("9"), mock.Anything).Return(domain.ErrRecipientNotFound)

	e := New(f.queue, brokenDirectory{f.subs}, tr, nil, Options{}, f.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)), f.metrics)
	res, err := e.Sweep(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.Zero(t, res.Pruned)
	assert.Equal(t, 1, res.Retrying)
	got := f.get(t, a.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, []domain.SubscriberID{"9"}, f.subs.SubscribersOf(bhuj))
}

func TestSweep_PendingGaugeTracksQueue(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1")
	f.enqueue(t, dholka)
	f.enqueue(t, bhuj)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("1"), mock.Anything).Return(errors.New("timeout"))

	_, err := f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PendingAlerts), 0.001)

	f.enqueue(t, bhuj)
	f.enqueue(t, bhuj)
	tr.ExpectedCalls = nil
	tr.On("Send", mock.Anything, domain.SubscriberID("1"), mock.Anything).Return(nil)
	_, err = f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, testutil.ToFloat64(f.metrics.PendingAlerts))
}

func TestSweep_AllFailedRetriesThenAbandons(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1", "2")
	a := f.enqueue(t, dholka)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	eng := f.engine(tr, nil, Options{MaxAttempts: 2})

	res, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)
	assert.Equal(t, 2, res.SendFailures)
	got := f.get(t, a.ID)
	assert.True(t, got.Pending())
	assert.Equal(t, 1, got.Attempts)

	res, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Abandoned)
	got = f.get(t, a.ID)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, domain.OutcomeAbandoned, got.Outcome)
	assert.Equal(t, 2, f.subs.Count(), "transient failures never unsubscribe")

	res, err = eng.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Alerts)
}

func TestSweep_RendersAlertText(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1")
	a := f.enqueue(t, dholka)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("1"), domain.FormatAlert(a)).Return(nil)

	_, err := f.engine(tr, nil, Options{}).Sweep(context.Background())
	require.NoError(t, err)
	tr.AssertExpectations(t)
}

func TestSweep_SendHasTimeout(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1")
	f.enqueue(t, dholka)
	tr := &mockTransport{}
	tr.On("Send", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), domain.SubscriberID("1"), mock.Anything).Return(nil)

	_, err := f.engine(tr, nil, Options{SendTimeout: time.Second}).Sweep(context.Background())
	require.NoError(t, err)
	tr.AssertExpectations(t)
}

// gatedTransport blocks every send until release is closed.
type gatedTransport struct {
	started chan struct{}
	release chan struct{}
	sends   atomic.Int32
	once    sync.Once
}

func (g *gatedTransport) Send(context.Context, domain.SubscriberID, string) error {
	g.sends.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	return nil
}

func TestSweep_ConcurrentTriggersDoNotDoubleDispatch(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1")
	a := f.enqueue(t, dholka)
	tr := &gatedTransport{started: make(chan struct{}), release: make(chan struct{})}
	eng := f.engine(tr, nil, Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = eng.Sweep(context.Background())
	}()
	<-tr.started
	go func() {
		defer wg.Done()
		_, _ = eng.Sweep(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	close(tr.release)
	wg.Wait()

	assert.Equal(t, int32(1), tr.sends.Load())
	assert.Equal(t, domain.StatusSent, f.get(t, a.ID).Status)
}

func TestSweep_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, dholka, "1", "2")
	a := f.enqueue(t, dholka)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, domain.SubscriberID("1"), mock.Anything).Return(nil)
	tr.On("Send", mock.Anything, domain.SubscriberID("2"), mock.Anything).Return(errors.New("timeout"))
	pub := &recordingPublisher{err: errors.New("broker down")}

	_, err := f.engine(tr, pub, Options{}).Sweep(context.Background())
	require.NoError(t, err, "publish failures are not sweep failures")

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, a.ID, ev.Alert.ID)
	assert.Equal(t, domain.OutcomeDelivered, ev.Alert.Outcome)
	assert.Equal(t, 2, ev.Recipients)
	assert.Equal(t, 1, ev.Delivered)
	assert.Equal(t, 1, ev.Failed)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.EventsPublished.WithLabelValues("error")), 0.001)
}

func TestRun_TickerAndTrigger(t *testing.T) {
	f := newFixture(t)
	tr := &mockTransport{}
	tr.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.subscribe(t, dholka, "1")
	eng := f.engine(tr, nil, Options{Interval: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	require.Eventually(t, func() bool { return eng.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)

	triggered := f.enqueue(t, dholka)
	eng.Trigger()
	require.Eventually(t, func() bool { return !f.get(t, triggered.ID).Pending() }, time.Second, 5*time.Millisecond)

	ticked := f.enqueue(t, dholka)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return !f.get(t, ticked.ID).Pending() }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCheckReadiness_BeforeFirstSweep(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(&mockTransport{}, nil, Options{})
	require.Error(t, eng.CheckReadiness(context.Background()))

	_, err := eng.Sweep(context.Background())
	require.NoError(t, err)
	require.NoError(t, eng.CheckReadiness(context.Background()))
}
