// Package delivery drains the alert queue and fans each alert out to the
// subscribers of its area.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Queue is the part of the alert queue the engine drives.
type Queue interface {
	Pending(ctx context.Context) iter.Seq[domain.Alert]
	MarkSent(ctx context.Context, id string, outcome domain.Outcome) error
	RecordAttempt(ctx context.Context, id string) (int, error)
	PendingCount() int
}

// Directory resolves and prunes recipients.
type Directory interface {
	SubscribersOf(area domain.Area) []domain.SubscriberID
	Unsubscribe(ctx context.Context, id domain.SubscriberID) (bool, error)
}

// Transport sends one chat message to one recipient.
type Transport interface {
	Send(ctx context.Context, to domain.SubscriberID, text string) error
}

// EventPublisher receives a summary of every alert that leaves the queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.AlertEvent) error
}

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	Interval    time.Duration
	SendTimeout time.Duration
	Concurrency int
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// SweepResult summarizes one drain of the queue.
type SweepResult struct {
	Alerts       int `json:"alerts"`
	Delivered    int `json:"delivered"`
	NoRecipients int `json:"no_recipients"`
	Abandoned    int `json:"abandoned"`
	Retrying     int `json:"retrying"`
	Sends        int `json:"sends"`
	SendFailures int `json:"send_failures"`
	Pruned       int `json:"pruned"`
}

// Engine delivers pending alerts. Sweeps never overlap: a sweep requested
// while another is running waits for it and shares its result.
type Engine struct {
	queue     Queue
	directory Directory
	transport Transport
	publisher EventPublisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	flight  singleflight.Group
	trigger chan struct{}
	ready   atomic.Bool
}

// New creates an Engine. publisher may be nil.
func New(q Queue, d Directory, t Transport, publisher EventPublisher, opts Options,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		queue:     q,
		directory: d,
		transport: t,
		publisher: publisher,
		opts:      opts.withDefaults(),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		trigger:   make(chan struct{}, 1),
	}
}

// CheckReadiness returns nil once the engine has completed a sweep.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("delivery engine has not completed a sweep yet")
	}
	return nil
}

// Trigger requests a sweep from Run without blocking. Requests made while
// one is already queued are merged.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run sweeps once at start, then on every tick and every Trigger, until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("delivery engine started", "interval", e.opts.Interval, "concurrency", e.opts.Concurrency)
	ticker := e.clock.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	e.runSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("delivery engine stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			e.runSweep(ctx)
		case <-e.trigger:
			e.runSweep(ctx)
		}
	}
}

func (e *Engine) runSweep(ctx context.Context) {
	if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("delivery sweep failed", "error", err)
	}
}

// Sweep drains the pending alerts once. Per-recipient and per-alert failures
// do not stop the sweep; queue write failures are joined into the error.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	v, err, _ := e.flight.Do("sweep", func() (any, error) {
		return e.sweep(ctx)
	})
	res, _ := v.(SweepResult)
	return res, err
}

func (e *Engine) sweep(ctx context.Context) (SweepResult, error) {
	start := e.clock.Now()
	var (
		res  SweepResult
		errs []error
	)
	for a := range e.queue.Pending(ctx) {
		if ctx.Err() != nil {
			break
		}
		res.Alerts++
		if err := e.deliver(ctx, a, &res); err != nil {
			errs = append(errs, err)
		}
	}

	e.ready.Store(true)
	e.metrics.Sweeps.Inc()
	e.metrics.SweepDuration.Observe(e.clock.Since(start).Seconds())
	e.metrics.PendingAlerts.Set(float64(e.queue.PendingCount()))
	if res.Alerts > 0 {
		e.logger.Info("delivery sweep complete",
			"alerts", res.Alerts,
			"delivered", res.Delivered,
			"no_recipients", res.NoRecipients,
			"abandoned", res.Abandoned,
			"retrying", res.Retrying,
			"pruned", res.Pruned,
		)
	}
	return res, errors.Join(errs...)
}

type sendResult struct {
	to  domain.SubscriberID
	err error
}

// deliver fans one alert out and settles its status. A recipient that could
// not be pruned counts as a failed dispatch, so the alert is retried and the
// store error reaches the caller.
func (e *Engine) deliver(ctx context.Context, a domain.Alert, res *SweepResult) error {
	var pruneErrs []error
	err := e.settle(ctx, a, res, &pruneErrs)
	return errors.Join(append(pruneErrs, err)...)
}

func (e *Engine) settle(ctx context.Context, a domain.Alert, res *SweepResult, pruneErrs *[]error) error {
	recipients := e.directory.SubscribersOf(a.Area)
	ev := domain.AlertEvent{Alert: a, Recipients: len(recipients)}
	if len(recipients) == 0 {
		res.NoRecipients++
		return e.finish(ctx, ev, domain.OutcomeNoRecipients)
	}

	results := e.dispatch(ctx, a, recipients)
	res.Sends += len(results)

	var notFound []domain.SubscriberID
	for _, r := range results {
		switch {
		case r.err == nil:
			ev.Delivered++
		case errors.Is(r.err, domain.ErrRecipientNotFound):
			notFound = append(notFound, r.to)
		default:
			ev.Failed++
			e.logger.Warn("dispatch failed", "alert_id", a.ID, "recipient", r.to, "error", r.err)
		}
	}
	for _, id := range notFound {
		if _, err := e.directory.Unsubscribe(ctx, id); err != nil {
			e.logger.Error("failed to prune recipient", "recipient", id, "error", err)
			*pruneErrs = append(*pruneErrs, fmt.Errorf("prune recipient %s: %w", id, err))
			ev.Failed++
			continue
		}
		ev.Pruned++
		e.metrics.Dispatches.WithLabelValues("pruned").Inc()
		e.logger.Info("pruned unreachable recipient", "recipient", id, "area", a.Area.String())
	}
	res.Pruned += ev.Pruned
	e.metrics.Dispatches.WithLabelValues("delivered").Add(float64(ev.Delivered))
	e.metrics.Dispatches.WithLabelValues("failed").Add(float64(ev.Failed))
	res.SendFailures += ev.Failed

	switch {
	case ev.Delivered > 0:
		res.Delivered++
		return e.finish(ctx, ev, domain.OutcomeDelivered)
	case ev.Failed == 0:
		// Every recipient turned out to be gone.
		res.NoRecipients++
		return e.finish(ctx, ev, domain.OutcomeNoRecipients)
	}

	attempts, err := e.queue.RecordAttempt(ctx, a.ID)
	if err != nil {
		res.Retrying++
		return fmt.Errorf("record attempt for alert %s: %w", a.ID, err)
	}
	if attempts >= e.opts.MaxAttempts {
		e.logger.Warn("abandoning alert after repeated failures", "alert_id", a.ID, "attempts", attempts)
		res.Abandoned++
		ev.Alert.Attempts = attempts
		return e.finish(ctx, ev, domain.OutcomeAbandoned)
	}
	res.Retrying++
	return nil
}

// dispatch sends a to every recipient in parallel and waits for all results.
func (e *Engine) dispatch(ctx context.Context, a domain.Alert, recipients []domain.SubscriberID) []sendResult {
	text := domain.FormatAlert(a)
	results := make([]sendResult, len(recipients))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for i, to := range recipients {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
			defer cancel()
			start := e.clock.Now()
			err := e.transport.Send(sendCtx, to, text)
			e.metrics.DispatchDuration.Observe(e.clock.Since(start).Seconds())
			results[i] = sendResult{to: to, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) finish(ctx context.Context, ev domain.AlertEvent, outcome domain.Outcome) error {
	if err := e.queue.MarkSent(ctx, ev.Alert.ID, outcome); err != nil {
		return fmt.Errorf("mark alert %s sent: %w", ev.Alert.ID, err)
	}
	e.metrics.AlertsFinished.WithLabelValues(string(outcome)).Inc()

	if e.publisher == nil {
		return nil
	}
	now := e.clock.Now().UTC()
	ev.FinishedAt = now
	ev.Alert.Status = domain.StatusSent
	ev.Alert.SentAt = &now
	ev.Alert.Outcome = outcome
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.metrics.EventsPublished.WithLabelValues("error").Inc()
		e.logger.Warn("failed to publish alert event", "alert_id", ev.Alert.ID, "error", err)
		return nil
	}
	e.metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}
