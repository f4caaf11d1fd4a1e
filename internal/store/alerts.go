package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidDraft is returned by Enqueue for drafts missing a required field.
var ErrInvalidDraft = errors.New("invalid alert draft")

const recentAlertLimit = 20

type alertFile struct {
	Version int            `json:"version"`
	Alerts  []domain.Alert `json:"alerts"`
}

// QueueStatus is a point-in-time summary of the alert queue.
type QueueStatus struct {
	Pending          int            `json:"pending"`
	Sent             int            `json:"sent"`
	OldestPendingAge time.Duration  `json:"oldest_pending_age"`
	Recent           []domain.Alert `json:"recent"`
}

// Alerts is the durable, append-only alert queue. Alerts are never deleted;
// they only move from pending to sent.
type Alerts struct {
	path  string
	clock clockwork.Clock

	mu      sync.RWMutex
	alerts  []domain.Alert // ordered by ID, which sorts by creation time
	index   map[string]int
	entropy io.Reader
}

// OpenAlerts loads the queue at path, creating an empty one if needed.
func OpenAlerts(path string, clock clockwork.Clock) (*Alerts, error) {
	q := &Alerts{
		path:    path,
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	var doc alertFile
	if _, err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	q.alerts = doc.Alerts
	slices.SortStableFunc(q.alerts, func(a, b domain.Alert) int { return strings.Compare(a.ID, b.ID) })
	q.reindex()
	return q, nil
}

// Enqueue appends a pending alert and returns it once it is on disk.
func (q *Alerts) Enqueue(_ context.Context, d domain.Draft) (domain.Alert, error) {
	if err := checkDraft(d); err != nil {
		return domain.Alert{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), q.entropy)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("generate alert id: %w", err)
	}
	a := domain.Alert{
		ID:        id.String(),
		Area:      d.Area,
		Message:   strings.TrimSpace(d.Message),
		Category:  d.Category,
		Severity:  d.Severity,
		CreatedAt: now,
		Status:    domain.StatusPending,
	}
	next := append(slices.Clip(q.alerts), a)
	if err := q.commit(next); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

func checkDraft(d domain.Draft) error {
	switch {
	case d.Area.District == "" || d.Area.Taluka == "":
		return fmt.Errorf("%w: area is required", ErrInvalidDraft)
	case strings.TrimSpace(d.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidDraft)
	case !d.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidDraft, d.Category)
	}
	return nil
}

// Pending yields the alerts that are pending at the moment iteration starts,
// oldest first. Each range over the sequence takes a fresh snapshot.
func (q *Alerts) Pending(_ context.Context) iter.Seq[domain.Alert] {
	return func(yield func(domain.Alert) bool) {
		for _, a := range q.PendingList() {
			if !yield(a) {
				return
			}
		}
	}
}

// PendingList returns a snapshot of the pending alerts, oldest first.
func (q *Alerts) PendingList() []domain.Alert {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []domain.Alert
	for _, a := range q.alerts {
		if a.Pending() {
			out = append(out, a)
		}
	}
	return out
}

// PendingCount returns how many alerts are pending.
func (q *Alerts) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, a := range q.alerts {
		if a.Pending() {
			n++
		}
	}
	return n
}

// Get returns the alert with the given id.
func (q *Alerts) Get(id string) (domain.Alert, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	i, ok := q.index[id]
	if !ok {
		return domain.Alert{}, false
	}
	return q.alerts[i], true
}

// MarkSent moves a pending alert to sent. Unknown or already-sent ids are
// ignored.
func (q *Alerts) MarkSent(_ context.Context, id string, outcome domain.Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok || !q.alerts[i].Pending() {
		return nil
	}
	now := q.clock.Now().UTC()
	next := slices.Clone(q.alerts)
	next[i].Status = domain.StatusSent
	next[i].SentAt = &now
	next[i].Outcome = outcome
	return q.commit(next)
}

// RecordAttempt counts a sweep in which every recipient of a pending alert
// failed, and returns the updated attempt count.
func (q *Alerts) RecordAttempt(_ context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok || !q.alerts[i].Pending() {
		return 0, nil
	}
	next := slices.Clone(q.alerts)
	next[i].Attempts++
	if err := q.commit(next); err != nil {
		return q.alerts[i].Attempts, err
	}
	return next[i].Attempts, nil
}

// Status summarizes the queue. Recent lists the newest alerts first.
func (q *Alerts) Status() QueueStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var st QueueStatus
	var oldest time.Time
	for _, a := range q.alerts {
		if a.Pending() {
			st.Pending++
			if oldest.IsZero() {
				oldest = a.CreatedAt
			}
		} else {
			st.Sent++
		}
	}
	if !oldest.IsZero() {
		st.OldestPendingAge = q.clock.Since(oldest)
	}
	n := min(len(q.alerts), recentAlertLimit)
	st.Recent = make([]domain.Alert, 0, n)
	for i := len(q.alerts) - 1; i >= len(q.alerts)-n; i-- {
		st.Recent = append(st.Recent, q.alerts[i])
	}
	return st
}

// commit persists next and swaps it in. Callers hold the write lock.
func (q *Alerts) commit(next []domain.Alert) error {
	if err := writeJSON(q.path, alertFile{Version: 1, Alerts: next}); err != nil {
		return err
	}
	q.alerts = next
	q.reindex()
	return nil
}

func (q *Alerts) reindex() {
	q.index = make(map[string]int, len(q.alerts))
	for i, a := range q.alerts {
		q.index[a.ID] = i
	}
}
