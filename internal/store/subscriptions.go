package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// AreaValidator reports which areas may be subscribed to.
type AreaValidator interface {
	Available() bool
	Contains(a domain.Area) bool
}

type subscription struct {
	Area         domain.Area
	SubscribedAt time.Time
}

type subscriptionRecord struct {
	SubscriberID domain.SubscriberID `json:"subscriber_id"`
	District     string              `json:"district"`
	Taluka       string              `json:"taluka"`
	SubscribedAt time.Time           `json:"subscribed_at"`
}

type subscriptionFile struct {
	Version       int                  `json:"version"`
	Subscriptions []subscriptionRecord `json:"subscriptions"`
}

// Subscriptions binds each subscriber to at most one area.
type Subscriptions struct {
	path  string
	areas AreaValidator
	clock clockwork.Clock

	mu     sync.RWMutex
	byID   map[domain.SubscriberID]subscription
	byArea map[domain.Area]map[domain.SubscriberID]struct{}
}

// OpenSubscriptions loads the store at path, creating an empty one if the
// file does not exist yet.
func OpenSubscriptions(path string, areas AreaValidator, clock clockwork.Clock) (*Subscriptions, error) {
	s := &Subscriptions{
		path:  path,
		areas: areas,
		clock: clock,
		byID:  make(map[domain.SubscriberID]subscription),
	}

	var doc subscriptionFile
	if _, err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	for _, r := range doc.Subscriptions {
		s.byID[r.SubscriberID] = subscription{
			Area:         domain.Area{District: r.District, Taluka: r.Taluka},
			SubscribedAt: r.SubscribedAt,
		}
	}
	s.reindex()
	return s, nil
}

// Subscribe binds id to area, replacing any previous binding. Re-subscribing
// to the current area succeeds without rewriting the file.
func (s *Subscriptions) Subscribe(_ context.Context, id domain.SubscriberID, area domain.Area) error {
	if !s.areas.Available() {
		return fmt.Errorf("subscribe %s: %w", id, domain.ErrCatalogUnavailable)
	}
	if !s.areas.Contains(area) {
		return fmt.Errorf("subscribe %s to %s: %w", id, area, domain.ErrUnknownArea)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[id]; ok && cur.Area == area {
		return nil
	}
	next := maps.Clone(s.byID)
	next[id] = subscription{Area: area, SubscribedAt: s.clock.Now().UTC()}
	return s.commit(next)
}

// Unsubscribe removes id from every area and reports whether anything changed.
func (s *Subscriptions) Unsubscribe(_ context.Context, id domain.SubscriberID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	next := maps.Clone(s.byID)
	delete(next, id)
	if err := s.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

// SubscriptionOf returns the area id is subscribed to.
func (s *Subscriptions) SubscriptionOf(id domain.SubscriberID) (domain.Area, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[id]
	return sub.Area, ok
}

// SubscribersOf returns the subscribers of area in no particular order.
func (s *Subscriptions) SubscribersOf(area domain.Area) []domain.SubscriberID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Keys(s.byArea[area]))
}

// Areas returns the distinct areas with at least one subscriber.
func (s *Subscriptions) Areas() []domain.Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Keys(s.byArea))
	slices.SortFunc(out, compareAreas)
	return out
}

// Count returns the number of subscribers.
func (s *Subscriptions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// commit persists next and, only once it is on disk, swaps it in.
// Callers hold the write lock.
func (s *Subscriptions) commit(next map[domain.SubscriberID]subscription) error {
	doc := subscriptionFile{Version: 1, Subscriptions: make([]subscriptionRecord, 0, len(next))}
	for id, sub := range next {
		doc.Subscriptions = append(doc.Subscriptions, subscriptionRecord{
			SubscriberID: id,
			District:     sub.Area.District,
			Taluka:       sub.Area.Taluka,
			SubscribedAt: sub.SubscribedAt,
		})
	}
	slices.SortFunc(doc.Subscriptions, func(a, b subscriptionRecord) int {
		return cmp.Compare(a.SubscriberID, b.SubscriberID)
	})
	if err := writeJSON(s.path, doc); err != nil {
		return err
	}
	s.byID = next
	s.reindex()
	return nil
}

func (s *Subscriptions) reindex() {
	s.byArea = make(map[domain.Area]map[domain.SubscriberID]struct{})
	for id, sub := range s.byID {
		set, ok := s.byArea[sub.Area]
		if !ok {
			set = make(map[domain.SubscriberID]struct{})
			s.byArea[sub.Area] = set
		}
		set[id] = struct{}{}
	}
}

func compareAreas(a, b domain.Area) int {
	return cmp.Or(cmp.Compare(a.District, b.District), cmp.Compare(a.Taluka, b.Taluka))
}
