package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DefaultFireRetention bounds how long detections are kept.
const DefaultFireRetention = 30 * 24 * time.Hour

type fireFile struct {
	Version  int              `json:"version"`
	Hotspots []domain.Hotspot `json:"hotspots"`
}

// Fires keeps an audit trail of satellite detections, including those that
// could not be mapped to an area.
type Fires struct {
	path      string
	clock     clockwork.Clock
	retention time.Duration

	mu       sync.RWMutex
	hotspots []domain.Hotspot
}

// OpenFires loads the fire history at path. A non-positive retention selects
// DefaultFireRetention.
func OpenFires(path string, retention time.Duration, clock clockwork.Clock) (*Fires, error) {
	if retention <= 0 {
		retention = DefaultFireRetention
	}
	f := &Fires{path: path, clock: clock, retention: retention}
	var doc fireFile
	if _, err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	f.hotspots = doc.Hotspots
	return f, nil
}

type detectionKey struct {
	at  int64
	lat float64
	lon float64
}

func keyOf(h domain.Hotspot) detectionKey {
	return detectionKey{at: h.DetectedAt.UnixNano(), lat: h.Geo.Lat, lon: h.Geo.Lon}
}

// Record stores a batch of detections. A stored detection with the same
// acquisition time and position as one in the batch is replaced, so
// overlapping feed windows do not duplicate rows. Detections older than the
// retention are dropped.
func (f *Fires) Record(_ context.Context, batch []domain.Hotspot) error {
	if len(batch) == 0 {
		return nil
	}
	incoming := make(map[detectionKey]struct{}, len(batch))
	for _, h := range batch {
		incoming[keyOf(h)] = struct{}{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.clock.Now().Add(-f.retention)
	next := make([]domain.Hotspot, 0, len(f.hotspots)+len(batch))
	for _, h := range f.hotspots {
		if _, replaced := incoming[keyOf(h)]; replaced || h.DetectedAt.Before(cutoff) {
			continue
		}
		next = append(next, h)
	}
	for _, h := range batch {
		if h.DetectedAt.Before(cutoff) {
			continue
		}
		next = append(next, h)
	}
	slices.SortStableFunc(next, func(a, b domain.Hotspot) int { return b.DetectedAt.Compare(a.DetectedAt) })

	if err := writeJSON(f.path, fireFile{Version: 1, Hotspots: next}); err != nil {
		return err
	}
	f.hotspots = next
	return nil
}

// Recent returns detections in area at or after since with at least
// minConfidence, newest first.
func (f *Fires) Recent(area domain.Area, since time.Time, minConfidence float64) []domain.Hotspot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Hotspot
	for _, h := range f.hotspots {
		if h.Area == area && !h.DetectedAt.Before(since) && h.Confidence >= minConfidence {
			out = append(out, h)
		}
	}
	return out
}

// Len returns the number of stored detections.
func (f *Fires) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.hotspots)
}
