package domain

import (
	"context"
	"time"
)

// Hotspot is a single satellite fire detection.
type Hotspot struct {
	DetectedAt   time.Time `json:"detected_at"`
	Geo          Geo       `json:"geo"`
	Confidence   float64   `json:"confidence"`
	DetectedType string    `json:"detected_type"`
	Area         Area      `json:"area"`
	Source       string    `json:"source,omitempty"`
}

// Date returns the UTC acquisition date as YYYY-MM-DD.
func (h Hotspot) Date() string {
	return h.DetectedAt.UTC().Format(time.DateOnly)
}

// HotspotSource produces the latest batch of fire detections.
type HotspotSource interface {
	FetchHotspots(ctx context.Context) ([]Hotspot, error)
}

// FireSeverity grades a detection by confidence.
func FireSeverity(confidence float64) Severity {
	switch {
	case confidence >= 90:
		return SeverityHigh
	case confidence >= 70:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// DetectionType maps the MODIS numeric type column to a label.
func DetectionType(code int) string {
	switch code {
	case 1:
		return "Active Fire"
	case 2, 3:
		return "Other"
	default:
		return "Vegetation"
	}
}
