package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFireSeverity(t *testing.T) {
	tests := []struct {
		confidence float64
		want       Severity
	}{
		{95, SeverityHigh},
		{90, SeverityHigh},
		{89.9, SeverityMedium},
		{70, SeverityMedium},
		{69, SeverityLow},
		{0, SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FireSeverity(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestDetectionType(t *testing.T) {
	assert.Equal(t, "Vegetation", DetectionType(0))
	assert.Equal(t, "Active Fire", DetectionType(1))
	assert.Equal(t, "Other", DetectionType(2))
	assert.Equal(t, "Other", DetectionType(3))
	assert.Equal(t, "Vegetation", DetectionType(7))
}

func TestWeatherDescription(t *testing.T) {
	assert.Equal(t, "Clear sky", WeatherDescription(0))
	assert.Equal(t, "Thunderstorm", WeatherDescription(95))
	assert.Equal(t, "Unknown", WeatherDescription(42))
}

func TestArea_IsUnknown(t *testing.T) {
	assert.True(t, UnknownArea.IsUnknown())
	assert.True(t, Area{District: "RAJKOT"}.IsUnknown())
	assert.False(t, Area{District: "RAJKOT", Taluka: "Gondal"}.IsUnknown())
	assert.Equal(t, "Gondal, RAJKOT", Area{District: "RAJKOT", Taluka: "Gondal"}.String())
}

func TestCategory_Valid(t *testing.T) {
	for _, c := range []Category{CategoryWeather, CategoryFire, CategoryDemo, CategoryManual} {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("custom").Valid())
}

func TestFormatAlert(t *testing.T) {
	a := Alert{
		Area:      Area{District: "AHMEDABAD", Taluka: "Bavla"},
		Message:   "Heat wave expected.",
		Category:  CategoryFire,
		CreatedAt: time.Date(2025, time.May, 1, 6, 30, 0, 0, time.UTC),
	}
	text := FormatAlert(a)
	assert.Contains(t, text, "⚠️ FIRE ALERT")
	assert.Contains(t, text, "Heat wave expected.")
	assert.Contains(t, text, "📍 Location: Bavla, AHMEDABAD")
	assert.Contains(t, text, "🕐 2025-05-01 12:00:00")

	a.Category = CategoryManual
	assert.Contains(t, FormatAlert(a), "⚠️ WEATHER ALERT")
}

func TestHotspot_Date(t *testing.T) {
	h := Hotspot{DetectedAt: time.Date(2025, time.March, 3, 23, 50, 0, 0, time.UTC)}
	assert.Equal(t, "2025-03-03", h.Date())
}
