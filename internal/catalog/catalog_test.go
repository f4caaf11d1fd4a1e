package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `District Name,Taluka Name,Village Name,Taluka Latitude,Taluka Longitude
RAJKOT,Gondal,Village A,21.96,70.80
RAJKOT,Gondal,Village B,21.99,70.81
AHMEDABAD,Bavla,Village C,22.83,72.36
AHMEDABAD,Sanand,Village D,,
RAJKOT,Dhoraji,Village E,21.73,70.45
`

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talukas.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCSV(t, sampleCSV))
	require.NoError(t, err)

	assert.True(t, c.Available())
	assert.Equal(t, []string{"AHMEDABAD", "RAJKOT"}, c.Districts())
	assert.Equal(t, []string{"Dhoraji", "Gondal"}, c.Talukas("RAJKOT"))
	assert.Equal(t, []string{"Bavla", "Sanand"}, c.Talukas("AHMEDABAD"))
	assert.Nil(t, c.Talukas("SURAT"))

	geo, ok := c.Coordinates(domain.Area{District: "RAJKOT", Taluka: "Gondal"})
	require.True(t, ok)
	assert.InDelta(t, 21.96, geo.Lat, 1e-9, "first row wins")

	_, ok = c.Coordinates(domain.Area{District: "AHMEDABAD", Taluka: "Sanand"})
	assert.False(t, ok)
	assert.True(t, c.Contains(domain.Area{District: "AHMEDABAD", Taluka: "Sanand"}))
	assert.False(t, c.Contains(domain.Area{District: "ahmedabad", Taluka: "Sanand"}), "lookups are case-sensitive")
}

func TestLoad_MissingFileFailsClosed(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	require.NotNil(t, c)
	assert.False(t, c.Available())
	assert.Empty(t, c.Districts())
	assert.False(t, c.Contains(domain.Area{District: "RAJKOT", Taluka: "Gondal"}))
}

func TestLoad_MissingColumns(t *testing.T) {
	c, err := Load(writeCSV(t, "foo,bar\n1,2\n"))
	require.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	assert.False(t, c.Available())
}

func TestAreas_OnlyWithCoordinates(t *testing.T) {
	c, err := Load(writeCSV(t, sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []domain.Area{
		{District: "AHMEDABAD", Taluka: "Bavla"},
		{District: "RAJKOT", Taluka: "Dhoraji"},
		{District: "RAJKOT", Taluka: "Gondal"},
	}, c.Areas())
}

func TestNearest(t *testing.T) {
	c, err := Load(writeCSV(t, sampleCSV))
	require.NoError(t, err)

	area, ok := c.Nearest(domain.Geo{Lat: 21.9, Lon: 70.7}, 0.5)
	require.True(t, ok)
	assert.Equal(t, domain.Area{District: "RAJKOT", Taluka: "Gondal"}, area)

	area, ok = c.Nearest(domain.Geo{Lat: 24.5, Lon: 69.0}, 0.5)
	assert.False(t, ok)
	assert.Equal(t, domain.UnknownArea, area)
}

func TestNilCatalog(t *testing.T) {
	var c *Catalog
	assert.False(t, c.Available())
	assert.Nil(t, c.Districts())
	assert.False(t, c.HasDistrict("RAJKOT"))
}
