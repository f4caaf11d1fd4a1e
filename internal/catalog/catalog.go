// Package catalog holds the read-only district → taluka → coordinates
// reference data loaded once at startup.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
)

// Column headers expected in the reference dataset.
const (
	colDistrict = "District Name"
	colTaluka   = "Taluka Name"
	colLat      = "Taluka Latitude"
	colLon      = "Taluka Longitude"
)

// Entry is one taluka in the catalog. HasGeo is false when the dataset
// carries no usable coordinates for it.
type Entry struct {
	Area   domain.Area
	Geo    domain.Geo
	HasGeo bool
}

// Catalog is an immutable index over the reference dataset. The zero value
// is an empty, unavailable catalog.
type Catalog struct {
	districts []string
	talukas   map[string][]string
	coords    map[domain.Area]domain.Geo
}

// New builds a catalog from entries. Duplicate areas keep the first
// coordinates seen.
func New(entries []Entry) *Catalog {
	c := &Catalog{
		talukas: make(map[string][]string),
		coords:  make(map[domain.Area]domain.Geo),
	}
	seen := make(map[domain.Area]bool)
	for _, e := range entries {
		if e.Area.District == "" || e.Area.Taluka == "" {
			continue
		}
		if !seen[e.Area] {
			seen[e.Area] = true
			if _, ok := c.talukas[e.Area.District]; !ok {
				c.districts = append(c.districts, e.Area.District)
			}
			c.talukas[e.Area.District] = append(c.talukas[e.Area.District], e.Area.Taluka)
		}
		if _, ok := c.coords[e.Area]; !ok && e.HasGeo {
			c.coords[e.Area] = e.Geo
		}
	}
	slices.Sort(c.districts)
	for _, t := range c.talukas {
		slices.Sort(t)
	}
	return c
}

// Load reads the reference CSV at path. It always returns a usable catalog:
// on failure the catalog is empty and the error wraps
// domain.ErrCatalogUnavailable.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return New(nil), fmt.Errorf("open %s: %w: %w", path, domain.ErrCatalogUnavailable, err)
	}
	defer f.Close()

	entries, err := parse(f)
	if err != nil {
		return New(nil), fmt.Errorf("parse %s: %w: %w", path, domain.ErrCatalogUnavailable, err)
	}
	c := New(entries)
	if !c.Available() {
		return c, fmt.Errorf("%s has no districts: %w", path, domain.ErrCatalogUnavailable)
	}
	return c, nil
}

func parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{colDistrict, colTaluka} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	latIdx, hasLat := idx[colLat]
	lonIdx, hasLon := idx[colLon]

	var entries []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		e := Entry{Area: domain.Area{
			District: field(rec, idx[colDistrict]),
			Taluka:   field(rec, idx[colTaluka]),
		}}
		if hasLat && hasLon {
			lat, latErr := strconv.ParseFloat(field(rec, latIdx), 64)
			lon, lonErr := strconv.ParseFloat(field(rec, lonIdx), 64)
			if latErr == nil && lonErr == nil && !math.IsNaN(lat) && !math.IsNaN(lon) {
				e.Geo = domain.Geo{Lat: lat, Lon: lon}
				e.HasGeo = true
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Available reports whether any districts were loaded.
func (c *Catalog) Available() bool {
	return c != nil && len(c.districts) > 0
}

// Districts returns the sorted district names.
func (c *Catalog) Districts() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.districts)
}

// Talukas returns the sorted talukas of district, or nil if it is unknown.
func (c *Catalog) Talukas(district string) []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.talukas[district])
}

// HasDistrict reports whether district is in the catalog.
func (c *Catalog) HasDistrict(district string) bool {
	if c == nil {
		return false
	}
	_, ok := c.talukas[district]
	return ok
}

// Contains reports whether the area is in the catalog.
func (c *Catalog) Contains(a domain.Area) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.talukas[a.District], a.Taluka)
}

// Coordinates returns the taluka centre, if the dataset provides one.
func (c *Catalog) Coordinates(a domain.Area) (domain.Geo, bool) {
	if c == nil {
		return domain.Geo{}, false
	}
	g, ok := c.coords[a]
	return g, ok
}

// Areas returns every area that has coordinates, ordered by district then taluka.
func (c *Catalog) Areas() []domain.Area {
	if c == nil {
		return nil
	}
	var out []domain.Area
	for _, d := range c.districts {
		for _, t := range c.talukas[d] {
			a := domain.Area{District: d, Taluka: t}
			if _, ok := c.coords[a]; ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// Nearest returns the area whose centre is closest to g, as long as the
// planar degree distance is strictly below maxDistance.
func (c *Catalog) Nearest(g domain.Geo, maxDistance float64) (domain.Area, bool) {
	best := domain.UnknownArea
	bestDist := math.Inf(1)
	for _, a := range c.Areas() {
		centre := c.coords[a]
		d := math.Hypot(g.Lat-centre.Lat, g.Lon-centre.Lon)
		if d < maxDistance && d < bestDist {
			best, bestDist = a, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
