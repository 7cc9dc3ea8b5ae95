package service

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/smartcity/stationmap/internal/domain"
)

// Normalizer merges raw station records that refer to the same station.
type Normalizer struct{}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeName returns the grouping key of a station name: case folded with
// runs of whitespace collapsed to one space.
func NormalizeName(name string) string {
	// a Caser keeps state and must not be shared between goroutines
	return collapseSpaces(cases.Fold().String(name))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type stationGroup struct {
	key      string
	name     string
	sumLat   float64
	sumLon   float64
	count    int
	lineTags []string
	seenTags map[string]struct{}
}

// Normalize groups raw records by normalized name. Each group becomes one
// station at the centroid of its records, carrying the union of their line
// tags in first-seen order and the first record's name. Stations are ordered
// by key and numbered from 1, so the set of stations and their ids do not
// depend on input order.
func (n *Normalizer) Normalize(raw []domain.RawStationRecord) []domain.Station {
	groups := make(map[string]*stationGroup)
	for _, rec := range raw {
		key := NormalizeName(rec.Name)
		if key == "" || !validCoordinate(rec.Lat, rec.Lon) {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &stationGroup{
				key:      key,
				name:     rec.Name,
				seenTags: make(map[string]struct{}),
			}
			groups[key] = g
		}
		g.sumLat += rec.Lat
		g.sumLon += rec.Lon
		g.count++
		for _, tag := range rec.LineTags {
			if _, dup := g.seenTags[tag]; tag == "" || dup {
				continue
			}
			g.seenTags[tag] = struct{}{}
			g.lineTags = append(g.lineTags, tag)
		}
	}

	ordered := make([]*stationGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key < ordered[j].key })

	stations := make([]domain.Station, 0, len(ordered))
	for i, g := range ordered {
		stations = append(stations, domain.Station{
			ID:       i + 1,
			Name:     g.name,
			Lat:      g.sumLat / float64(g.count),
			Lon:      g.sumLon / float64(g.count),
			LineTags: g.lineTags,
		})
	}
	return stations
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
