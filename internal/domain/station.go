package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// RawStationRecord is a station point as reported by a data source.
// The same physical station may appear several times (once per platform or line).
type RawStationRecord struct {
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	LineTags []string `json:"line_tags,omitempty"`
}

// Station is the canonical station produced by merging raw records that share
// a normalized name. ID is stable within a single generation run.
type Station struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	LineTags []string `json:"line_tags,omitempty"`
}

// Point returns the station location in orb (lon, lat) order.
func (s Station) Point() orb.Point {
	return orb.Point{s.Lon, s.Lat}
}

// CityBoundary is a simple polygon in geographic coordinates (lon, lat).
// Only the outer ring is used.
type CityBoundary struct {
	Polygon orb.Polygon `json:"polygon"`
}

// Outer returns the outer ring, or nil for an empty boundary.
func (b CityBoundary) Outer() orb.Ring {
	if len(b.Polygon) == 0 {
		return nil
	}
	return b.Polygon[0]
}

// CitySource is the raw data fetched for a city, cached separately from the
// rendered artifact so a map can be rebuilt without refetching.
type CitySource struct {
	Slug     string             `json:"slug"`
	City     string             `json:"city"`
	Stations []RawStationRecord `json:"stations"`
	Boundary CityBoundary       `json:"boundary"`
	// Lines are subway line geometries (lon, lat), when the source has them.
	Lines     orb.MultiLineString `json:"lines,omitempty"`
	FetchedAt time.Time           `json:"fetched_at"`
}
