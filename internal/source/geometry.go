// Package source implements the station data sources: OpenStreetMap
// (Nominatim and Overpass) and an offline fixture directory.
package source

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/smartcity/stationmap/internal/domain"
)

// boundaryFromGeoJSON turns a GeoJSON Polygon or MultiPolygon geometry into
// a city boundary: the outer ring of the largest polygon.
func boundaryFromGeoJSON(data []byte) (domain.CityBoundary, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return domain.CityBoundary{}, fmt.Errorf("source: failed to decode boundary geometry: %w", err)
	}

	var polys []orb.Polygon
	switch geom := g.Geometry().(type) {
	case orb.Polygon:
		polys = []orb.Polygon{geom}
	case orb.MultiPolygon:
		polys = geom
	default:
		return domain.CityBoundary{}, fmt.Errorf("source: boundary is a %s, not a polygon: %w", g.Type, domain.ErrDataUnavailable)
	}

	var (
		best     orb.Polygon
		bestArea float64
	)
	for _, p := range polys {
		if len(p) == 0 {
			continue
		}
		if a := geo.Area(orb.Polygon{p[0]}); best == nil || a > bestArea {
			best, bestArea = p, a
		}
	}
	if best == nil {
		return domain.CityBoundary{}, fmt.Errorf("source: boundary has no rings: %w", domain.ErrDataUnavailable)
	}
	return domain.CityBoundary{Polygon: orb.Polygon{best[0]}}, nil
}

// linesFromGeoJSON reads a LineString or MultiLineString geometry. Missing
// input means no lines.
func linesFromGeoJSON(data []byte) (orb.MultiLineString, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("source: failed to decode line geometry: %w", err)
	}
	switch geom := g.Geometry().(type) {
	case orb.LineString:
		return orb.MultiLineString{geom}, nil
	case orb.MultiLineString:
		return geom, nil
	default:
		return nil, fmt.Errorf("source: lines are a %s, not a line string", g.Type)
	}
}

// insideBoundary keeps the records located within the boundary.
func insideBoundary(recs []domain.RawStationRecord, b domain.CityBoundary) []domain.RawStationRecord {
	bound := b.Polygon.Bound()
	out := recs[:0:0]
	for _, r := range recs {
		p := orb.Point{r.Lon, r.Lat}
		if bound.Contains(p) && planar.PolygonContains(b.Polygon, p) {
			out = append(out, r)
		}
	}
	return out
}
