package service

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
)

// WalkingSpeedMetersPerMinute is a 5 km/h walking pace.
const WalkingSpeedMetersPerMinute = 5000.0 / 60.0

type indexedRegion struct {
	station int // index into QueryIndex.stations
	bound   orb.Bound
	poly    orb.MultiPolygon
}

// QueryIndex answers nearest-station queries for one artifact. It is
// read-only after construction and safe for concurrent use.
type QueryIndex struct {
	generationID string
	proj         geometry.Projection
	stations     []domain.Station
	sites        []orb.Point
	regions      []indexedRegion
	kd           *kdNode
}

// NewQueryIndex builds the index in the artifact's projection. Regions that
// lost their planar form (e.g. after a reload) are projected again.
func NewQueryIndex(a *domain.CityMapArtifact, backend geometry.Backend) (*QueryIndex, error) {
	if len(a.Stations) == 0 {
		return nil, fmt.Errorf("index: artifact %s has no stations: %w", a.GenerationID, domain.ErrNotFound)
	}
	proj, err := backend.Project(a.Boundary.Polygon)
	if err != nil {
		return nil, fmt.Errorf("index: failed to project boundary: %w: %w", domain.ErrGeometryFailure, err)
	}

	idx := &QueryIndex{
		generationID: a.GenerationID,
		proj:         proj,
		stations:     a.Stations,
		sites:        make([]orb.Point, len(a.Stations)),
	}
	byID := make(map[int]int, len(a.Stations))
	items := make([]kdItem, len(a.Stations))
	for i, s := range a.Stations {
		byID[s.ID] = i
		idx.sites[i] = proj.Forward(s.Point())
		items[i] = kdItem{idx: i, p: idx.sites[i]}
	}
	idx.kd = buildKD(items, 0)

	for _, r := range a.Regions {
		if r.Empty() {
			continue
		}
		pos, ok := byID[r.OwnerStationID]
		if !ok {
			return nil, fmt.Errorf("index: region owner %d is not a station", r.OwnerStationID)
		}
		poly := r.Planar
		if len(poly) == 0 {
			poly = proj.ForwardMultiPolygon(r.Polygon)
		}
		idx.regions = append(idx.regions, indexedRegion{station: pos, bound: poly.Bound(), poly: poly})
	}
	return idx, nil
}

// GenerationID identifies the artifact the index was built from.
func (q *QueryIndex) GenerationID() string {
	return q.generationID
}

// Nearest returns the station whose region contains the point, or the
// closest station when the point is outside every region.
func (q *QueryIndex) Nearest(lat, lon float64) domain.NearestResult {
	p := q.proj.Forward(orb.Point{lon, lat})

	pos, inside := -1, false
	for _, r := range q.regions {
		if r.bound.Contains(p) && planar.MultiPolygonContains(r.poly, p) {
			pos, inside = r.station, true
			break
		}
	}
	if pos < 0 {
		pos, _ = nearest(q.kd, p)
	}

	dist := planar.Distance(p, q.sites[pos])
	return domain.NearestResult{
		Station:        q.stations[pos],
		DistanceMeters: dist,
		WalkingMinutes: dist / WalkingSpeedMetersPerMinute,
		Inside:         inside,
	}
}
