package service

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
)

const (
	// framePadding is how many boundary diagonals the Voronoi frame extends
	// past the boundary on every side.
	framePadding = 2.0

	// areaTolerance is the relative difference allowed between the boundary
	// area and the summed region areas.
	areaTolerance = 1e-6
)

// Tessellator partitions a city boundary into one region per station.
type Tessellator interface {
	Tessellate(stations []domain.Station, boundary domain.CityBoundary) ([]domain.Region, error)
}

// TessellationEngine computes nearest-station regions clipped to the city
// boundary.
type TessellationEngine struct {
	backend geometry.Backend
}

// NewTessellationEngine creates a new tessellation engine
func NewTessellationEngine(backend geometry.Backend) *TessellationEngine {
	return &TessellationEngine{backend: backend}
}

// Tessellate returns one region per station in input order. A station whose
// cell misses the boundary gets a region with an empty polygon. Every part of
// every region is a simple ring. Together the
// regions cover the boundary exactly, otherwise ErrGeometryFailure is
// returned.
func (e *TessellationEngine) Tessellate(stations []domain.Station, boundary domain.CityBoundary) ([]domain.Region, error) {
	if n := distinctCoordinates(stations); n < 3 {
		return nil, fmt.Errorf("tessellation: %d distinct station coordinates: %w", n, domain.ErrDegenerateInput)
	}

	proj, err := e.backend.Project(boundary.Polygon)
	if err != nil {
		return nil, fmt.Errorf("tessellation: failed to project boundary: %w: %w", domain.ErrGeometryFailure, err)
	}
	outer := proj.ForwardPolygon(orb.Polygon{boundary.Outer()})[0]
	if err := geometry.ValidateSimple(outer); err != nil {
		return nil, fmt.Errorf("tessellation: invalid boundary: %w: %w", domain.ErrGeometryFailure, err)
	}
	boundaryArea := math.Abs(geometry.SignedArea(outer))

	sites := make([]orb.Point, len(stations))
	for i, s := range stations {
		sites[i] = proj.Forward(s.Point())
	}
	cells := e.backend.VoronoiCells(sites, geometry.Frame(outer.Bound(), framePadding))

	regions := make([]domain.Region, len(stations))
	var total float64
	for i, s := range stations {
		region := domain.Region{OwnerStationID: s.ID, NeighborIDs: []int{}}
		parts, err := e.backend.Intersect(cells[i], outer)
		if err != nil {
			return nil, fmt.Errorf("tessellation: failed to clip cell of station %d: %w: %w", s.ID, domain.ErrGeometryFailure, err)
		}
		for j, part := range parts {
			if len(part) == 0 {
				return nil, fmt.Errorf("tessellation: part %d of station %d has no ring: %w", j, s.ID, domain.ErrGeometryFailure)
			}
			if err := geometry.ValidateSimple(part[0]); err != nil {
				return nil, fmt.Errorf("tessellation: part %d of station %d is malformed: %w: %w", j, s.ID, domain.ErrGeometryFailure, err)
			}
			region.AreaM2 += math.Abs(geometry.SignedArea(part[0]))
		}
		if len(parts) > 0 {
			region.Planar = parts
			region.Polygon = proj.InverseMultiPolygon(parts)
			total += region.AreaM2
		}
		regions[i] = region
	}

	if math.Abs(total-boundaryArea) > areaTolerance*boundaryArea {
		return nil, fmt.Errorf("tessellation: regions cover %.3f m² of %.3f m²: %w", total, boundaryArea, domain.ErrGeometryFailure)
	}
	return regions, nil
}

func distinctCoordinates(stations []domain.Station) int {
	seen := make(map[orb.Point]struct{}, len(stations))
	for _, s := range stations {
		seen[s.Point()] = struct{}{}
	}
	return len(seen)
}
