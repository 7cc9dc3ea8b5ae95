// Package geometry holds the planar computational geometry behind the
// coverage maps. Callers depend on the Backend interface so the concrete
// implementation can be swapped without touching the pipeline.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Backend is the narrow geometry capability the pipeline needs.
type Backend interface {
	// Project returns the planar projection used for a city boundary.
	Project(boundary orb.Polygon) (Projection, error)

	// VoronoiCells returns one convex cell per site inside frame. Cells of
	// duplicate sites after the first are nil.
	VoronoiCells(sites []orb.Point, frame orb.Bound) []orb.Ring

	// Intersect clips a convex cell by a simple boundary ring. The result
	// holds one polygon per connected part and is empty when the cell misses
	// the boundary.
	Intersect(cell, boundary orb.Ring) (orb.MultiPolygon, error)

	// BoundaryLength is the length of boundary shared by two regions.
	BoundaryLength(a, b orb.MultiPolygon) float64
}

// Planar is the in-process Backend.
type Planar struct{}

// NewPlanar creates the default backend.
func NewPlanar() *Planar {
	return &Planar{}
}

// Project centers the projection on the area centroid of the boundary.
func (Planar) Project(boundary orb.Polygon) (Projection, error) {
	if len(boundary) == 0 || len(openRing(boundary[0])) < 3 {
		return Projection{}, fmt.Errorf("geometry: boundary has no outer ring: %w", ErrInvalidPolygon)
	}
	outer := orb.Polygon{CloseRing(boundary[0])}
	center, area := planar.CentroidArea(outer)
	if area == 0 {
		return Projection{}, fmt.Errorf("geometry: boundary has no area: %w", ErrInvalidPolygon)
	}
	return NewProjection(center), nil
}

func (Planar) VoronoiCells(sites []orb.Point, frame orb.Bound) []orb.Ring {
	return voronoiCells(sites, frame)
}

func (Planar) Intersect(cell, boundary orb.Ring) (orb.MultiPolygon, error) {
	if len(cell) == 0 {
		return nil, nil
	}
	parts, err := intersectConvex(cell, boundary)
	if err != nil || len(parts) == 0 {
		return nil, err
	}
	mp := make(orb.MultiPolygon, len(parts))
	for i, r := range parts {
		mp[i] = orb.Polygon{CloseRing(r)}
	}
	return mp, nil
}

func (Planar) BoundaryLength(a, b orb.MultiPolygon) float64 {
	var total float64
	for _, pa := range a {
		for _, pb := range b {
			for _, ra := range pa {
				for _, rb := range pb {
					total += sharedBoundaryLength(ra, rb)
				}
			}
		}
	}
	return total
}

// Frame returns b enlarged by pad times its diagonal on every side.
func Frame(b orb.Bound, pad float64) orb.Bound {
	diameter := planar.Distance(b.Min, b.Max)
	return b.Pad(pad * diameter)
}
