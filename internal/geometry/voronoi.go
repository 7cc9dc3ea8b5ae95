package geometry

import (
	"sort"

	"github.com/paulmach/orb"
)

// coincidentSq is the squared distance (m²) under which two sites count as
// the same point.
const coincidentSq = 1e-12

// voronoiCells computes one convex counter-clockwise cell per site, each the
// frame clipped by the bisector half-planes of the other sites. Every site's
// cell is finite because the frame bounds it.
//
// When several sites coincide the first one owns the cell and the others get
// a nil cell, so cells never overlap.
func voronoiCells(sites []orb.Point, frame orb.Bound) []orb.Ring {
	cells := make([]orb.Ring, len(sites))
	others := make([]int, 0, len(sites))

	for i, site := range sites {
		others = others[:0]
		for j := range sites {
			if j != i {
				others = append(others, j)
			}
		}
		sort.SliceStable(others, func(a, b int) bool {
			return distSq(site, sites[others[a]]) < distSq(site, sites[others[b]])
		})

		cell := frameRing(frame)
		for _, j := range others {
			d2 := distSq(site, sites[j])
			if d2 <= coincidentSq {
				if j < i {
					cell = nil
					break
				}
				continue
			}
			// Sites are visited nearest first: once the bisector lies beyond
			// the farthest vertex of the cell, no later site can cut it.
			if 4*maxDistSq(cell, site) < d2 {
				break
			}
			cell = clipHalfPlane(cell, site, sites[j])
			if len(cell) < 3 {
				cell = nil
				break
			}
		}
		cells[i] = cell
	}
	return cells
}

func frameRing(b orb.Bound) orb.Ring {
	return orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
	}
}

func maxDistSq(r orb.Ring, p orb.Point) float64 {
	var m float64
	for _, q := range r {
		if d := distSq(p, q); d > m {
			m = d
		}
	}
	return m
}

// clipHalfPlane keeps the part of a convex ring that is at least as close to
// a as to b.
func clipHalfPlane(r orb.Ring, a, b orb.Point) orb.Ring {
	nx, ny := b[0]-a[0], b[1]-a[1]
	mx, my := (a[0]+b[0])/2, (a[1]+b[1])/2
	return clipBy(r, func(p orb.Point) float64 {
		return (p[0]-mx)*nx + (p[1]-my)*ny
	})
}

// clipBy is one Sutherland-Hodgman pass: points with side(p) <= 0 are kept
// and crossing edges are cut where side changes sign.
func clipBy(r orb.Ring, side func(orb.Point) float64) orb.Ring {
	if len(r) == 0 {
		return nil
	}
	out := make(orb.Ring, 0, len(r)+2)
	prev := r[len(r)-1]
	sPrev := side(prev)
	for _, cur := range r {
		sCur := side(cur)
		switch {
		case sCur <= 0:
			if sPrev > 0 {
				out = append(out, cutAt(prev, cur, sPrev, sCur))
			}
			out = append(out, cur)
		case sPrev <= 0:
			out = append(out, cutAt(prev, cur, sPrev, sCur))
		}
		prev, sPrev = cur, sCur
	}
	return out
}

func cutAt(p, q orb.Point, sp, sq float64) orb.Point {
	t := sp / (sp - sq)
	return orb.Point{p[0] + t*(q[0]-p[0]), p[1] + t*(q[1]-p[1])}
}
