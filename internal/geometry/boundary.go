package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// collinearTolerance is how far (m) a segment end may sit off another
// segment's line and still count as lying on it.
const collinearTolerance = 1e-3

// sharedBoundaryLength sums the length of edge overlap between two rings.
// Rings that only touch at a point share nothing.
func sharedBoundaryLength(a, b orb.Ring) float64 {
	a, b = openRing(a), openRing(b)
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	if !a.Bound().Pad(collinearTolerance).Intersects(b.Bound()) {
		return 0
	}
	var total float64
	for i := range a {
		p, q := a[i], a[(i+1)%len(a)]
		for j := range b {
			total += segmentOverlap(p, q, b[j], b[(j+1)%len(b)])
		}
	}
	return total
}

// segmentOverlap is the length of pq covered by rs when both lie on the
// same line.
func segmentOverlap(p, q, r, s orb.Point) float64 {
	dx, dy := q[0]-p[0], q[1]-p[1]
	length := math.Hypot(dx, dy)
	if length < collinearTolerance {
		return 0
	}
	if math.Abs(cross(p, q, r))/length > collinearTolerance ||
		math.Abs(cross(p, q, s))/length > collinearTolerance {
		return 0
	}
	t1 := ((r[0]-p[0])*dx + (r[1]-p[1])*dy) / length
	t2 := ((s[0]-p[0])*dx + (s[1]-p[1])*dy) / length
	lo := math.Max(0, math.Min(t1, t2))
	hi := math.Min(length, math.Max(t1, t2))
	if hi <= lo {
		return 0
	}
	return hi - lo
}
