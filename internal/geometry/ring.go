package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// Rings are handled open (no repeated closing point) inside this package and
// closed again before they leave it.

func openRing(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// CloseRing returns r with the first point repeated at the end.
func CloseRing(r orb.Ring) orb.Ring {
	if len(r) == 0 {
		return r
	}
	if r[0] == r[len(r)-1] {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

// SignedArea is the shoelace area of r, positive for counter-clockwise rings.
func SignedArea(r orb.Ring) float64 {
	r = openRing(r)
	if len(r) < 3 {
		return 0
	}
	var sum float64
	for i := range r {
		j := (i + 1) % len(r)
		sum += r[i][0]*r[j][1] - r[j][0]*r[i][1]
	}
	return sum / 2
}

func ensureCCW(r orb.Ring) orb.Ring {
	if SignedArea(r) >= 0 {
		return r
	}
	out := make(orb.Ring, len(r))
	for i := range r {
		out[i] = r[len(r)-1-i]
	}
	return out
}

// dedupe drops consecutive points closer than tol, including the wrap-around.
func dedupe(r orb.Ring, tol float64) orb.Ring {
	if len(r) == 0 {
		return r
	}
	tol2 := tol * tol
	out := make(orb.Ring, 0, len(r))
	for _, p := range r {
		if len(out) > 0 && distSq(out[len(out)-1], p) <= tol2 {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && distSq(out[0], out[len(out)-1]) <= tol2 {
		out = out[:len(out)-1]
	}
	return out
}

func finite(r orb.Ring) bool {
	for _, p := range r {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return false
		}
	}
	return true
}

func distSq(a, b orb.Point) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
