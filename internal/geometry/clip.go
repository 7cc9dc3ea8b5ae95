package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// ErrInvalidPolygon is returned for rings that are not simple polygons or
// that produce non-finite coordinates.
var ErrInvalidPolygon = errors.New("invalid polygon")

const (
	// pointTolerance merges vertices closer than this many meters.
	pointTolerance = 1e-7
	// minArea is the smallest clipped area (m²) kept as a non-empty region.
	minArea = 1e-6
	// touchTolerance is how close (m) two edges may come before they count
	// as touching. Edges closer than this to a clip line run along it.
	touchTolerance = 1e-6
)

type segment struct {
	a, b orb.Point
}

// intersectConvex clips a simple subject ring by a convex counter-clockwise
// clip ring. It returns the parts of the intersection as open
// counter-clockwise rings, largest first, and nothing when the intersection
// has no area. A concave subject may fall apart into several parts; each one
// passes ValidateSimple.
func intersectConvex(clip, subject orb.Ring) ([]orb.Ring, error) {
	clip = dedupe(ensureCCW(openRing(clip)), pointTolerance)
	chain := ensureCCW(openRing(subject))
	for i := range clip {
		a, b := clip[i], clip[(i+1)%len(clip)]
		chain = clipBy(chain, func(p orb.Point) float64 {
			return -cross(a, b, p)
		})
		if len(chain) == 0 {
			return nil, nil
		}
	}
	if !finite(chain) {
		return nil, fmt.Errorf("geometry: clipped ring has non-finite coordinates: %w", ErrInvalidPolygon)
	}
	chain = snapVertices(dedupe(chain, pointTolerance))
	if len(chain) < 3 || math.Abs(SignedArea(chain)) < minArea {
		return nil, nil
	}

	edges, err := cancelRetraced(chain, clip)
	if err != nil {
		return nil, err
	}
	rings, err := stitch(edges)
	if err != nil {
		return nil, err
	}

	var parts []orb.Ring
	for _, r := range rings {
		r = dedupe(r, pointTolerance)
		area := SignedArea(r)
		if len(r) < 3 || math.Abs(area) < minArea {
			continue
		}
		if area < 0 {
			return nil, fmt.Errorf("geometry: clipped part of %.3f m² is clockwise: %w", area, ErrInvalidPolygon)
		}
		if err := ValidateSimple(r); err != nil {
			return nil, fmt.Errorf("geometry: clipped part %d: %w", len(parts), err)
		}
		parts = append(parts, r)
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return SignedArea(parts[i]) > SignedArea(parts[j])
	})
	return parts, nil
}

// snapVertices replaces every vertex by the first earlier vertex within
// pointTolerance, so repeated visits of one place share exact coordinates.
func snapVertices(r orb.Ring) orb.Ring {
	type cell [2]int64
	key := func(p orb.Point) cell {
		return cell{int64(math.Floor(p[0] / pointTolerance)), int64(math.Floor(p[1] / pointTolerance))}
	}
	tol2 := pointTolerance * pointTolerance
	grid := make(map[cell][]orb.Point, len(r))
	out := make(orb.Ring, len(r))
	for i, p := range r {
		k := key(p)
		snapped := false
	search:
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, q := range grid[cell{k[0] + dx, k[1] + dy}] {
					if distSq(p, q) <= tol2 {
						p, snapped = q, true
						break search
					}
				}
			}
		}
		if !snapped {
			grid[k] = append(grid[k], p)
		}
		out[i] = p
	}
	return dedupe(out, 0)
}

// cancelRetraced returns the directed edges of a clipped chain with the
// stretches it retraces along the clip ring removed. Clipping a concave
// subject joins its parts with edges that run back and forth along a clip
// line; per line only the net coverage of every stretch survives.
func cancelRetraced(chain, clip orb.Ring) ([]segment, error) {
	n := len(chain)
	onLine := make([][]segment, len(clip))
	var out []segment
	for i := 0; i < n; i++ {
		s := segment{chain[i], chain[(i+1)%n]}
		if k := clipLineOf(clip, s); k >= 0 {
			onLine[k] = append(onLine[k], s)
			continue
		}
		out = append(out, s)
	}
	for k, segs := range onLine {
		if len(segs) == 0 {
			continue
		}
		net, err := netCoverage(clip[k], clip[(k+1)%len(clip)], segs, chain)
		if err != nil {
			return nil, err
		}
		out = append(out, net...)
	}
	return out, nil
}

func clipLineOf(clip orb.Ring, s segment) int {
	for k := range clip {
		a, b := clip[k], clip[(k+1)%len(clip)]
		if math.Abs(lineDistance(a, b, s.a)) <= touchTolerance &&
			math.Abs(lineDistance(a, b, s.b)) <= touchTolerance {
			return k
		}
	}
	return -1
}

// netCoverage sums the directed segments lying on the line ab over the
// stretches between their endpoints. Chain vertices that sit on the line
// also split stretches so that parts meeting there stay separable.
func netCoverage(a, b orb.Point, segs []segment, chain orb.Ring) ([]segment, error) {
	length := math.Sqrt(distSq(a, b))
	dir := orb.Point{(b[0] - a[0]) / length, (b[1] - a[1]) / length}
	param := func(p orb.Point) float64 {
		return (p[0]-a[0])*dir[0] + (p[1]-a[1])*dir[1]
	}

	pos := make(map[orb.Point]int)
	var stops []orb.Point
	add := func(p orb.Point) {
		if _, ok := pos[p]; !ok {
			pos[p] = 0
			stops = append(stops, p)
		}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range segs {
		add(s.a)
		add(s.b)
		lo = math.Min(lo, math.Min(param(s.a), param(s.b)))
		hi = math.Max(hi, math.Max(param(s.a), param(s.b)))
	}
	for _, p := range chain {
		if t := param(p); t > lo && t < hi && math.Abs(lineDistance(a, b, p)) <= touchTolerance {
			add(p)
		}
	}
	sort.Slice(stops, func(i, j int) bool {
		ti, tj := param(stops[i]), param(stops[j])
		if ti != tj {
			return ti < tj
		}
		if stops[i][0] != stops[j][0] {
			return stops[i][0] < stops[j][0]
		}
		return stops[i][1] < stops[j][1]
	})
	for i, p := range stops {
		pos[p] = i
	}

	cover := make([]int, len(stops)-1)
	for _, s := range segs {
		i, j, d := pos[s.a], pos[s.b], 1
		if i > j {
			i, j, d = j, i, -1
		}
		for x := i; x < j; x++ {
			cover[x] += d
		}
	}

	var out []segment
	for x, c := range cover {
		switch c {
		case 0:
		case 1:
			out = append(out, segment{stops[x], stops[x+1]})
		case -1:
			out = append(out, segment{stops[x+1], stops[x]})
		default:
			return nil, fmt.Errorf("geometry: clipped chain runs %d times along one stretch: %w", c, ErrInvalidPolygon)
		}
	}
	return out, nil
}

// stitch links directed edges into closed rings. Where several unused edges
// leave a vertex the sharpest left turn is taken, which separates parts that
// meet in a single point.
func stitch(edges []segment) ([]orb.Ring, error) {
	from := make(map[orb.Point][]int, len(edges))
	for i, e := range edges {
		from[e.a] = append(from[e.a], i)
	}
	used := make([]bool, len(edges))

	var rings []orb.Ring
	for start := range edges {
		if used[start] {
			continue
		}
		var r orb.Ring
		for cur, steps := start, 0; ; steps++ {
			if steps > len(edges) {
				return nil, fmt.Errorf("geometry: clipped chain does not close: %w", ErrInvalidPolygon)
			}
			used[cur] = true
			e := edges[cur]
			r = append(r, e.a)
			if e.b == edges[start].a {
				break
			}
			in := orb.Point{e.b[0] - e.a[0], e.b[1] - e.a[1]}
			next, best := -1, math.Inf(-1)
			for _, j := range from[e.b] {
				if used[j] {
					continue
				}
				out := orb.Point{edges[j].b[0] - edges[j].a[0], edges[j].b[1] - edges[j].a[1]}
				turn := math.Atan2(in[0]*out[1]-in[1]*out[0], in[0]*out[0]+in[1]*out[1])
				if turn > best {
					next, best = j, turn
				}
			}
			if next < 0 {
				return nil, fmt.Errorf("geometry: clipped chain is open at %v: %w", e.b, ErrInvalidPolygon)
			}
			cur = next
		}
		rings = append(rings, r)
	}
	return rings, nil
}

// ValidateSimple checks that r has at least 3 distinct vertices, a non-zero
// area and no self-intersections. Edges that are not neighbours must stay
// more than touchTolerance apart.
func ValidateSimple(r orb.Ring) error {
	r = dedupe(openRing(r), pointTolerance)
	if len(r) < 3 {
		return fmt.Errorf("geometry: ring has %d distinct vertices: %w", len(r), ErrInvalidPolygon)
	}
	if !finite(r) {
		return fmt.Errorf("geometry: ring has non-finite coordinates: %w", ErrInvalidPolygon)
	}
	if math.Abs(SignedArea(r)) < minArea {
		return fmt.Errorf("geometry: ring has no area: %w", ErrInvalidPolygon)
	}

	type edge struct {
		i          int
		minX, maxX float64
	}
	n := len(r)
	edges := make([]edge, n)
	for i := 0; i < n; i++ {
		a, b := r[i], r[(i+1)%n]
		edges[i] = edge{i: i, minX: math.Min(a[0], b[0]), maxX: math.Max(a[0], b[0])}
	}
	sort.Slice(edges, func(a, b int) bool { return edges[a].minX < edges[b].minX })

	for x := 0; x < n; x++ {
		e := edges[x]
		for y := x + 1; y < n && edges[y].minX <= e.maxX+touchTolerance; y++ {
			f := edges[y]
			if adjacentEdges(e.i, f.i, n) {
				continue
			}
			if segmentsTouch(r[e.i], r[(e.i+1)%n], r[f.i], r[(f.i+1)%n]) {
				return fmt.Errorf("geometry: edges %d and %d intersect: %w", e.i, f.i, ErrInvalidPolygon)
			}
		}
	}
	return nil
}

func adjacentEdges(i, j, n int) bool {
	return i == j || (i+1)%n == j || (j+1)%n == i
}

// segmentsTouch reports whether p1p2 and p3p4 cross or come within
// touchTolerance of each other.
func segmentsTouch(p1, p2, p3, p4 orb.Point) bool {
	d1 := lineDistance(p3, p4, p1)
	d2 := lineDistance(p3, p4, p2)
	d3 := lineDistance(p1, p2, p3)
	d4 := lineDistance(p1, p2, p4)
	if opposite(d1, d2) && opposite(d3, d4) {
		return true
	}
	return (math.Abs(d1) <= touchTolerance && onSegment(p3, p4, p1)) ||
		(math.Abs(d2) <= touchTolerance && onSegment(p3, p4, p2)) ||
		(math.Abs(d3) <= touchTolerance && onSegment(p1, p2, p3)) ||
		(math.Abs(d4) <= touchTolerance && onSegment(p1, p2, p4))
}

func opposite(d1, d2 float64) bool {
	return (d1 > touchTolerance && d2 < -touchTolerance) || (d1 < -touchTolerance && d2 > touchTolerance)
}

// lineDistance is the signed distance of p from the line through a and b,
// positive on the left.
func lineDistance(a, b, p orb.Point) float64 {
	length := math.Sqrt(distSq(a, b))
	if length == 0 {
		return math.Sqrt(distSq(a, p))
	}
	return cross(a, b, p) / length
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0])-touchTolerance <= p[0] && p[0] <= math.Max(a[0], b[0])+touchTolerance &&
		math.Min(a[1], b[1])-touchTolerance <= p[1] && p[1] <= math.Max(a[1], b[1])+touchTolerance
}
