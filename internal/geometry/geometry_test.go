package geometry

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectionRoundTrip(t *testing.T) {
	p := NewProjection(orb.Point{2.3522, 48.8566}) // Paris
	points := []orb.Point{
		{2.3522, 48.8566},
		{2.2945, 48.8584},
		{2.4, 48.9},
		{2.25, 48.81},
	}
	for _, pt := range points {
		back := p.Inverse(p.Forward(pt))
		assert.InDelta(t, pt.Lon(), back.Lon(), 1e-9)
		assert.InDelta(t, pt.Lat(), back.Lat(), 1e-9)
	}
}

func TestProjectionDistances(t *testing.T) {
	p := NewProjection(orb.Point{0, 0})

	// one hundredth of a degree of latitude is about 1112 m
	north := p.Forward(orb.Point{0, 0.01})
	assert.InDelta(t, 0, north[0], 1e-6)
	assert.InDelta(t, 1111.95, north[1], 1)

	east := p.Forward(orb.Point{0.01, 0})
	assert.InDelta(t, 1111.95, east[0], 1)
	assert.InDelta(t, 0, east[1], 1e-6)
}

func TestVoronoiCellsCoverFrame(t *testing.T) {
	sites := []orb.Point{{-50, -50}, {50, -50}, {50, 50}, {-50, 50}}
	frame := orb.Bound{Min: orb.Point{-100, -100}, Max: orb.Point{100, 100}}

	cells := voronoiCells(sites, frame)
	require.Len(t, cells, 4)

	var total float64
	for i, c := range cells {
		require.NotNil(t, c, "cell %d", i)
		area := SignedArea(c)
		assert.Greater(t, area, 0.0, "cell %d must be counter-clockwise", i)
		assert.InDelta(t, 100*100, area, 1e-6)
		total += area
	}
	assert.InDelta(t, 200*200, total, 1e-6)
}

func TestVoronoiCoincidentSites(t *testing.T) {
	sites := []orb.Point{{0, 0}, {10, 0}, {0, 0}, {0, 10}}
	frame := orb.Bound{Min: orb.Point{-100, -100}, Max: orb.Point{100, 100}}

	cells := voronoiCells(sites, frame)
	assert.NotNil(t, cells[0])
	assert.Nil(t, cells[2], "later duplicate gets no cell")

	var total float64
	for _, c := range cells {
		total += SignedArea(c)
	}
	assert.InDelta(t, 200*200, total, 1e-6)
}

func TestIntersectConvexWithConcaveSubject(t *testing.T) {
	// U shape: 30x30 square with a 10x20 notch cut from the top middle.
	u := orb.Ring{{0, 0}, {30, 0}, {30, 30}, {20, 30}, {20, 10}, {10, 10}, {10, 30}, {0, 30}}

	cases := []struct {
		name string
		clip orb.Ring
		area float64
	}{
		{"above the notch floor", orb.Ring{{-5, 15}, {35, 15}, {35, 40}, {-5, 40}}, 150},
		{"along the notch floor", orb.Ring{{-5, 10}, {35, 10}, {35, 40}, {-5, 40}}, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parts, err := intersectConvex(tc.clip, u)
			require.NoError(t, err)
			require.Len(t, parts, 2, "one part per prong")
			for _, p := range parts {
				assert.NoError(t, ValidateSimple(p))
				assert.InDelta(t, tc.area, SignedArea(p), 1e-9)
			}
		})
	}
}

func TestIntersectConvexSplitsPartsMeetingInAPoint(t *testing.T) {
	// The tip of a V notch sits on the clip line.
	v := orb.Ring{{0, 0}, {30, 0}, {30, 20}, {20, 20}, {15, 10}, {10, 20}, {0, 20}}
	clip := orb.Ring{{-5, 10}, {35, 10}, {35, 40}, {-5, 40}}

	parts, err := intersectConvex(clip, v)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.NoError(t, ValidateSimple(p))
		assert.InDelta(t, 125, SignedArea(p), 1e-9)
	}
}

func TestPlanarIntersectReturnsClosedParts(t *testing.T) {
	u := orb.Ring{{0, 0}, {30, 0}, {30, 30}, {20, 30}, {20, 10}, {10, 10}, {10, 30}, {0, 30}, {0, 0}}
	cell := orb.Ring{{-5, 15}, {35, 15}, {35, 40}, {-5, 40}, {-5, 15}}

	mp, err := NewPlanar().Intersect(cell, u)
	require.NoError(t, err)
	require.Len(t, mp, 2)
	for _, p := range mp {
		require.Len(t, p, 1)
		assert.Equal(t, p[0][0], p[0][len(p[0])-1])
	}

	empty, err := NewPlanar().Intersect(nil, u)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIntersectDisjoint(t *testing.T) {
	square := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	far := orb.Ring{{10, 10}, {11, 10}, {11, 11}, {10, 11}}

	parts, err := intersectConvex(far, square)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSharedBoundaryLength(t *testing.T) {
	left := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	right := orb.Ring{{10, 0}, {20, 0}, {20, 10}, {10, 10}}
	diagonal := orb.Ring{{10, 10}, {20, 10}, {20, 20}, {10, 20}}
	partial := orb.Ring{{10, 5}, {20, 5}, {20, 15}, {10, 15}}

	assert.InDelta(t, 10, sharedBoundaryLength(left, right), 1e-9)
	assert.InDelta(t, 0, sharedBoundaryLength(left, diagonal), 1e-9, "corner contact is not shared boundary")
	assert.InDelta(t, 5, sharedBoundaryLength(left, partial), 1e-9)
}

func TestValidateSimple(t *testing.T) {
	square := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	assert.NoError(t, ValidateSimple(square))

	bowtie := orb.Ring{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	assert.ErrorIs(t, ValidateSimple(bowtie), ErrInvalidPolygon)

	line := orb.Ring{{0, 0}, {5, 0}, {10, 0}}
	assert.ErrorIs(t, ValidateSimple(line), ErrInvalidPolygon)

	tiny := orb.Ring{{0, 0}, {1, 1}}
	assert.ErrorIs(t, ValidateSimple(tiny), ErrInvalidPolygon)

	// the notch floor runs back along the bottom edge a nanometer above it
	retraced := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {6, 10}, {6, 1e-9}, {2, 1e-9}, {2, 10}, {0, 10}}
	assert.ErrorIs(t, ValidateSimple(retraced), ErrInvalidPolygon)

	// a vertex resting on a non-adjacent edge
	pinched := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {5, 1e-8}, {0, 10}}
	assert.ErrorIs(t, ValidateSimple(pinched), ErrInvalidPolygon)

	notch := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {6, 10}, {6, 0.01}, {2, 0.01}, {2, 10}, {0, 10}}
	assert.NoError(t, ValidateSimple(notch), "a centimeter gap is still simple")
}

func TestPlanarProject(t *testing.T) {
	b := orb.Polygon{{{2.3, 48.8}, {2.4, 48.8}, {2.4, 48.9}, {2.3, 48.9}, {2.3, 48.8}}}
	proj, err := NewPlanar().Project(b)
	require.NoError(t, err)
	assert.InDelta(t, 2.35, proj.Center().Lon(), 1e-9)
	assert.InDelta(t, 48.85, proj.Center().Lat(), 1e-9)

	_, err = NewPlanar().Project(nil)
	assert.ErrorIs(t, err, ErrInvalidPolygon)
}

func TestFrame(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{3, 4}}
	f := Frame(b, 2)
	assert.InDelta(t, -10, f.Min[0], 1e-9)
	assert.InDelta(t, 14, f.Max[1], 1e-9)
	assert.False(t, math.IsNaN(f.Max[0]))
}
