package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
)

func centralArtifact(t *testing.T) *domain.CityMapArtifact {
	t.Helper()
	a, err := DefaultPipeline(geometry.NewPlanar()).Run(context.Background(), domain.CitySource{
		Slug:     "central",
		City:     "Central",
		Stations: centralScenario(),
		Boundary: squareBoundary(),
	})
	require.NoError(t, err)
	a.GenerationID = "gen-1"
	return a
}

func TestNearestInsideRegion(t *testing.T) {
	a := centralArtifact(t)
	idx, err := NewQueryIndex(a, geometry.NewPlanar())
	require.NoError(t, err)
	assert.Equal(t, "gen-1", idx.GenerationID())

	// between Central and North, closer to North
	res := idx.Nearest(48.87, 2.351)
	assert.True(t, res.Inside)
	assert.Equal(t, "North", res.Station.Name)
	assert.InDelta(t, 1112, res.DistanceMeters, 15)
	assert.InDelta(t, res.DistanceMeters/WalkingSpeedMetersPerMinute, res.WalkingMinutes, 1e-9)
}

func TestNearestNeverFartherThanAnyStation(t *testing.T) {
	a := centralArtifact(t)
	idx, err := NewQueryIndex(a, geometry.NewPlanar())
	require.NoError(t, err)
	proj, err := geometry.NewPlanar().Project(a.Boundary.Polygon)
	require.NoError(t, err)

	for _, q := range [][2]float64{
		{48.8633, 2.3633}, // centroid of Central, North and East
		{48.81, 2.31},
		{48.89, 2.39},
		{48.85, 2.372},
	} {
		res := idx.Nearest(q[0], q[1])
		require.True(t, res.Inside, "%v", q)
		assert.Positive(t, res.DistanceMeters)

		p := proj.Forward(domain.Station{Lat: q[0], Lon: q[1]}.Point())
		for _, s := range a.Stations {
			d := planar.Distance(p, proj.Forward(s.Point()))
			assert.LessOrEqual(t, res.DistanceMeters, d+1e-6, "%v: %s is closer than %s", q, s.Name, res.Station.Name)
		}
	}
}

func TestNearestAtStation(t *testing.T) {
	idx, err := NewQueryIndex(centralArtifact(t), geometry.NewPlanar())
	require.NoError(t, err)

	res := idx.Nearest(48.85, 2.39)
	assert.Equal(t, "East", res.Station.Name)
	assert.InDelta(t, 0, res.DistanceMeters, 1e-6)
	assert.InDelta(t, 0, res.WalkingMinutes, 1e-6)
}

func TestNearestOutsideBoundaryFallsBack(t *testing.T) {
	idx, err := NewQueryIndex(centralArtifact(t), geometry.NewPlanar())
	require.NoError(t, err)

	res := idx.Nearest(48.95, 2.35)
	assert.False(t, res.Inside)
	assert.Equal(t, "North", res.Station.Name)
	assert.InDelta(t, 7780, res.DistanceMeters, 60)
}

func TestNearestAfterReload(t *testing.T) {
	a := centralArtifact(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	var loaded domain.CityMapArtifact
	require.NoError(t, json.Unmarshal(data, &loaded))
	for _, r := range loaded.Regions {
		require.Empty(t, r.Planar)
	}

	fresh, err := NewQueryIndex(a, geometry.NewPlanar())
	require.NoError(t, err)
	reloaded, err := NewQueryIndex(&loaded, geometry.NewPlanar())
	require.NoError(t, err)

	for _, q := range [][2]float64{{48.87, 2.351}, {48.81, 2.31}, {48.85, 2.36}, {48.95, 2.35}} {
		want, got := fresh.Nearest(q[0], q[1]), reloaded.Nearest(q[0], q[1])
		assert.Equal(t, want.Station.ID, got.Station.ID, "%v", q)
		assert.Equal(t, want.Inside, got.Inside, "%v", q)
		assert.InDelta(t, want.DistanceMeters, got.DistanceMeters, 1e-6, "%v", q)
	}
}

func TestNewQueryIndexErrors(t *testing.T) {
	_, err := NewQueryIndex(&domain.CityMapArtifact{Boundary: squareBoundary()}, geometry.NewPlanar())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	a := centralArtifact(t)
	a.Regions = append(a.Regions, domain.Region{OwnerStationID: 99, Polygon: a.Regions[0].Polygon})
	_, err = NewQueryIndex(a, geometry.NewPlanar())
	assert.Error(t, err)
}
