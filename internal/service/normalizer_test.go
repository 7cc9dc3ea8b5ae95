package service

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/stationmap/internal/domain"
)

func TestNormalizeMergesByName(t *testing.T) {
	stations := NewNormalizer().Normalize([]domain.RawStationRecord{
		{Name: "Central", Lat: 10, Lon: 10, LineTags: []string{"A"}},
		{Name: "  central ", Lat: 10, Lon: 20, LineTags: []string{"B", "A"}},
	})

	require.Len(t, stations, 1)
	assert.Equal(t, 1, stations[0].ID)
	assert.Equal(t, "Central", stations[0].Name)
	assert.Equal(t, 10.0, stations[0].Lat)
	assert.Equal(t, 15.0, stations[0].Lon)
	assert.Equal(t, []string{"A", "B"}, stations[0].LineTags)
}

func TestNormalizeSingleRecordUnchanged(t *testing.T) {
	raw := domain.RawStationRecord{Name: "Gare du Nord", Lat: 48.8809, Lon: 2.3553, LineTags: []string{"4", "5", "B"}}
	stations := NewNormalizer().Normalize([]domain.RawStationRecord{raw})

	require.Len(t, stations, 1)
	assert.Equal(t, domain.Station{ID: 1, Name: raw.Name, Lat: raw.Lat, Lon: raw.Lon, LineTags: raw.LineTags}, stations[0])
}

func TestNormalizeCollapsesWhitespaceAndCase(t *testing.T) {
	stations := NewNormalizer().Normalize([]domain.RawStationRecord{
		{Name: "Place  d'Italie", Lat: 1, Lon: 1},
		{Name: "PLACE D'ITALIE", Lat: 3, Lon: 3},
		{Name: "Place\td'Italie", Lat: 2, Lon: 2},
	})
	require.Len(t, stations, 1)
	assert.InDelta(t, 2, stations[0].Lat, 1e-12)
}

func TestNormalizeIndependentOfInputOrder(t *testing.T) {
	raw := centralScenario()
	reversed := make([]domain.RawStationRecord, len(raw))
	for i := range raw {
		reversed[len(raw)-1-i] = raw[i]
	}
	// names differ only by case, so only the chosen display name can differ
	opt := cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".Name" }, cmp.Ignore())

	a := NewNormalizer().Normalize(raw)
	b := NewNormalizer().Normalize(reversed)
	if diff := cmp.Diff(a, b, opt, cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-12 })); diff != "" {
		t.Errorf("normalize depends on input order (-a +b):\n%s", diff)
	}
}

func TestNormalizeDropsUnusableRecords(t *testing.T) {
	stations := NewNormalizer().Normalize([]domain.RawStationRecord{
		{Name: "", Lat: 1, Lon: 1},
		{Name: "   ", Lat: 1, Lon: 1},
		{Name: "Nowhere", Lat: math.NaN(), Lon: 1},
		{Name: "Pole", Lat: 91, Lon: 0},
		{Name: "Valid", Lat: 1, Lon: 1},
	})
	require.Len(t, stations, 1)
	assert.Equal(t, "Valid", stations[0].Name)
}

func TestNormalizeEmpty(t *testing.T) {
	stations := NewNormalizer().Normalize(nil)
	assert.NotNil(t, stations)
	assert.Empty(t, stations)
}

func TestNormalizeCentralScenario(t *testing.T) {
	stations := NewNormalizer().Normalize(centralScenario())
	require.Len(t, stations, 5)

	names := make([]string, len(stations))
	for i, s := range stations {
		assert.Equal(t, i+1, s.ID)
		names[i] = NormalizeName(s.Name)
	}
	assert.Equal(t, []string{"central", "east", "north", "south", "west"}, names)
	assert.Equal(t, []string{"1", "2"}, stations[0].LineTags)
}
