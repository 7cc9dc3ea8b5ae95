package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
	"github.com/smartcity/stationmap/internal/repository/postgres"
)

// squareBoundary is a 0.1° square around central Paris, roughly 7.3 x 11 km.
func squareBoundary() domain.CityBoundary {
	return domain.CityBoundary{Polygon: orb.Polygon{{
		{2.30, 48.80}, {2.40, 48.80}, {2.40, 48.90}, {2.30, 48.90}, {2.30, 48.80},
	}}}
}

// centralScenario has five overlapping "Central" records and four distinct
// stations around them.
func centralScenario() []domain.RawStationRecord {
	return []domain.RawStationRecord{
		{Name: "Central", Lat: 48.85000, Lon: 2.35000, LineTags: []string{"1"}},
		{Name: "central", Lat: 48.85001, Lon: 2.35001, LineTags: []string{"2"}},
		{Name: "CENTRAL ", Lat: 48.84999, Lon: 2.34999},
		{Name: " Central", Lat: 48.85002, Lon: 2.35000, LineTags: []string{"1"}},
		{Name: "Central", Lat: 48.85000, Lon: 2.34998},
		{Name: "North", Lat: 48.88, Lon: 2.35},
		{Name: "South", Lat: 48.82, Lon: 2.35},
		{Name: "East", Lat: 48.85, Lon: 2.39},
		{Name: "West", Lat: 48.85, Lon: 2.31},
	}
}

func projectedArea(t *testing.T, b domain.CityBoundary) float64 {
	t.Helper()
	proj, err := geometry.NewPlanar().Project(b.Polygon)
	if err != nil {
		t.Fatalf("project boundary: %v", err)
	}
	return geometry.SignedArea(proj.ForwardPolygon(b.Polygon)[0])
}

type stubCity struct {
	stations []domain.RawStationRecord
	boundary domain.CityBoundary
	err      error
	lines    orb.MultiLineString
	linesErr error
}

// stubSource serves cities by slug. When gate is set, every call signals
// entered and blocks until gate is closed.
type stubSource struct {
	mu      sync.Mutex
	cities  map[string]stubCity
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func newStubSource() *stubSource {
	return &stubSource{cities: make(map[string]stubCity)}
}

func (s *stubSource) add(city string, c stubCity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cities[domain.Slugify(city)] = c
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSource) FetchStations(ctx context.Context, city string) ([]domain.RawStationRecord, domain.CityBoundary, error) {
	s.mu.Lock()
	s.calls++
	c, ok := s.cities[domain.Slugify(city)]
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	if !ok {
		return nil, domain.CityBoundary{}, fmt.Errorf("stub: city %q not found: %w", city, domain.ErrDataUnavailable)
	}
	if c.err != nil {
		return nil, domain.CityBoundary{}, c.err
	}
	return c.stations, c.boundary, nil
}

func (s *stubSource) FetchLines(ctx context.Context, city string, boundary domain.CityBoundary) (orb.MultiLineString, error) {
	s.mu.Lock()
	c := s.cities[domain.Slugify(city)]
	s.mu.Unlock()
	return c.lines, c.linesErr
}

// countingTessellator counts calls to the wrapped tessellator.
type countingTessellator struct {
	inner Tessellator
	calls atomic.Int32
}

func (c *countingTessellator) Tessellate(stations []domain.Station, boundary domain.CityBoundary) ([]domain.Region, error) {
	c.calls.Add(1)
	return c.inner.Tessellate(stations, boundary)
}

type testEnv struct {
	svc      *GenerationService
	registry *Registry
	repo     *postgres.MemoryRepository
	source   *stubSource
	tess     *countingTessellator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, postgres.NewMemoryRepository(), opts)
}

func newTestEnvWithRepo(t *testing.T, repo *postgres.MemoryRepository, opts Options) *testEnv {
	t.Helper()
	backend := geometry.NewPlanar()
	tess := &countingTessellator{inner: NewTessellationEngine(backend)}
	src := newStubSource()
	registry := NewRegistry(repo)
	if err := registry.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	pipeline := NewPipeline(NewNormalizer(), tess, NewAdjacencyColorer(backend))
	return &testEnv{
		svc:      NewGenerationService(registry, repo, src, pipeline, backend, opts),
		registry: registry,
		repo:     repo,
		source:   src,
		tess:     tess,
	}
}
