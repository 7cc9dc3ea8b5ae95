package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/smartcity/stationmap/internal/domain"
)

// fixtureFile is the on-disk layout of <dir>/<slug>.json
type fixtureFile struct {
	City     string                    `json:"city"`
	Boundary json.RawMessage           `json:"boundary"`
	Stations []domain.RawStationRecord `json:"stations"`
	// Lines is an optional LineString or MultiLineString geometry.
	Lines json.RawMessage `json:"lines,omitempty"`
}

// Fixtures reads stations and boundaries from JSON files, one per city slug.
// It needs no network access.
type Fixtures struct {
	dir string
}

// NewFixtures creates a fixture source rooted at dir
func NewFixtures(dir string) *Fixtures {
	return &Fixtures{dir: dir}
}

// FetchStations loads <dir>/<slug>.json for the city.
func (f *Fixtures) FetchStations(ctx context.Context, city string) ([]domain.RawStationRecord, domain.CityBoundary, error) {
	file, slug, err := f.load(city)
	if err != nil {
		return nil, domain.CityBoundary{}, err
	}
	boundary, err := boundaryFromGeoJSON(file.Boundary)
	if err != nil {
		return nil, domain.CityBoundary{}, fmt.Errorf("fixtures: %q: %w", slug, err)
	}
	if len(file.Stations) == 0 {
		return nil, domain.CityBoundary{}, fmt.Errorf("fixtures: no transit data for %q: %w", city, domain.ErrDataUnavailable)
	}
	return file.Stations, boundary, nil
}

// FetchLines returns the lines of the city's fixture file, if it has any.
func (f *Fixtures) FetchLines(ctx context.Context, city string, boundary domain.CityBoundary) (orb.MultiLineString, error) {
	file, slug, err := f.load(city)
	if err != nil {
		return nil, err
	}
	lines, err := linesFromGeoJSON(file.Lines)
	if err != nil {
		return nil, fmt.Errorf("fixtures: %q: %w", slug, err)
	}
	return lines, nil
}

func (f *Fixtures) load(city string) (fixtureFile, string, error) {
	slug := domain.Slugify(city)
	if slug == "" {
		return fixtureFile{}, "", fmt.Errorf("fixtures: city %q: %w", city, domain.ErrInvalidCity)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, slug+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return fixtureFile{}, slug, fmt.Errorf("fixtures: city %q not found: %w", city, domain.ErrDataUnavailable)
	}
	if err != nil {
		return fixtureFile{}, slug, fmt.Errorf("fixtures: failed to read %q: %w", slug, err)
	}

	var file fixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fixtureFile{}, slug, fmt.Errorf("fixtures: failed to decode %q: %w", slug, err)
	}
	return file, slug, nil
}
