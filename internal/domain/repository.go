package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// Repository defines the persistence used by the generation cache.
// This follows the Dependency Inversion Principle - domain defines the interface
type Repository interface {
	// SaveSource stores the raw station data and boundary fetched for a city
	SaveSource(ctx context.Context, src CitySource) error

	// GetSource returns the cached raw data for a slug, or ErrNotFound
	GetSource(ctx context.Context, slug string) (CitySource, error)

	// SaveArtifact stores the artifact as the latest one for its slug
	SaveArtifact(ctx context.Context, artifact *CityMapArtifact) error

	// GetArtifact returns the latest artifact for a slug, or ErrNotFound
	GetArtifact(ctx context.Context, slug string) (*CityMapArtifact, error)

	// SaveRecord upserts a generation record
	SaveRecord(ctx context.Context, rec GenerationRecord) error

	// ListRecords returns every persisted generation record
	ListRecords(ctx context.Context) ([]GenerationRecord, error)

	// Health checks storage connectivity
	Health(ctx context.Context) error
}

// StationSource supplies raw stations and the city boundary.
// Implementations wrap ErrDataUnavailable when a city is unknown or has no
// transit data.
type StationSource interface {
	FetchStations(ctx context.Context, city string) ([]RawStationRecord, CityBoundary, error)
}

// LineSource is implemented by sources that can also supply the subway
// lines drawn under a map. Lines are decoration: callers treat a failure as
// "no lines".
type LineSource interface {
	FetchLines(ctx context.Context, city string, boundary CityBoundary) (orb.MultiLineString, error)
}
