package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
)

// Pipeline turns cached source data into an artifact:
// normalize, tessellate, then color. Every stage is pure.
type Pipeline struct {
	normalizer  *Normalizer
	tessellator Tessellator
	colorer     *AdjacencyColorer
}

// NewPipeline creates a pipeline from its stages
func NewPipeline(normalizer *Normalizer, tessellator Tessellator, colorer *AdjacencyColorer) *Pipeline {
	return &Pipeline{
		normalizer:  normalizer,
		tessellator: tessellator,
		colorer:     colorer,
	}
}

// DefaultPipeline wires every stage to the same geometry backend.
func DefaultPipeline(backend geometry.Backend) *Pipeline {
	return NewPipeline(NewNormalizer(), NewTessellationEngine(backend), NewAdjacencyColorer(backend))
}

// Run builds an artifact for src. Identity fields (generation id, time)
// are left for the caller to fill.
func (p *Pipeline) Run(ctx context.Context, src domain.CitySource) (*domain.CityMapArtifact, error) {
	_, span := tracer.Start(ctx, "pipeline.normalize", trace.WithAttributes(attribute.Int("raw_stations", len(src.Stations))))
	stations := p.normalizer.Normalize(src.Stations)
	span.SetAttributes(attribute.Int("stations", len(stations)))
	span.End()
	if len(stations) == 0 {
		return nil, fmt.Errorf("pipeline: no usable stations for %q: %w", src.City, domain.ErrDataUnavailable)
	}

	_, span = tracer.Start(ctx, "pipeline.tessellate")
	regions, err := p.tessellator.Tessellate(stations, src.Boundary)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	span.End()

	_, span = tracer.Start(ctx, "pipeline.color")
	regions, _ = p.colorer.Color(regions)
	span.End()

	return &domain.CityMapArtifact{
		Slug:     src.Slug,
		City:     src.City,
		Boundary: src.Boundary,
		Stations: stations,
		Regions:  regions,
		Lines:    src.Lines,
	}, nil
}
