package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/geometry"
	"github.com/smartcity/stationmap/internal/logger"
	"github.com/smartcity/stationmap/internal/metrics"
)

// DefaultPopularCities are offered before anything has been generated.
var DefaultPopularCities = []string{
	"São Paulo, Brazil",
	"Rio de Janeiro, Brazil",
	"Tokyo, Japan",
	"London, United Kingdom",
	"New York City, USA",
	"Paris, France",
	"Mexico City, Mexico",
	"Seoul, South Korea",
}

// Options tunes a GenerationService.
type Options struct {
	PopularCities        []string
	PrerenderConcurrency int
	IndexCacheSize       int
}

// GenerationService is the entry point for map requests. It runs the
// pipeline on cache misses and answers queries against cached artifacts.
type GenerationService struct {
	registry *Registry
	repo     Repository
	source   StationSource
	pipeline *Pipeline
	backend  geometry.Backend
	indexes  gcache.Cache

	popular        []string
	prerenderLimit int
	now            func() time.Time

	wgBg sync.WaitGroup // tracks background prerender runs for graceful shutdown
}

// NewGenerationService creates a new generation service
func NewGenerationService(
	registry *Registry,
	repo Repository,
	source StationSource,
	pipeline *Pipeline,
	backend geometry.Backend,
	opts Options,
) *GenerationService {
	if len(opts.PopularCities) == 0 {
		opts.PopularCities = DefaultPopularCities
	}
	if opts.PrerenderConcurrency < 1 {
		opts.PrerenderConcurrency = 2
	}
	if opts.IndexCacheSize < 1 {
		opts.IndexCacheSize = 64
	}
	return &GenerationService{
		registry:       registry,
		repo:           repo,
		source:         source,
		pipeline:       pipeline,
		backend:        backend,
		indexes:        gcache.New(opts.IndexCacheSize).LRU().Build(),
		popular:        opts.PopularCities,
		prerenderLimit: opts.PrerenderConcurrency,
		now:            time.Now,
	}
}

// WaitBackground blocks until background prerender runs complete.
// Call during graceful shutdown.
func (s *GenerationService) WaitBackground() {
	s.wgBg.Wait()
}

// GetOrGenerate returns the artifact for city, generating it when the slug
// is not READY or force is set. fromCache is true when no pipeline run was
// started by this call, including when it joined one already in flight.
//
// Once started, a generation runs to completion even if ctx is cancelled.
func (s *GenerationService) GetOrGenerate(ctx context.Context, city string, force bool) (*domain.CityMapArtifact, bool, error) {
	city = collapseSpaces(city)
	slug := domain.Slugify(city)
	if slug == "" {
		return nil, false, fmt.Errorf("service: city %q: %w", city, domain.ErrInvalidCity)
	}

	lease, out, err := s.registry.Begin(ctx, slug, city, force)
	if err != nil {
		return nil, false, err
	}
	if lease == nil {
		return s.settled(slug, out)
	}

	a, err := s.generate(ctx, lease, slug, city, force)
	return a, false, err
}

// Rerender rebuilds the artifact of slug from cached source data without
// calling the station source.
func (s *GenerationService) Rerender(ctx context.Context, slug string) (*domain.CityMapArtifact, error) {
	slug = domain.Slugify(slug)
	if slug == "" {
		return nil, fmt.Errorf("service: rerender: %w", domain.ErrInvalidCity)
	}
	if _, err := s.repo.GetSource(ctx, slug); err != nil {
		return nil, fmt.Errorf("service: rerender %q: %w", slug, err)
	}

	lease, out, err := s.registry.Begin(ctx, slug, "", true)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		a, _, err := s.settled(slug, out)
		return a, err
	}
	return s.generate(ctx, lease, slug, "", false)
}

// Status returns the generation record of a slug or city name.
func (s *GenerationService) Status(slug string) domain.GenerationRecord {
	return s.registry.Status(domain.Slugify(slug))
}

// GetCachedArtifact returns the latest READY artifact without generating.
func (s *GenerationService) GetCachedArtifact(ctx context.Context, slug string) (*domain.CityMapArtifact, error) {
	slug = domain.Slugify(slug)
	if slug == "" {
		return nil, fmt.Errorf("service: artifact: %w", domain.ErrInvalidCity)
	}
	if a := s.registry.Artifact(slug); a != nil {
		return a, nil
	}
	a, err := s.repo.GetArtifact(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("service: artifact %q: %w", slug, err)
	}
	return s.registry.Adopt(a), nil
}

// QueryNearest finds the station serving a point on the cached map of slug.
func (s *GenerationService) QueryNearest(ctx context.Context, slug string, lat, lon float64) (domain.NearestResult, error) {
	if !validCoordinate(lat, lon) {
		return domain.NearestResult{}, fmt.Errorf("service: point (%v, %v): %w", lat, lon, domain.ErrInvalidCoordinates)
	}
	a, err := s.GetCachedArtifact(ctx, slug)
	if err != nil {
		return domain.NearestResult{}, err
	}
	idx, err := s.index(a)
	if err != nil {
		return domain.NearestResult{}, err
	}

	res := idx.Nearest(lat, lon)
	match := "inside"
	if !res.Inside {
		match = "fallback"
	}
	metrics.NearestQueriesTotal.WithLabelValues(match).Inc()
	return res, nil
}

// ListKnownCities returns the popular cities in configured order followed by
// every other city the registry knows, with their readiness.
func (s *GenerationService) ListKnownCities(ctx context.Context) []domain.KnownCity {
	recs := s.registry.Records()
	bySlug := make(map[string]domain.GenerationRecord, len(recs))
	for _, rec := range recs {
		bySlug[rec.Slug] = rec
	}

	seen := make(map[string]bool)
	cities := make([]domain.KnownCity, 0, len(s.popular)+len(recs))
	for _, name := range s.popular {
		slug := domain.Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		cities = append(cities, domain.KnownCity{Name: name, Slug: slug, Ready: bySlug[slug].Ready()})
	}
	for _, rec := range recs {
		if seen[rec.Slug] {
			continue
		}
		name := rec.City
		if name == "" {
			name = rec.Slug
		}
		cities = append(cities, domain.KnownCity{Name: name, Slug: rec.Slug, Ready: rec.Ready()})
	}
	return cities
}

// PrerenderPopular generates every popular city that is not READY yet, a few
// at a time. Individual failures are logged and do not stop the run.
func (s *GenerationService) PrerenderPopular(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(s.prerenderLimit)
	for _, city := range s.popular {
		city := city
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, cached, err := s.GetOrGenerate(ctx, city, false)
			if err != nil {
				logger.L().Warn("prerender_failed", "city", city, "err", err)
				return nil
			}
			logger.L().Info("prerender_done", "city", city, "cached", cached)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// StartPrerender runs PrerenderPopular in the background.
func (s *GenerationService) StartPrerender(ctx context.Context) {
	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		if err := s.PrerenderPopular(ctx); err != nil {
			logger.L().Warn("prerender_interrupted", "err", err)
		}
	}()
}

// Health checks the storage behind the cache.
func (s *GenerationService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

func (s *GenerationService) settled(slug string, out Outcome) (*domain.CityMapArtifact, bool, error) {
	switch {
	case out.Record.State == domain.StateReady && out.Artifact != nil:
		metrics.CacheHitsTotal.Inc()
		return out.Artifact, true, nil
	case out.Record.State == domain.StateFailed:
		cause := out.Err
		if cause == nil {
			cause = errors.New(out.Record.Error)
		}
		return nil, false, fmt.Errorf("service: generation of %q: %w: %w", slug, domain.ErrGenerationFailed, cause)
	default:
		return nil, false, fmt.Errorf("service: generation of %q settled as %s", slug, out.Record.State)
	}
}

// generate runs the pipeline for a leased slug and settles the lease.
func (s *GenerationService) generate(ctx context.Context, lease *Lease, slug, city string, refetch bool) (*domain.CityMapArtifact, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "service.generate", trace.WithAttributes(
		attribute.String("slug", slug),
		attribute.Bool("refetch", refetch),
	))
	defer span.End()

	log := logger.L().With("slug", slug)
	log.Info("generation_started", "city", city, "refetch", refetch)
	start := time.Now()

	a, err := s.build(ctx, slug, city, refetch)
	elapsed := time.Since(start)
	metrics.GenerationDuration.Observe(elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		lease.Fail(ctx, err)
		log.Error("generation_failed", "err", err, "duration_ms", elapsed.Milliseconds())
		return nil, err
	}

	lease.Complete(ctx, a)
	metrics.GenerationsTotal.WithLabelValues("ready").Inc()
	log.Info("generation_ready",
		"generation_id", a.GenerationID,
		"stations", len(a.Stations),
		"duration_ms", elapsed.Milliseconds(),
	)
	return a, nil
}

func (s *GenerationService) build(ctx context.Context, slug, city string, refetch bool) (a *domain.CityMapArtifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			a, err = nil, fmt.Errorf("service: generation of %q panicked: %v: %w", slug, p, domain.ErrGeometryFailure)
		}
	}()

	src, err := s.loadSource(ctx, slug, city, refetch)
	if err != nil {
		return nil, err
	}
	a, err = s.pipeline.Run(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("service: generation of %q: %w", slug, err)
	}
	a.GenerationID = uuid.NewString()
	a.Slug = slug
	if a.City == "" {
		a.City = city
	}
	a.GeneratedAt = s.now().UTC()

	if err := s.repo.SaveArtifact(ctx, a); err != nil {
		return nil, fmt.Errorf("service: failed to save artifact of %q: %w", slug, err)
	}
	if idx, err := NewQueryIndex(a, s.backend); err != nil {
		logger.L().Warn("index_build_failed", "slug", slug, "err", err)
	} else {
		_ = s.indexes.Set(a.GenerationID, idx)
	}
	return a, nil
}

// loadSource returns the cached source data of slug, or fetches it when
// refetch is set or nothing is cached. An empty city never fetches.
func (s *GenerationService) loadSource(ctx context.Context, slug, city string, refetch bool) (domain.CitySource, error) {
	if !refetch || city == "" {
		src, err := s.repo.GetSource(ctx, slug)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, domain.ErrNotFound) || city == "" {
			return domain.CitySource{}, fmt.Errorf("service: failed to load source of %q: %w", slug, err)
		}
	}

	raw, boundary, err := s.source.FetchStations(ctx, city)
	if err != nil {
		metrics.SourceFetchesTotal.WithLabelValues("error").Inc()
		return domain.CitySource{}, fmt.Errorf("service: failed to fetch stations for %q: %w", city, err)
	}
	metrics.SourceFetchesTotal.WithLabelValues("ok").Inc()
	if len(raw) == 0 {
		return domain.CitySource{}, fmt.Errorf("service: no stations for %q: %w", city, domain.ErrDataUnavailable)
	}

	src := domain.CitySource{
		Slug:      slug,
		City:      city,
		Stations:  raw,
		Boundary:  boundary,
		FetchedAt: s.now().UTC(),
	}
	if ls, ok := s.source.(domain.LineSource); ok {
		lines, err := ls.FetchLines(ctx, city, boundary)
		if err != nil {
			logger.L().Warn("lines_fetch_failed", "slug", slug, "err", err)
		} else {
			src.Lines = lines
		}
	}
	if err := s.repo.SaveSource(ctx, src); err != nil {
		logger.L().Warn("source_save_failed", "slug", slug, "err", err)
	}
	return src, nil
}

func (s *GenerationService) index(a *domain.CityMapArtifact) (*QueryIndex, error) {
	if v, err := s.indexes.Get(a.GenerationID); err == nil {
		if idx, ok := v.(*QueryIndex); ok {
			return idx, nil
		}
	}
	idx, err := NewQueryIndex(a, s.backend)
	if err != nil {
		return nil, fmt.Errorf("service: index of %q: %w", a.Slug, err)
	}
	_ = s.indexes.Set(a.GenerationID, idx)
	return idx, nil
}
