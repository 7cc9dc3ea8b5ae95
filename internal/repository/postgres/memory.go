package postgres

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smartcity/stationmap/internal/domain"
)

// MemoryRepository implements domain.Repository in process memory.
// It is used when no database is configured; nothing survives a restart.
type MemoryRepository struct {
	mu        sync.RWMutex
	sources   map[string]domain.CitySource
	artifacts map[string]*domain.CityMapArtifact
	records   map[string]domain.GenerationRecord
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sources:   make(map[string]domain.CitySource),
		artifacts: make(map[string]*domain.CityMapArtifact),
		records:   make(map[string]domain.GenerationRecord),
	}
}

func (r *MemoryRepository) SaveSource(ctx context.Context, src domain.CitySource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Slug] = src
	return nil
}

func (r *MemoryRepository) GetSource(ctx context.Context, slug string) (domain.CitySource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[slug]
	if !ok {
		return domain.CitySource{}, fmt.Errorf("memory: source %q: %w", slug, domain.ErrNotFound)
	}
	return src, nil
}

// SaveArtifact keeps the pointer; artifacts are never modified after saving.
func (r *MemoryRepository) SaveArtifact(ctx context.Context, artifact *domain.CityMapArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[artifact.Slug] = artifact
	return nil
}

func (r *MemoryRepository) GetArtifact(ctx context.Context, slug string) (*domain.CityMapArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.artifacts[slug]
	if !ok {
		return nil, fmt.Errorf("memory: artifact %q: %w", slug, domain.ErrNotFound)
	}
	return a, nil
}

func (r *MemoryRepository) SaveRecord(ctx context.Context, rec domain.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Slug] = rec
	return nil
}

func (r *MemoryRepository) ListRecords(ctx context.Context) ([]domain.GenerationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.GenerationRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Health always returns nil in memory mode
func (r *MemoryRepository) Health(ctx context.Context) error {
	return nil
}
