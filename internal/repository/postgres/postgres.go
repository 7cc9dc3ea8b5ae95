package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/stationmap/internal/domain"
)

// PostgresRepository implements domain.Repository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveSource upserts the raw station data of a city
func (r *PostgresRepository) SaveSource(ctx context.Context, src domain.CitySource) error {
	stations, err := json.Marshal(src.Stations)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode stations: %w", err)
	}
	boundary, err := json.Marshal(src.Boundary)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode boundary: %w", err)
	}
	lines, err := json.Marshal(src.Lines)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode lines: %w", err)
	}

	query := `
		INSERT INTO city_sources (slug, city, stations, boundary, lines, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			city = EXCLUDED.city,
			stations = EXCLUDED.stations,
			boundary = EXCLUDED.boundary,
			lines = EXCLUDED.lines,
			fetched_at = EXCLUDED.fetched_at
	`

	_, err = r.pool.Exec(ctx, query, src.Slug, src.City, stations, boundary, lines, src.FetchedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to save source %q: %w", src.Slug, err)
	}

	return nil
}

// GetSource retrieves the raw station data of a slug
func (r *PostgresRepository) GetSource(ctx context.Context, slug string) (domain.CitySource, error) {
	query := `
		SELECT slug, city, stations, boundary, lines, fetched_at
		FROM city_sources
		WHERE slug = $1
	`

	var (
		src      domain.CitySource
		stations []byte
		boundary []byte
		lines    []byte
	)
	err := r.pool.QueryRow(ctx, query, slug).Scan(&src.Slug, &src.City, &stations, &boundary, &lines, &src.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CitySource{}, fmt.Errorf("postgres: source %q: %w", slug, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CitySource{}, fmt.Errorf("postgres: failed to query source %q: %w", slug, err)
	}
	if err := json.Unmarshal(stations, &src.Stations); err != nil {
		return domain.CitySource{}, fmt.Errorf("postgres: failed to decode stations of %q: %w", slug, err)
	}
	if err := json.Unmarshal(boundary, &src.Boundary); err != nil {
		return domain.CitySource{}, fmt.Errorf("postgres: failed to decode boundary of %q: %w", slug, err)
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &src.Lines); err != nil {
			return domain.CitySource{}, fmt.Errorf("postgres: failed to decode lines of %q: %w", slug, err)
		}
	}

	return src, nil
}

// SaveArtifact replaces the latest artifact of the artifact's slug
func (r *PostgresRepository) SaveArtifact(ctx context.Context, artifact *domain.CityMapArtifact) error {
	body, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode artifact: %w", err)
	}

	query := `
		INSERT INTO city_artifacts (slug, generation_id, city, artifact, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET
			generation_id = EXCLUDED.generation_id,
			city = EXCLUDED.city,
			artifact = EXCLUDED.artifact,
			generated_at = EXCLUDED.generated_at
	`

	_, err = r.pool.Exec(ctx, query,
		artifact.Slug, artifact.GenerationID, artifact.City, body, artifact.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save artifact %q: %w", artifact.Slug, err)
	}

	return nil
}

// GetArtifact retrieves the latest artifact of a slug
func (r *PostgresRepository) GetArtifact(ctx context.Context, slug string) (*domain.CityMapArtifact, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, `SELECT artifact FROM city_artifacts WHERE slug = $1`, slug).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: artifact %q: %w", slug, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query artifact %q: %w", slug, err)
	}

	var a domain.CityMapArtifact
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("postgres: failed to decode artifact %q: %w", slug, err)
	}
	return &a, nil
}

// SaveRecord upserts the generation record of a slug
func (r *PostgresRepository) SaveRecord(ctx context.Context, rec domain.GenerationRecord) error {
	query := `
		INSERT INTO generation_status (slug, city, state, error, artifact_ref, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			artifact_ref = EXCLUDED.artifact_ref,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		rec.Slug, rec.City, string(rec.State), rec.Error, rec.ArtifactRef, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save record %q: %w", rec.Slug, err)
	}

	return nil
}

// ListRecords retrieves every generation record
func (r *PostgresRepository) ListRecords(ctx context.Context) ([]domain.GenerationRecord, error) {
	query := `
		SELECT slug, city, state, error, artifact_ref, updated_at
		FROM generation_status
		ORDER BY slug
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query records: %w", err)
	}
	defer rows.Close()

	var results []domain.GenerationRecord
	for rows.Next() {
		var (
			rec   domain.GenerationRecord
			state string
		)
		if err := rows.Scan(&rec.Slug, &rec.City, &state, &rec.Error, &rec.ArtifactRef, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan record row: %w", err)
		}
		rec.State = domain.GenerationState(state)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read records: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
