package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/repository/postgres"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewMemoryRepository()
	r := NewRegistry(repo)

	assert.Equal(t, domain.StateNotStarted, r.Status("lyon").State)

	lease, out, err := r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, domain.StateInProgress, out.Record.State)
	assert.Equal(t, domain.StateInProgress, r.Status("lyon").State)
	assert.Equal(t, "Lyon", lease.Record().City)

	a := &domain.CityMapArtifact{GenerationID: "g1", Slug: "lyon"}
	out = lease.Complete(ctx, a)
	assert.Equal(t, domain.StateReady, out.Record.State)
	assert.Equal(t, "g1", out.Record.ArtifactRef)
	assert.Same(t, a, r.Artifact("lyon"))

	// settling twice changes nothing
	out = lease.Fail(ctx, errors.New("late"))
	assert.Equal(t, domain.StateReady, out.Record.State)

	recs, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StateReady, recs[0].State)

	// a READY slug answers from memory
	lease, out, err = r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	assert.Nil(t, lease)
	assert.Same(t, a, out.Artifact)
}

func TestRegistryFailKeepsPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(postgres.NewMemoryRepository())

	lease, _, err := r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	a := &domain.CityMapArtifact{GenerationID: "g1", Slug: "lyon"}
	lease.Complete(ctx, a)

	lease, _, err = r.Begin(ctx, "lyon", "Lyon", true)
	require.NoError(t, err)
	require.NotNil(t, lease, "force starts a new generation")
	out := lease.Fail(ctx, errors.New("overpass timeout"))

	assert.Equal(t, domain.StateFailed, out.Record.State)
	assert.Equal(t, "overpass timeout", out.Record.Error)
	assert.Equal(t, "g1", out.Record.ArtifactRef)
	assert.Same(t, a, r.Artifact("lyon"))

	// FAILED is retried on the next request
	lease, _, err = r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	assert.NotNil(t, lease)
}

func TestRegistryWaitersShareOutcome(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(postgres.NewMemoryRepository())

	lease, _, err := r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)

	type result struct {
		lease *Lease
		out   Outcome
		err   error
	}
	results := make(chan result, 3)
	for i := 0; i < 3; i++ {
		go func() {
			l, out, err := r.Begin(ctx, "lyon", "Lyon", true)
			results <- result{l, out, err}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	cause := errors.New("boom")
	lease.Fail(ctx, cause)

	for i := 0; i < 3; i++ {
		res := <-results
		require.NoError(t, res.err)
		assert.Nil(t, res.lease, "waiters never get a lease")
		assert.Equal(t, domain.StateFailed, res.out.Record.State)
		assert.Same(t, cause, res.out.Err)
	}
}

func TestRegistryWaiterContextCancelled(t *testing.T) {
	r := NewRegistry(postgres.NewMemoryRepository())
	lease, _, err := r.Begin(context.Background(), "lyon", "Lyon", false)
	require.NoError(t, err)
	defer lease.Fail(context.Background(), errors.New("done"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = r.Begin(ctx, "lyon", "Lyon", false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateInProgress, r.Status("lyon").State, "the generation itself is unaffected")
}

func TestRegistryRestoreResetsInProgress(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewMemoryRepository()
	a := &domain.CityMapArtifact{GenerationID: "g1", Slug: "lyon"}
	require.NoError(t, repo.SaveArtifact(ctx, a))
	for _, rec := range []domain.GenerationRecord{
		{Slug: "lyon", City: "Lyon", State: domain.StateInProgress, ArtifactRef: "g1"},
		{Slug: "nice", City: "Nice", State: domain.StateInProgress},
		{Slug: "metz", City: "Metz", State: domain.StateFailed, Error: "no data"},
	} {
		require.NoError(t, repo.SaveRecord(ctx, rec))
	}

	r := NewRegistry(repo)
	require.NoError(t, r.Restore(ctx))

	assert.Equal(t, domain.StateReady, r.Status("lyon").State)
	assert.Equal(t, domain.StateNotStarted, r.Status("nice").State)
	assert.Equal(t, domain.StateFailed, r.Status("metz").State)
	assert.Equal(t, "no data", r.Status("metz").Error)

	recs, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.NotEqual(t, domain.StateInProgress, rec.State, rec.Slug)
	}
	assert.Len(t, r.Records(), 3)

	// the restored READY slug is served from storage
	lease, out, err := r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	assert.Nil(t, lease)
	assert.Same(t, a, out.Artifact)
}

func TestRegistryReadyWithoutStoredArtifactRegenerates(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewMemoryRepository()
	require.NoError(t, repo.SaveRecord(ctx, domain.GenerationRecord{Slug: "lyon", State: domain.StateReady, ArtifactRef: "gone"}))

	r := NewRegistry(repo)
	require.NoError(t, r.Restore(ctx))

	lease, _, err := r.Begin(ctx, "lyon", "Lyon", false)
	require.NoError(t, err)
	assert.NotNil(t, lease)
}

func TestRegistryAdopt(t *testing.T) {
	r := NewRegistry(postgres.NewMemoryRepository())
	first := &domain.CityMapArtifact{GenerationID: "g1", Slug: "lyon"}
	second := &domain.CityMapArtifact{GenerationID: "g2", Slug: "lyon"}

	assert.Same(t, first, r.Adopt(first))
	assert.Same(t, first, r.Adopt(second))
	assert.Same(t, first, r.Artifact("lyon"))
	assert.Nil(t, r.Artifact("nice"))
}
