package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/stationmap/internal/domain"
	"github.com/smartcity/stationmap/internal/logger"
)

// Outcome is the settled result of a generation as seen by the registry.
type Outcome struct {
	Record   domain.GenerationRecord
	Artifact *domain.CityMapArtifact
	// Err is the failure of the generation that settled, if any.
	Err error
}

// flight is one IN_PROGRESS generation. out is written before done is closed.
type flight struct {
	done chan struct{}
	out  Outcome
}

type entry struct {
	mu       sync.Mutex
	rec      domain.GenerationRecord
	artifact *domain.CityMapArtifact
	flight   *flight
}

// Registry owns the generation records and the latest artifact of every
// slug. Each slug has its own lock; no lock is shared across slugs while a
// generation runs.
type Registry struct {
	repo Repository
	now  func() time.Time

	mu      sync.RWMutex // guards entries only
	entries map[string]*entry
}

// NewRegistry creates a new registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Restore loads persisted records. Records left IN_PROGRESS by a previous
// process are reset to READY when they reference an artifact and to
// NOT_STARTED otherwise. Call it before serving requests.
func (r *Registry) Restore(ctx context.Context) error {
	recs, err := r.repo.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("registry: failed to list records: %w", err)
	}
	for _, rec := range recs {
		if rec.State == domain.StateInProgress {
			if rec.ArtifactRef != "" {
				rec.State = domain.StateReady
			} else {
				rec.State = domain.StateNotStarted
			}
			rec.Error = ""
			rec.UpdatedAt = r.now()
			if err := r.repo.SaveRecord(ctx, rec); err != nil {
				return fmt.Errorf("registry: failed to reset record %q: %w", rec.Slug, err)
			}
			logger.L().Info("generation_record_reset", "slug", rec.Slug, "state", rec.State)
		}
		e := r.entry(rec.Slug)
		e.mu.Lock()
		e.rec = rec
		e.mu.Unlock()
	}
	return nil
}

func (r *Registry) entry(slug string) *entry {
	r.mu.RLock()
	e, ok := r.entries[slug]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[slug]; ok {
		return e
	}
	e = &entry{rec: domain.GenerationRecord{Slug: slug, State: domain.StateNotStarted}}
	r.entries[slug] = e
	return e
}

func (r *Registry) lookup(slug string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[slug]
	return e, ok
}

// Status returns the record of slug. Unknown slugs are NOT_STARTED.
func (r *Registry) Status(slug string) domain.GenerationRecord {
	e, ok := r.lookup(slug)
	if !ok {
		return domain.GenerationRecord{Slug: slug, State: domain.StateNotStarted}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// Records returns a snapshot of all known records ordered by slug.
func (r *Registry) Records() []domain.GenerationRecord {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	recs := make([]domain.GenerationRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		recs = append(recs, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Slug < recs[j].Slug })
	return recs
}

// Artifact returns the latest artifact held in memory for slug, if any.
func (r *Registry) Artifact(slug string) *domain.CityMapArtifact {
	e, ok := r.lookup(slug)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.artifact
}

// Adopt keeps an artifact loaded from storage in memory, unless a newer one
// is already held. It returns the artifact the registry now holds.
func (r *Registry) Adopt(a *domain.CityMapArtifact) *domain.CityMapArtifact {
	e := r.entry(a.Slug)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.artifact == nil {
		e.artifact = a
	}
	return e.artifact
}

// Begin starts a generation for slug or joins the one in flight.
//
// While another generation is IN_PROGRESS, Begin waits for it to settle and
// returns its outcome with a nil lease; only the waiter's ctx can cut the
// wait short. A READY slug returns the cached outcome unless force is set.
// In every other case the slug moves to IN_PROGRESS and the caller gets the
// lease and must settle it.
func (r *Registry) Begin(ctx context.Context, slug, city string, force bool) (*Lease, Outcome, error) {
	e := r.entry(slug)
	e.mu.Lock()

	if f := e.flight; f != nil {
		e.mu.Unlock()
		select {
		case <-f.done:
			return nil, f.out, nil
		case <-ctx.Done():
			return nil, Outcome{}, ctx.Err()
		}
	}

	if e.rec.State == domain.StateReady && !force {
		if e.artifact == nil {
			a, err := r.repo.GetArtifact(ctx, slug)
			switch {
			case err == nil:
				e.artifact = a
			case errors.Is(err, domain.ErrNotFound):
				logger.L().Warn("ready_artifact_missing", "slug", slug)
			default:
				e.mu.Unlock()
				return nil, Outcome{}, fmt.Errorf("registry: failed to load artifact %q: %w", slug, err)
			}
		}
		if e.artifact != nil {
			out := Outcome{Record: e.rec, Artifact: e.artifact}
			e.mu.Unlock()
			return nil, out, nil
		}
	}

	defer e.mu.Unlock()
	if city != "" {
		e.rec.City = city
	}
	e.rec.State = domain.StateInProgress
	e.rec.Error = ""
	e.rec.UpdatedAt = r.now()
	e.flight = &flight{done: make(chan struct{})}
	r.persist(ctx, e.rec)
	return &Lease{registry: r, entry: e}, Outcome{Record: e.rec}, nil
}

func (r *Registry) persist(ctx context.Context, rec domain.GenerationRecord) {
	if err := r.repo.SaveRecord(context.WithoutCancel(ctx), rec); err != nil {
		logger.L().Error("generation_record_save_failed", "slug", rec.Slug, "state", rec.State, "err", err)
	}
}

// Lease is the exclusive right to settle one IN_PROGRESS generation.
type Lease struct {
	registry *Registry
	entry    *entry
	settled  bool
}

// Record returns the IN_PROGRESS record the lease was granted for.
func (l *Lease) Record() domain.GenerationRecord {
	l.entry.mu.Lock()
	defer l.entry.mu.Unlock()
	return l.entry.rec
}

// Complete marks the slug READY with a as its latest artifact and wakes
// waiters. Only the first Complete or Fail on a lease has an effect.
func (l *Lease) Complete(ctx context.Context, a *domain.CityMapArtifact) Outcome {
	e := l.entry
	e.mu.Lock()
	if l.settled {
		out := Outcome{Record: e.rec, Artifact: e.artifact}
		e.mu.Unlock()
		return out
	}
	l.settled = true
	e.rec.State = domain.StateReady
	e.rec.Error = ""
	e.rec.ArtifactRef = a.GenerationID
	e.rec.UpdatedAt = l.registry.now()
	e.artifact = a
	return l.settle(ctx, Outcome{Record: e.rec, Artifact: a})
}

// Fail marks the slug FAILED with err's message and wakes waiters. The
// previous artifact, if any, stays referenced.
func (l *Lease) Fail(ctx context.Context, err error) Outcome {
	e := l.entry
	e.mu.Lock()
	if l.settled {
		out := Outcome{Record: e.rec, Artifact: e.artifact}
		e.mu.Unlock()
		return out
	}
	l.settled = true
	e.rec.State = domain.StateFailed
	e.rec.Error = err.Error()
	e.rec.UpdatedAt = l.registry.now()
	return l.settle(ctx, Outcome{Record: e.rec, Err: err})
}

// settle is called with e.mu held and releases it.
func (l *Lease) settle(ctx context.Context, out Outcome) Outcome {
	e := l.entry
	f := e.flight
	e.flight = nil
	l.registry.persist(ctx, e.rec)
	f.out = out
	e.mu.Unlock()
	close(f.done)
	return out
}
