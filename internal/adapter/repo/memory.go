package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediagen/internal/domain"
)

// MemoryJobRepository is an in-memory domain.JobRepository. It backs unit
// tests and single-process development runs; the Postgres implementation is
// the production path.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if current.State.IsTerminal() {
		// Lost race with a terminal transition; adopt the winning row.
		*job = *current.Clone()
		return nil
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []*domain.Job
	for _, job := range r.jobs {
		if job.State.IsTerminal() || job.NextPollAt.After(now) {
			continue
		}
		due = append(due, job.Clone())
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPollAt.Before(due[j].NextPollAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryJobRepository) ListActive(ctx context.Context) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*domain.Job
	for _, job := range r.jobs {
		if job.State.IsTerminal() {
			continue
		}
		active = append(active, job.Clone())
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active, nil
}

// MemoryArtifactRepository is an in-memory domain.ArtifactRepository with the
// same keyset pagination semantics as the Postgres implementation.
type MemoryArtifactRepository struct {
	mu        sync.RWMutex
	artifacts map[string]domain.Artifact
}

func NewMemoryArtifactRepository() *MemoryArtifactRepository {
	return &MemoryArtifactRepository{artifacts: make(map[string]domain.Artifact)}
}

func (r *MemoryArtifactRepository) Create(ctx context.Context, artifact *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[artifact.ID] = *artifact
	return nil
}

func (r *MemoryArtifactRepository) GetByID(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifact, ok := r.artifacts[artifactID]
	if !ok {
		return nil, domain.ErrArtifactNotFound
	}
	return &artifact, nil
}

func (r *MemoryArtifactRepository) Delete(ctx context.Context, artifactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.artifacts, artifactID)
	return nil
}

func (r *MemoryArtifactRepository) List(ctx context.Context, kind domain.MediaKind, filter domain.ArtifactFilter, pageToken string, limit int) ([]domain.Artifact, string, error) {
	if limit <= 0 {
		limit = 20
	}
	var pos *cursor
	if pageToken != "" {
		c, err := decodeCursor(pageToken)
		if err != nil {
			return nil, "", err
		}
		pos = &c
	}

	r.mu.RLock()
	var matched []domain.Artifact
	for _, artifact := range r.artifacts {
		if artifact.Kind != kind {
			continue
		}
		if !matchesFilter(artifact, filter) {
			continue
		}
		matched = append(matched, artifact)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	var page []domain.Artifact
	for _, artifact := range matched {
		if pos != nil && !pos.after(artifact.CreatedAt, artifact.ID) {
			continue
		}
		page = append(page, artifact)
		if len(page) == limit {
			break
		}
	}

	next := ""
	if len(page) == limit {
		last := page[len(page)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, next, nil
}

func matchesFilter(artifact domain.Artifact, filter domain.ArtifactFilter) bool {
	if !filter.CreatedAfter.IsZero() && artifact.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && artifact.CreatedAt.After(filter.CreatedBefore) {
		return false
	}
	if filter.SourceJobID != "" && artifact.SourceJobID != filter.SourceJobID {
		return false
	}
	return true
}

var (
	_ domain.JobRepository      = (*MemoryJobRepository)(nil)
	_ domain.ArtifactRepository = (*MemoryArtifactRepository)(nil)
)
