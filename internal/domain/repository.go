package domain

import (
	"context"
	"time"
)

// ArtifactFilter narrows artifact listings. Zero values mean "no constraint".
type ArtifactFilter struct {
	CreatedAfter  time.Time
	CreatedBefore time.Time
	SourceJobID   string
}

// JobRepository defines persistence for tracked jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// Update persists the job unless another writer already moved it to a
	// terminal state. Terminal states are never overwritten; on a lost race
	// the job is refreshed in place with the winning row and the call
	// succeeds.
	Update(ctx context.Context, job *Job) error
	// ListDue returns non-terminal jobs whose next poll is at or before now,
	// oldest first, capped at limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)
	// ListActive returns all non-terminal jobs, oldest first.
	ListActive(ctx context.Context) ([]*Job, error)
}

// ArtifactRepository defines persistence for artifact metadata rows.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *Artifact) error
	GetByID(ctx context.Context, artifactID string) (*Artifact, error)
	// Delete is idempotent; removing a missing id is a no-op success.
	Delete(ctx context.Context, artifactID string) error
	// List pages artifacts of the given kind newest first. The cursor is
	// opaque and stable under concurrent inserts: rows created after a
	// cursor was minted never shift entries already returned.
	List(ctx context.Context, kind MediaKind, filter ArtifactFilter, pageToken string, limit int) ([]Artifact, string, error)
}
