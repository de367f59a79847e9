package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/domain"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository using PostgreSQL.
type ArtifactRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewArtifactRepository constructs a new artifact repository instance.
func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{pool: pool}
}

func (r *ArtifactRepositoryPG) Create(ctx context.Context, artifact *domain.Artifact) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO artifacts (id, kind, container_key, storage_path, byte_size, content_type, transparency, created_at, source_job_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''));
`, artifact.ID, artifact.Kind, artifact.ContainerKey, artifact.StoragePath, artifact.ByteSize, artifact.ContentType, artifact.Transparency, artifact.CreatedAt, artifact.SourceJobID)
	return err
}

func (r *ArtifactRepositoryPG) GetByID(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, kind, container_key, storage_path, byte_size, content_type, transparency, created_at, COALESCE(source_job_id, '')
FROM artifacts
WHERE id = $1;
`, artifactID)
	var artifact domain.Artifact
	if err := row.Scan(&artifact.ID, &artifact.Kind, &artifact.ContainerKey, &artifact.StoragePath, &artifact.ByteSize, &artifact.ContentType, &artifact.Transparency, &artifact.CreatedAt, &artifact.SourceJobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

func (r *ArtifactRepositoryPG) Delete(ctx context.Context, artifactID string) error {
	// Idempotent: deleting an absent row affects zero rows and succeeds.
	_, err := r.pool.Exec(ctx, `
DELETE FROM artifacts
WHERE id = $1;
`, artifactID)
	return err
}

func (r *ArtifactRepositoryPG) List(ctx context.Context, kind domain.MediaKind, filter domain.ArtifactFilter, pageToken string, limit int) ([]domain.Artifact, string, error) {
	if limit <= 0 {
		limit = 20
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT id, kind, container_key, storage_path, byte_size, content_type, transparency, created_at, COALESCE(source_job_id, '')
FROM artifacts
WHERE kind = $1`)
	args := []any{kind}

	if pageToken != "" {
		pos, err := decodeCursor(pageToken)
		if err != nil {
			return nil, "", err
		}
		args = append(args, pos.createdAt, pos.id)
		sb.WriteString(` AND (created_at, id) < ($2, $3)`)
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter)
		sb.WriteString(` AND created_at >= $` + itoa(len(args)))
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore)
		sb.WriteString(` AND created_at <= $` + itoa(len(args)))
	}
	if filter.SourceJobID != "" {
		args = append(args, filter.SourceJobID)
		sb.WriteString(` AND source_job_id = $` + itoa(len(args)))
	}
	args = append(args, limit)
	sb.WriteString(`
ORDER BY created_at DESC, id DESC
LIMIT $` + itoa(len(args)) + `;`)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var page []domain.Artifact
	for rows.Next() {
		var artifact domain.Artifact
		if err := rows.Scan(&artifact.ID, &artifact.Kind, &artifact.ContainerKey, &artifact.StoragePath, &artifact.ByteSize, &artifact.ContentType, &artifact.Transparency, &artifact.CreatedAt, &artifact.SourceJobID); err != nil {
			return nil, "", err
		}
		page = append(page, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(page) == limit {
		last := page[len(page)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, next, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
