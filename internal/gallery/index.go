package gallery

import (
	"context"
	"errors"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// Page is one slice of the gallery in reverse chronological order. NextToken
// is empty when the listing is exhausted; otherwise passing it back resumes
// exactly where this page ended, even if new artifacts landed in between.
type Page struct {
	Entries   []domain.GalleryEntry
	NextToken string
}

// Index serves paginated gallery listings by joining stored artifacts with
// the jobs that produced them.
type Index struct {
	artifacts domain.ArtifactRepository
	jobs      domain.JobRepository
	logger    infra.Logger
}

func NewIndex(artifacts domain.ArtifactRepository, jobs domain.JobRepository, logger infra.Logger) *Index {
	return &Index{artifacts: artifacts, jobs: jobs, logger: logger}
}

// List returns one page of gallery entries, newest first. A missing job
// record degrades the entry to artifact-only metadata instead of dropping it
// or failing the page: retention may purge jobs long before their artifacts.
func (ix *Index) List(ctx context.Context, kind domain.MediaKind, filter domain.ArtifactFilter, pageToken string, limit int) (*Page, error) {
	artifacts, nextToken, err := ix.artifacts.List(ctx, kind, filter, pageToken, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.GalleryEntry, 0, len(artifacts))
	for _, artifact := range artifacts {
		entry := domain.GalleryEntry{Artifact: artifact}
		if artifact.SourceJobID != "" {
			job, err := ix.jobs.GetByID(ctx, artifact.SourceJobID)
			switch {
			case err == nil:
				entry.Prompt = job.Request.Prompt
				entry.RequesterID = job.Request.RequesterID
				entry.JobState = job.State
				entry.HasGenerationRecord = true
			case errors.Is(err, domain.ErrJobNotFound):
				// Purged or never recorded; keep the artifact visible.
			default:
				return nil, err
			}
		}
		entries = append(entries, entry)
	}

	return &Page{Entries: entries, NextToken: nextToken}, nil
}
