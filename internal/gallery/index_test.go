package gallery

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

func newTestIndex(t *testing.T) (*Index, *repo.MemoryArtifactRepository, *repo.MemoryJobRepository) {
	t.Helper()
	artifacts := repo.NewMemoryArtifactRepository()
	jobs := repo.NewMemoryJobRepository()
	return NewIndex(artifacts, jobs, infra.Logger(zerolog.New(io.Discard))), artifacts, jobs
}

func seedArtifact(t *testing.T, artifacts *repo.MemoryArtifactRepository, id, jobID string, createdAt time.Time) {
	t.Helper()
	err := artifacts.Create(context.Background(), &domain.Artifact{
		ID:          id,
		Kind:        domain.MediaKindImage,
		ContentType: "image/png",
		CreatedAt:   createdAt,
		SourceJobID: jobID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListJoinsJobMetadata(t *testing.T) {
	ix, artifacts, jobs := newTestIndex(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	err := jobs.Create(context.Background(), &domain.Job{
		ID:    "job-1",
		Kind:  domain.MediaKindImage,
		State: domain.JobStateSucceeded,
		Request: domain.GenerationRequest{
			Kind:        domain.MediaKindImage,
			Mode:        domain.RequestModeGenerate,
			Prompt:      "a lighthouse at dusk",
			RequesterID: "user-7",
		},
		CreatedAt: base,
	})
	if err != nil {
		t.Fatal(err)
	}
	seedArtifact(t, artifacts, "a-1", "job-1", base.Add(time.Minute))
	seedArtifact(t, artifacts, "a-2", "", base.Add(2*time.Minute))      // direct upload
	seedArtifact(t, artifacts, "a-3", "job-gone", base.Add(3*time.Minute)) // job purged

	page, err := ix.List(context.Background(), domain.MediaKindImage, domain.ArtifactFilter{}, "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(page.Entries))
	}
	if page.NextToken != "" {
		t.Fatalf("next token = %q, want empty on final page", page.NextToken)
	}

	// Newest first.
	if page.Entries[0].Artifact.ID != "a-3" || page.Entries[2].Artifact.ID != "a-1" {
		t.Fatalf("unexpected order: %q, %q, %q",
			page.Entries[0].Artifact.ID, page.Entries[1].Artifact.ID, page.Entries[2].Artifact.ID)
	}

	purged := page.Entries[0]
	if purged.HasGenerationRecord || purged.Prompt != "" {
		t.Fatalf("purged-job entry should be artifact-only, got %+v", purged)
	}
	upload := page.Entries[1]
	if upload.HasGenerationRecord {
		t.Fatalf("direct upload should have no generation record")
	}
	generated := page.Entries[2]
	if !generated.HasGenerationRecord {
		t.Fatal("generated entry lost its job record")
	}
	if generated.Prompt != "a lighthouse at dusk" || generated.RequesterID != "user-7" {
		t.Fatalf("joined metadata = %q / %q", generated.Prompt, generated.RequesterID)
	}
	if generated.JobState != domain.JobStateSucceeded {
		t.Fatalf("job state = %q", generated.JobState)
	}
}

func TestListPaginationStableUnderInserts(t *testing.T) {
	ix, artifacts, _ := newTestIndex(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 4; i++ {
		seedArtifact(t, artifacts, fmt.Sprintf("a-%d", i), "", base.Add(time.Duration(i)*time.Minute))
	}

	first, err := ix.List(context.Background(), domain.MediaKindImage, domain.ArtifactFilter{}, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Entries) != 2 || first.NextToken == "" {
		t.Fatalf("first page entries = %d, token = %q", len(first.Entries), first.NextToken)
	}
	if first.Entries[0].Artifact.ID != "a-4" || first.Entries[1].Artifact.ID != "a-3" {
		t.Fatalf("first page order: %q, %q", first.Entries[0].Artifact.ID, first.Entries[1].Artifact.ID)
	}

	// New artifacts between page fetches must not shift the cursor.
	seedArtifact(t, artifacts, "a-5", "", base.Add(10*time.Minute))

	second, err := ix.List(context.Background(), domain.MediaKindImage, domain.ArtifactFilter{}, first.NextToken, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Entries) != 2 {
		t.Fatalf("second page entries = %d", len(second.Entries))
	}
	if second.Entries[0].Artifact.ID != "a-2" || second.Entries[1].Artifact.ID != "a-1" {
		t.Fatalf("second page order: %q, %q, insert shifted the cursor",
			second.Entries[0].Artifact.ID, second.Entries[1].Artifact.ID)
	}
}

func TestListRejectsGarbageToken(t *testing.T) {
	ix, artifacts, _ := newTestIndex(t)
	seedArtifact(t, artifacts, "a-1", "", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	if _, err := ix.List(context.Background(), domain.MediaKindImage, domain.ArtifactFilter{}, "not-a-cursor", 10); err == nil {
		t.Fatal("expected error for malformed page token")
	}
}
