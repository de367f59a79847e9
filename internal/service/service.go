package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"mediagen/internal/dispatch"
	"mediagen/internal/domain"
	"mediagen/internal/gallery"
	"mediagen/internal/infra"
	"mediagen/internal/jobs"
	"mediagen/internal/providers"
	"mediagen/internal/storage"
	zippkg "mediagen/pkg/zip"
)

// maxBundleSize caps one zip download.
const maxBundleSize = 50

// SubmitResult is the outcome of a generation request. Exactly one branch is
// populated: Artifacts (with usage and warnings) for synchronous image
// requests, Job for asynchronous video requests.
type SubmitResult struct {
	Artifacts []domain.Artifact
	Usage     *domain.Usage
	Warnings  []string
	Job       *domain.Job
}

// Service is the application facade the transport layer calls into. It owns
// no business rules of its own; it sequences the dispatcher, store, tracker,
// token issuer and gallery index.
type Service struct {
	dispatcher *dispatch.Dispatcher
	tracker    *jobs.Tracker
	store      *storage.Store
	issuer     *storage.TokenIssuer
	gallery    *gallery.Index
	jobs       domain.JobRepository
	logger     infra.Logger

	now         func() time.Time
	fetchRemote func(ctx context.Context, url string) ([]byte, string, error)
}

func New(dispatcher *dispatch.Dispatcher, tracker *jobs.Tracker, store *storage.Store, issuer *storage.TokenIssuer, gallery *gallery.Index, jobRepo domain.JobRepository, logger infra.Logger) *Service {
	return &Service{
		dispatcher:  dispatcher,
		tracker:     tracker,
		store:       store,
		issuer:      issuer,
		gallery:     gallery,
		jobs:        jobRepo,
		logger:      logger,
		now:         time.Now,
		fetchRemote: providers.FetchRemote,
	}
}

// SubmitGeneration dispatches a request. Image results are stored before
// returning so the caller always receives durable artifact ids, never raw
// provider payloads.
func (s *Service) SubmitGeneration(ctx context.Context, req domain.GenerationRequest) (*SubmitResult, error) {
	result, job, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return &SubmitResult{Job: job}, nil
	}

	out := &SubmitResult{Usage: result.Usage, Warnings: result.Warnings}
	for i, artifact := range result.Artifacts {
		data := artifact.Data
		mime := artifact.MIME
		if len(data) == 0 && artifact.RemoteURL != "" {
			fetched, fetchedMIME, err := s.fetchRemote(ctx, artifact.RemoteURL)
			if err != nil {
				return nil, fmt.Errorf("%w: fetch result payload: %v", domain.ErrStorageUnavailable, err)
			}
			data = fetched
			if mime == "" {
				mime = fetchedMIME
			}
		}
		stored, err := s.store.Put(ctx, storage.PutInput{
			Kind:          req.Kind,
			Data:          data,
			ContentType:   mime,
			SuggestedName: fmt.Sprintf("output-%02d", i+1),
		})
		if err != nil {
			return nil, err
		}
		out.Artifacts = append(out.Artifacts, *stored)
	}
	return out, nil
}

// GetJobStatus reports the job's current state. When a poll is overdue the
// lookup triggers one opportunistically, so status reads stay fresh even if
// the background tracker lags; concurrent reads share a single poll.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.IsTerminal() || s.now().Before(job.NextPollAt) {
		return job, nil
	}
	return s.tracker.PollOnce(ctx, jobID)
}

// CancelJob stops tracking the job. Cancelling a terminal job is a no-op.
func (s *Service) CancelJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.tracker.Cancel(ctx, jobID)
}

// UploadArtifact stores caller-provided bytes directly, with no generation
// record attached.
func (s *Service) UploadArtifact(ctx context.Context, kind domain.MediaKind, data []byte, contentType, name string) (*domain.Artifact, error) {
	return s.store.Put(ctx, storage.PutInput{
		Kind:          kind,
		Data:          data,
		ContentType:   contentType,
		SuggestedName: name,
	})
}

// GetArtifact returns metadata for one artifact.
func (s *Service) GetArtifact(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	return s.store.Describe(ctx, artifactID)
}

// DeleteArtifact removes an artifact; unknown ids succeed.
func (s *Service) DeleteArtifact(ctx context.Context, artifactID string) error {
	return s.store.Delete(ctx, artifactID)
}

// IssueAccessToken mints a short-lived read URL for the artifact.
func (s *Service) IssueAccessToken(ctx context.Context, artifactID string, ttl time.Duration) (*domain.AccessToken, error) {
	return s.issuer.Issue(ctx, artifactID, ttl)
}

// BundleArtifacts collects the bytes of up to maxBundleSize artifacts for a
// zip download. Any unknown id fails the whole bundle.
func (s *Service) BundleArtifacts(ctx context.Context, artifactIDs []string) ([]zippkg.Entry, error) {
	if len(artifactIDs) == 0 {
		return nil, fmt.Errorf("%w: no artifact ids given", domain.ErrInvalidRequest)
	}
	if len(artifactIDs) > maxBundleSize {
		return nil, fmt.Errorf("%w: at most %d artifacts per bundle", domain.ErrInvalidRequest, maxBundleSize)
	}
	entries := make([]zippkg.Entry, 0, len(artifactIDs))
	for _, id := range artifactIDs {
		artifact, err := s.store.Describe(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, zippkg.Entry{Name: path.Base(artifact.StoragePath), Data: data})
	}
	return entries, nil
}

// ListGallery pages the gallery, newest first.
func (s *Service) ListGallery(ctx context.Context, kind domain.MediaKind, filter domain.ArtifactFilter, pageToken string, limit int) (*gallery.Page, error) {
	return s.gallery.List(ctx, kind, filter, pageToken, limit)
}

// StoreResolver adapts the artifact store into the dispatcher's reference
// lookup: edit-mode requests name stored artifacts, the provider call needs
// their bytes.
type StoreResolver struct {
	Store *storage.Store
}

func (r StoreResolver) Resolve(ctx context.Context, artifactID string) (providers.ReferenceAsset, error) {
	artifact, err := r.Store.Describe(ctx, artifactID)
	if err != nil {
		return providers.ReferenceAsset{}, err
	}
	data, err := r.Store.Get(ctx, artifactID)
	if err != nil {
		return providers.ReferenceAsset{}, err
	}
	return providers.ReferenceAsset{MIME: artifact.ContentType, Data: data}, nil
}

var _ dispatch.ReferenceResolver = StoreResolver{}
