package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers"
)

type stubImageProvider struct {
	raw        json.RawMessage
	err        error
	calls      int
	lastParams providers.CallParameters
}

func (s *stubImageProvider) Name() string { return "stub" }

func (s *stubImageProvider) Generate(ctx context.Context, params providers.CallParameters) (json.RawMessage, error) {
	s.calls++
	s.lastParams = params
	return s.raw, s.err
}

type stubVideoProvider struct {
	startID    string
	startErr   error
	starts     int
	lastParams providers.CallParameters
}

func (s *stubVideoProvider) Name() string { return "stub" }

func (s *stubVideoProvider) Start(ctx context.Context, params providers.CallParameters) (string, error) {
	s.starts++
	s.lastParams = params
	return s.startID, s.startErr
}

func (s *stubVideoProvider) Poll(ctx context.Context, providerJobID string) (*providers.JobStatus, error) {
	return &providers.JobStatus{State: providers.JobStateRunning}, nil
}

type stubJobRepo struct {
	created []*domain.Job
	err     error
}

func (s *stubJobRepo) Create(ctx context.Context, job *domain.Job) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, job.Clone())
	return nil
}

func (s *stubJobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (s *stubJobRepo) Update(ctx context.Context, job *domain.Job) error { return nil }

func (s *stubJobRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	return nil, nil
}

func (s *stubJobRepo) ListActive(ctx context.Context) ([]*domain.Job, error) { return nil, nil }

type stubResolver struct {
	assets map[string]providers.ReferenceAsset
}

func (s *stubResolver) Resolve(ctx context.Context, artifactID string) (providers.ReferenceAsset, error) {
	asset, ok := s.assets[artifactID]
	if !ok {
		return providers.ReferenceAsset{}, domain.ErrArtifactNotFound
	}
	return asset, nil
}

func newTestDispatcher(image *stubImageProvider, video *stubVideoProvider, jobs *stubJobRepo, refs *stubResolver) *Dispatcher {
	if refs == nil {
		refs = &stubResolver{}
	}
	logger := infra.Logger(zerolog.New(io.Discard))
	d := NewDispatcher(image, video, providers.DefaultRoutes("test-model"), jobs, refs,
		Defaults{Size: "1024x1024", QualityTier: "standard", OutputFormat: "image/png"}, logger)
	d.newID = func() string { return "job-1" }
	d.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }
	return d
}

func validImageRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Kind:        domain.MediaKindImage,
		Mode:        domain.RequestModeGenerate,
		Prompt:      "a lighthouse at dusk",
		Count:       2,
		RequesterID: "user-7",
	}
}

func TestDispatchImageReturnsNormalizedResult(t *testing.T) {
	image := &stubImageProvider{raw: json.RawMessage(inlineResponse([]byte("img")))}
	d := newTestDispatcher(image, &stubVideoProvider{}, &stubJobRepo{}, nil)

	result, job, err := d.Dispatch(context.Background(), validImageRequest())
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if job != nil {
		t.Fatal("image dispatch produced a job")
	}
	if result == nil || len(result.Artifacts) != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if image.lastParams["count"] != 2 {
		t.Fatalf("count param = %v, want 2", image.lastParams["count"])
	}
	if image.lastParams["size"] != "1024x1024" {
		t.Fatalf("size default not applied: %v", image.lastParams["size"])
	}
}

func TestDispatchVideoCreatesQueuedJob(t *testing.T) {
	jobs := &stubJobRepo{}
	video := &stubVideoProvider{startID: "operations/op-9"}
	d := newTestDispatcher(&stubImageProvider{}, video, jobs, nil)

	req := domain.GenerationRequest{
		Kind:        domain.MediaKindVideo,
		Mode:        domain.RequestModeGenerate,
		Prompt:      "waves on a shore",
		RequesterID: "user-7",
	}
	result, job, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if result != nil {
		t.Fatal("video dispatch returned an in-band result")
	}
	if job == nil || job.ID != "job-1" {
		t.Fatalf("unexpected job: %#v", job)
	}
	if job.State != domain.JobStateQueued {
		t.Fatalf("state = %q, want queued", job.State)
	}
	if job.ProviderJobID != "operations/op-9" {
		t.Fatalf("provider job id = %q", job.ProviderJobID)
	}
	if len(jobs.created) != 1 {
		t.Fatalf("persisted jobs = %d, want 1", len(jobs.created))
	}
}

func TestDispatchEditWithoutReferencesFailsFast(t *testing.T) {
	image := &stubImageProvider{}
	d := newTestDispatcher(image, &stubVideoProvider{}, &stubJobRepo{}, nil)

	req := validImageRequest()
	req.Mode = domain.RequestModeEdit
	_, _, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
	if image.calls != 0 {
		t.Fatal("provider was called for an invalid request")
	}
}

func TestDispatchEditResolvesReferences(t *testing.T) {
	image := &stubImageProvider{raw: json.RawMessage(inlineResponse([]byte("img")))}
	refs := &stubResolver{assets: map[string]providers.ReferenceAsset{
		"art-1": {MIME: "image/jpeg", Data: []byte("source")},
	}}
	d := newTestDispatcher(image, &stubVideoProvider{}, &stubJobRepo{}, refs)

	req := validImageRequest()
	req.Mode = domain.RequestModeEdit
	req.ReferenceAssets = []string{"art-1"}
	if _, _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	passed, ok := image.lastParams["reference_assets"].([]providers.ReferenceAsset)
	if !ok || len(passed) != 1 || passed[0].MIME != "image/jpeg" {
		t.Fatalf("reference assets not forwarded: %#v", image.lastParams["reference_assets"])
	}
}

func TestDispatchEditUnknownReferenceFails(t *testing.T) {
	image := &stubImageProvider{}
	d := newTestDispatcher(image, &stubVideoProvider{}, &stubJobRepo{}, &stubResolver{})

	req := validImageRequest()
	req.Mode = domain.RequestModeEdit
	req.ReferenceAssets = []string{"missing"}
	_, _, err := d.Dispatch(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
	if image.calls != 0 {
		t.Fatal("provider was called despite unresolved reference")
	}
}

func TestDispatchPropagatesProviderClassification(t *testing.T) {
	image := &stubImageProvider{err: &domain.RateLimitError{RetryAfter: 3 * time.Second}}
	d := newTestDispatcher(image, &stubVideoProvider{}, &stubJobRepo{}, nil)

	_, _, err := d.Dispatch(context.Background(), validImageRequest())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}
