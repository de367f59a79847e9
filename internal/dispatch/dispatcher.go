package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers"
)

// ReferenceResolver fetches the bytes of a stored artifact so edit-mode
// requests can condition the provider call on it.
type ReferenceResolver interface {
	Resolve(ctx context.Context, artifactID string) (providers.ReferenceAsset, error)
}

// Defaults supplies request fields the caller left empty.
type Defaults struct {
	Size         string
	QualityTier  string
	OutputFormat string
}

// Dispatcher turns canonical generation requests into provider calls. Image
// requests are synchronous: the provider responds in-band and the normalized
// result is returned directly. Video requests return a freshly created job;
// the tracker drives it from there.
//
// The dispatcher itself never retries: transient provider failures are
// classified and surfaced so the layer owning the retry budget decides.
type Dispatcher struct {
	image    providers.ImageProvider
	video    providers.VideoProvider
	routes   providers.RouteTable
	jobs     domain.JobRepository
	refs     ReferenceResolver
	defaults Defaults
	logger   infra.Logger

	now   func() time.Time
	newID func() string
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(image providers.ImageProvider, video providers.VideoProvider, routes providers.RouteTable, jobs domain.JobRepository, refs ReferenceResolver, defaults Defaults, logger infra.Logger) *Dispatcher {
	return &Dispatcher{
		image:    image,
		video:    video,
		routes:   routes,
		jobs:     jobs,
		refs:     refs,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Dispatch validates and routes a request. Exactly one of the result and the
// job is non-nil on success: a normalized result for images, a queued job for
// videos.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.GenerationRequest) (*domain.NormalizedResult, *domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	params, err := d.buildCallParameters(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	switch req.Kind {
	case domain.MediaKindImage:
		result, err := d.dispatchImage(ctx, req, params)
		return result, nil, err
	case domain.MediaKindVideo:
		job, err := d.dispatchVideo(ctx, req, params)
		return nil, job, err
	default:
		return nil, nil, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidRequest, req.Kind)
	}
}

func (d *Dispatcher) dispatchImage(ctx context.Context, req domain.GenerationRequest, params providers.CallParameters) (*domain.NormalizedResult, error) {
	raw, err := d.image.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	result, err := Normalize(d.image.Name(), raw)
	if err != nil {
		return nil, err
	}
	for _, warning := range result.Warnings {
		d.logger.Warn().
			Str("provider", d.image.Name()).
			Str("requester_id", req.RequesterID).
			Msg("dispatch: " + warning)
	}
	return result, nil
}

func (d *Dispatcher) dispatchVideo(ctx context.Context, req domain.GenerationRequest, params providers.CallParameters) (*domain.Job, error) {
	providerJobID, err := d.video.Start(ctx, params)
	if err != nil {
		return nil, err
	}

	now := d.now()
	job := &domain.Job{
		ID:            d.newID(),
		ProviderJobID: providerJobID,
		Kind:          req.Kind,
		State:         domain.JobStateQueued,
		Request:       req,
		CreatedAt:     now,
		NextPollAt:    now,
	}
	if err := d.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	d.logger.Info().
		Str("job_id", job.ID).
		Str("provider_job_id", providerJobID).
		Str("requester_id", req.RequesterID).
		Msg("dispatch: video job queued")
	return job.Clone(), nil
}

// buildCallParameters derives the provider-specific mapping. Reference assets
// are resolved here, before any provider call, so a missing reference fails
// fast as a caller error.
func (d *Dispatcher) buildCallParameters(ctx context.Context, req domain.GenerationRequest) (providers.CallParameters, error) {
	params := providers.CallParameters{
		"prompt": req.Prompt,
		"count":  req.NormalizedCount(),
		"size":   valueOr(req.Size, d.defaults.Size),
	}
	if quality := valueOr(req.QualityTier, d.defaults.QualityTier); quality != "" {
		params["quality"] = quality
	}
	if format := valueOr(req.OutputFormat, d.defaults.OutputFormat); format != "" {
		params["output_format"] = format
	}
	if route, ok := d.routes.Resolve(string(req.Kind)); ok && route.Model != "" {
		params["model"] = route.Model
	}

	if req.Mode == domain.RequestModeEdit {
		refs := make([]providers.ReferenceAsset, 0, len(req.ReferenceAssets))
		for _, artifactID := range req.ReferenceAssets {
			ref, err := d.refs.Resolve(ctx, artifactID)
			if err != nil {
				return nil, fmt.Errorf("%w: reference asset %s: %v", domain.ErrInvalidRequest, artifactID, err)
			}
			refs = append(refs, ref)
		}
		params["reference_assets"] = refs
	}

	return params, nil
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
