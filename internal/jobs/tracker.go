package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mediagen/internal/dispatch"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers"
	"mediagen/internal/storage"
)

// Config bounds the tracker's polling and retry behavior.
type Config struct {
	// PollInterval is the initial spacing between polls; it doubles per
	// attempt up to PollIntervalMax.
	PollInterval    time.Duration
	PollIntervalMax time.Duration
	// JobTimeout caps total wall time since job creation before the tracker
	// gives up with TimedOut.
	JobTimeout time.Duration
	// StoreRetryLimit bounds fetch-and-store retries after the provider has
	// already reported success.
	StoreRetryLimit int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollIntervalMax < c.PollInterval {
		c.PollIntervalMax = c.PollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	if c.StoreRetryLimit <= 0 {
		c.StoreRetryLimit = 2
	}
	return c
}

// ArtifactWriter is the slice of the artifact store the tracker needs.
// Delete backs out partially stored results when the retry budget runs out.
type ArtifactWriter interface {
	Put(ctx context.Context, in storage.PutInput) (*domain.Artifact, error)
	Delete(ctx context.Context, artifactID string) error
}

// Tracker drives asynchronous video jobs through the state machine
// Queued -> Polling -> {Succeeded, Failed, TimedOut, Cancelled}. Terminal
// states are absorbing: once reached, later provider reports are discarded
// and attempts never change again.
//
// State transitions are serialized per job id; distinct jobs proceed fully in
// parallel. At most one provider poll is in flight per job at any time.
type Tracker struct {
	jobs   domain.JobRepository
	store  ArtifactWriter
	video  providers.VideoProvider
	cfg    Config
	logger infra.Logger

	now         func() time.Time
	fetchRemote func(ctx context.Context, url string) ([]byte, string, error)

	flight singleflight.Group
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewTracker wires a tracker from its collaborators.
func NewTracker(jobs domain.JobRepository, store ArtifactWriter, video providers.VideoProvider, cfg Config, logger infra.Logger) *Tracker {
	return &Tracker{
		jobs:        jobs,
		store:       store,
		video:       video,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		now:         time.Now,
		fetchRemote: providers.FetchRemote,
		locks:       make(map[string]*sync.Mutex),
	}
}

// Run polls due jobs until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info().Msg("tracker: started")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		due, err := t.jobs.ListDue(ctx, t.now(), 50)
		if err != nil {
			t.logger.Error().Err(err).Msg("tracker: listing due jobs failed")
			continue
		}
		for _, job := range due {
			jobID := job.ID
			go func() {
				if _, err := t.PollOnce(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
					t.logger.Error().Err(err).Str("job_id", jobID).Msg("tracker: poll failed")
				}
			}()
		}
	}
}

// PollOnce performs a single poll step for the job and returns its state
// afterwards. Concurrent calls for the same job share one in-flight poll.
func (t *Tracker) PollOnce(ctx context.Context, jobID string) (*domain.Job, error) {
	result, err, _ := t.flight.Do(jobID, func() (any, error) {
		return t.pollLocked(ctx, jobID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Job), nil
}

// Cancel stops future polls for a job. No provider cancellation API is
// assumed, so the provider-side job is left running and a late completion may
// still arrive; it will be discarded. Cancelling an already terminal job is a
// no-op.
func (t *Tracker) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	unlock := t.lockJob(jobID)
	defer unlock()

	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.IsTerminal() {
		return job, nil
	}
	job.State = domain.JobStateCancelled
	t.discardArtifacts(ctx, job)
	if err := t.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	t.logger.Info().Str("job_id", jobID).Msg("tracker: job cancelled")
	return job, nil
}

// SweepTimeouts transitions jobs past the wall-clock ceiling to TimedOut even
// when no poll is due, so a stalled scheduler cannot hide an expired job.
func (t *Tracker) SweepTimeouts(ctx context.Context) {
	active, err := t.jobs.ListActive(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("tracker: timeout sweep listing failed")
		return
	}
	for _, job := range active {
		if t.now().Sub(job.CreatedAt) <= t.cfg.JobTimeout {
			continue
		}
		if _, err := t.PollOnce(ctx, job.ID); err != nil {
			t.logger.Error().Err(err).Str("job_id", job.ID).Msg("tracker: timeout sweep poll failed")
		}
	}
}

func (t *Tracker) pollLocked(ctx context.Context, jobID string) (*domain.Job, error) {
	unlock := t.lockJob(jobID)
	defer unlock()

	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.IsTerminal() {
		// Late scheduling after a terminal transition; nothing to do and any
		// provider-side completion stays unobserved.
		return job, nil
	}

	now := t.now()
	if now.Sub(job.CreatedAt) > t.cfg.JobTimeout {
		// Distinct from Failed: the provider-side job may still finish, the
		// outcome is unconfirmed rather than negative.
		job.State = domain.JobStateTimedOut
		t.discardArtifacts(ctx, job)
		if err := t.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
		t.logger.Warn().Str("job_id", job.ID).Msg("tracker: job timed out")
		return job, nil
	}

	if job.State == domain.JobStateQueued {
		job.State = domain.JobStatePolling
	}
	job.Attempts++
	job.LastPolledAt = now
	job.NextPollAt = now.Add(t.backoff(job.Attempts))

	status, err := t.video.Poll(ctx, job.ProviderJobID)
	if err != nil {
		return t.handlePollError(ctx, job, err)
	}

	switch status.State {
	case providers.JobStateRunning:
		if err := t.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	case providers.JobStateFailed:
		job.State = domain.JobStateFailed
		job.FailureReason = failureReason("provider reported failure", status.Message)
		if err := t.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
		t.logger.Info().Str("job_id", job.ID).Str("reason", job.FailureReason).Msg("tracker: job failed")
		return job, nil
	case providers.JobStateSucceeded:
		return t.finalize(ctx, job, status)
	default:
		return nil, fmt.Errorf("%w: unknown provider job state %q", domain.ErrMalformedProviderResponse, status.State)
	}
}

func (t *Tracker) handlePollError(ctx context.Context, job *domain.Job, pollErr error) (*domain.Job, error) {
	if errors.Is(pollErr, context.Canceled) || errors.Is(pollErr, context.DeadlineExceeded) {
		return nil, pollErr
	}

	if domain.IsRetryable(pollErr) {
		var rle *domain.RateLimitError
		if errors.As(pollErr, &rle) && rle.RetryAfter > 0 {
			if suggested := t.now().Add(rle.RetryAfter); suggested.After(job.NextPollAt) {
				job.NextPollAt = suggested
			}
		}
		t.logger.Warn().Err(pollErr).Str("job_id", job.ID).Msg("tracker: transient poll failure")
		if err := t.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}

	job.State = domain.JobStateFailed
	job.FailureReason = failureReason("provider call rejected", pollErr.Error())
	if err := t.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// finalize runs the fetch-and-store step after the provider reported
// success. The job only reaches Succeeded once the artifact write landed; a
// storage failure keeps it in Polling for a bounded number of retries of
// this step alone, not a resubmission.
func (t *Tracker) finalize(ctx context.Context, job *domain.Job, status *providers.JobStatus) (*domain.Job, error) {
	result, err := dispatch.Normalize(t.video.Name(), status.Payload)
	if err != nil {
		job.State = domain.JobStateFailed
		job.FailureReason = failureReason("provider result unusable", err.Error())
		if updateErr := t.jobs.Update(ctx, job); updateErr != nil {
			return nil, updateErr
		}
		return job, nil
	}

	if storeErr := t.storeArtifacts(ctx, job, result); storeErr != nil {
		job.StoreAttempts++
		if job.StoreAttempts > t.cfg.StoreRetryLimit {
			job.State = domain.JobStateFailed
			job.FailureReason = failureReason("storing generated artifacts failed", storeErr.Error())
			t.discardArtifacts(ctx, job)
		} else {
			job.NextPollAt = t.now().Add(t.cfg.PollInterval)
			t.logger.Warn().
				Err(storeErr).
				Str("job_id", job.ID).
				Int("store_attempts", job.StoreAttempts).
				Msg("tracker: store step failed, will retry fetch-and-store")
		}
		if err := t.jobs.Update(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}

	job.State = domain.JobStateSucceeded
	if err := t.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	t.logger.Info().
		Str("job_id", job.ID).
		Int("artifacts", len(job.ArtifactIDs)).
		Msg("tracker: job succeeded")
	return job, nil
}

// storeArtifacts appends stored ids to job.ArtifactIDs as it goes, so a
// partial failure keeps the progress made and a retry resumes after the last
// stored artifact instead of writing duplicates. The caller persists the job
// on either outcome.
func (t *Tracker) storeArtifacts(ctx context.Context, job *domain.Job, result *domain.NormalizedResult) error {
	for i := len(job.ArtifactIDs); i < len(result.Artifacts); i++ {
		artifact := result.Artifacts[i]
		data := artifact.Data
		mime := artifact.MIME
		if len(data) == 0 && artifact.RemoteURL != "" {
			fetched, fetchedMIME, err := t.fetchRemote(ctx, artifact.RemoteURL)
			if err != nil {
				return fmt.Errorf("%w: fetch result payload: %v", domain.ErrStorageUnavailable, err)
			}
			data = fetched
			if mime == "" {
				mime = fetchedMIME
			}
		}
		if mime == "" {
			mime = "video/mp4"
		}
		stored, err := t.store.Put(ctx, storage.PutInput{
			Kind:          job.Kind,
			Data:          data,
			ContentType:   mime,
			SuggestedName: fmt.Sprintf("output-%02d", i+1),
			SourceJobID:   job.ID,
		})
		if err != nil {
			return err
		}
		job.ArtifactIDs = append(job.ArtifactIDs, stored.ID)
	}
	return nil
}

// discardArtifacts best-effort deletes the artifacts stored by earlier
// attempts, so no artifact row names a failed job as its source.
func (t *Tracker) discardArtifacts(ctx context.Context, job *domain.Job) {
	for _, id := range job.ArtifactIDs {
		if err := t.store.Delete(ctx, id); err != nil {
			t.logger.Error().Err(err).
				Str("job_id", job.ID).
				Str("artifact_id", id).
				Msg("tracker: discarding partial artifact failed")
		}
	}
	job.ArtifactIDs = nil
}

func (t *Tracker) backoff(attempts int) time.Duration {
	interval := t.cfg.PollInterval
	for i := 1; i < attempts; i++ {
		interval *= 2
		if interval >= t.cfg.PollIntervalMax {
			return t.cfg.PollIntervalMax
		}
	}
	if interval > t.cfg.PollIntervalMax {
		return t.cfg.PollIntervalMax
	}
	return interval
}

func (t *Tracker) lockJob(jobID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[jobID] = lock
	}
	t.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func failureReason(cause, verbatim string) string {
	if verbatim == "" {
		return cause
	}
	return cause + ": " + verbatim
}
