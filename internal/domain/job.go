package domain

import "time"

// JobState enumerates the tracker's lifecycle states.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStatePolling   JobState = "polling"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further automatic transition may occur.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateTimedOut, JobStateCancelled:
		return true
	}
	return false
}

// Job tracks one asynchronous generation request through the polling state
// machine. It is mutated exclusively by the tracker; terminal jobs persist
// for audit until an external retention sweep removes them.
type Job struct {
	ID            string
	ProviderJobID string
	Kind          MediaKind
	State         JobState
	Request       GenerationRequest
	CreatedAt     time.Time
	LastPolledAt  time.Time
	NextPollAt    time.Time
	Attempts      int
	StoreAttempts int
	FailureReason string
	ArtifactIDs   []string
}

// Clone returns a deep copy so callers cannot mutate tracker-owned state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.ArtifactIDs = append([]string(nil), j.ArtifactIDs...)
	cp.Request.ReferenceAssets = append([]string(nil), j.Request.ReferenceAssets...)
	return &cp
}
