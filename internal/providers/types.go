package providers

import (
	"context"
	"encoding/json"
)

// CallParameters is the provider-specific parameter mapping derived from a
// canonical request. It is rebuilt per dispatch attempt and never persisted.
type CallParameters map[string]any

// JobState is the provider-side view of a long-running generation.
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// JobStatus reports one poll of a provider-side job. Payload carries the raw
// result document when the job has succeeded and the provider inlines it.
type JobStatus struct {
	State   JobState
	Message string
	Payload json.RawMessage
}

// ReferenceAsset is an input payload conditioning an edit-mode call.
type ReferenceAsset struct {
	MIME string
	Data []byte
}

// ImageProvider performs synchronous image generation. The returned bytes are
// the raw provider response; shape normalization happens downstream.
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, params CallParameters) (json.RawMessage, error)
}

// VideoProvider performs out-of-band video generation: Start returns a
// provider-opaque correlation id which Poll is queried with until terminal.
type VideoProvider interface {
	Name() string
	Start(ctx context.Context, params CallParameters) (string, error)
	Poll(ctx context.Context, providerJobID string) (*JobStatus, error)
}
