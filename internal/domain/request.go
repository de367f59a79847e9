package domain

import (
	"fmt"
	"strings"
)

// MediaKind enumerates the content categories the pipeline produces.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// RequestMode distinguishes fresh generation from edits of existing assets.
type RequestMode string

const (
	RequestModeGenerate RequestMode = "generate"
	RequestModeEdit     RequestMode = "edit"
)

// GenerationRequest is the canonical, provider-agnostic request. It is
// immutable once handed to the dispatcher; provider call parameters are
// derived from it per attempt, never stored back.
type GenerationRequest struct {
	Kind            MediaKind
	Mode            RequestMode
	Prompt          string
	ReferenceAssets []string
	Count           int
	Size            string
	QualityTier     string
	OutputFormat    string
	RequesterID     string
}

// Validate reports the first caller-fixable problem with the request.
// It performs no network I/O.
func (r GenerationRequest) Validate() error {
	switch r.Kind {
	case MediaKindImage, MediaKindVideo:
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidRequest, r.Kind)
	}
	switch r.Mode {
	case RequestModeGenerate, RequestModeEdit:
	default:
		return fmt.Errorf("%w: unsupported mode %q", ErrInvalidRequest, r.Mode)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if r.Mode == RequestModeEdit && len(r.ReferenceAssets) == 0 {
		return fmt.Errorf("%w: edit mode requires at least one reference asset", ErrInvalidRequest)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalidRequest)
	}
	return nil
}

// NormalizedCount returns the requested output count with the default applied.
func (r GenerationRequest) NormalizedCount() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}
