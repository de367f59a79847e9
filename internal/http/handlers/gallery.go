package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mediagen/internal/domain"
)

type galleryEntryResponse struct {
	Artifact            artifactResponse `json:"artifact"`
	Prompt              string           `json:"prompt,omitempty"`
	RequesterID         string           `json:"requester_id,omitempty"`
	JobState            string           `json:"job_state,omitempty"`
	HasGenerationRecord bool             `json:"has_generation_record"`
}

type galleryResponse struct {
	Entries       []galleryEntryResponse `json:"entries"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

// Gallery pages stored artifacts of one kind, newest first, joined with the
// request metadata of the producing job when it still exists.
func (a *App) Gallery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := domain.MediaKind(q.Get("kind"))
	if kind == "" {
		kind = domain.MediaKindImage
	}

	limit := 20
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be in 1..100")
			return
		}
		limit = parsed
	}

	var filter domain.ArtifactFilter
	if raw := q.Get("created_after"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "created_after must be RFC3339")
			return
		}
		filter.CreatedAfter = ts
	}
	if raw := q.Get("created_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "created_before must be RFC3339")
			return
		}
		filter.CreatedBefore = ts
	}

	page, err := a.Service.ListGallery(r.Context(), kind, filter, q.Get("page_token"), limit)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			a.domainError(w, err)
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid page token")
		return
	}

	resp := galleryResponse{Entries: make([]galleryEntryResponse, 0, len(page.Entries)), NextPageToken: page.NextToken}
	for _, entry := range page.Entries {
		resp.Entries = append(resp.Entries, galleryEntryResponse{
			Artifact:            toArtifactResponse(entry.Artifact),
			Prompt:              entry.Prompt,
			RequesterID:         entry.RequesterID,
			JobState:            string(entry.JobState),
			HasGenerationRecord: entry.HasGenerationRecord,
		})
	}
	a.json(w, http.StatusOK, resp)
}
