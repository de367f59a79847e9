package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
	zippkg "mediagen/pkg/zip"
)

const maxUploadBytes = 64 << 20

type artifactResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	ContentType  string    `json:"content_type"`
	ByteSize     int64     `json:"byte_size"`
	Transparency bool      `json:"transparency"`
	CreatedAt    time.Time `json:"created_at"`
	SourceJobID  string    `json:"source_job_id,omitempty"`
}

func toArtifactResponse(artifact domain.Artifact) artifactResponse {
	return artifactResponse{
		ID:           artifact.ID,
		Kind:         string(artifact.Kind),
		ContentType:  artifact.ContentType,
		ByteSize:     artifact.ByteSize,
		Transparency: artifact.Transparency,
		CreatedAt:    artifact.CreatedAt,
		SourceJobID:  artifact.SourceJobID,
	}
}

// ArtifactUpload stores raw request bytes as a new artifact. Kind and an
// optional display name come from query parameters, the payload type from
// the Content-Type header.
func (a *App) ArtifactUpload(w http.ResponseWriter, r *http.Request) {
	kind := domain.MediaKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.MediaKindImage
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "payload exceeds upload limit")
		return
	}

	artifact, err := a.Service.UploadArtifact(r.Context(), kind, data, r.Header.Get("Content-Type"), r.URL.Query().Get("name"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toArtifactResponse(*artifact))
}

func (a *App) ArtifactGet(w http.ResponseWriter, r *http.Request) {
	artifact, err := a.Service.GetArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArtifactResponse(*artifact))
}

func (a *App) ArtifactDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.DeleteArtifact(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accessURLRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type accessURLResponse struct {
	ArtifactID string    `json:"artifact_id"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ArtifactAccessURL mints a short-lived signed read URL for the artifact.
func (a *App) ArtifactAccessURL(w http.ResponseWriter, r *http.Request) {
	var req accessURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	token, err := a.Service.IssueAccessToken(r.Context(), chi.URLParam(r, "id"), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, accessURLResponse{
		ArtifactID: token.ArtifactID,
		URL:        token.SignedURL,
		ExpiresAt:  token.ExpiresAt,
	})
}

// ArtifactsZip bundles the requested artifacts into a single zip download.
func (a *App) ArtifactsZip(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			ids = append(ids, raw)
		}
	}
	entries, err := a.Service.BundleArtifacts(r.Context(), ids)
	if err != nil {
		a.domainError(w, err)
		return
	}
	archive, err := zippkg.Archive(entries)
	if err != nil {
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="artifacts.zip"`)
	_, _ = w.Write(archive)
}

// ArtifactDownload redirects the caller to a freshly signed read URL.
func (a *App) ArtifactDownload(w http.ResponseWriter, r *http.Request) {
	token, err := a.Service.IssueAccessToken(r.Context(), chi.URLParam(r, "id"), 5*time.Minute)
	if err != nil {
		a.domainError(w, err)
		return
	}
	http.Redirect(w, r, token.SignedURL, http.StatusFound)
}
