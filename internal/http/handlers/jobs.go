package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
)

type jobResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	State         string    `json:"state"`
	ProviderJobID string    `json:"provider_job_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ArtifactIDs   []string  `json:"artifact_ids,omitempty"`
}

func toJobResponse(job *domain.Job) *jobResponse {
	return &jobResponse{
		ID:            job.ID,
		Kind:          string(job.Kind),
		State:         string(job.State),
		ProviderJobID: job.ProviderJobID,
		CreatedAt:     job.CreatedAt,
		Attempts:      job.Attempts,
		FailureReason: job.FailureReason,
		ArtifactIDs:   job.ArtifactIDs,
	}
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	job, err := a.Service.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}
