package handlers

import (
	"encoding/json"
	"net/http"

	"mediagen/internal/domain"
)

type generateRequest struct {
	Kind            string   `json:"kind"`
	Mode            string   `json:"mode"`
	Prompt          string   `json:"prompt"`
	ReferenceAssets []string `json:"reference_assets,omitempty"`
	Count           int      `json:"count,omitempty"`
	Size            string   `json:"size,omitempty"`
	QualityTier     string   `json:"quality_tier,omitempty"`
	OutputFormat    string   `json:"output_format,omitempty"`
	RequesterID     string   `json:"requester_id,omitempty"`
}

type usageResponse struct {
	TokensConsumed *int `json:"tokens_consumed"`
}

type generateResponse struct {
	Artifacts []artifactResponse `json:"artifacts,omitempty"`
	Usage     *usageResponse     `json:"usage,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	Job       *jobResponse       `json:"job,omitempty"`
}

// Generate accepts a canonical generation request. Image requests respond
// 200 with stored artifacts; video requests respond 202 with the queued job.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = string(domain.RequestModeGenerate)
	}

	result, err := a.Service.SubmitGeneration(r.Context(), domain.GenerationRequest{
		Kind:            domain.MediaKind(req.Kind),
		Mode:            domain.RequestMode(mode),
		Prompt:          req.Prompt,
		ReferenceAssets: req.ReferenceAssets,
		Count:           req.Count,
		Size:            req.Size,
		QualityTier:     req.QualityTier,
		OutputFormat:    req.OutputFormat,
		RequesterID:     req.RequesterID,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	if result.Job != nil {
		a.json(w, http.StatusAccepted, generateResponse{Job: toJobResponse(result.Job)})
		return
	}

	resp := generateResponse{Warnings: result.Warnings}
	if result.Usage != nil {
		resp.Usage = &usageResponse{TokensConsumed: result.Usage.TokensConsumed}
	}
	for _, artifact := range result.Artifacts {
		resp.Artifacts = append(resp.Artifacts, toArtifactResponse(artifact))
	}
	a.json(w, http.StatusOK, resp)
}
