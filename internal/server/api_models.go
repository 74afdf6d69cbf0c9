package server

import (
	"github.com/rmaia/sitesmith/internal/catalog"
	"github.com/rmaia/sitesmith/internal/jobs"
	"github.com/rmaia/sitesmith/internal/store"
)

// Response envelopes. Every payload carries success so clients can
// branch without inspecting status codes.

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

type jobResponse struct {
	Success bool      `json:"success"`
	Job     *jobs.Job `json:"job"`
}

type sitesResponse struct {
	Success bool                 `json:"success"`
	Sites   []store.SiteRevision `json:"sites"`
}

type promptsResponse struct {
	Success bool                 `json:"success"`
	Prompts []store.PromptRecord `json:"prompts"`
}

type diffResponse struct {
	Success bool                `json:"success"`
	Diff    *store.RevisionDiff `json:"diff"`
}

type restoreRequest struct {
	RevisionID string `json:"revisionId"`
	ProjectID  string `json:"projectId"`
	PromptID   string `json:"promptId"`
}

type restoreResponse struct {
	Success     bool   `json:"success"`
	HTMLContent string `json:"htmlContent"`
}

type projectsResponse struct {
	Success  bool              `json:"success"`
	Projects []catalog.Listing `json:"projects"`
}

type generateBody struct {
	Prompt    string `json:"prompt"`
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	AssetURL  string `json:"assetUrl"`
}
