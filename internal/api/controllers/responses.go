package controllers

import (
	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/platform"
)

type errorResponse struct {
	Error string `json:"error"`
}

type jobsResponse struct {
	Jobs []*domain.JobSnapshot `json:"jobs"`
}

type settingsResponse struct {
	DownloadDir    string `json:"download_dir"`
	Concurrency    int    `json:"concurrency"`
	MaxConcurrency int    `json:"max_concurrency"`
	Accelerator    bool   `json:"accelerator"`
}

// settingsRequest uses pointers so omitted fields are left unchanged.
type settingsRequest struct {
	DownloadDir *string `json:"download_dir"`
	Concurrency *int    `json:"concurrency"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Tools   platform.Tools `json:"tools"`
	Missing []string       `json:"missing,omitempty"`
}

func errorJSON(err error) errorResponse {
	return errorResponse{Error: err.Error()}
}
