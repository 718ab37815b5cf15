package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/engine"
	"github.com/labstack/echo/v5"
)

const defaultHistoryLimit = 100

type JobsController struct {
	App     *app.Context
	Manager *engine.Manager
}

// Create validates the request, registers the job and queues it.
func (ctrl *JobsController) Create(c *echo.Context) error {
	var req domain.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	job, err := ctrl.Manager.CreateJob(req)
	if err != nil {
		return c.JSON(statusFor(err), errorJSON(err))
	}

	if err := ctrl.Manager.Submit(job); err != nil {
		return c.JSON(statusFor(err), errorJSON(err))
	}

	ctrl.App.Logger.Info("[API] Job %s created for %s", job.ID, job.URL)
	return c.JSON(http.StatusCreated, job.Snapshot())
}

// List returns the jobs known to this process in creation order.
func (ctrl *JobsController) List(c *echo.Context) error {
	jobs := ctrl.Manager.Jobs()

	resp := jobsResponse{Jobs: make([]*domain.JobSnapshot, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, j.Snapshot())
	}
	return c.JSON(http.StatusOK, resp)
}

// Get prefers the live job and falls back to the store.
func (ctrl *JobsController) Get(c *echo.Context) error {
	id := c.Param("id")

	if job, ok := ctrl.Manager.Job(id); ok {
		return c.JSON(http.StatusOK, job.Snapshot())
	}

	if ctrl.App.Store != nil {
		snap, err := ctrl.App.Store.GetJob(id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorJSON(err))
		}
		if snap != nil {
			return c.JSON(http.StatusOK, snap)
		}
	}

	return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
}

func (ctrl *JobsController) History(c *echo.Context) error {
	if ctrl.App.Store == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "job history is disabled"})
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
		}
		limit = n
	}

	snaps, err := ctrl.App.Store.ListJobs(limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorJSON(err))
	}
	if snaps == nil {
		snaps = []*domain.JobSnapshot{}
	}
	return c.JSON(http.StatusOK, jobsResponse{Jobs: snaps})
}

func (ctrl *JobsController) Pause(c *echo.Context) error {
	return ctrl.control(c, ctrl.Manager.Pause)
}

func (ctrl *JobsController) Resume(c *echo.Context) error {
	return ctrl.control(c, ctrl.Manager.Resume)
}

func (ctrl *JobsController) Cancel(c *echo.Context) error {
	return ctrl.control(c, ctrl.Manager.Cancel)
}

// Retry resubmits a failed job under its existing id.
func (ctrl *JobsController) Retry(c *echo.Context) error {
	id := c.Param("id")

	job, ok := ctrl.Manager.Job(id)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
	}

	if err := ctrl.Manager.Retry(id); err != nil {
		return c.JSON(http.StatusConflict, errorJSON(err))
	}

	return c.JSON(http.StatusAccepted, job.Snapshot())
}

// control applies a pause/resume/cancel style action and returns the job.
func (ctrl *JobsController) control(c *echo.Context, action func(id string) bool) error {
	id := c.Param("id")

	if !action(id) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "job not found"})
	}

	job, _ := ctrl.Manager.Job(id)
	return c.JSON(http.StatusOK, job.Snapshot())
}

// statusFor maps manager errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingURL),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrInvalidQuality):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobActive),
		errors.Is(err, domain.ErrJobCanceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
