package controllers

import (
	"net/http"

	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/engine"
	"github.com/datallboy/gotube/internal/infra/config"
	"github.com/labstack/echo/v5"
)

type SettingsController struct {
	App     *app.Context
	Manager *engine.Manager
}

func (ctrl *SettingsController) Get(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.current())
}

// Update applies the fields that are present. Changes affect jobs that have
// not started yet.
func (ctrl *SettingsController) Update(c *echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	if req.DownloadDir != nil {
		if err := ctrl.Manager.SetDownloadDir(*req.DownloadDir); err != nil {
			return c.JSON(http.StatusBadRequest, errorJSON(err))
		}
		ctrl.App.Logger.Info("[Settings] Download directory set to %s", ctrl.Manager.DownloadDir())
	}

	if req.Concurrency != nil {
		n := min(max(*req.Concurrency, 1), config.MaxConcurrency)
		ctrl.Manager.SetConcurrency(n)
		ctrl.App.Logger.Info("[Settings] Concurrency set to %d", n)
	}

	return c.JSON(http.StatusOK, ctrl.current())
}

func (ctrl *SettingsController) current() settingsResponse {
	return settingsResponse{
		DownloadDir:    ctrl.Manager.DownloadDir(),
		Concurrency:    ctrl.Manager.Concurrency(),
		MaxConcurrency: config.MaxConcurrency,
		Accelerator:    ctrl.Manager.HasAccelerator(),
	}
}
