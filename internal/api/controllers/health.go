package controllers

import (
	"net/http"

	"github.com/datallboy/gotube/internal/app"
	"github.com/labstack/echo/v5"
)

type HealthController struct {
	App *app.Context
}

// Handle reports the probed tools. Missing required tools degrade the status
// but the endpoint itself always answers 200.
func (ctrl *HealthController) Handle(c *echo.Context) error {
	resp := healthResponse{
		Status:  "ok",
		Tools:   ctrl.App.Tools,
		Missing: ctrl.App.Tools.Missing(),
	}
	if len(resp.Missing) > 0 {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}
