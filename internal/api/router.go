package api

import (
	"github.com/datallboy/gotube/internal/api/controllers"
	"github.com/datallboy/gotube/internal/app"
	"github.com/datallboy/gotube/internal/engine"
	"github.com/datallboy/gotube/internal/notify"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context, mgr *engine.Manager, bus *notify.Bus) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	jobsCtrl := &controllers.JobsController{App: app, Manager: mgr}
	settingsCtrl := &controllers.SettingsController{App: app, Manager: mgr}
	eventsCtrl := &controllers.EventsController{Bus: bus}
	healthCtrl := &controllers.HealthController{App: app}

	g := e.Group("/api")

	g.POST("/jobs", jobsCtrl.Create)
	g.GET("/jobs", jobsCtrl.List)
	g.GET("/jobs/:id", jobsCtrl.Get)
	g.POST("/jobs/:id/pause", jobsCtrl.Pause)
	g.POST("/jobs/:id/resume", jobsCtrl.Resume)
	g.POST("/jobs/:id/cancel", jobsCtrl.Cancel)
	g.POST("/jobs/:id/retry", jobsCtrl.Retry)

	// Persisted history, including jobs from earlier runs
	g.GET("/history", jobsCtrl.History)

	g.GET("/settings", settingsCtrl.Get)
	g.PUT("/settings", settingsCtrl.Update)

	// Server-sent events of every job notification
	g.GET("/events", eventsCtrl.Stream)

	g.GET("/health", healthCtrl.Handle)
}
