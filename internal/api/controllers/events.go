package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/datallboy/gotube/internal/notify"
	"github.com/labstack/echo/v5"
)

const keepAliveInterval = 15 * time.Second

type EventsController struct {
	Bus *notify.Bus
}

// Stream writes job events as server-sent events until the client goes away.
// ?job=<id> limits the stream to one job.
func (ctrl *EventsController) Stream(c *echo.Context) error {
	events, unsubscribe := ctrl.Bus.Subscribe()
	defer unsubscribe()

	jobID := c.QueryParam("job")

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return err
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if jobID != "" && ev.JobID != jobID {
				continue
			}

			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}
