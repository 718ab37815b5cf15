package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/datallboy/gotube/internal/domain"
)

// Substrings that mark a pipeline failure as transient when it carries no
// structured status.
var retryableKeywords = []string{
	"timeout",
	"timed out",
	"connection",
	"network",
	"unavailable",
	"temporary",
	"throttled",
	"503",
	"502",
	"429",
}

// IsRetryable reports whether another attempt could succeed.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrCanceled) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTransient) {
		return true
	}

	var perr *domain.PipelineError
	if errors.As(err, &perr) && perr.HTTPStatus != 0 {
		return perr.Transient()
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range retryableKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// backoff returns the wait before the given retry (1 based):
// base, 2*base, 4*base... capped at max.
func backoff(retry int, base, max time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := time.Duration(math.Pow(2, float64(retry-1))) * base
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
