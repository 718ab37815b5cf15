package ytdlp

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/datallboy/gotube/internal/domain"
)

// progressJSON is the subset of yt-dlp's progress dict we use.
// Numbers may be null or floats depending on the extractor.
type progressJSON struct {
	Status             string   `json:"status"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	Speed              *float64 `json:"speed"`
	ETA                *float64 `json:"eta"`
}

func parseProgress(raw string) (domain.ProgressEvent, bool) {
	var p progressJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return domain.ProgressEvent{}, false
	}
	if p.Status == "" {
		return domain.ProgressEvent{}, false
	}

	return domain.ProgressEvent{
		Status:             p.Status,
		DownloadedBytes:    toInt(p.DownloadedBytes),
		TotalBytes:         toInt(p.TotalBytes),
		TotalBytesEstimate: toInt(p.TotalBytesEstimate),
		Speed:              p.Speed,
		ETA:                p.ETA,
	}, true
}

func toInt(v *float64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return int64(*v)
}

var httpErrorRe = regexp.MustCompile(`HTTP Error (\d{3})`)

// pipelineError builds the structured error from the ERROR: lines yt-dlp
// wrote before exiting. The last error line is the one that aborted the run.
func pipelineError(errLines []string, exitErr error) *domain.PipelineError {
	perr := &domain.PipelineError{Err: exitErr}

	if len(errLines) > 0 {
		perr.Message = errLines[len(errLines)-1]
	} else if exitErr != nil {
		perr.Message = "yt-dlp failed: " + exitErr.Error()
	}

	for i := len(errLines) - 1; i >= 0; i-- {
		if m := httpErrorRe.FindStringSubmatch(errLines[i]); m != nil {
			perr.HTTPStatus, _ = strconv.Atoi(m[1])
			break
		}
	}

	return perr
}
