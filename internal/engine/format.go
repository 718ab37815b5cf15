package engine

import (
	"fmt"
	"math"
)

const (
	unknownSpeed = "--"
	unknownETA   = "--:--"
	unknownSize  = "--"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n in 1024 based units with one decimal, e.g. "3.5 MB".
// Zero or negative sizes render as the empty string.
func FormatBytes(n float64) string {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return ""
	}

	i := 0
	for n >= 1024 && i < len(byteUnits)-1 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", n, byteUnits[i])
}

// FormatSpeed renders a bytes-per-second rate, "--" when unknown.
func FormatSpeed(bps *float64) string {
	if bps == nil || *bps <= 0 {
		return unknownSpeed
	}
	return FormatBytes(*bps) + "/s"
}

// FormatETA renders seconds as H:MM:SS from one hour up, MM:SS below it.
func FormatETA(seconds *float64) string {
	if seconds == nil || *seconds < 0 || math.IsNaN(*seconds) {
		return unknownETA
	}

	s := int64(*seconds)
	h := s / 3600
	m := (s % 3600) / 60
	s = s % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatSize(total int64) string {
	if s := FormatBytes(float64(total)); s != "" {
		return s
	}
	return unknownSize
}

// percentOf computes downloaded*100/total clamped to [0,100]; 0 when total is unknown.
func percentOf(downloaded, total int64) int {
	if total <= 0 || downloaded <= 0 {
		return 0
	}
	p := downloaded * 100 / total
	if p > 100 {
		return 100
	}
	return int(p)
}
