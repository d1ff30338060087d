package monitor

import (
	"fmt"
	"math"
	"time"
)

// formatRate renders a per-minute rate. NaN and negative values, which
// show up around counter resets, render as zero.
func formatRate(perMinute float64, unit string) string {
	if math.IsNaN(perMinute) || perMinute < 0 {
		perMinute = 0
	}
	return fmt.Sprintf("%.1f %s/min", perMinute, unit)
}

// formatLatency picks µs, ms or s. Missing histograms render as "-".
func formatLatency(seconds float64) string {
	switch {
	case math.IsNaN(seconds) || seconds <= 0:
		return "-"
	case seconds < 0.001:
		return fmt.Sprintf("%.0fµs", seconds*1e6)
	case seconds < 1:
		return fmt.Sprintf("%.1fms", seconds*1e3)
	default:
		return fmt.Sprintf("%.2fs", seconds)
	}
}

func formatRatio(r float64) string {
	if math.IsNaN(r) {
		r = 0
	}
	return fmt.Sprintf("%.1f%%", r*100)
}

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

func formatBytes(n uint64) string {
	v, i := float64(n), 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[i])
}

// formatUptime keeps the two most significant units.
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	day := 24 * time.Hour
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d < day:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	default:
		return fmt.Sprintf("%dd %dh", d/day, (d%day)/time.Hour)
	}
}
