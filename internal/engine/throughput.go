package engine

import (
	"github.com/dm/crawlwatch/internal/model"
)

// Sanity bounds for derived rates.
const (
	minTimeDiffSeconds = 1.0
	maxRatePerSec      = 1_000_000.0
)

// clampRate returns 0 if r exceeds maxRatePerSec (bad data), otherwise r.
func clampRate(r float64) float64 {
	if r > maxRatePerSec {
		return 0
	}
	return r
}

// maxFloat64 returns the larger of a and b.
func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// CalcThroughput derives URL and file rates from two consecutive accepted
// snapshots of the same session, using their receipt times.
//
// Returns ok=false when:
//   - prev is nil (first snapshot, no baseline)
//   - the snapshots are less than minTimeDiffSeconds apart
func CalcThroughput(prev, curr *model.Snapshot) (model.ThroughputPoint, bool) {
	if prev == nil || curr == nil {
		return model.ThroughputPoint{}, false
	}
	elapsed := curr.ReceivedAt.Sub(prev.ReceivedAt).Seconds()
	if elapsed < minTimeDiffSeconds {
		return model.ThroughputPoint{}, false
	}

	// A restarted session resets its counters; treat that as no progress.
	urlDelta := maxFloat64(0, float64(curr.URLsProcessed-prev.URLsProcessed))
	fileDelta := maxFloat64(0, float64(curr.FilesFound-prev.FilesFound))

	return model.ThroughputPoint{
		Timestamp: curr.ReceivedAt,
		URLRate:   clampRate(urlDelta / elapsed),
		FileRate:  clampRate(fileDelta / elapsed),
	}, true
}
