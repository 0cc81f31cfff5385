package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dm/crawlwatch/internal/model"
)

const (
	errorRateWarning    = 0.10 // errors per processed URL
	errorRateCritical   = 0.50
	minProcessedForRate = 20 // too few URLs for a meaningful error rate
	idleStartGrace      = 5 * time.Minute
)

// AdvisoryInput is everything CalcAdvisories looks at.
type AdvisoryInput struct {
	Snapshots []model.Snapshot
	Poll      model.ChannelState
	Push      model.ChannelState
	// PushEnabled is false when no push source is configured.
	PushEnabled bool
	Polling     bool
	Stats       *StatsReport
	Now         time.Time
}

// CalcAdvisories derives actionable notes from the registry and channel
// states. Results are ordered by severity (critical first), then category.
// Returns an empty (non-nil) slice when everything looks healthy.
func CalcAdvisories(in AdvisoryInput) []model.Advisory {
	result := []model.Advisory{}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	result = append(result, connectivityAdvisories(in)...)

	for _, s := range in.Snapshots {
		result = append(result, sessionAdvisories(s, in.Now)...)
	}

	if failed := failedSessions(in.Snapshots); len(failed) > 0 {
		result = append(result, model.Advisory{
			Severity: model.SeverityWarning,
			Category: model.CategorySessionHealth,
			Title:    fmt.Sprintf("%d failed session(s)", len(failed)),
			Detail:   "Failed sessions: " + listIDs(failed),
		})
	}

	if in.Stats != nil && len(in.Stats.Discrepancies) > 0 {
		parts := make([]string, 0, len(in.Stats.Discrepancies))
		for _, d := range in.Stats.Discrepancies {
			parts = append(parts, fmt.Sprintf("%s server=%d local=%d", d.Field, d.Server, d.Derived))
		}
		result = append(result, model.Advisory{
			Severity: model.SeverityNormal,
			Category: model.CategoryConsistency,
			Title:    "Server totals lag local view",
			Detail:   "Dashboard stats report fewer than observed: " + strings.Join(parts, ", "),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Severity != result[j].Severity {
			return result[i].Severity > result[j].Severity
		}
		return result[i].Category < result[j].Category
	})
	return result
}

func connectivityAdvisories(in AdvisoryInput) []model.Advisory {
	var recs []model.Advisory
	pollDown := in.Poll.Conn == model.Disconnected && in.Poll.Err != nil
	pushDown := in.PushEnabled && !in.Push.Live() && in.Push.Conn != model.Connecting

	switch {
	case pollDown && (pushDown || !in.PushEnabled):
		recs = append(recs, model.Advisory{
			Severity: model.SeverityCritical,
			Category: model.CategoryConnectivity,
			Title:    "Server unreachable",
			Detail:   fmt.Sprintf("Every status fetch in the last cycle failed: %v. Values shown may be stale.", in.Poll.Err),
		})
	case pollDown:
		recs = append(recs, model.Advisory{
			Severity: model.SeverityWarning,
			Category: model.CategoryConnectivity,
			Title:    "Status polling failing",
			Detail:   fmt.Sprintf("Every status fetch in the last cycle failed: %v. Live updates still arrive over the push channel.", in.Poll.Err),
		})
	}

	if pushDown {
		detail := "Push channel is down; updates arrive every poll period only."
		if in.Push.Conn == model.Backoff {
			detail = fmt.Sprintf("Push channel is down; reconnect attempt %d at %s. Updates arrive every poll period only.",
				in.Push.Attempt, in.Push.NextRetryAt.Format("15:04:05"))
		}
		recs = append(recs, model.Advisory{
			Severity: model.SeverityWarning,
			Category: model.CategoryConnectivity,
			Title:    "Live updates unavailable",
			Detail:   detail,
		})
	}

	if !in.Polling {
		recs = append(recs, model.Advisory{
			Severity: model.SeverityNormal,
			Category: model.CategoryConnectivity,
			Title:    "Auto-update paused",
			Detail:   "Periodic polling is off. Press a to resume or r to refresh once.",
		})
	}
	return recs
}

// sessionAdvisories checks one session's error rate and progress.
func sessionAdvisories(s model.Snapshot, now time.Time) []model.Advisory {
	var recs []model.Advisory

	if s.URLsProcessed >= minProcessedForRate && s.Errors > 0 {
		rate := float64(s.Errors) / float64(s.URLsProcessed)
		switch {
		case rate > errorRateCritical:
			recs = append(recs, model.Advisory{
				Severity:  model.SeverityCritical,
				Category:  model.CategorySessionHealth,
				SessionID: s.SessionID,
				Title:     fmt.Sprintf("Session %s: most requests failing", s.SessionID),
				Detail:    fmt.Sprintf("%d errors for %d processed URLs (%.0f%%). Check the target site or stop the session.", s.Errors, s.URLsProcessed, rate*100),
			})
		case rate > errorRateWarning:
			recs = append(recs, model.Advisory{
				Severity:  model.SeverityWarning,
				Category:  model.CategorySessionHealth,
				SessionID: s.SessionID,
				Title:     fmt.Sprintf("Session %s: high error rate", s.SessionID),
				Detail:    fmt.Sprintf("%d errors for %d processed URLs (%.0f%%).", s.Errors, s.URLsProcessed, rate*100),
			})
		}
	}

	if s.Status == model.StatusRunning && s.URLsDiscovered == 0 &&
		!s.StartedAt.IsZero() && now.Sub(s.StartedAt) > idleStartGrace {
		recs = append(recs, model.Advisory{
			Severity:  model.SeverityWarning,
			Category:  model.CategorySessionHealth,
			SessionID: s.SessionID,
			Title:     fmt.Sprintf("Session %s: nothing discovered", s.SessionID),
			Detail:    fmt.Sprintf("Running for %s without discovering a URL. The start URL may be unreachable.", now.Sub(s.StartedAt).Truncate(time.Second)),
		})
	}

	if s.Status.IsTerminal() && s.Status != model.StatusCompleted && s.ProgressPercentage >= 100 {
		recs = append(recs, model.Advisory{
			Severity:  model.SeverityNormal,
			Category:  model.CategorySessionHealth,
			SessionID: s.SessionID,
			Title:     fmt.Sprintf("Session %s ended %s at 100%%", s.SessionID, s.Status),
			Detail:    "All discovered URLs were processed but the session did not complete normally.",
		})
	}
	return recs
}

func failedSessions(snaps []model.Snapshot) []string {
	var ids []string
	for _, s := range snaps {
		if s.Status == model.StatusFailed {
			ids = append(ids, s.SessionID)
		}
	}
	return ids
}

// listIDs joins ids, eliding after the first few.
func listIDs(ids []string) string {
	const maxListed = 5
	if len(ids) <= maxListed {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:maxListed], ", ") + fmt.Sprintf(", ... and %d more", len(ids)-maxListed)
}

// Advisories computes advisories for the engine's current state.
func (e *Engine) Advisories(stats *StatsReport) []model.Advisory {
	return CalcAdvisories(AdvisoryInput{
		Snapshots:   e.Snapshots(),
		Poll:        e.ChannelState(model.ChannelPoll),
		Push:        e.ChannelState(model.ChannelPush),
		PushEnabled: e.PushEnabled(),
		Polling:     e.Polling(),
		Stats:       stats,
		Now:         time.Now(),
	})
}
