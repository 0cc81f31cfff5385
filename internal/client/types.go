package client

import (
	"fmt"
	"time"

	"github.com/dm/crawlwatch/internal/model"
)

// SessionStatus is the payload of GET /sessions/{id}/status and of every
// push stream update.
type SessionStatus struct {
	Status             string     `json:"status"`
	StatusDisplay      string     `json:"status_display,omitempty"`
	ProgressPercentage float64    `json:"progress_percentage"`
	URLsDiscovered     int64      `json:"total_urls_discovered"`
	URLsProcessed      int64      `json:"total_urls_processed"`
	FilesFound         int64      `json:"total_files_found"`
	Errors             int64      `json:"total_errors,omitempty"`
	IsActive           *bool      `json:"is_active,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Snapshot converts the payload into a normalized model.Snapshot for the
// given session. ObservedAt, ReceivedAt and Source are left for the
// receiving transport to stamp.
func (s SessionStatus) Snapshot(sessionID string) (model.Snapshot, error) {
	status, err := model.ParseStatus(s.Status)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	snap := model.Snapshot{
		SessionID:          sessionID,
		Status:             status,
		DisplayStatus:      s.StatusDisplay,
		ProgressPercentage: s.ProgressPercentage,
		URLsDiscovered:     s.URLsDiscovered,
		URLsProcessed:      s.URLsProcessed,
		FilesFound:         s.FilesFound,
		Errors:             s.Errors,
	}
	if s.StartedAt != nil {
		snap.StartedAt = *s.StartedAt
	}
	if s.CompletedAt != nil {
		snap.CompletedAt = *s.CompletedAt
	}
	if err := snap.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	return snap.Normalize(), nil
}

// DashboardStats is the payload of GET /dashboard/stats. Informational only;
// per-session state always comes from the session endpoints.
type DashboardStats struct {
	TotalSessions     int   `json:"total_sessions"`
	ActiveSessions    int   `json:"active_sessions"`
	CompletedSessions int   `json:"completed_sessions"`
	FailedSessions    int   `json:"failed_sessions"`
	TotalFilesFound   int64 `json:"total_files_found"`
}
