package engine

import (
	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/model"
)

// Aggregate folds dashboard totals over snaps.
func Aggregate(snaps []model.Snapshot) model.DashboardAggregate {
	var a model.DashboardAggregate
	for _, s := range snaps {
		a.Total++
		if s.Status.IsActive() {
			a.Active++
		}
		switch s.Status {
		case model.StatusRunning:
			a.Running++
		case model.StatusPaused:
			a.Paused++
		case model.StatusCompleted:
			a.Completed++
		case model.StatusFailed:
			a.Failed++
		case model.StatusCancelled:
			a.Cancelled++
		}
		a.TotalFiles += s.FilesFound
		a.URLsDone += s.URLsProcessed
		a.URLsSeen += s.URLsDiscovered
	}
	return a
}

// Discrepancy is one field where the server's dashboard stats disagree with
// the totals derived from the registry.
type Discrepancy struct {
	Field   string
	Server  int64
	Derived int64
}

// CrossCheck compares server dashboard stats with a derived aggregate.
// The server counts every session it knows about while the registry only
// holds observed ones, so a server total above the derived one is expected
// and only the reverse is reported.
func CrossCheck(server client.DashboardStats, derived model.DashboardAggregate) []Discrepancy {
	fields := []Discrepancy{
		{"total_sessions", int64(server.TotalSessions), int64(derived.Total)},
		{"active_sessions", int64(server.ActiveSessions), int64(derived.Active)},
		{"completed_sessions", int64(server.CompletedSessions), int64(derived.Completed)},
		{"failed_sessions", int64(server.FailedSessions), int64(derived.Failed)},
		{"total_files_found", server.TotalFilesFound, derived.TotalFiles},
	}
	var out []Discrepancy
	for _, d := range fields {
		if d.Derived > d.Server {
			out = append(out, d)
		}
	}
	return out
}
