package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v3"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/format"
	"github.com/dm/crawlwatch/internal/model"
	"github.com/dm/crawlwatch/internal/transport"
)

type sessionJSON struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status,omitempty"`
	ProgressPercentage float64 `json:"progress_percentage"`
	URLsDiscovered     int64   `json:"total_urls_discovered"`
	URLsProcessed      int64   `json:"total_urls_processed"`
	FilesFound         int64   `json:"total_files_found"`
	Errors             int64   `json:"total_errors"`
	Error              string  `json:"error,omitempty"`
}

type statsJSON struct {
	Server        client.DashboardStats `json:"server"`
	Discrepancies []discrepancyJSON     `json:"discrepancies,omitempty"`
}

type discrepancyJSON struct {
	Field   string `json:"field"`
	Server  int64  `json:"server"`
	Derived int64  `json:"derived"`
}

// fetch polls every id once, concurrently, bounded by poll.concurrency.
func fetch(ctx context.Context, f transport.StatusFetcher, ids []string, limit int) []transport.PollResult {
	var seq atomic.Uint64
	return transport.FetchStatuses(ctx, f, ids, limit, func() uint64 { return seq.Add(1) }, time.Now, nil)
}

// Status fetches and prints each session's status.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return errors.New("at least one session id is required")
	}
	cfg, dc, err := r.newClient(cmd)
	if err != nil {
		return err
	}

	results := fetch(ctx, dc, ids, cfg.Poll.Concurrency)
	failed := 0
	out := make([]sessionJSON, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			failed++
			r.logger.Debug("status fetch failed", "session", res.SessionID, "err", res.Err)
			out = append(out, sessionJSON{ID: res.SessionID, Error: res.Err.Error()})
			continue
		}
		s := res.Snapshot
		out = append(out, sessionJSON{
			ID:                 s.SessionID,
			Status:             s.Status.String(),
			ProgressPercentage: s.ProgressPercentage,
			URLsDiscovered:     s.URLsDiscovered,
			URLsProcessed:      s.URLsProcessed,
			FilesFound:         s.FilesFound,
			Errors:             s.Errors,
		})
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(out, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else if err := r.writePlain("%s\n", renderStatusTable(results)); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d sessions could not be fetched", model.ErrTransport, failed, len(ids))
	}
	return nil
}

func renderStatusTable(results []transport.PollResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false).
		Headers("SESSION", "STATUS", "PROGRESS", "URLS", "FILES", "ERRORS")
	for _, res := range results {
		if res.Err != nil {
			t.Row(res.SessionID, "error", res.Err.Error(), "", "", "")
			continue
		}
		s := res.Snapshot
		t.Row(
			s.SessionID,
			s.Label(),
			format.FormatPercent(s.ProgressPercentage),
			format.FormatNumber(s.URLsProcessed)+"/"+format.FormatNumber(s.URLsDiscovered),
			format.FormatNumber(s.FilesFound),
			format.FormatNumber(s.Errors),
		)
	}
	return t.Render()
}

// Stats prints the server's dashboard stats. With session ids, the stats are
// cross-checked against the totals derived from those sessions.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	cfg, dc, err := r.newClient(cmd)
	if err != nil {
		return err
	}
	stats, err := dc.GetDashboardStats(ctx)
	if err != nil {
		return err
	}

	var discrepancies []engine.Discrepancy
	if ids := cmd.Args().Slice(); len(ids) > 0 {
		var snaps []model.Snapshot
		for _, res := range fetch(ctx, dc, ids, cfg.Poll.Concurrency) {
			if res.Err != nil {
				r.logger.Warn("status fetch failed", "session", res.SessionID, "err", res.Err)
				continue
			}
			snaps = append(snaps, res.Snapshot)
		}
		discrepancies = engine.CrossCheck(*stats, engine.Aggregate(snaps))
	}

	if cmd.Bool("json") {
		out := statsJSON{Server: *stats}
		for _, d := range discrepancies {
			out.Discrepancies = append(out.Discrepancies, discrepancyJSON(d))
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	if err := r.writePlain("Sessions:  %s total, %s active, %s completed, %s failed\n",
		format.FormatNumber(int64(stats.TotalSessions)),
		format.FormatNumber(int64(stats.ActiveSessions)),
		format.FormatNumber(int64(stats.CompletedSessions)),
		format.FormatNumber(int64(stats.FailedSessions))); err != nil {
		return err
	}
	if err := r.writePlain("Files:     %s\n", format.FormatNumber(stats.TotalFilesFound)); err != nil {
		return err
	}
	for _, d := range discrepancies {
		if err := r.writePlain("Mismatch:  %s server %s, sessions %s\n",
			d.Field, format.FormatNumber(d.Server), format.FormatNumber(d.Derived)); err != nil {
			return err
		}
	}
	return nil
}
