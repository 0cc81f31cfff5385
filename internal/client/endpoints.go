package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dm/crawlwatch/internal/model"
)

const (
	endpointSessionStatus  = "/sessions/%s/status"
	endpointSessionStart   = "/sessions/%s/start"
	endpointSessionStop    = "/sessions/%s/stop"
	endpointSessionPause   = "/sessions/%s/pause"
	endpointDashboardStats = "/dashboard/stats"
)

func sessionPath(format, id string) string {
	return fmt.Sprintf(format, url.PathEscape(id))
}

// GetSessionStatus fetches one session's status from /sessions/{id}/status.
func (c *DefaultClient) GetSessionStatus(ctx context.Context, id string) (*SessionStatus, error) {
	if id == "" {
		return nil, fmt.Errorf("GetSessionStatus: session id must not be empty")
	}
	body, err := c.doGet(ctx, sessionPath(endpointSessionStatus, id))
	if err != nil {
		return nil, fmt.Errorf("GetSessionStatus %s: %w", id, err)
	}
	var result SessionStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("GetSessionStatus %s decode: %w: %w", id, model.ErrParse, err)
	}
	return &result, nil
}

// GetDashboardStats fetches aggregate counts from /dashboard/stats.
func (c *DefaultClient) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	body, err := c.doGet(ctx, endpointDashboardStats)
	if err != nil {
		return nil, fmt.Errorf("GetDashboardStats: %w", err)
	}
	var result DashboardStats
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("GetDashboardStats decode: %w: %w", model.ErrParse, err)
	}
	return &result, nil
}

// StartSession starts (or resumes) a session.
func (c *DefaultClient) StartSession(ctx context.Context, id string) error {
	return c.command(ctx, "StartSession", endpointSessionStart, id)
}

// StopSession stops a session. Callers are expected to have confirmed.
func (c *DefaultClient) StopSession(ctx context.Context, id string) error {
	return c.command(ctx, "StopSession", endpointSessionStop, id)
}

// PauseSession pauses a running session.
func (c *DefaultClient) PauseSession(ctx context.Context, id string) error {
	return c.command(ctx, "PauseSession", endpointSessionPause, id)
}

func (c *DefaultClient) command(ctx context.Context, op, format, id string) error {
	if id == "" {
		return fmt.Errorf("%s: session id must not be empty", op)
	}
	if err := c.doPost(ctx, sessionPath(format, id)); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}
