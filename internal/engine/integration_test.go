//go:build integration

package engine_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dm/crawlwatch/internal/client"
	"github.com/dm/crawlwatch/internal/engine"
	"github.com/dm/crawlwatch/internal/model"
	"github.com/dm/crawlwatch/internal/transport"
)

// liveClient creates a DefaultClient from $CRAWLWATCH_URL or skips the test
// if unset.
func liveClient(t *testing.T) *client.DefaultClient {
	t.Helper()
	uri := os.Getenv("CRAWLWATCH_URL")
	if uri == "" {
		t.Skip("CRAWLWATCH_URL not set; skipping integration test")
	}
	c, err := client.NewDefaultClient(client.ClientConfig{
		BaseURL:        uri,
		Username:       os.Getenv("CRAWLWATCH_USERNAME"),
		Password:       os.Getenv("CRAWLWATCH_PASSWORD"),
		SessionCookie:  os.Getenv("CRAWLWATCH_SESSION_COOKIE"),
		RequestTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	return c
}

// TestLiveServer_DashboardStats checks the stats endpoint answers with
// sane totals.
func TestLiveServer_DashboardStats(t *testing.T) {
	c := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := c.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalSessions, stats.ActiveSessions)
	assert.GreaterOrEqual(t, stats.TotalSessions, stats.CompletedSessions+stats.FailedSessions)
}

// TestLiveServer_TrackSession tracks $CRAWLWATCH_SESSION through the engine
// and waits for its first snapshot.
func TestLiveServer_TrackSession(t *testing.T) {
	c := liveClient(t)
	id := os.Getenv("CRAWLWATCH_SESSION")
	if id == "" {
		t.Skip("CRAWLWATCH_SESSION not set; skipping")
	}

	var src transport.Source
	if strings.HasPrefix(c.BaseURL(), "http") {
		src = &transport.WebSocketSource{
			URL:        "ws" + strings.TrimPrefix(strings.TrimSuffix(c.BaseURL(), "/"), "http") + "/ws/crawler/",
			HTTPClient: c.HTTPClient(),
			Header:     c.AuthHeader(),
		}
	}
	e, err := engine.New(engine.Options{
		Client: c,
		Source: src,
		Config: engine.Config{Poll: transport.PollerConfig{Interval: 2 * time.Second}},
	})
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	e.Track(id)
	require.Eventually(t, func() bool {
		_, ok := e.CurrentSnapshot(id)
		return ok
	}, 20*time.Second, 100*time.Millisecond)

	s, _ := e.CurrentSnapshot(id)
	assert.NotEqual(t, model.StatusUnknown, s.Status)
	assert.LessOrEqual(t, s.URLsProcessed, s.URLsDiscovered)
	assert.True(t, e.ChannelState(model.ChannelPoll).Live())
}
