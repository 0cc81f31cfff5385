package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/dm/crawlwatch/internal/client"
)

// MockSessionClient implements client.SessionClient for testing.
type MockSessionClient struct {
	StatusFn func(ctx context.Context, id string) (*client.SessionStatus, error)
	StatsFn  func(ctx context.Context) (*client.DashboardStats, error)
	StartFn  func(ctx context.Context, id string) error
	StopFn   func(ctx context.Context, id string) error
	PauseFn  func(ctx context.Context, id string) error

	mu          sync.Mutex
	statusCalls map[string]int
	commands    []string
}

func (m *MockSessionClient) GetSessionStatus(ctx context.Context, id string) (*client.SessionStatus, error) {
	m.mu.Lock()
	if m.statusCalls == nil {
		m.statusCalls = make(map[string]int)
	}
	m.statusCalls[id]++
	m.mu.Unlock()
	if m.StatusFn != nil {
		return m.StatusFn(ctx, id)
	}
	return &client.SessionStatus{Status: "running", ProgressPercentage: 10, URLsDiscovered: 10, URLsProcessed: 1}, nil
}

func (m *MockSessionClient) GetDashboardStats(ctx context.Context) (*client.DashboardStats, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx)
	}
	return &client.DashboardStats{}, nil
}

func (m *MockSessionClient) record(cmd string) {
	m.mu.Lock()
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()
}

func (m *MockSessionClient) StartSession(ctx context.Context, id string) error {
	m.record("start " + id)
	if m.StartFn != nil {
		return m.StartFn(ctx, id)
	}
	return nil
}

func (m *MockSessionClient) StopSession(ctx context.Context, id string) error {
	m.record("stop " + id)
	if m.StopFn != nil {
		return m.StopFn(ctx, id)
	}
	return nil
}

func (m *MockSessionClient) PauseSession(ctx context.Context, id string) error {
	m.record("pause " + id)
	if m.PauseFn != nil {
		return m.PauseFn(ctx, id)
	}
	return nil
}

func (m *MockSessionClient) Ping(ctx context.Context) error {
	return nil
}

func (m *MockSessionClient) BaseURL() string {
	return "http://mock:8000"
}

// StatusCalls returns how many status fetches id has seen.
func (m *MockSessionClient) StatusCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls[id]
}

// Commands returns the commands sent so far, e.g. "stop 3".
func (m *MockSessionClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

var errMockFailure = errors.New("mock failure")
