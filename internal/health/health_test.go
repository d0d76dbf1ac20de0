package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cerebro-dash/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name   string
	status Status
	delay  time.Duration
}

func (c staticChecker) Name() string { return c.name }

func (c staticChecker) Check(ctx context.Context) Status {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return Status{Status: StatusUnreachable, Error: ctx.Err().Error()}
		}
	}
	return c.status
}

func TestAggregator_Overall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all healthy", []string{StatusHealthy, StatusRunning}, OverallHealthy},
		{"one stopped", []string{StatusHealthy, StatusStopped}, OverallDegraded},
		{"one unreachable", []string{StatusUnreachable, StatusRunning}, OverallDegraded},
		{"no checkers", nil, OverallHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkers := make([]Checker, len(tt.statuses))
			for i, s := range tt.statuses {
				checkers[i] = staticChecker{name: string(rune('a' + i)), status: Status{Status: s}}
			}
			report := NewAggregator(time.Second, checkers...).Snapshot(context.Background())
			assert.Equal(t, tt.want, report.Overall)
			assert.Len(t, report.Components, len(tt.statuses))
		})
	}
}

func TestAggregator_RunsConcurrentlyUnderTimeout(t *testing.T) {
	agg := NewAggregator(50*time.Millisecond,
		staticChecker{name: "slow1", status: Status{Status: StatusHealthy}, delay: time.Second},
		staticChecker{name: "slow2", status: Status{Status: StatusHealthy}, delay: time.Second},
		staticChecker{name: "fast", status: Status{Status: StatusHealthy}},
	)

	start := time.Now()
	report := agg.Snapshot(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, OverallDegraded, report.Overall)
	assert.Equal(t, StatusUnreachable, report.Components["slow1"].Status)
	assert.Equal(t, StatusHealthy, report.Components["fast"].Status)
}

func TestReport_JSONShape(t *testing.T) {
	agg := NewAggregator(time.Second,
		staticChecker{name: "azerothcore", status: Status{
			Status:  StatusRunning,
			Details: map[string]string{"worldserver": "running", "host": "ac"},
		}},
		staticChecker{name: "vllm", status: Status{Status: StatusUnhealthy, Code: 503}},
	)
	agg.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	event, err := agg.HealthEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.EventKindHealth, event.Kind)
	assert.JSONEq(t, `{
		"azerothcore": {"status": "running", "worldserver": "running", "host": "ac"},
		"vllm": {"status": "unhealthy", "code": 503},
		"overall": "degraded",
		"checked_at": "2025-01-01T00:00:00Z"
	}`, string(event.Payload))
}

func TestHTTPEndpoint(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	status := NewHTTPEndpoint("vllm", ok.URL+"/health", nil).Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, ok.URL+"/health", status.URL)

	status = NewHTTPEndpoint("vllm", failing.URL+"/health", nil).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)

	status = NewHTTPEndpoint("vllm", goneURL+"/health", nil).Check(context.Background())
	assert.Equal(t, StatusUnreachable, status.Status)
	assert.NotEmpty(t, status.Error)
}

func listen(t *testing.T) (*net.TCPListener, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.(*net.TCPListener), l.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestGameServer(t *testing.T) {
	_, world := listen(t)
	_, auth := listen(t)
	soap := closedPort(t)

	status := NewGameServer("127.0.0.1", world, auth, "", soap).Check(context.Background())
	assert.Equal(t, StatusRunning, status.Status)
	assert.Equal(t, map[string]string{
		"worldserver": "running",
		"authserver":  "running",
		"soap":        "unavailable",
		"host":        "127.0.0.1",
	}, status.Details)

	status = NewGameServer("127.0.0.1", closedPort(t), auth, "", soap).Check(context.Background())
	assert.Equal(t, StatusStopped, status.Status)
	assert.Equal(t, "stopped", status.Details["worldserver"])
}

func TestPinger(t *testing.T) {
	healthy := NewPinger("postgresql", func(context.Context) error { return nil })
	assert.Equal(t, "postgresql", healthy.Name())
	assert.Equal(t, StatusHealthy, healthy.Check(context.Background()).Status)

	down := NewPinger("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	status := down.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "dial tcp: refused", status.Error)
}
