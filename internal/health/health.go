// Package health checks the dashboard's dependencies and reports an
// aggregated snapshot.
package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cerebro-dash/apiserver/types"
	"golang.org/x/sync/errgroup"
)

// Component status values.
const (
	StatusHealthy     = "healthy"
	StatusUnhealthy   = "unhealthy"
	StatusUnreachable = "unreachable"
	StatusRunning     = "running"
	StatusStopped     = "stopped"
)

// Overall report values.
const (
	OverallHealthy  = "healthy"
	OverallDegraded = "degraded"
)

// DefaultTimeout bounds a single checker when the aggregator has none set.
const DefaultTimeout = 5 * time.Second

// Checker reports on one dependency. Check never returns an error; failures
// are part of the Status.
type Checker interface {
	Name() string
	Check(ctx context.Context) Status
}

// Status is one component's result. Details are flattened into the JSON
// object next to the standard fields.
type Status struct {
	Status  string
	Error   string
	Code    int
	URL     string
	Details map[string]string
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Details)+4)
	for k, v := range s.Details {
		out[k] = v
	}
	out["status"] = s.Status
	if s.Error != "" {
		out["error"] = s.Error
	}
	if s.Code != 0 {
		out["code"] = s.Code
	}
	if s.URL != "" {
		out["url"] = s.URL
	}
	return json.Marshal(out)
}

// Healthy reports whether the status counts towards an overall healthy report.
func (s Status) Healthy() bool {
	return s.Status == StatusHealthy || s.Status == StatusRunning
}

// Report is an aggregated snapshot keyed by checker name.
type Report struct {
	Components map[string]Status
	Overall    string
	CheckedAt  time.Time
}

func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Components)+2)
	for name, status := range r.Components {
		out[name] = status
	}
	out["overall"] = r.Overall
	out["checked_at"] = r.CheckedAt
	return json.Marshal(out)
}

// Aggregator runs a fixed set of checkers.
type Aggregator struct {
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

func NewAggregator(timeout time.Duration, checkers ...Checker) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{checkers: checkers, timeout: timeout, now: time.Now}
}

// Snapshot runs every checker concurrently, each under the aggregator's
// timeout, and waits for all of them.
func (a *Aggregator) Snapshot(ctx context.Context) Report {
	var (
		mu         sync.Mutex
		components = make(map[string]Status, len(a.checkers))
	)

	var g errgroup.Group
	for _, checker := range a.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			status := checker.Check(cctx)

			mu.Lock()
			components[checker.Name()] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := OverallHealthy
	for _, status := range components {
		if !status.Healthy() {
			overall = OverallDegraded
			break
		}
	}
	return Report{Components: components, Overall: overall, CheckedAt: a.now().UTC()}
}

// HealthEvent wraps a fresh snapshot in a health event.
func (a *Aggregator) HealthEvent(ctx context.Context) (types.Event, error) {
	return types.NewEvent(types.EventKindHealth, a.Snapshot(ctx))
}
