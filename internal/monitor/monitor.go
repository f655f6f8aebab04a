// Package monitor watches dev server ports and reports when they come up.
package monitor

import (
	"context"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/logging"
)

// ChangeFunc is called when a watched port changes status.
type ChangeFunc func(port int, status health.Status)

// Monitor periodically probes a set of ports.
type Monitor struct {
	interval time.Duration
	host     string
	ports    []int
	onChange ChangeFunc
	check    func(host string, port int) bool
	state    map[int]health.Status
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHost sets the host to probe. The default is 127.0.0.1.
func WithHost(host string) Option {
	return func(m *Monitor) {
		m.host = host
	}
}

// WithCheck replaces the port probe.
func WithCheck(check func(host string, port int) bool) Option {
	return func(m *Monitor) {
		m.check = check
	}
}

// New creates a new Monitor. Every port starts down, so a port that is
// already open reports StatusUp on the first check unless Baseline runs
// first.
func New(interval time.Duration, ports []int, onChange ChangeFunc, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		host:     "127.0.0.1",
		ports:    ports,
		onChange: onChange,
		check:    health.CheckPort,
		state:    make(map[int]health.Status),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, p := range ports {
		m.state[p] = health.StatusDown
	}
	return m
}

// Baseline probes every port once and records the result without reporting
// it, so only later transitions reach the ChangeFunc. Call it before Run.
func (m *Monitor) Baseline(ctx context.Context) {
	for _, port := range m.ports {
		if ctx.Err() != nil {
			return
		}
		if m.check(m.host, port) {
			m.state[port] = health.StatusUp
			logging.Debug("port already in use", "port", port)
		}
	}
}

// Run starts the monitoring loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting port monitor", "interval", m.interval, "ports", m.ports)

	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("port monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every port and reports transitions.
func (m *Monitor) checkAll(ctx context.Context) {
	for _, port := range m.ports {
		if ctx.Err() != nil {
			return
		}

		status := health.StatusDown
		if m.check(m.host, port) {
			status = health.StatusUp
		}
		if status == m.state[port] {
			continue
		}
		m.state[port] = status
		logging.Debug("port status changed", "port", port, "status", status)
		if m.onChange != nil {
			m.onChange(port, status)
		}
	}
}
