package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Status represents whether a dev server port accepts connections
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"

	// DialTimeout bounds a single port probe.
	DialTimeout = 500 * time.Millisecond
)

// CheckPort reports whether host:port accepts TCP connections.
func CheckPort(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), DialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// PortStatus returns the Status of host:port.
func PortStatus(host string, port int) Status {
	if CheckPort(host, port) {
		return StatusUp
	}
	return StatusDown
}

// WaitForPort polls host:port until it accepts connections or ctx is done.
func WaitForPort(ctx context.Context, host string, port int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if CheckPort(host, port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("port %d not ready: %w", port, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Uptime returns the time since start in human-readable format.
func Uptime(start time.Time) string {
	if start.IsZero() {
		return "unknown"
	}
	return formatDuration(time.Since(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
