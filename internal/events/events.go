package events

import (
	"fmt"
	"time"
)

// Kind classifies session events.
type Kind string

const (
	KindLog         Kind = "log"
	KindStatus      Kind = "status"
	KindServerReady Kind = "server-ready"
	KindProcessExit Kind = "process-exit"
	KindError       Kind = "error"
)

// Level is the severity of a log event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one entry of a session log.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	Level    Level     `json:"level,omitempty"`
	Source   string    `json:"source,omitempty"`
	Message  string    `json:"message"`
	Status   string    `json:"status,omitempty"`
	Port     int       `json:"port,omitempty"`
	URL      string    `json:"url,omitempty"`
	ExitCode int       `json:"exit_code,omitempty"`

	flush chan struct{}
}

// String renders the event as a single log line.
func (e Event) String() string {
	prefix := ""
	if e.Source != "" {
		prefix = "[" + e.Source + "] "
	}
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%sstatus: %s", prefix, e.Message)
	case KindServerReady:
		return fmt.Sprintf("%sserver ready on port %d: %s", prefix, e.Port, e.URL)
	case KindProcessExit:
		return fmt.Sprintf("%sexited with code %d", prefix, e.ExitCode)
	case KindError:
		return fmt.Sprintf("%serror: %s", prefix, e.Message)
	}
	if e.Level == LevelWarn {
		return prefix + "warning: " + e.Message
	}
	if e.Level == LevelError {
		return prefix + "error: " + e.Message
	}
	return prefix + e.Message
}
