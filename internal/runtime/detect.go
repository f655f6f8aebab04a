package runtime

import (
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-preview/internal/config"
)

// New creates the runtime named by cfg.Runtime.
func New(cfg config.SandboxConfig) (Runtime, error) {
	switch cfg.Runtime {
	case config.RuntimeLocal, "":
		interval := cfg.ProbeInterval.Duration
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
		return NewLocal(LocalOptions{
			WorkDir:       cfg.WorkDir,
			KeepWorkDir:   cfg.KeepWorkDir,
			ReadyPorts:    []int{cfg.DevPort},
			ReadyHost:     "http://localhost",
			ProbeInterval: interval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sandbox runtime: %s", cfg.Runtime)
	}
}
