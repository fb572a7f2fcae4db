// internal/workers/vetting/submit-application/config.go
package submitapplication

import (
	"time"

	"vetting-engine/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// NewConfig derives the handler config from the worker section, defaulting
// the timeout to 30 seconds.
func NewConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
