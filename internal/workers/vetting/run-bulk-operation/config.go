// internal/workers/vetting/run-bulk-operation/config.go
package runbulkoperation

import (
	"time"

	"vetting-engine/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// NewConfig derives the handler config from the worker section, defaulting
// the timeout to 10 minutes.
func NewConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Config{Timeout: timeout}
}
