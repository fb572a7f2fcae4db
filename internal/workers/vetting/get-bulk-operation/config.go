// internal/workers/vetting/get-bulk-operation/config.go
package getbulkoperation

import (
	"time"

	"vetting-engine/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func NewConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
