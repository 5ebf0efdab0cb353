// internal/workers/claims/process-claim/config.go
package processclaim

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 110 * time.Second,
	}
}
