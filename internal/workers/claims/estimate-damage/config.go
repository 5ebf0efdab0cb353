// internal/workers/claims/estimate-damage/config.go
package estimatedamage

import (
	"time"

	"crop-claims/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

func FromAppConfig(cfg config.EstimatorConfig) *Config {
	c := LoadConfig()
	if cfg.Timeout > 0 {
		c.Timeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	return c
}
