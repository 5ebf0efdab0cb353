// internal/workers/claims/analyze-field-image/config.go
package analyzefieldimage

import (
	"time"

	"crop-claims/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		MaxImageBytes: 10 << 20,
	}
}

func FromAppConfig(cfg config.EstimatorConfig) *Config {
	c := LoadConfig()
	if cfg.ImageTimeout > 0 {
		c.Timeout = time.Duration(cfg.ImageTimeout) * time.Millisecond
	}
	if cfg.MaxImageBytes > 0 {
		c.MaxImageBytes = cfg.MaxImageBytes
	}
	return c
}
