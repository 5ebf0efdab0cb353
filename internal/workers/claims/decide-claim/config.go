// internal/workers/claims/decide-claim/config.go
package decideclaim

import "crop-claims/internal/common/config"

const DefaultThresholdPercent = 20

type Config struct {
	ThresholdPercent int
}

func LoadConfig() *Config {
	return &Config{ThresholdPercent: DefaultThresholdPercent}
}

func FromAppConfig(cfg config.DecisionConfig) *Config {
	return &Config{ThresholdPercent: cfg.PayoutThresholdPercent}
}
