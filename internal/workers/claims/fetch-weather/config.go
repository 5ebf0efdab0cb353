// internal/workers/claims/fetch-weather/config.go
package fetchweather

import (
	"time"

	"crop-claims/internal/common/config"
	"crop-claims/internal/models"
)

type Config struct {
	CallTimeout  time.Duration
	RadiusMeters int
	Fallback     models.WeatherObservation
}

func LoadConfig() *Config {
	return &Config{
		CallTimeout:  10 * time.Second,
		RadiusMeters: 10000,
		Fallback:     models.DefaultFallbackObservation,
	}
}

// FromAppConfig builds the stage config from the weather section.
func FromAppConfig(cfg config.WeatherConfig) *Config {
	c := LoadConfig()
	if cfg.Timeout > 0 {
		c.CallTimeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	if cfg.RadiusMeters > 0 {
		c.RadiusMeters = cfg.RadiusMeters
	}
	c.Fallback = models.WeatherObservation{
		RainfallMM:   cfg.Fallback.RainfallMM,
		TemperatureC: cfg.Fallback.TemperatureC,
		HumidityPct:  cfg.Fallback.HumidityPct,
		WindSpeed:    cfg.Fallback.WindSpeed,
		Description:  cfg.Fallback.Description,
	}
	if c.Fallback.Description == "" {
		c.Fallback = models.DefaultFallbackObservation
	}
	return c
}
