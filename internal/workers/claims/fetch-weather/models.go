// internal/workers/claims/fetch-weather/models.go
package fetchweather

import "crop-claims/internal/models"

type Input struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Output is the observation plus where it came from. FallbackReason is set
// only when Source is "fallback".
type Output struct {
	Observation    models.WeatherObservation `json:"weather"`
	Source         string                    `json:"weatherSource"`
	StationID      string                    `json:"stationId,omitempty"`
	FallbackReason string                    `json:"fallbackReason,omitempty"`
}

const (
	ReasonDiscoveryFailed  = "discovery_failed"
	ReasonNoStations       = "no_stations"
	ReasonReadingFailed    = "reading_failed"
	ReasonReadingMalformed = "reading_malformed"
)
