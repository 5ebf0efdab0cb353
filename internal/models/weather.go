// internal/models/weather.go
package models

// WeatherObservation is the telemetry snapshot handed to damage estimation.
type WeatherObservation struct {
	RainfallMM   float64 `json:"rainfall"`
	TemperatureC float64 `json:"temperature"`
	HumidityPct  float64 `json:"humidity"`
	WindSpeed    float64 `json:"wind_speed"`
	Description  string  `json:"description"`
}

const (
	WeatherSourceStation  = "station"
	WeatherSourceFallback = "fallback"
)

// DefaultFallbackObservation is returned whenever no station reading can be
// obtained. It describes a worst case, so fallback claims are biased toward
// payout; operators can override it under weather.fallback.
var DefaultFallbackObservation = WeatherObservation{
	RainfallMM:   80,
	TemperatureC: 45,
	HumidityPct:  100,
	WindSpeed:    40,
	Description:  "Catastrophic rainfall with extreme temperature causing complete crop destruction",
}
