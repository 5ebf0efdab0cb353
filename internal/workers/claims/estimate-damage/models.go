// internal/workers/claims/estimate-damage/models.go
package estimatedamage

import "crop-claims/internal/models"

// Input carries either a structured observation or free text. Weather wins
// when both are set.
type Input struct {
	Weather *models.WeatherObservation `json:"weather,omitempty"`
	Data    string                     `json:"data,omitempty"`
}

type Output struct {
	DamagePercent int    `json:"damagePercent"`
	Reply         string `json:"-"`
}
