// internal/workers/claims/decide-claim/models.go
package decideclaim

type Input struct {
	DamagePercent int `json:"damagePercent"`
}

type Output struct {
	PayoutEligible bool   `json:"payoutEligible"`
	DamagePercent  int    `json:"damagePercent"`
	Rationale      string `json:"rationale"`
}
