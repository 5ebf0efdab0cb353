// internal/models/policy.go
package models

import "math/big"

// Policy is the read-only view of a ledger policy record.
type Policy struct {
	ID                int64    `json:"policyId"`
	Farmer            string   `json:"farmer"`
	FarmName          string   `json:"farmName"`
	Lat               *big.Int `json:"lat"`
	Lng               *big.Int `json:"lng"`
	Acreage           *big.Int `json:"acreage"`
	RiskType          string   `json:"riskType"`
	RainfallThreshold *big.Int `json:"rainfallThreshold"`
	StartDate         *big.Int `json:"startDate"`
	EndDate           *big.Int `json:"endDate"`
	PremiumPaid       *big.Int `json:"premiumPaid"`
	Claimed           bool     `json:"claimed"`
	Active            bool     `json:"active"`
}

const (
	PolicyStatusActive   = "active"
	PolicyStatusClaimed  = "claimed"
	PolicyStatusInactive = "inactive"
)

// Status derives the display status from the claimed and active flags.
func (p Policy) Status() string {
	switch {
	case p.Claimed:
		return PolicyStatusClaimed
	case p.Active:
		return PolicyStatusActive
	default:
		return PolicyStatusInactive
	}
}
