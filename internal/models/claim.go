// internal/models/claim.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ClaimRequest is one assessment run for a policy at a field location.
type ClaimRequest struct {
	FarmerAddress string  `json:"address"`
	PolicyID      int64   `json:"policyId"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
}

// UnmarshalJSON accepts policyId as a JSON number or a decimal string, since
// wallet frontends send ledger ids either way.
func (r *ClaimRequest) UnmarshalJSON(data []byte) error {
	type alias ClaimRequest
	aux := struct {
		*alias
		PolicyID json.Number `json:"policyId"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PolicyID == "" {
		r.PolicyID = 0
		return nil
	}
	id, err := strconv.ParseInt(aux.PolicyID.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("policyId %q is not an integer", aux.PolicyID.String())
	}
	r.PolicyID = id
	return nil
}

// DamageAssessment holds a validated damage percentage in [0, 100].
type DamageAssessment struct {
	Percent int `json:"damagePercent"`
}

type ClaimDecision struct {
	Payout    bool   `json:"payout"`
	Percent   int    `json:"damagePercent"`
	Rationale string `json:"rationale"`
}

// PayoutReceipt exists only for a mined issuePayout transaction.
type PayoutReceipt struct {
	TransactionHash string `json:"transactionHash"`
	PolicyID        int64  `json:"policyId"`
	Percent         int    `json:"damagePercent"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	PayoutAmountWei string `json:"payoutAmountWei,omitempty"`
}

// Stage names, used in errors, metrics and spans.
const (
	StageWeather    = "weather"
	StageEstimation = "estimation"
	StageDecision   = "decision"
	StagePayout     = "payout"
	StageImage      = "image_analysis"
)

type ClaimOutcome string

const (
	OutcomePayoutIssued ClaimOutcome = "payout_issued"
	OutcomeNoPayout     ClaimOutcome = "no_payout"
	OutcomeFailed       ClaimOutcome = "failed"
)

// ClaimResult is the terminal state of a claim run. Receipt is set only for
// OutcomePayoutIssued; Err and FailedStage only for OutcomeFailed.
type ClaimResult struct {
	ClaimID       string         `json:"claimId"`
	Outcome       ClaimOutcome   `json:"outcome"`
	Percent       int            `json:"damagePercent"`
	Reason        string         `json:"reason,omitempty"`
	Receipt       *PayoutReceipt `json:"receipt,omitempty"`
	WeatherSource string         `json:"weatherSource,omitempty"`
	FailedStage   string         `json:"failedStage,omitempty"`
	Err           error          `json:"-"`
	ProcessedAt   time.Time      `json:"processedAt"`
}

// ClaimEvent is published after each processed claim.
type ClaimEvent struct {
	ClaimID         string       `json:"claimId"`
	PolicyID        int64        `json:"policyId"`
	FarmerAddress   string       `json:"farmerAddress"`
	Outcome         ClaimOutcome `json:"outcome"`
	DamagePercent   int          `json:"damagePercent"`
	TransactionHash string       `json:"transactionHash,omitempty"`
	WeatherSource   string       `json:"weatherSource,omitempty"`
	ErrorCode       string       `json:"errorCode,omitempty"`
	FailedStage     string       `json:"failedStage,omitempty"`
	ProcessedAt     string       `json:"processedAt"`
}

// EstimateResponse is the body of the standalone estimation endpoint and is
// echoed under "damage" in claim responses.
type EstimateResponse struct {
	Res string `json:"res"`
}

// ClaimResponse is returned to callers of the claim endpoint and the
// process-claim job.
type ClaimResponse struct {
	Success         bool              `json:"success"`
	ClaimID         string            `json:"claimId"`
	Damage          *EstimateResponse `json:"damage,omitempty"`
	DamagePercent   int               `json:"damagePercent"`
	PayoutIssued    bool              `json:"payoutIssued"`
	TransactionHash string            `json:"transactionHash,omitempty"`
	Message         string            `json:"message,omitempty"`
	WeatherSource   string            `json:"weatherSource,omitempty"`
}

// NewClaimResponse maps a successful result. Failed results have no response
// body beyond the generic error envelope.
func NewClaimResponse(result *ClaimResult) *ClaimResponse {
	resp := &ClaimResponse{
		Success:       true,
		ClaimID:       result.ClaimID,
		Damage:        &EstimateResponse{Res: strconv.Itoa(result.Percent)},
		DamagePercent: result.Percent,
		WeatherSource: result.WeatherSource,
	}
	switch result.Outcome {
	case OutcomePayoutIssued:
		resp.PayoutIssued = true
		if result.Receipt != nil {
			resp.TransactionHash = result.Receipt.TransactionHash
		}
	case OutcomeNoPayout:
		resp.Message = result.Reason
	}
	return resp
}
