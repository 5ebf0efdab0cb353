// internal/workers/claims/issue-payout/models.go
package issuepayout

type Input struct {
	PolicyID      int64 `json:"policyId"`
	DamagePercent int   `json:"damagePercent"`
}

type Output struct {
	TransactionHash string `json:"transactionHash"`
	PolicyID        int64  `json:"policyId"`
	DamagePercent   int    `json:"damagePercent"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	PayoutAmountWei string `json:"payoutAmountWei,omitempty"`
}
