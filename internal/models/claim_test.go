package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRequest_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int64
		wantErr bool
	}{
		{name: "numeric id", body: `{"address":"0xabc","policyId":7,"lat":1.5,"lng":2}`, want: 7},
		{name: "string id", body: `{"address":"0xabc","policyId":"42","lat":1.5,"lng":2}`, want: 42},
		{name: "missing id", body: `{"address":"0xabc","lat":1.5,"lng":2}`, want: 0},
		{name: "fractional id", body: `{"policyId":1.5}`, wantErr: true},
		{name: "word id", body: `{"policyId":"seven"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ClaimRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.PolicyID)
		})
	}

	var req ClaimRequest
	require.NoError(t, json.Unmarshal([]byte(`{"address":"0xabc","policyId":"3","lat":-12.5,"lng":130.25}`), &req))
	assert.Equal(t, "0xabc", req.FarmerAddress)
	assert.Equal(t, -12.5, req.Latitude)
	assert.Equal(t, 130.25, req.Longitude)
}

func TestNewClaimResponse(t *testing.T) {
	paid := NewClaimResponse(&ClaimResult{
		ClaimID: "c-1",
		Outcome: OutcomePayoutIssued,
		Percent: 80,
		Reason:  "Damage of 80% exceeds payout threshold of 20%",
		Receipt: &PayoutReceipt{TransactionHash: "0xfeed"},
	})
	assert.True(t, paid.Success)
	assert.True(t, paid.PayoutIssued)
	assert.Equal(t, "0xfeed", paid.TransactionHash)
	assert.Empty(t, paid.Message)
	assert.Equal(t, "80", paid.Damage.Res)

	unpaid := NewClaimResponse(&ClaimResult{
		Outcome: OutcomeNoPayout,
		Percent: 10,
		Reason:  "Damage is not sufficient for payout (must be > 20%)",
	})
	assert.False(t, unpaid.PayoutIssued)
	assert.Empty(t, unpaid.TransactionHash)
	assert.Equal(t, "Damage is not sufficient for payout (must be > 20%)", unpaid.Message)

	body, err := json.Marshal(unpaid)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "transactionHash")
}
