package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedABI(t *testing.T) {
	parsed, err := parsedABI()
	require.NoError(t, err)

	for _, name := range []string{"getPolicy", "issuePayout", "getFarmerPolicies"} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, "missing method %s", name)
	}

	ev, ok := parsed.Events["PayoutIssued"]
	require.True(t, ok)
	require.Len(t, ev.Inputs, 3)
	assert.False(t, ev.Inputs[2].Indexed)

	getPolicy := parsed.Methods["getPolicy"]
	require.Len(t, getPolicy.Outputs, 1)
	assert.Len(t, getPolicy.Outputs[0].Type.TupleElems, 12)
}

func TestDial_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "bad contract address",
			cfg:  Config{RPCURL: "http://127.0.0.1:1", ContractAddress: "nope"},
			want: "invalid contract address",
		},
		{
			name: "bad private key",
			cfg: Config{
				RPCURL:          "http://127.0.0.1:1",
				ContractAddress: "0x1De440d6DcdA19B67BCfA1358e71713df22d5a76",
				PrivateKey:      "0xzz",
			},
			want: "parse signing key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Dial(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
