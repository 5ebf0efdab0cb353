// internal/workers/claims/issue-payout/config.go
package issuepayout

import (
	"time"

	"crop-claims/internal/common/config"
)

type Config struct {
	RPCURL              string
	PrivateKey          string
	ContractAddress     string
	SubmitTimeout       time.Duration
	ConfirmationTimeout time.Duration
	LockTTL             time.Duration
}

// lockMargin covers lock round trips and release after the last ledger call.
const lockMargin = 10 * time.Second

func LoadConfig() *Config {
	return &Config{
		ContractAddress:     "0x1De440d6DcdA19B67BCfA1358e71713df22d5a76",
		SubmitTimeout:       15 * time.Second,
		ConfirmationTimeout: 60 * time.Second,
		LockTTL:             2 * time.Minute,
	}
}

func FromAppConfig(cfg config.LedgerConfig) *Config {
	c := LoadConfig()
	c.RPCURL = cfg.RPCURL
	c.PrivateKey = cfg.PrivateKey
	if cfg.ContractAddress != "" {
		c.ContractAddress = cfg.ContractAddress
	}
	if cfg.SubmitTimeout > 0 {
		c.SubmitTimeout = time.Duration(cfg.SubmitTimeout) * time.Millisecond
	}
	if cfg.ConfirmationTimeout > 0 {
		c.ConfirmationTimeout = time.Duration(cfg.ConfirmationTimeout) * time.Millisecond
	}
	if cfg.LockTTL > 0 {
		c.LockTTL = time.Duration(cfg.LockTTL) * time.Millisecond
	}
	return c
}

// EffectiveLockTTL never lets the payout lock expire while a payout can
// still be in flight.
func (c *Config) EffectiveLockTTL() time.Duration {
	floor := c.SubmitTimeout + c.ConfirmationTimeout + lockMargin
	if c.LockTTL < floor {
		return floor
	}
	return c.LockTTL
}
