// internal/workers/claims/notify-claim/config.go
package notifyclaim

import (
	"time"

	"crop-claims/internal/common/config"
)

type Config struct {
	SNSEnabled     bool
	TopicARN       string
	EmailEnabled   bool
	FromEmail      string
	OperatorEmails []string
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

func FromAppConfig(cfg config.IntegrationConfig) *Config {
	c := LoadConfig()
	c.SNSEnabled = cfg.AWS.SNS.Enabled
	c.TopicARN = cfg.AWS.SNS.TopicARN
	c.EmailEnabled = cfg.AWS.SES.Enabled
	c.FromEmail = cfg.AWS.SES.FromEmail
	c.OperatorEmails = cfg.AWS.SES.OperatorEmails
	return c
}
