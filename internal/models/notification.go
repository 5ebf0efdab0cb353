// internal/models/notification.go
package models

// Notification records one delivery attempt for a claim event.
type Notification struct {
	ID        string `json:"id"`
	ClaimID   string `json:"claimId"`
	Channel   string `json:"channel"` // "sns", "email"
	Status    string `json:"status"`  // "sent", "failed", "disabled"
	MessageID string `json:"messageId,omitempty"`
	SentAt    string `json:"sentAt"`
}

const (
	ChannelSNS   = "sns"
	ChannelEmail = "email"

	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationDisabled = "disabled"
)
