// internal/workers/claims/notify-claim/models.go
package notifyclaim

import "crop-claims/internal/models"

type Input = models.ClaimEvent

type Output struct {
	Notifications []models.Notification `json:"notifications"`
}

// Status folds the per-channel results: sent if any channel delivered,
// failed if any channel failed, disabled otherwise.
func (o *Output) Status() string {
	status := models.NotificationDisabled
	for _, n := range o.Notifications {
		switch n.Status {
		case models.NotificationSent:
			return models.NotificationSent
		case models.NotificationFailed:
			status = models.NotificationFailed
		}
	}
	return status
}

// Operator alert types
const (
	AlertFallbackPayout    = "fallback_payout"
	AlertUnconfirmedPayout = "unconfirmed_payout"
)
