// internal/workers/claims/notify-claim/handler.go
package notifyclaim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"
	"crop-claims/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	TaskType = "notify-claim"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config       *Config
	sesClient    SESService
	snsClient    SNSService
	templates    map[string]map[string]string
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
	clock        clockwork.Clock
}

// NewHandler wires the notifier. Either client may be nil when its channel
// is disabled.
func NewHandler(config *Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		sesClient:    sesClient,
		snsClient:    snsClient,
		templates:    loadTemplates(),
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
		clock:        clockwork.NewRealClock(),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output := h.Execute(context.Background(), &input)

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Notify is the best-effort hook used by the claim pipeline.
func (h *Handler) Notify(ctx context.Context, event models.ClaimEvent) {
	out := h.Execute(ctx, &event)
	h.logger.Debug("claim notifications done", map[string]interface{}{
		"claimId": event.ClaimID,
		"status":  out.Status(),
	})
}

// Execute publishes the event and, when warranted, alerts operators. Delivery
// failures are recorded in the output and never returned as errors.
func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	out := &Output{}
	out.Notifications = append(out.Notifications, h.publish(ctx, input))
	if alert := alertType(input); alert != "" {
		out.Notifications = append(out.Notifications, h.alertOperators(ctx, input, alert)...)
	}

	for _, n := range out.Notifications {
		metrics.NotificationsSent.WithLabelValues(n.Channel, n.Status).Inc()
	}
	return out
}

func (h *Handler) publish(ctx context.Context, event *Input) models.Notification {
	n := h.newNotification(event.ClaimID, models.ChannelSNS)
	if !h.config.SNSEnabled || h.snsClient == nil {
		n.Status = models.NotificationDisabled
		return n
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.Status = models.NotificationFailed
		return n
	}

	resp, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(h.config.TopicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(string(event.Outcome))},
		},
	})
	if err != nil {
		h.logger.Error("claim event publish failed", map[string]interface{}{
			"claimId": event.ClaimID,
			"error":   err.Error(),
		})
		n.Status = models.NotificationFailed
		return n
	}

	n.Status = models.NotificationSent
	if resp != nil && resp.MessageId != nil {
		n.MessageID = *resp.MessageId
	}
	return n
}

func (h *Handler) alertOperators(ctx context.Context, event *Input, alert string) []models.Notification {
	if !h.config.EmailEnabled || h.sesClient == nil || len(h.config.OperatorEmails) == 0 {
		n := h.newNotification(event.ClaimID, models.ChannelEmail)
		n.Status = models.NotificationDisabled
		return []models.Notification{n}
	}

	tmpl := h.templates[alert]
	data := map[string]interface{}{
		"claimId":         event.ClaimID,
		"policyId":        event.PolicyID,
		"farmerAddress":   event.FarmerAddress,
		"damagePercent":   event.DamagePercent,
		"transactionHash": event.TransactionHash,
		"processedAt":     event.ProcessedAt,
	}
	subject := renderTemplate(tmpl["subject"], data)
	body := renderTemplate(tmpl["body"], data)

	var sent []models.Notification
	for _, to := range h.config.OperatorEmails {
		n := h.newNotification(event.ClaimID, models.ChannelEmail)
		resp, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
			Destination: &types.Destination{ToAddresses: []string{to}},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
			Source: aws.String(h.config.FromEmail),
		})
		if err != nil {
			h.logger.Error("operator alert failed", map[string]interface{}{
				"claimId": event.ClaimID,
				"email":   to,
				"error":   err.Error(),
			})
			n.Status = models.NotificationFailed
		} else {
			n.Status = models.NotificationSent
			if resp != nil && resp.MessageId != nil {
				n.MessageID = *resp.MessageId
			}
		}
		sent = append(sent, n)
	}
	return sent
}

func (h *Handler) newNotification(claimID, channel string) models.Notification {
	return models.Notification{
		ID:      uuid.New().String(),
		ClaimID: claimID,
		Channel: channel,
		SentAt:  h.clock.Now().UTC().Format(time.RFC3339),
	}
}

// alertType picks the operator alert for an event, or "" for none.
func alertType(event *Input) string {
	switch {
	case event.Outcome == models.OutcomePayoutIssued && event.WeatherSource == models.WeatherSourceFallback:
		return AlertFallbackPayout
	case event.Outcome == models.OutcomeFailed && event.ErrorCode == string(apperrors.ErrCodePayoutConfirmationTimeout):
		return AlertUnconfirmedPayout
	default:
		return ""
	}
}

// renderTemplate replaces {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func loadTemplates() map[string]map[string]string {
	return map[string]map[string]string{
		AlertFallbackPayout: {
			"subject": "Payout issued on fallback weather for policy {{policyId}}",
			"body": "Claim {{claimId}} for policy {{policyId}} ({{farmerAddress}}) was paid at {{damagePercent}}% damage " +
				"without a station reading. The assessment used the configured fallback observation.\n" +
				"Transaction: {{transactionHash}}\nProcessed at: {{processedAt}}",
		},
		AlertUnconfirmedPayout: {
			"subject": "Unconfirmed payout for policy {{policyId}}",
			"body": "Claim {{claimId}} submitted a payout for policy {{policyId}} at {{damagePercent}}% damage " +
				"but the transaction was not confirmed in time. Check the ledger before any resubmission.\n" +
				"Transaction: {{transactionHash}}\nProcessed at: {{processedAt}}",
		},
	}
}
