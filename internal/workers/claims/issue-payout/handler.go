// internal/workers/claims/issue-payout/handler.go
package issuepayout

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/ledger"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "issue-payout"

	credentialName = "AGENT_PRIVATE_KEY"
)

// Ledger is the contract surface used for one payout.
type Ledger interface {
	GetPolicy(ctx context.Context, policyID int64) (*models.Policy, error)
	SubmitPayout(ctx context.Context, policyID int64, percent int) (string, error)
	WaitMined(ctx context.Context, txHash string) (*ledger.Receipt, error)
	Close()
}

// LedgerDialer opens a ledger client. It is called once per payout, and
// never when the signing key is missing.
type LedgerDialer func(ctx context.Context, cfg ledger.Config) (Ledger, error)

// DialContract is the production LedgerDialer.
func DialContract(ctx context.Context, cfg ledger.Config) (Ledger, error) {
	return ledger.Dial(ctx, cfg)
}

// Locker serialises payouts per policy across replicas.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type Handler struct {
	config       *Config
	dial         LedgerDialer
	locker       Locker
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

// NewHandler builds the payout stage. locker may be nil, in which case no
// cross-replica lock is taken.
func NewHandler(config *Config, dial LedgerDialer, locker Locker, log logger.Logger) *Handler {
	if dial == nil {
		dial = DialContract
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		dial:         dial,
		locker:       locker,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
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
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)).WithStage(models.StagePayout))
		return
	}

	output, err := h.Execute(context.Background(), &input)
	if err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

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

// Execute submits issuePayout and blocks until the transaction is mined.
// A policy that is already claimed or inactive is never resubmitted.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.PrivateKey == "" {
		return nil, apperrors.NewMissingCredentialError(credentialName).WithStage(models.StagePayout)
	}
	if input.PolicyID < 0 || input.DamagePercent < 0 || input.DamagePercent > 100 {
		return nil, apperrors.NewInvalidRequestError(
			fmt.Sprintf("policyId %d, damagePercent %d", input.PolicyID, input.DamagePercent)).WithStage(models.StagePayout)
	}

	log := h.logger.WithFields(map[string]interface{}{
		"policyId":      input.PolicyID,
		"damagePercent": input.DamagePercent,
	})

	release, err := h.lock(ctx, input.PolicyID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Dial, policy read and submission share one deadline; confirmation has
	// its own.
	submitCtx, cancelSubmit := context.WithTimeout(ctx, h.config.SubmitTimeout)
	defer cancelSubmit()

	client, err := h.dial(submitCtx, ledger.Config{
		RPCURL:          h.config.RPCURL,
		PrivateKey:      h.config.PrivateKey,
		ContractAddress: h.config.ContractAddress,
	})
	if err != nil {
		return nil, apperrors.NewPayoutSubmissionFailedError(err).WithStage(models.StagePayout)
	}
	defer client.Close()

	policy, err := client.GetPolicy(submitCtx, input.PolicyID)
	if err != nil {
		return nil, apperrors.NewPayoutSubmissionFailedError(err).WithStage(models.StagePayout)
	}
	switch policy.Status() {
	case models.PolicyStatusClaimed:
		return nil, apperrors.NewAlreadyClaimedError(input.PolicyID).WithStage(models.StagePayout)
	case models.PolicyStatusInactive:
		return nil, apperrors.NewPolicyInactiveError(input.PolicyID).WithStage(models.StagePayout)
	}

	txHash, err := client.SubmitPayout(submitCtx, input.PolicyID, input.DamagePercent)
	if err != nil {
		return nil, apperrors.NewPayoutSubmissionFailedError(err).WithStage(models.StagePayout)
	}
	log.Info("payout submitted", map[string]interface{}{"transactionHash": txHash})

	waitCtx, cancel := context.WithTimeout(ctx, h.config.ConfirmationTimeout)
	defer cancel()

	receipt, err := client.WaitMined(waitCtx, txHash)
	if err != nil {
		if stderrors.Is(err, ledger.ErrTransactionReverted) {
			return nil, apperrors.NewPayoutSubmissionFailedError(err).WithStage(models.StagePayout)
		}
		// The transaction is out; its fate is unknown, so it must not be resent.
		return nil, apperrors.NewPayoutConfirmationTimeoutError(txHash, err).WithStage(models.StagePayout)
	}

	metrics.PayoutsIssued.Inc()
	log.Info("payout confirmed", map[string]interface{}{
		"transactionHash": receipt.TransactionHash,
		"blockNumber":     receipt.BlockNumber,
	})

	out := &Output{
		TransactionHash: receipt.TransactionHash,
		PolicyID:        input.PolicyID,
		DamagePercent:   input.DamagePercent,
		BlockNumber:     receipt.BlockNumber,
	}
	if receipt.PayoutAmountWei != nil {
		out.PayoutAmountWei = receipt.PayoutAmountWei.String()
	}
	return out, nil
}

// LockKey is the Redis key guarding payouts for a policy.
func LockKey(policyID int64) string {
	return fmt.Sprintf("payout:lock:%d", policyID)
}

func (h *Handler) lock(ctx context.Context, policyID int64) (func(), error) {
	if h.locker == nil {
		return func() {}, nil
	}

	key := LockKey(policyID)
	token := uuid.NewString()
	ok, err := h.locker.AcquireLock(ctx, key, token, h.config.EffectiveLockTTL())
	if err != nil {
		return nil, apperrors.NewPayoutSubmissionFailedError(err).WithStage(models.StagePayout)
	}
	if !ok {
		return nil, apperrors.NewPayoutInProgressError(policyID).WithStage(models.StagePayout)
	}

	return func() {
		if err := h.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			h.logger.Warn("failed to release payout lock", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}, nil
}
