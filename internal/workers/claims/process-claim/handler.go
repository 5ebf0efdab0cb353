// internal/workers/claims/process-claim/handler.go
package processclaim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/validation"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "process-claim"
)

// ClaimProcessor runs a claim end to end.
type ClaimProcessor interface {
	ProcessClaim(ctx context.Context, req models.ClaimRequest) *models.ClaimResult
}

type Handler struct {
	config       *Config
	processor    ClaimProcessor
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, processor ClaimProcessor, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		processor:    processor,
		errorHandler: apperrors.NewTerminalErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	// The claim deadline bounds Execute only; the outcome is reported on a
	// fresh context so a timed-out claim still reaches the broker.
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	output, err := h.Execute(ctx, job.Variables)
	cancel()
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

// Execute validates the job variables, runs the claim and maps the result to
// the job output. Failed claims are returned as the stage's StandardError.
func (h *Handler) Execute(ctx context.Context, variables string) (*Output, error) {
	input, err := ParseInput(variables)
	if err != nil {
		return nil, err
	}

	result := h.processor.ProcessClaim(ctx, *input)
	if result.Outcome == models.OutcomeFailed {
		return nil, result.Err
	}
	return models.NewClaimResponse(result), nil
}

// ParseInput checks the variables against the claim schema before decoding.
func ParseInput(variables string) (*Input, error) {
	check, err := validation.ClaimRequestValidator.Validate(variables)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
	}
	if !check.Valid {
		return nil, apperrors.NewInvalidRequestError(strings.Join(check.GetErrorMessages(), "; "))
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}
