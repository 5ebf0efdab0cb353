// internal/workers/claims/decide-claim/handler.go
package decideclaim

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "decide-claim"
)

// Engine applies the payout rule. It holds no state besides the threshold
// and never fails.
type Engine struct {
	Threshold int
}

func NewEngine(config *Config) Engine {
	return Engine{Threshold: config.ThresholdPercent}
}

// Decide pays out only when damage strictly exceeds the threshold.
func (e Engine) Decide(assessment models.DamageAssessment) models.ClaimDecision {
	if assessment.Percent > e.Threshold {
		return models.ClaimDecision{
			Payout:    true,
			Percent:   assessment.Percent,
			Rationale: fmt.Sprintf("Damage of %d%% exceeds payout threshold of %d%%", assessment.Percent, e.Threshold),
		}
	}
	return models.ClaimDecision{
		Payout:    false,
		Percent:   assessment.Percent,
		Rationale: fmt.Sprintf("Damage is not sufficient for payout (must be > %d%%)", e.Threshold),
	}
}

type Handler struct {
	engine       Engine
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		engine:       NewEngine(config),
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)).WithStage(models.StageDecision))
		return
	}

	output := h.Execute(&input)
	h.logger.Info("claim decided", map[string]interface{}{
		"jobKey":        job.Key,
		"damagePercent": output.DamagePercent,
		"payout":        output.PayoutEligible,
	})

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

func (h *Handler) Execute(input *Input) *Output {
	decision := h.engine.Decide(models.DamageAssessment{Percent: input.DamagePercent})
	return &Output{
		PayoutEligible: decision.Payout,
		DamagePercent:  decision.Percent,
		Rationale:      decision.Rationale,
	}
}
