// internal/workers/claims/estimate-damage/handler.go
package estimatedamage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/llm"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "estimate-damage"
)

const systemPrompt = `You are a crop damage calculator. You are given weather data for a farm field and must answer with a single integer between 0 and 100: the estimated percentage of crop damage.

Answer with the number only. No words, no units, no percent sign, no JSON, no explanation.

Correct answers look like:
80
45
0

Incorrect answers look like:
{"damage": "80"}
80% damage
The crop is fully destroyed, so damage is 100.`

// replyPattern is the only accepted reply shape: ASCII digits with optional
// surrounding whitespace.
var replyPattern = regexp.MustCompile(`^\s*([0-9]+)\s*$`)

type Handler struct {
	config       *Config
	chat         llm.ChatClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, chat llm.ChatClient, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		chat:         chat,
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
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)).WithStage(models.StageEstimation))
		return
	}

	output, err := h.Execute(context.Background(), &input)
	if err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Execute asks the chat backend for a damage percentage and validates the
// reply. Replies outside the grammar are never coerced.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	prompt, err := serialize(input)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error()).WithStage(models.StageEstimation)
	}

	callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	messages, err := h.chat.Chat(callCtx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewEstimationTimeoutError(err).WithStage(models.StageEstimation)
		}
		return nil, apperrors.NewEstimationUnavailableError(err).WithStage(models.StageEstimation)
	}

	reply, ok := llm.FirstAssistant(messages)
	if !ok {
		return nil, apperrors.NewMalformedEstimateError("").WithStage(models.StageEstimation)
	}

	percent, err := ParseDamagePercent(reply)
	if err != nil {
		h.logger.Warn("rejected estimator reply", map[string]interface{}{
			"reply": reply,
			"error": err.Error(),
		})
		return nil, err
	}

	return &Output{DamagePercent: percent, Reply: reply}, nil
}

// ParseDamagePercent decodes a bare integer in [0, 100].
func ParseDamagePercent(reply string) (int, error) {
	m := replyPattern.FindStringSubmatch(reply)
	if m == nil {
		return 0, apperrors.NewMalformedEstimateError(reply).WithStage(models.StageEstimation)
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil || percent > 100 {
		// Atoi only fails here on overflow.
		return 0, apperrors.NewOutOfRangeEstimateError(reply).WithStage(models.StageEstimation)
	}
	return percent, nil
}

func serialize(input *Input) (string, error) {
	if input.Weather != nil {
		data, err := json.MarshalIndent(input.Weather, "", "  ")
		if err != nil {
			return "", fmt.Errorf("serialize observation: %w", err)
		}
		return string(data), nil
	}
	if input.Data == "" {
		return "", fmt.Errorf("no weather data to estimate from")
	}
	return input.Data, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
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
