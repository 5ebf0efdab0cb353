// internal/workers/claims/analyze-field-image/handler.go
package analyzefieldimage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/llm"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "analyze-field-image"
)

const analysisPrompt = `You are assessing an aerial or ground photo of insured farmland for crop damage.

Rate the damage from 0 to 100 percent:
0-20 minimal, 21-40 light, 41-60 moderate, 61-80 severe, 81-100 complete destruction.
Name the damage type (drought, flood, storm, fire, pest, hail or none), describe the crop condition,
say whether farm infrastructure is affected and estimate the recovery time.

Answer with one JSON object and nothing else:
{
  "damage_detected": boolean,
  "damage_percentage": integer,
  "damage_type": string,
  "crop_condition": string,
  "infrastructure_affected": boolean,
  "recovery_estimate": string,
  "detailed_analysis": string
}`

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type Handler struct {
	config       *Config
	vision       llm.VisionClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, vision llm.VisionClient, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		vision:       vision,
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
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)).WithStage(models.StageImage))
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

// Execute sends the photo to the vision backend and validates the report.
// A report without a usable damage_percentage is rejected, never defaulted.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	mimeType, err := h.checkImage(input.Image)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	messages, err := h.vision.DescribeImage(callCtx, analysisPrompt, llm.Image{MIMEType: mimeType, Data: input.Image})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewEstimationTimeoutError(err).WithStage(models.StageImage)
		}
		return nil, apperrors.NewEstimationUnavailableError(err).WithStage(models.StageImage)
	}

	reply, ok := llm.FirstAssistant(messages)
	if !ok {
		return nil, apperrors.NewMalformedEstimateError("").WithStage(models.StageImage)
	}

	analysis, err := ParseAnalysis(reply)
	if err != nil {
		h.logger.Warn("rejected image analysis", map[string]interface{}{
			"reply": reply,
			"error": err.Error(),
		})
		return nil, err
	}

	h.logger.Info("field image analysed", map[string]interface{}{
		"image":            input.Name,
		"damagePercentage": analysis.DamagePercentage,
		"damageType":       analysis.DamageType,
	})
	return &Output{Name: input.Name, MIMEType: mimeType, Analysis: *analysis}, nil
}

func (h *Handler) checkImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewInvalidRequestError("image is empty").WithStage(models.StageImage)
	}
	if len(data) > h.config.MaxImageBytes {
		return "", apperrors.NewInvalidRequestError(
			fmt.Sprintf("image is %d bytes, limit is %d", len(data), h.config.MaxImageBytes)).WithStage(models.StageImage)
	}
	mimeType := http.DetectContentType(data)
	if !supportedTypes[mimeType] {
		return "", apperrors.NewInvalidRequestError(
			fmt.Sprintf("unsupported image type %q", mimeType)).WithStage(models.StageImage)
	}
	return mimeType, nil
}

type analysisReply struct {
	DamageDetected         *bool    `json:"damage_detected"`
	DamagePercentage       *float64 `json:"damage_percentage"`
	DamageType             string   `json:"damage_type"`
	CropCondition          string   `json:"crop_condition"`
	InfrastructureAffected bool     `json:"infrastructure_affected"`
	RecoveryEstimate       string   `json:"recovery_estimate"`
	DetailedAnalysis       string   `json:"detailed_analysis"`
}

// ParseAnalysis decodes the outermost JSON object in reply. damage_percentage
// must be a whole number in [0, 100].
func ParseAnalysis(reply string) (*models.FieldImageAnalysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, apperrors.NewMalformedEstimateError(reply).WithStage(models.StageImage)
	}

	var raw analysisReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, apperrors.NewMalformedEstimateError(reply).WithStage(models.StageImage)
	}
	if raw.DamagePercentage == nil || *raw.DamagePercentage != math.Trunc(*raw.DamagePercentage) {
		return nil, apperrors.NewMalformedEstimateError(reply).WithStage(models.StageImage)
	}
	pct := *raw.DamagePercentage
	if pct < 0 || pct > 100 {
		return nil, apperrors.NewOutOfRangeEstimateError(reply).WithStage(models.StageImage)
	}

	detected := pct > 0
	if raw.DamageDetected != nil {
		detected = *raw.DamageDetected
	}
	return &models.FieldImageAnalysis{
		DamageDetected:         detected,
		DamagePercentage:       int(pct),
		DamageType:             raw.DamageType,
		CropCondition:          raw.CropCondition,
		InfrastructureAffected: raw.InfrastructureAffected,
		RecoveryEstimate:       raw.RecoveryEstimate,
		DetailedAnalysis:       raw.DetailedAnalysis,
	}, nil
}
