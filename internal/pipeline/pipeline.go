package pipeline

import (
	"context"
	"sync"
	"time"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"
	"crop-claims/internal/common/observability"
	"crop-claims/internal/models"
	decideclaim "crop-claims/internal/workers/claims/decide-claim"
	estimatedamage "crop-claims/internal/workers/claims/estimate-damage"
	fetchweather "crop-claims/internal/workers/claims/fetch-weather"
	issuepayout "crop-claims/internal/workers/claims/issue-payout"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WeatherCollector returns an observation for a field location.
type WeatherCollector interface {
	Execute(ctx context.Context, input *fetchweather.Input) (*fetchweather.Output, error)
}

// DamageEstimator turns an observation into a damage percentage.
type DamageEstimator interface {
	Execute(ctx context.Context, input *estimatedamage.Input) (*estimatedamage.Output, error)
}

// PayoutExecutor submits a payout and waits for it to be mined.
type PayoutExecutor interface {
	Execute(ctx context.Context, input *issuepayout.Input) (*issuepayout.Output, error)
}

// Notifier receives every processed claim. It must not fail the claim.
type Notifier interface {
	Notify(ctx context.Context, event models.ClaimEvent)
}

// Pipeline runs one claim through weather, estimation, decision and payout.
// It keeps no per-claim state, so concurrent ProcessClaim calls are safe.
type Pipeline struct {
	weather   WeatherCollector
	estimator DamageEstimator
	engine    decideclaim.Engine
	payout    PayoutExecutor
	notifier  Notifier
	obs       *observability.Observability
	logger    logger.Logger

	notifying sync.WaitGroup
}

// New creates a Pipeline. notifier and obs may be nil.
func New(weather WeatherCollector, estimator DamageEstimator, engine decideclaim.Engine, payout PayoutExecutor,
	notifier Notifier, obs *observability.Observability, log logger.Logger) *Pipeline {
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &Pipeline{
		weather:   weather,
		estimator: estimator,
		engine:    engine,
		payout:    payout,
		notifier:  notifier,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "claim-pipeline"}),
	}
}

// ProcessClaim runs the stages in order. Any stage error is terminal and
// produces a failed result; the weather fallback is not an error.
func (p *Pipeline) ProcessClaim(ctx context.Context, req models.ClaimRequest) *models.ClaimResult {
	started := clock.Now()
	claimID := uuid.New().String()
	log := p.logger.WithFields(map[string]interface{}{
		"claimId":  claimID,
		"policyId": req.PolicyID,
	})

	ctx, span := p.obs.StartSpan(ctx, "claim.process",
		attribute.String("claim.id", claimID),
		attribute.Int64("policy.id", req.PolicyID),
	)
	defer span.End()

	result := p.run(ctx, claimID, req, log)
	result.ProcessedAt = clock.Now().UTC()

	outcome := string(result.Outcome)
	metrics.ClaimsProcessed.WithLabelValues(outcome).Inc()
	p.obs.RecordClaimProcessed(ctx, outcome)
	p.obs.RecordClaimDuration(ctx, clock.Since(started), outcome)
	span.SetAttributes(attribute.String("claim.outcome", outcome))

	if result.Err != nil {
		code := apperrors.CodeOf(result.Err)
		span.SetStatus(codes.Error, string(code))
		metrics.ClaimStageFailures.WithLabelValues(result.FailedStage, string(code)).Inc()
		log.Error("claim failed", map[string]interface{}{
			"stage":     result.FailedStage,
			"errorCode": string(code),
			"error":     result.Err.Error(),
		})
	} else {
		log.Info("claim processed", map[string]interface{}{
			"outcome":       outcome,
			"damagePercent": result.Percent,
			"weatherSource": result.WeatherSource,
		})
	}

	if p.notifier != nil {
		event := newEvent(req, result)
		notifyCtx := context.WithoutCancel(ctx)
		p.notifying.Add(1)
		go func() {
			defer p.notifying.Done()
			p.notifier.Notify(notifyCtx, event)
		}()
	}
	return result
}

// Wait blocks until notifications for finished claims have been sent.
func (p *Pipeline) Wait() {
	p.notifying.Wait()
}

func (p *Pipeline) run(ctx context.Context, claimID string, req models.ClaimRequest, log logger.Logger) *models.ClaimResult {
	result := &models.ClaimResult{ClaimID: claimID}

	var weather *fetchweather.Output
	err := p.stage(ctx, models.StageWeather, func(ctx context.Context) error {
		var err error
		weather, err = p.weather.Execute(ctx, &fetchweather.Input{Latitude: req.Latitude, Longitude: req.Longitude})
		return err
	})
	if err != nil {
		return fail(result, models.StageWeather, err)
	}
	result.WeatherSource = weather.Source
	if weather.Source == models.WeatherSourceFallback {
		log.Warn("assessing claim on fallback weather", map[string]interface{}{
			"reason": weather.FallbackReason,
		})
	}

	var estimate *estimatedamage.Output
	err = p.stage(ctx, models.StageEstimation, func(ctx context.Context) error {
		var err error
		estimate, err = p.estimator.Execute(ctx, &estimatedamage.Input{Weather: &weather.Observation})
		return err
	})
	if err != nil {
		return fail(result, models.StageEstimation, err)
	}
	result.Percent = estimate.DamagePercent

	var decision models.ClaimDecision
	p.step(ctx, models.StageDecision, func(context.Context) {
		decision = p.engine.Decide(models.DamageAssessment{Percent: estimate.DamagePercent})
	})
	if !decision.Payout {
		result.Outcome = models.OutcomeNoPayout
		result.Reason = decision.Rationale
		return result
	}

	var payout *issuepayout.Output
	err = p.stage(ctx, models.StagePayout, func(ctx context.Context) error {
		var err error
		payout, err = p.payout.Execute(ctx, &issuepayout.Input{PolicyID: req.PolicyID, DamagePercent: decision.Percent})
		return err
	})
	if err != nil {
		return fail(result, models.StagePayout, err)
	}

	result.Outcome = models.OutcomePayoutIssued
	result.Reason = decision.Rationale
	result.Receipt = &models.PayoutReceipt{
		TransactionHash: payout.TransactionHash,
		PolicyID:        payout.PolicyID,
		Percent:         payout.DamagePercent,
		BlockNumber:     payout.BlockNumber,
		PayoutAmountWei: payout.PayoutAmountWei,
	}
	return result
}

// stage times fn and wraps it in a span named after the stage.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.obs.StartSpan(ctx, "claim."+name)
	defer span.End()

	start := clock.Now()
	err := fn(ctx)
	metrics.ClaimStageDuration.WithLabelValues(name).Observe(clock.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
	}
	return err
}

// step is stage for work that cannot fail.
func (p *Pipeline) step(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := p.obs.StartSpan(ctx, "claim."+name)
	defer span.End()

	start := clock.Now()
	fn(ctx)
	metrics.ClaimStageDuration.WithLabelValues(name).Observe(clock.Since(start).Seconds())
}

func fail(result *models.ClaimResult, stage string, err error) *models.ClaimResult {
	stdErr, ok := apperrors.AsStandardError(err)
	if !ok {
		stdErr = apperrors.NewInternalError(err)
	}
	if stdErr.Stage() == "" {
		stdErr.WithStage(stage)
	}

	result.Outcome = models.OutcomeFailed
	result.FailedStage = stage
	result.Reason = stdErr.Message
	result.Err = stdErr
	return result
}

func newEvent(req models.ClaimRequest, result *models.ClaimResult) models.ClaimEvent {
	event := models.ClaimEvent{
		ClaimID:       result.ClaimID,
		PolicyID:      req.PolicyID,
		FarmerAddress: req.FarmerAddress,
		Outcome:       result.Outcome,
		DamagePercent: result.Percent,
		WeatherSource: result.WeatherSource,
		FailedStage:   result.FailedStage,
		ProcessedAt:   result.ProcessedAt.Format(time.RFC3339),
	}
	if result.Receipt != nil {
		event.TransactionHash = result.Receipt.TransactionHash
	}
	if stdErr, ok := apperrors.AsStandardError(result.Err); ok {
		event.ErrorCode = string(stdErr.Code)
		if hash, ok := stdErr.Metadata["transactionHash"].(string); ok {
			event.TransactionHash = hash
		}
	}
	return event
}
