// cmd/claim-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crop-claims/internal/api"
	awsclients "crop-claims/internal/common/aws"
	"crop-claims/internal/common/camunda"
	"crop-claims/internal/common/config"
	"crop-claims/internal/common/database"
	commonhttp "crop-claims/internal/common/http"
	"crop-claims/internal/common/ledger"
	"crop-claims/internal/common/llm"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/observability"
	"crop-claims/internal/common/weatherxm"
	"crop-claims/internal/pipeline"

	af "crop-claims/internal/workers/claims/analyze-field-image"
	dc "crop-claims/internal/workers/claims/decide-claim"
	ed "crop-claims/internal/workers/claims/estimate-damage"
	fw "crop-claims/internal/workers/claims/fetch-weather"
	ip "crop-claims/internal/workers/claims/issue-payout"
	nc "crop-claims/internal/workers/claims/notify-claim"
	pc "crop-claims/internal/workers/claims/process-claim"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting claim service...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	readiness := map[string]api.ReadinessCheck{}

	// --- Redis (optional payout lock) ---
	var locker ip.Locker
	if cfg.Database.Redis.Address != "" {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		locker = redis
		readiness["redis"] = redis.Ping
		zapLog.Info("Redis connected successfully")
	} else {
		zapLog.Warn("Redis not configured, payouts run without a cross-replica lock")
	}

	// --- Stage clients ---
	weatherHTTP := commonhttp.NewClient(config.GetDuration(cfg.Weather.Timeout))
	stations := weatherxm.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, weatherHTTP)
	if cfg.Weather.APIKey == "" {
		zapLog.Warn("WEATHERXM_API_KEY not set, claims will be assessed on fallback weather")
	}

	chat, err := newChatClient(ctx, cfg.Estimator)
	if err != nil {
		zapLog.Fatal("estimator client init failed", zap.Error(err))
	}

	if cfg.Ledger.PrivateKey == "" {
		zapLog.Warn("AGENT_PRIVATE_KEY not set, eligible claims will fail at the payout stage")
	}

	var sesClient nc.SESService
	var snsClient nc.SNSService
	if cfg.Integrations.AWS.SES.Enabled {
		c, err := awsclients.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		sesClient = c
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		c, err := awsclients.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		snsClient = c
	}

	// --- Stage handlers and pipeline ---
	weather := fw.NewHandler(fw.FromAppConfig(cfg.Weather), stations, log)
	estimator := ed.NewHandler(ed.FromAppConfig(cfg.Estimator), chat, log)
	decider := dc.NewHandler(dc.FromAppConfig(cfg.Decision), log)
	payout := ip.NewHandler(ip.FromAppConfig(cfg.Ledger), ip.DialContract, locker, log)
	notifier := nc.NewHandler(nc.FromAppConfig(cfg.Integrations), sesClient, snsClient, log)

	var images *af.Handler
	if vision, ok := chat.(llm.VisionClient); ok {
		images = af.NewHandler(af.FromAppConfig(cfg.Estimator), vision, log)
	}

	claims := pipeline.New(weather, estimator, dc.NewEngine(dc.FromAppConfig(cfg.Decision)), payout, notifier, obs, log)
	processor := pc.NewHandler(&pc.Config{Timeout: config.GetDuration(cfg.Server.RequestTimeout)}, claims, log)

	// --- Read-only ledger for policy lookups ---
	var policies api.PolicyReader
	if cfg.Ledger.RPCURL != "" {
		reader, err := ledger.Dial(ctx, ledger.Config{
			RPCURL:          cfg.Ledger.RPCURL,
			ContractAddress: cfg.Ledger.ContractAddress,
		})
		if err != nil {
			zapLog.Warn("ledger reader unavailable, policy routes disabled", zap.Error(err))
		} else {
			defer reader.Close()
			policies = reader
		}
	}

	// --- Zeebe job workers ---
	var zeebe *camunda.Client
	var workers *camunda.Registry
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			}, log)
			return err
		}, 5, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		readiness["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")

		workers = camunda.NewRegistry(zeebe.GetClient(), log)
		workers.Start(fw.TaskType, config.GetWorkerConfig(cfg, fw.TaskType), weather.Handle)
		workers.Start(ed.TaskType, config.GetWorkerConfig(cfg, ed.TaskType), estimator.Handle)
		workers.Start(dc.TaskType, config.GetWorkerConfig(cfg, dc.TaskType), decider.Handle)
		workers.Start(ip.TaskType, config.GetWorkerConfig(cfg, ip.TaskType), payout.Handle)
		workers.Start(nc.TaskType, config.GetWorkerConfig(cfg, nc.TaskType), notifier.Handle)
		workers.Start(pc.TaskType, config.GetWorkerConfig(cfg, pc.TaskType), processor.Handle)
		if images != nil {
			workers.Start(af.TaskType, config.GetWorkerConfig(cfg, af.TaskType), images.Handle)
		}

		zapLog.Info("Claim workers registered", zap.Strings("taskTypes", workers.TaskTypes()))
	}

	// --- HTTP API, health and metrics ---
	var imageAnalyzer api.ImageAnalyzer
	if images != nil {
		imageAnalyzer = images
	}

	server := api.NewServer(api.Options{
		Processor:      claims,
		Estimator:      estimator,
		Policies:       policies,
		Images:         imageAnalyzer,
		MaxImageBytes:  int64(cfg.Estimator.MaxImageBytes),
		Ready:          readiness,
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLog.Info("Claim API listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("claim API failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining claims...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down claim API", zap.Error(err))
	}

	if workers != nil {
		workers.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	claims.Wait()

	zapLog.Info("Claim service stopped gracefully")
}

func newChatClient(ctx context.Context, cfg config.EstimatorConfig) (llm.ChatClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, commonhttp.NewClient(config.GetDuration(cfg.Timeout))), nil
	}
}
