// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"crop-claims/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env file is optional

	return load(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Enable ENV override like LEDGER_RPC_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults covers keys where the zero value is a legitimate setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("decision.payout_threshold_percent", 20)

	fb := models.DefaultFallbackObservation
	v.SetDefault("weather.fallback.rainfall_mm", fb.RainfallMM)
	v.SetDefault("weather.fallback.temperature_c", fb.TemperatureC)
	v.SetDefault("weather.fallback.humidity_pct", fb.HumidityPct)
	v.SetDefault("weather.fallback.wind_speed", fb.WindSpeed)
	v.SetDefault("weather.fallback.description", fb.Description)
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from their conventional env names.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Weather.APIKey, "WEATHERXM_API_KEY")
	setIfEmpty(&cfg.Ledger.PrivateKey, "AGENT_PRIVATE_KEY")
	setIfEmpty(&cfg.Ledger.RPCURL, "RPC_URL")
	setIfEmpty(&cfg.Ledger.ContractAddress, "LEDGER_CONTRACT_ADDRESS")

	switch cfg.Estimator.Provider {
	case ProviderGemini:
		setIfEmpty(&cfg.Estimator.APIKey, "GEMINI_API_KEY")
		setIfEmpty(&cfg.Estimator.APIKey, "GENAI_API_KEY")
	default:
		setIfEmpty(&cfg.Estimator.APIKey, "OPENAI_API_KEY")
	}
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crop-claims"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 110000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 120000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "https://pro.weatherxm.com"
	}
	if cfg.Weather.RadiusMeters == 0 {
		cfg.Weather.RadiusMeters = 10000
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = 10000
	}

	if cfg.Estimator.Provider == "" {
		cfg.Estimator.Provider = ProviderOpenAI
	}
	if cfg.Estimator.Model == "" {
		switch cfg.Estimator.Provider {
		case ProviderGemini:
			cfg.Estimator.Model = "gemini-2.0-flash"
		default:
			cfg.Estimator.Model = "gpt-4o-mini"
		}
	}
	if cfg.Estimator.BaseURL == "" && cfg.Estimator.Provider == ProviderOpenAI {
		cfg.Estimator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Estimator.Timeout == 0 {
		cfg.Estimator.Timeout = 30000
	}
	if cfg.Estimator.ImageTimeout == 0 {
		cfg.Estimator.ImageTimeout = 60000
	}
	if cfg.Estimator.MaxImageBytes == 0 {
		cfg.Estimator.MaxImageBytes = 10 << 20
	}

	if cfg.Ledger.ContractAddress == "" {
		cfg.Ledger.ContractAddress = "0x1De440d6DcdA19B67BCfA1358e71713df22d5a76"
	}
	if cfg.Ledger.SubmitTimeout == 0 {
		cfg.Ledger.SubmitTimeout = 15000
	}
	if cfg.Ledger.ConfirmationTimeout == 0 {
		cfg.Ledger.ConfirmationTimeout = 60000
	}
	if cfg.Ledger.LockTTL == 0 {
		cfg.Ledger.LockTTL = 120000
	}

	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 120000
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda.enabled is set")
	}

	switch cfg.Estimator.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("estimator.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, cfg.Estimator.Provider)
	}

	if t := cfg.Decision.PayoutThresholdPercent; t < 0 || t > 100 {
		return fmt.Errorf("decision.payout_threshold_percent must be within 0-100, got %d", t)
	}

	if !common.IsHexAddress(cfg.Ledger.ContractAddress) {
		return fmt.Errorf("ledger.contract_address is not a valid address: %q", cfg.Ledger.ContractAddress)
	}

	if cfg.Integrations.AWS.SNS.Enabled && cfg.Integrations.AWS.SNS.TopicARN == "" {
		return fmt.Errorf("integrations.aws.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Integrations.AWS.SES.Enabled && cfg.Integrations.AWS.SES.FromEmail == "" {
		return fmt.Errorf("integrations.aws.ses.from_email is required when ses is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       120000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
