// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Server       ServerConfig            `mapstructure:"server"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Weather      WeatherConfig           `mapstructure:"weather"`
	Estimator    EstimatorConfig         `mapstructure:"estimator"`
	Decision     DecisionConfig          `mapstructure:"decision"`
	Ledger       LedgerConfig            `mapstructure:"ledger"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig is the inbound claim API plus health and metrics.
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig backs the per-policy payout lock. An empty address disables it.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Claim stages ---

type WeatherConfig struct {
	BaseURL      string         `mapstructure:"base_url"`
	APIKey       string         `mapstructure:"api_key"`
	RadiusMeters int            `mapstructure:"radius_meters"`
	Timeout      int            `mapstructure:"timeout"` // milliseconds, per call
	Fallback     FallbackConfig `mapstructure:"fallback"`
}

// FallbackConfig is the observation used when no station reading is available.
type FallbackConfig struct {
	RainfallMM   float64 `mapstructure:"rainfall_mm"`
	TemperatureC float64 `mapstructure:"temperature_c"`
	HumidityPct  float64 `mapstructure:"humidity_pct"`
	WindSpeed    float64 `mapstructure:"wind_speed"`
	Description  string  `mapstructure:"description"`
}

type EstimatorConfig struct {
	Provider string `mapstructure:"provider"` // openai | gemini
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds

	ImageTimeout  int `mapstructure:"image_timeout"`   // milliseconds
	MaxImageBytes int `mapstructure:"max_image_bytes"` // field photo upload cap
}

type DecisionConfig struct {
	PayoutThresholdPercent int `mapstructure:"payout_threshold_percent"`
}

type LedgerConfig struct {
	RPCURL              string `mapstructure:"rpc_url"`
	PrivateKey          string `mapstructure:"private_key"`
	ContractAddress     string `mapstructure:"contract_address"`
	SubmitTimeout       int    `mapstructure:"submit_timeout"`       // milliseconds
	ConfirmationTimeout int    `mapstructure:"confirmation_timeout"` // milliseconds
	LockTTL             int    `mapstructure:"lock_ttl"`             // milliseconds
}

// IntegrationConfig holds settings for outbound notifications.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled        bool     `mapstructure:"enabled"`
			FromEmail      string   `mapstructure:"from_email"`
			OperatorEmails []string `mapstructure:"operator_emails"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
