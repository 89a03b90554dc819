package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type RecoveryConfig struct {
	Env          string `yaml:"env" env:"ENV" env-default:"local"`
	GRPCServer   `yaml:"grpc_server"`
	HTTPServer   `yaml:"http_server"`
	RecoveryDB   `yaml:"recovery_db"`
	LogConfig    `yaml:"log_config"`
	KafkaService `yaml:"kafka-service"`
	Ledger       `yaml:"ledger"`
	Sealing      `yaml:"sealing"`
	Recovery     `yaml:"recovery"`
	Scheduler    `yaml:"scheduler"`
	Callback     `yaml:"callback"`
}

type GRPCServer struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50061"`
}

type HTTPServer struct {
	Host         string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"60s"`
}

type RecoveryDB struct {
	// Driver is "postgres" or "memory"; memory is for local runs only.
	Driver         string `yaml:"driver" env:"RECOVERY_DB_DRIVER" env-default:"postgres"`
	Dsn            string `yaml:"dsn" env:"RECOVERY_DB_DSN"`
	MigrationsPath string `yaml:"migrations_path" env:"RECOVERY_MIGRATIONS_PATH" env-default:"migrations"`
	AutoMigrate    bool   `yaml:"auto_migrate" env:"RECOVERY_DB_AUTO_MIGRATE"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	LogOutput string `yaml:"log_output" env:"LOG_OUTPUT" env-default:"stdout"`
}

type KafkaService struct {
	Host       string `yaml:"host" env:"KAFKA_HOST"`
	Port       string `yaml:"port" env:"KAFKA_PORT" env-default:"9092"`
	Topic      string `yaml:"topic" env:"KAFKA_TOPIC" env-default:"recovery-events"`
	Username   string `yaml:"username" env:"KAFKA_USERNAME"`
	Password   string `yaml:"password" env:"KAFKA_PASSWORD"`
	Mechanism  string `yaml:"mechanism" env:"KAFKA_MECHANISM"`
	TLSEnabled bool   `yaml:"tls" env:"KAFKA_TLS"`
}

// Enabled reports whether a broker is configured; without one events are
// only logged.
func (k KafkaService) Enabled() bool {
	return k.Host != ""
}

func (k KafkaService) Brokers() []string {
	return []string{fmt.Sprintf("%s:%s", k.Host, k.Port)}
}

type Callback struct {
	URL string `yaml:"url" env:"RECOVERY_CALLBACK_URL"`
}

type Ledger struct {
	BaseURL    string        `yaml:"base_url" env:"LEDGER_BASE_URL" env-required:"true"`
	Timeout    time.Duration `yaml:"timeout" env:"LEDGER_TIMEOUT" env-default:"30s"`
	MaxElapsed time.Duration `yaml:"max_elapsed" env:"LEDGER_MAX_ELAPSED" env-default:"30s"`
	APIToken   string        `yaml:"api_token" env:"LEDGER_API_TOKEN"`
}

type Sealing struct {
	Recipient    string `yaml:"recipient" env:"SEALING_RECIPIENT" env-required:"true"`
	IdentityFile string `yaml:"identity_file" env:"SEALING_IDENTITY_FILE" env-required:"true"`
}

type Recovery struct {
	WaitingPeriodHours  int           `yaml:"waiting_period_hours" env:"RECOVERY_WAITING_PERIOD_HOURS" env-default:"24"`
	RequiredApprovals   int           `yaml:"required_approvals" env:"RECOVERY_REQUIRED_APPROVALS" env-default:"2"`
	ExpiryWindow        time.Duration `yaml:"expiry_window" env:"RECOVERY_EXPIRY_WINDOW" env-default:"48h"`
	ForceExecuteEnabled bool          `yaml:"force_execute_enabled" env:"RECOVERY_FORCE_EXECUTE_ENABLED"`
	ApproveAttempts     int           `yaml:"approve_attempts" env-default:"5"`
	MinReasonLength     int           `yaml:"min_reason_length" env-default:"10"`
}

type Scheduler struct {
	Enabled              bool          `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
	ExecutableInterval   time.Duration `yaml:"executable_interval" env-default:"2m"`
	ExpiryInterval       time.Duration `yaml:"expiry_interval" env-default:"1h"`
	ReconcileInterval    time.Duration `yaml:"reconcile_interval" env-default:"5m"`
	RetentionInterval    time.Duration `yaml:"retention_interval" env-default:"24h"`
	AuditRetentionDays   int           `yaml:"audit_retention_days" env-default:"365"`
	RetryInterval        time.Duration `yaml:"retry_interval" env-default:"15m"`
	MaxAutoRetries       int           `yaml:"max_auto_retries" env-default:"3"`
	Parallelism          int           `yaml:"parallelism" env-default:"4"`
	SubmissionStaleAfter time.Duration `yaml:"submission_stale_after" env-default:"10m"`
}

// Validate checks the cross-field rules cleanenv cannot express.
func (c *RecoveryConfig) Validate() error {
	switch c.RecoveryDB.Driver {
	case "postgres":
		if c.RecoveryDB.Dsn == "" {
			return fmt.Errorf("recovery_db.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown recovery_db.driver %q", c.RecoveryDB.Driver)
	}
	if c.Recovery.WaitingPeriodHours < 1 || c.Recovery.WaitingPeriodHours > 168 {
		return fmt.Errorf("recovery.waiting_period_hours must be between 1 and 168, got %d", c.Recovery.WaitingPeriodHours)
	}
	if c.Recovery.RequiredApprovals < 1 {
		return fmt.Errorf("recovery.required_approvals must be positive, got %d", c.Recovery.RequiredApprovals)
	}
	if c.Recovery.ExpiryWindow <= 0 {
		return fmt.Errorf("recovery.expiry_window must be positive")
	}
	if c.Scheduler.Parallelism < 1 {
		return fmt.Errorf("scheduler.parallelism must be positive, got %d", c.Scheduler.Parallelism)
	}
	return nil
}

func Load(configPath string) (*RecoveryConfig, error) {
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	// YAML to struct object; environment variables win over the file
	var cfg RecoveryConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *RecoveryConfig {

	// Processing env config variable and file
	configPath := os.Getenv("RECOVERY_CONFIG_PATH")

	if configPath == "" {
		log.Fatalf("RECOVERY_CONFIG_PATH was not found\n")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	return cfg
}
