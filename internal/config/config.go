package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Pipeline *pipelineConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"foundry"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"EQUIPMENT_FOUNDRY_ADDRESS" default:":3443"`
	MetricsAddress string `envconfig:"EQUIPMENT_FOUNDRY_METRICS_ADDRESS" default:":8080"`
	BaseUrl        string `envconfig:"EQUIPMENT_FOUNDRY_BASE_URL" default:"https://localhost:3443"`
	LogLevel       string `envconfig:"EQUIPMENT_FOUNDRY_LOG_LEVEL" default:"info"`
}

type pipelineConfig struct {
	StoreRetryAttempts  int           `envconfig:"EQUIPMENT_FOUNDRY_STORE_RETRY_ATTEMPTS" default:"3"`
	BreakerThreshold    int           `envconfig:"EQUIPMENT_FOUNDRY_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown     time.Duration `envconfig:"EQUIPMENT_FOUNDRY_BREAKER_COOLDOWN" default:"30s"`
	BatchChunkSize      int           `envconfig:"EQUIPMENT_FOUNDRY_BATCH_CHUNK_SIZE" default:"500"`
	DefaultMinQuality   float64       `envconfig:"EQUIPMENT_FOUNDRY_DEFAULT_MIN_QUALITY" default:"70"`
	MinComplianceFields int           `envconfig:"EQUIPMENT_FOUNDRY_MIN_COMPLIANCE_FIELDS" default:"3"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config populated with defaults only, ignoring the
// environment. Used by tests that need isolated configuration.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("equipment_foundry_test_unset", cfg); err != nil {
		panic(err)
	}
	return cfg
}
