package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Scanner  *scannerConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"sitescan"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"SITESCAN_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"SITESCAN_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"SITESCAN_BASE_URL" default:"https://localhost:3443"`
	LogLevel        string `envconfig:"SITESCAN_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"SITESCAN_MIGRATIONS_FOLDER" default:"migrations"`
}

type scannerConfig struct {
	// ValidatorURL is the markup validation endpoint queried once per URL.
	ValidatorURL string `envconfig:"SITESCAN_VALIDATOR_URL" default:"https://validator.w3.org/nu/"`
	// ValidationDelayMs is the minimum pause between two validator calls.
	// The external service limits clients to one request per second.
	ValidationDelayMs int `envconfig:"SITESCAN_VALIDATION_DELAY_MS" default:"1000"`
	MaxUrlsPerScan    int `envconfig:"SITESCAN_MAX_URLS_PER_SCAN" default:"500"`
	// WorkerCount bounds the number of scans processed at the same time.
	WorkerCount int `envconfig:"SITESCAN_WORKER_COUNT" default:"2"`
	// JobsPerMinute caps how many scan jobs may start per minute,
	// independent of WorkerCount.
	JobsPerMinute int `envconfig:"SITESCAN_JOBS_PER_MINUTE" default:"10"`
	MaxJobRetries int `envconfig:"SITESCAN_MAX_JOB_RETRIES" default:"3"`
	SignupBonus   int `envconfig:"SITESCAN_SIGNUP_BONUS" default:"50"`
	// MaxTopUp is the sanity ceiling for a single credit purchase.
	MaxTopUp int `envconfig:"SITESCAN_MAX_TOPUP" default:"10000"`
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
// environment. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("sitescan_test_unset", cfg); err != nil {
		panic(err)
	}
	return cfg
}
