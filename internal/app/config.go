package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/pos-engine/internal/txn"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the pos-server configuration. Values come from POS_-prefixed
// environment variables, flags, or a YAML file.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply the embedded schema on startup"`
	Retry       RetryConfig
	Graceful    GracefulConfig
}

// RetryConfig controls the transactional retry executor.
type RetryConfig struct {
	MaxRetries int           `default:"3" usage:"Retries after a serialization conflict" flag:"max-retries"`
	BaseDelay  time.Duration `default:"50ms" usage:"Initial backoff before a retry" flag:"retry-base-delay"`
	MaxDelay   time.Duration `default:"2s" usage:"Backoff cap, 0 for none" flag:"retry-max-delay"`
	Isolation  string        `default:"serializable" usage:"Transaction isolation: serializable, repeatable_read or read_committed"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// TxnOptions converts the retry section to executor options.
func (c RetryConfig) TxnOptions() (txn.Options, error) {
	iso, err := txn.ParseIsoLevel(c.Isolation)
	if err != nil {
		return txn.Options{}, errors.Wrap(err, "retry isolation")
	}
	if c.MaxRetries < 0 {
		return txn.Options{}, errors.Errorf("retry max retries must not be negative, got %d", c.MaxRetries)
	}
	return txn.Options{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.BaseDelay,
		MaxDelay:   c.MaxDelay,
		Isolation:  iso,
	}, nil
}

// LoadConfig loads the configuration and applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Retry.TxnOptions(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
