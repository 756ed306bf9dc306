package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-engine/internal/txn"
)

func testLoad(t *testing.T) (*Config, error) {
	t.Helper()
	return loadConfig(aconfig.Config{EnvPrefix: "POS", SkipFiles: true, SkipFlags: true})
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("POS_DATABASE_URL", "postgres://localhost/pos")
	t.Setenv("PORT", "")

	cfg, err := testLoad(t)
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)

	opts, err := cfg.Retry.TxnOptions()
	require.NoError(t, err)
	assert.Equal(t, txn.Options{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Isolation:  txn.Serializable,
	}, opts)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("POS_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://platform/pos")
	t.Setenv("PORT", "9000")
	t.Setenv("POS_RETRY_MAX_RETRIES", "7")
	t.Setenv("POS_RETRY_ISOLATION", "read_committed")

	cfg, err := testLoad(t)
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/pos", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	opts, err := cfg.Retry.TxnOptions()
	require.NoError(t, err)
	assert.Equal(t, 7, opts.MaxRetries)
	assert.Equal(t, txn.ReadCommitted, opts.Isolation)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Run("NoDatabase", func(t *testing.T) {
		t.Setenv("POS_DATABASE_URL", "")
		t.Setenv("DATABASE_URL", "")
		_, err := testLoad(t)
		assert.ErrorContains(t, err, "database URL is required")
	})
	t.Run("Isolation", func(t *testing.T) {
		t.Setenv("POS_DATABASE_URL", "postgres://localhost/pos")
		t.Setenv("POS_RETRY_ISOLATION", "snapshot")
		_, err := testLoad(t)
		assert.ErrorContains(t, err, "unknown isolation level")
	})
	t.Run("NegativeRetries", func(t *testing.T) {
		t.Setenv("POS_DATABASE_URL", "postgres://localhost/pos")
		t.Setenv("POS_RETRY_MAX_RETRIES", "-1")
		_, err := testLoad(t)
		assert.ErrorContains(t, err, "must not be negative")
	})
}
