package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/wms"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WMS_CLIENT_ID", "id")
	t.Setenv("WMS_CLIENT_SECRET", "secret")
	t.Setenv("WMS_TPL_KEY", "{tpl}")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "secret", cfg.ClientSecret)
	assert.Equal(t, "{tpl}", cfg.PartnerKey)
	assert.Equal(t, "4", cfg.UserLoginID)
	assert.Equal(t, wms.ModePath, cfg.AddressingMode)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, "8UNI48", cfg.AccountCode)
	assert.Equal(t, "PERTH", cfg.Warehouse)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, AuthNone, cfg.AuthMode)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WMS_ADDRESSING_MODE", "query")
	t.Setenv("WMS_REQUEST_TIMEOUT", "5")
	t.Setenv("WMS_RETRY_DELAY", "250ms")
	t.Setenv("WMS_MAX_RETRIES", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, wms.ModeQuery, cfg.AddressingMode)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown addressing mode", key: "WMS_ADDRESSING_MODE", val: "graphql"},
		{name: "bad timeout", key: "WMS_REQUEST_TIMEOUT", val: "soon"},
		{name: "zero timeout", key: "WMS_REQUEST_TIMEOUT", val: "0"},
		{name: "bad retries", key: "WMS_MAX_RETRIES", val: "many"},
		{name: "user without hash", key: "APP_USER", val: "ops"},
		{name: "unknown auth mode", key: "APP_AUTH", val: "ldap"},
		{name: "db auth without dsn", key: "APP_AUTH", val: "db"},
		{name: "static auth without user", key: "APP_AUTH", val: "static"},
		{name: "hash without user", key: "APP_PASSWORD_HASH", val: "$2a$10$abc"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_AuthMode(t *testing.T) {
	t.Run("static when user is set", func(t *testing.T) {
		t.Setenv("APP_USER", "ops")
		t.Setenv("APP_PASSWORD_HASH", "$2a$10$abc")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, AuthStatic, cfg.AuthMode)
	})

	t.Run("explicit db", func(t *testing.T) {
		t.Setenv("APP_AUTH", "db")
		t.Setenv("DB_DSN", "postgres://localhost/wms")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, AuthDB, cfg.AuthMode)
	})

	t.Run("db seeds operator from plain password", func(t *testing.T) {
		t.Setenv("APP_AUTH", "db")
		t.Setenv("DB_DSN", "postgres://localhost/wms")
		t.Setenv("APP_USER", "ops")
		t.Setenv("APP_PASSWORD", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, AuthDB, cfg.AuthMode)
		assert.Equal(t, "ops", cfg.BasicAuthUser)
		assert.Equal(t, "s3cret", cfg.BasicAuthPassword)
	})

	t.Run("db seed without any password", func(t *testing.T) {
		t.Setenv("APP_AUTH", "db")
		t.Setenv("DB_DSN", "postgres://localhost/wms")
		t.Setenv("APP_USER", "ops")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadEnv_FromWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WMS_TEST_ONLY_KEY=from-file\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("WMS_TEST_ONLY_KEY")
	})

	path, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, ".env", filepath.Base(path))
	assert.Equal(t, "from-file", os.Getenv("WMS_TEST_ONLY_KEY"))
}
