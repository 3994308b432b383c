package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlagsAndArgs gives each test a fresh flag set and argument list.
func resetFlagsAndArgs(t *testing.T, args ...string) {
	t.Helper()
	originalArgs := os.Args
	os.Args = append([]string{"cmd"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	t.Cleanup(func() { os.Args = originalArgs })
}

// clearEnv unsets every LEARNEDGE_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, envPrefix) {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	_ = os.Remove(defaultJwtKeyFile)
	t.Cleanup(func() { _ = os.Remove(defaultJwtKeyFile) })
}

func absPath(path string) string {
	abs, _ := filepath.Abs(path)
	return abs
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	resetFlagsAndArgs(t)
	t.Setenv("LEARNEDGE_JWT_SECRET", "test-default-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultAddress, cfg.ListenAddress)
	assert.Equal(t, defaultPort, cfg.ListenPort)
	assert.Equal(t, StoreJSON, cfg.StoreDriver)
	assert.Equal(t, absPath(defaultDbFile), cfg.DbFilePath)
	assert.Equal(t, defaultSaveInterval, cfg.SaveInterval)
	assert.True(t, cfg.EnableBackup)
	assert.Equal(t, defaultTokenLifetime, cfg.TokenLifetime)
	assert.Equal(t, defaultBcryptCost, cfg.BcryptCost)
	assert.Equal(t, ProviderSandbox, cfg.PaymentProvider)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, defaultEntitlementTTL, cfg.EntitlementTTL)
	assert.Equal(t, []string{defaultClientURL}, cfg.CORSOrigins)
	assert.Equal(t, "test-default-secret", cfg.JwtSecret)
	assert.Contains(t, cfg.SecretSource, "LEARNEDGE_JWT_SECRET")
	assert.Empty(t, cfg.Warnings)
}

func TestLoadConfig_EnvVars(t *testing.T) {
	clearEnv(t)
	resetFlagsAndArgs(t)
	t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
	t.Setenv("LEARNEDGE_LISTEN_PORT", "9999")
	t.Setenv("LEARNEDGE_STORE_DRIVER", "SQLite")
	t.Setenv("LEARNEDGE_SAVE_INTERVAL", "250ms")
	t.Setenv("LEARNEDGE_ENABLE_BACKUP", "no")
	t.Setenv("LEARNEDGE_BCRYPT_COST", "5")
	t.Setenv("LEARNEDGE_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LEARNEDGE_CURRENCY", "eur")
	t.Setenv("LEARNEDGE_REDIS_ADDR", "localhost:6379")
	t.Setenv("LEARNEDGE_CLIENT_URL", "https://app.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.ListenPort)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, defaultSQLiteFile, cfg.DatabaseDSN)
	assert.Equal(t, 250*time.Millisecond, cfg.SaveInterval)
	assert.False(t, cfg.EnableBackup)
	assert.Equal(t, 5, cfg.BcryptCost)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "https://app.example.com", cfg.ClientURL)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
	t.Setenv("LEARNEDGE_LISTEN_PORT", "9999")
	t.Setenv("LEARNEDGE_TOKEN_LIFETIME", "5m")
	dbFile := filepath.Join(t.TempDir(), "flag.json")
	resetFlagsAndArgs(t, "-port", "7000", "-db-file", dbFile, "-token-lifetime", "30m", "-enable-backup=false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.ListenPort)
	assert.Equal(t, dbFile, cfg.DbFilePath)
	assert.Equal(t, 30*time.Minute, cfg.TokenLifetime)
	assert.False(t, cfg.EnableBackup)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	resetFlagsAndArgs(t, "-save-interval", "soon")
	t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
	t.Setenv("LEARNEDGE_ENABLE_BACKUP", "maybe")
	t.Setenv("LEARNEDGE_ENTITLEMENT_TTL", "forever")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultSaveInterval, cfg.SaveInterval)
	assert.Equal(t, defaultEnableBackup, cfg.EnableBackup)
	assert.Equal(t, defaultEntitlementTTL, cfg.EntitlementTTL)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"Unknown store", map[string]string{"LEARNEDGE_STORE_DRIVER": "mongo"}, "unknown store driver"},
		{"Postgres without DSN", map[string]string{"LEARNEDGE_STORE_DRIVER": "postgres"}, "requires a database DSN"},
		{"PayPal without credentials", map[string]string{"LEARNEDGE_PAYMENT_PROVIDER": "paypal"}, "requires a client id and secret"},
		{"Unknown provider", map[string]string{"LEARNEDGE_PAYMENT_PROVIDER": "stripe"}, "unknown payment provider"},
		{"Bcrypt cost too low", map[string]string{"LEARNEDGE_BCRYPT_COST": "2"}, "out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			resetFlagsAndArgs(t)
			t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("DB path is a directory", func(t *testing.T) {
		clearEnv(t)
		resetFlagsAndArgs(t)
		t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
		t.Setenv("LEARNEDGE_DB_FILE_PATH", t.TempDir())

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "points to a directory")
	})
}

func TestLoadConfig_JWTSecretHandling(t *testing.T) {
	t.Run("SecretFromFileFlag", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
		secretFile := filepath.Join(t.TempDir(), "jwt.key")
		require.NoError(t, os.WriteFile(secretFile, []byte("  file-secret\n"), 0600))
		resetFlagsAndArgs(t, "-jwt-secret-file", secretFile)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "file-secret", cfg.JwtSecret)
		assert.Contains(t, cfg.SecretSource, secretFile)
	})

	t.Run("EmptyFileFallsBackToEnv", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LEARNEDGE_JWT_SECRET", "env-secret")
		secretFile := filepath.Join(t.TempDir(), "empty.key")
		require.NoError(t, os.WriteFile(secretFile, []byte("   "), 0600))
		resetFlagsAndArgs(t, "-jwt-secret-file", secretFile)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "env-secret", cfg.JwtSecret)
		assert.Len(t, cfg.Warnings, 1)
	})

	t.Run("SecretFromDefaultKeyFile", func(t *testing.T) {
		clearEnv(t)
		resetFlagsAndArgs(t)
		require.NoError(t, os.WriteFile(defaultJwtKeyFile, []byte("default-file-secret"), 0600))

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "default-file-secret", cfg.JwtSecret)
	})

	t.Run("GeneratedSecret", func(t *testing.T) {
		clearEnv(t)
		resetFlagsAndArgs(t)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Len(t, cfg.JwtSecret, 64)

		saved, err := os.ReadFile(defaultJwtKeyFile)
		require.NoError(t, err)
		assert.Equal(t, cfg.JwtSecret, string(saved))
		assert.Contains(t, cfg.SecretSource, "generated and saved")
	})
}

func TestFieldsOmitSecrets(t *testing.T) {
	cfg := &Config{JwtSecret: "top-secret", PayPalSecret: "pp-secret", DatabaseDSN: "postgres://u:p@h/db"}
	for _, v := range cfg.Fields() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		assert.NotContains(t, s, "top-secret")
		assert.NotContains(t, s, "pp-secret")
		assert.NotContains(t, s, "u:p@h")
	}
}
