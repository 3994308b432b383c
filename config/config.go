package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string
	ListenPort    string
	LogMode       string
	ClientURL     string   // Frontend origin, used for payment return URLs
	CORSOrigins   []string // Allowed browser origins

	// Storage settings
	StoreDriver  string // json, sqlite or postgres
	DbFilePath   string // JSON driver only
	SaveInterval time.Duration
	EnableBackup bool
	DatabaseDSN  string // sqlite path or postgres DSN

	// Authentication settings
	JwtSecret     string // The actual secret key
	JwtSecretFile string // Path to the file containing the secret
	SecretSource  string // Where JwtSecret came from, for the startup log
	TokenLifetime time.Duration
	BcryptCost    int

	// Payment settings
	PaymentProvider string // sandbox or paypal
	PayPalClientID  string
	PayPalSecret    string
	PayPalLive      bool
	Currency        string

	// Entitlement cache
	RedisAddr      string // Empty disables the cache
	EntitlementTTL time.Duration

	// Warnings collected while loading; logged once the logger exists.
	Warnings []string
}

const (
	envPrefix = "LEARNEDGE_"

	StoreJSON     = "json"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	ProviderSandbox = "sandbox"
	ProviderPayPal  = "paypal"

	defaultAddress         = "0.0.0.0"
	defaultPort            = "8080"
	defaultLogMode         = "dev"
	defaultClientURL       = "http://localhost:5173"
	defaultStoreDriver     = StoreJSON
	defaultDbFile          = "./learnedge.json"
	defaultSQLiteFile      = "./learnedge.db"
	defaultSaveInterval    = 3 * time.Second
	defaultEnableBackup    = true
	defaultJwtKeyFile      = "./learnedge.key" // Written when a secret has to be generated
	defaultTokenLifetime   = 120 * time.Minute
	defaultBcryptCost      = 12
	defaultPaymentProvider = ProviderSandbox
	defaultCurrency        = "USD"
	defaultEntitlementTTL  = 10 * time.Minute
)

// LoadConfig loads configuration from defaults, a .env file, environment variables
// and command-line flags. Flags take precedence over environment variables, which
// take precedence over defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// A missing .env file is the normal case outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		cfg.warnf("failed to parse .env file: %v", err)
	}

	var (
		saveInterval   string
		tokenLifetime  string
		entitlementTTL string
		corsOrigins    string
	)

	flag.StringVar(&cfg.ListenAddress, "address", getEnv("LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: LEARNEDGE_LISTEN_ADDRESS)")
	flag.StringVar(&cfg.ListenPort, "port", getEnv("LISTEN_PORT", defaultPort), "Server listen port (Env: LEARNEDGE_LISTEN_PORT)")
	flag.StringVar(&cfg.LogMode, "log-mode", getEnv("LOG_MODE", defaultLogMode), "Log mode, dev or prod (Env: LEARNEDGE_LOG_MODE)")
	flag.StringVar(&cfg.ClientURL, "client-url", getEnv("CLIENT_URL", defaultClientURL), "Frontend base URL (Env: LEARNEDGE_CLIENT_URL)")
	flag.StringVar(&corsOrigins, "cors-origins", getEnv("CORS_ORIGINS", ""), "Comma-separated allowed origins, defaults to client-url (Env: LEARNEDGE_CORS_ORIGINS)")

	flag.StringVar(&cfg.StoreDriver, "store", getEnv("STORE_DRIVER", defaultStoreDriver), "Storage driver: json, sqlite or postgres (Env: LEARNEDGE_STORE_DRIVER)")
	flag.StringVar(&cfg.DbFilePath, "db-file", getEnv("DB_FILE_PATH", defaultDbFile), "Path to the JSON database file (Env: LEARNEDGE_DB_FILE_PATH)")
	flag.StringVar(&saveInterval, "save-interval", getEnv("SAVE_INTERVAL", defaultSaveInterval.String()), "Debounce interval for saving the JSON database (Env: LEARNEDGE_SAVE_INTERVAL)")
	flag.BoolVar(&cfg.EnableBackup, "enable-backup", cfg.getEnvBool("ENABLE_BACKUP", defaultEnableBackup), "Keep a .bak copy before saving (Env: LEARNEDGE_ENABLE_BACKUP)")
	flag.StringVar(&cfg.DatabaseDSN, "database-dsn", getEnv("DATABASE_DSN", ""), "sqlite file or postgres DSN (Env: LEARNEDGE_DATABASE_DSN)")

	flag.StringVar(&cfg.JwtSecretFile, "jwt-secret-file", getEnv("JWT_SECRET_FILE", ""), "Path to file containing the JWT secret (Env: LEARNEDGE_JWT_SECRET_FILE)")
	flag.StringVar(&tokenLifetime, "token-lifetime", getEnv("TOKEN_LIFETIME", defaultTokenLifetime.String()), "Access token lifetime (Env: LEARNEDGE_TOKEN_LIFETIME)")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.getEnvInt("BCRYPT_COST", defaultBcryptCost), "bcrypt cost factor (Env: LEARNEDGE_BCRYPT_COST)")

	flag.StringVar(&cfg.PaymentProvider, "payment-provider", getEnv("PAYMENT_PROVIDER", defaultPaymentProvider), "Payment provider: sandbox or paypal (Env: LEARNEDGE_PAYMENT_PROVIDER)")
	flag.StringVar(&cfg.PayPalClientID, "paypal-client-id", getEnv("PAYPAL_CLIENT_ID", ""), "PayPal REST client id (Env: LEARNEDGE_PAYPAL_CLIENT_ID)")
	flag.StringVar(&cfg.PayPalSecret, "paypal-secret", getEnv("PAYPAL_SECRET", ""), "PayPal REST secret (Env: LEARNEDGE_PAYPAL_SECRET)")
	flag.BoolVar(&cfg.PayPalLive, "paypal-live", cfg.getEnvBool("PAYPAL_LIVE", false), "Use the live PayPal API instead of the sandbox (Env: LEARNEDGE_PAYPAL_LIVE)")
	flag.StringVar(&cfg.Currency, "currency", getEnv("CURRENCY", defaultCurrency), "ISO currency code for orders (Env: LEARNEDGE_CURRENCY)")

	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for the entitlement cache (Env: LEARNEDGE_REDIS_ADDR)")
	flag.StringVar(&entitlementTTL, "entitlement-ttl", getEnv("ENTITLEMENT_TTL", defaultEntitlementTTL.String()), "Entitlement cache TTL (Env: LEARNEDGE_ENTITLEMENT_TTL)")

	flag.Parse()

	cfg.SaveInterval = cfg.parseDuration("save-interval", saveInterval, defaultSaveInterval)
	cfg.TokenLifetime = cfg.parseDuration("token-lifetime", tokenLifetime, defaultTokenLifetime)
	cfg.EntitlementTTL = cfg.parseDuration("entitlement-ttl", entitlementTTL, defaultEntitlementTTL)

	cfg.CORSOrigins = splitList(corsOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{cfg.ClientURL}
	}
	cfg.ClientURL = strings.TrimRight(cfg.ClientURL, "/")
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.PaymentProvider = strings.ToLower(strings.TrimSpace(cfg.PaymentProvider))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))

	if err := cfg.loadJwtSecret(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadJwtSecret resolves the signing secret.
// Priority: file (flag/env) > env var > default key file > generate.
func (cfg *Config) loadJwtSecret() error {
	if cfg.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.JwtSecretFile)
		switch {
		case err != nil:
			cfg.warnf("failed to read JWT secret file %q: %v", cfg.JwtSecretFile, err)
		case strings.TrimSpace(string(secretBytes)) == "":
			cfg.warnf("JWT secret file %q is empty, ignoring it", cfg.JwtSecretFile)
		default:
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			cfg.SecretSource = "file " + cfg.JwtSecretFile
			return nil
		}
	}

	if secret := strings.TrimSpace(getEnv("JWT_SECRET", "")); secret != "" {
		cfg.JwtSecret = secret
		cfg.SecretSource = "environment " + envPrefix + "JWT_SECRET"
		return nil
	}

	secretBytes, err := os.ReadFile(defaultJwtKeyFile)
	if err == nil && strings.TrimSpace(string(secretBytes)) != "" {
		cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
		cfg.SecretSource = "default key file " + defaultJwtKeyFile
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		cfg.warnf("failed to read default JWT key file %q: %v", defaultJwtKeyFile, err)
	}

	newSecret, err := generateRandomKey(32)
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.JwtSecret = newSecret
	if err := os.WriteFile(defaultJwtKeyFile, []byte(newSecret), 0600); err != nil {
		cfg.warnf("failed to save generated JWT secret to %q: %v; the key is valid for this process only", defaultJwtKeyFile, err)
		cfg.SecretSource = "generated (in memory)"
		return nil
	}
	cfg.SecretSource = "generated and saved to " + defaultJwtKeyFile
	return nil
}

func (cfg *Config) validate() error {
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d is out of range 4-31", cfg.BcryptCost)
	}

	switch cfg.StoreDriver {
	case StoreJSON:
		absDbPath, err := filepath.Abs(cfg.DbFilePath)
		if err != nil {
			return fmt.Errorf("could not determine absolute path for db-file %q: %w", cfg.DbFilePath, err)
		}
		cfg.DbFilePath = absDbPath
		if info, err := os.Stat(cfg.DbFilePath); err == nil && info.IsDir() {
			return fmt.Errorf("database path %q points to a directory, not a file", cfg.DbFilePath)
		}
	case StoreSQLite:
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = defaultSQLiteFile
		}
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			return errors.New("the postgres store requires a database DSN")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want json, sqlite or postgres)", cfg.StoreDriver)
	}

	switch cfg.PaymentProvider {
	case ProviderSandbox:
	case ProviderPayPal:
		if cfg.PayPalClientID == "" || cfg.PayPalSecret == "" {
			return errors.New("the paypal payment provider requires a client id and secret")
		}
	default:
		return fmt.Errorf("unknown payment provider %q (want sandbox or paypal)", cfg.PaymentProvider)
	}
	return nil
}

// Fields returns the non-secret settings as key/value pairs for the startup log.
func (cfg *Config) Fields() []interface{} {
	return []interface{}{
		"address", cfg.ListenAddress,
		"port", cfg.ListenPort,
		"store_driver", cfg.StoreDriver,
		"db_file", cfg.DbFilePath,
		"save_interval", cfg.SaveInterval.String(),
		"backup", cfg.EnableBackup,
		"jwt_source", cfg.SecretSource,
		"access_lifetime", cfg.TokenLifetime.String(),
		"bcrypt_cost", cfg.BcryptCost,
		"payment_provider", cfg.PaymentProvider,
		"paypal_live", cfg.PayPalLive,
		"currency", cfg.Currency,
		"redis_addr", cfg.RedisAddr,
		"entitlement_ttl", cfg.EntitlementTTL.String(),
		"cors_origins", cfg.CORSOrigins,
	}
}

func (cfg *Config) warnf(format string, args ...any) {
	cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(format, args...))
}

func (cfg *Config) parseDuration(name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		cfg.warnf("invalid %s duration %q, using default %s: %v", name, value, fallback, err)
		return fallback
	}
	return d
}

// getEnv retrieves a LEARNEDGE_ prefixed environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(envPrefix + key); exists {
		return value
	}
	return fallback
}

// getEnvBool recognizes "true", "1", "yes" and "false", "0", "no" (case-insensitive).
func (cfg *Config) getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(envPrefix + key)
	if !exists {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	cfg.warnf("invalid boolean value for %s%s: %q, using default %t", envPrefix, key, value, fallback)
	return fallback
}

func (cfg *Config) getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(envPrefix + key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		cfg.warnf("invalid integer value for %s%s: %q, using default %d", envPrefix, key, value, fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// generateRandomKey returns length random bytes hex-encoded.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
