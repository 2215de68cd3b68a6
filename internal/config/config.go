package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Env      string `env:"GATEPASS_ENV,default=dev"` // dev | test | staging | prod
	LogLevel string `env:"GATEPASS_LOG_LEVEL,default=info"`
	HTTPAddr string `env:"GATEPASS_HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GATEPASS_GRPC_ADDR,default=:9090"` // empty disables gRPC

	// Storage
	Store       string `env:"GATEPASS_STORE,default=sqlite"`
	DBPath      string `env:"GATEPASS_DB_PATH,default=./data/gatepass.db"`
	DatabaseURL string `env:"GATEPASS_DATABASE_URL"`
	DBMaxConns  int32  `env:"GATEPASS_DB_MAX_CONNECTIONS,default=4"`

	// Private keys. An empty path keeps keys in memory only, which is
	// allowed for the memory store alone. The identity comes from
	// KEYSTORE_IDENTITY or from the file at KEYSTORE_IDENTITY_FILE.
	KeystorePath         string `env:"GATEPASS_KEYSTORE_PATH"`
	KeystoreIdentity     string `env:"GATEPASS_KEYSTORE_IDENTITY"`
	KeystoreIdentityFile string `env:"GATEPASS_KEYSTORE_IDENTITY_FILE"`

	// Bearer tokens
	JWTSecret   string        `env:"GATEPASS_JWT_SECRET"`
	TokenTTL    time.Duration `env:"GATEPASS_TOKEN_TTL,default=24h"`
	LoginSecret string        `env:"GATEPASS_LOGIN_SECRET"`

	// Passes and QR codes
	QRValidity          time.Duration `env:"GATEPASS_QR_VALIDITY,default=60s"`
	QRStrictTimestamps  bool          `env:"GATEPASS_QR_STRICT_TIMESTAMPS,default=false"`
	DefaultPassTTLHours int           `env:"GATEPASS_DEFAULT_PASS_TTL_HOURS,default=24"`
	CatalogPath         string        `env:"GATEPASS_CATALOG_PATH"`

	// Housekeeping
	ExpirySweepInterval     time.Duration `env:"GATEPASS_EXPIRY_SWEEP_INTERVAL,default=5m"`
	AuditRetentionDays      int           `env:"GATEPASS_AUDIT_RETENTION_DAYS,default=30"` // 0 = keep forever
	AuditPruneIntervalHours int           `env:"GATEPASS_AUDIT_PRUNE_INTERVAL_HOURS,default=24"`

	// HTTP limits
	RateLimitRPS     int32         `env:"GATEPASS_RATE_LIMIT_RPS,default=100"`
	RateLimitBurst   int32         `env:"GATEPASS_RATE_LIMIT_BURST,default=200"`
	OperationTimeout time.Duration `env:"GATEPASS_OPERATION_TIMEOUT,default=5s"`

	SeedDev bool `env:"GATEPASS_SEED_DEV,default=false"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"staging": true,
	"prod":    true,
}

const (
	keystoreFile       = "gatepass.keys.age"
	identityFileSuffix = ".identity"
	defaultPostgresDir = "./data"
)

// devSecret is used for the JWT and login secrets outside prod when none is
// configured.
const devSecret = "demo123"

// FromEnv loads the configuration from the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	return finish(cfg)
}

// FromEnvSet loads the configuration from an explicit variable set.
func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	return finish(cfg)
}

func finish(cfg Config) (Config, error) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.IsDevLike() && cfg.Store != StoreMemory {
		// Persistent principals need persistent keys; dev and test get a
		// keystore beside the database with a generated identity.
		if cfg.KeystorePath == "" {
			dir := defaultPostgresDir
			if cfg.Store == StoreSQLite && strings.TrimSpace(cfg.DBPath) != "" {
				dir = filepath.Dir(cfg.DBPath)
			}
			cfg.KeystorePath = filepath.Join(dir, keystoreFile)
		}
		if cfg.KeystoreIdentity == "" && cfg.KeystoreIdentityFile == "" {
			cfg.KeystoreIdentityFile = cfg.KeystorePath + identityFileSuffix
		}
	}

	if cfg.Env != "prod" {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devSecret
		}
		if cfg.LoginSecret == "" {
			cfg.LoginSecret = devSecret
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if !validEnvs[cfg.Env] {
		return fmt.Errorf("invalid GATEPASS_ENV: %s", cfg.Env)
	}

	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return fmt.Errorf("GATEPASS_DB_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("GATEPASS_DATABASE_URL is required for the postgres store")
		}
		if cfg.DBMaxConns < 1 {
			return fmt.Errorf("GATEPASS_DB_MAX_CONNECTIONS must be at least 1")
		}
	default:
		return fmt.Errorf("invalid GATEPASS_STORE: %s", cfg.Store)
	}

	if cfg.Env == "prod" {
		if cfg.JWTSecret == "" {
			return fmt.Errorf("GATEPASS_JWT_SECRET is required in prod")
		}
		if cfg.LoginSecret == "" {
			return fmt.Errorf("GATEPASS_LOGIN_SECRET is required in prod")
		}
	}

	// Durable principals with throwaway keys would leave every approved pass
	// unable to produce a QR code after a restart.
	if cfg.Store != StoreMemory && cfg.KeystorePath == "" {
		return fmt.Errorf("GATEPASS_KEYSTORE_PATH is required with the %s store", cfg.Store)
	}
	if cfg.KeystorePath != "" && cfg.KeystoreIdentity == "" && cfg.KeystoreIdentityFile == "" {
		return fmt.Errorf("GATEPASS_KEYSTORE_IDENTITY or GATEPASS_KEYSTORE_IDENTITY_FILE is required when GATEPASS_KEYSTORE_PATH is set")
	}

	if cfg.QRValidity <= 0 {
		return fmt.Errorf("GATEPASS_QR_VALIDITY must be positive")
	}
	if cfg.DefaultPassTTLHours <= 0 {
		return fmt.Errorf("GATEPASS_DEFAULT_PASS_TTL_HOURS must be positive")
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("GATEPASS_TOKEN_TTL must be positive")
	}
	if cfg.AuditRetentionDays < 0 {
		return fmt.Errorf("GATEPASS_AUDIT_RETENTION_DAYS must be 0 or greater")
	}
	if cfg.AuditPruneIntervalHours <= 0 {
		return fmt.Errorf("GATEPASS_AUDIT_PRUNE_INTERVAL_HOURS must be positive")
	}
	if cfg.ExpirySweepInterval <= 0 {
		return fmt.Errorf("GATEPASS_EXPIRY_SWEEP_INTERVAL must be positive")
	}
	if cfg.OperationTimeout <= 0 {
		return fmt.Errorf("GATEPASS_OPERATION_TIMEOUT must be positive")
	}
	return nil
}

// IsDevLike reports whether the environment may create missing local
// secrets such as the keystore identity file.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "test"
}
