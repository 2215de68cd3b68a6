package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromEnvSet(env.EnvSet{})
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.QRValidity)
	assert.Equal(t, 24, cfg.DefaultPassTTLHours)
	assert.Equal(t, 5*time.Minute, cfg.ExpirySweepInterval)
	assert.Equal(t, 30, cfg.AuditRetentionDays)
	assert.Equal(t, int32(100), cfg.RateLimitRPS)
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.False(t, cfg.QRStrictTimestamps)
	assert.Equal(t, "demo123", cfg.LoginSecret)
	assert.Equal(t, "demo123", cfg.JWTSecret)
	assert.Equal(t, filepath.Join("data", "gatepass.keys.age"), cfg.KeystorePath)
	assert.Equal(t, filepath.Join("data", "gatepass.keys.age.identity"), cfg.KeystoreIdentityFile)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnvSet(env.EnvSet{
		"GATEPASS_ENV":                  "TEST",
		"GATEPASS_STORE":                "memory",
		"GATEPASS_QR_VALIDITY":          "30s",
		"GATEPASS_QR_STRICT_TIMESTAMPS": "true",
		"GATEPASS_LOGIN_SECRET":         "s3cret",
	})
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.QRValidity)
	assert.True(t, cfg.QRStrictTimestamps)
	assert.Equal(t, "s3cret", cfg.LoginSecret)
}

func TestValidation(t *testing.T) {
	cases := map[string]env.EnvSet{
		"unknown env":        {"GATEPASS_ENV": "qa"},
		"unknown store":      {"GATEPASS_STORE": "redis"},
		"postgres no url":    {"GATEPASS_STORE": "postgres"},
		"prod no secrets":    {"GATEPASS_ENV": "prod", "GATEPASS_STORE": "memory"},
		"prod no keystore":   {"GATEPASS_ENV": "prod", "GATEPASS_JWT_SECRET": "a", "GATEPASS_LOGIN_SECRET": "b"},
		"keystore no ident":  {"GATEPASS_STORE": "memory", "GATEPASS_KEYSTORE_PATH": "/tmp/keys.age"},
		"staging sqlite":     {"GATEPASS_ENV": "staging"},
		"staging postgres":   {"GATEPASS_ENV": "staging", "GATEPASS_STORE": "postgres", "GATEPASS_DATABASE_URL": "postgres://x"},
		"zero qr window":     {"GATEPASS_QR_VALIDITY": "0s"},
		"zero pass ttl":      {"GATEPASS_DEFAULT_PASS_TTL_HOURS": "0"},
		"negative retention": {"GATEPASS_AUDIT_RETENTION_DAYS": "-1"},
		"bad duration":       {"GATEPASS_OPERATION_TIMEOUT": "soon"},
	}
	for name, es := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnvSet(es)
			assert.Error(t, err)
		})
	}
}

func TestProdWithKeystore(t *testing.T) {
	cfg, err := FromEnvSet(env.EnvSet{
		"GATEPASS_ENV":               "prod",
		"GATEPASS_JWT_SECRET":        "jwt",
		"GATEPASS_LOGIN_SECRET":      "login",
		"GATEPASS_KEYSTORE_PATH":     "/var/lib/gatepass/keys.age",
		"GATEPASS_KEYSTORE_IDENTITY": "AGE-SECRET-KEY-1XYZ",
	})
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
}

func TestPersistentStoreGetsKeystore(t *testing.T) {
	t.Run("sqlite beside the database", func(t *testing.T) {
		cfg, err := FromEnvSet(env.EnvSet{"GATEPASS_DB_PATH": "/var/lib/gatepass/gp.db"})
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/gatepass/gatepass.keys.age", cfg.KeystorePath)
		assert.Equal(t, "/var/lib/gatepass/gatepass.keys.age.identity", cfg.KeystoreIdentityFile)
	})

	t.Run("postgres in test", func(t *testing.T) {
		cfg, err := FromEnvSet(env.EnvSet{
			"GATEPASS_ENV":          "test",
			"GATEPASS_STORE":        "postgres",
			"GATEPASS_DATABASE_URL": "postgres://localhost/gatepass",
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("data", "gatepass.keys.age"), cfg.KeystorePath)
	})

	t.Run("explicit identity is kept", func(t *testing.T) {
		cfg, err := FromEnvSet(env.EnvSet{
			"GATEPASS_KEYSTORE_PATH":     "/keys/k.age",
			"GATEPASS_KEYSTORE_IDENTITY": "AGE-SECRET-KEY-1XYZ",
		})
		require.NoError(t, err)
		assert.Equal(t, "/keys/k.age", cfg.KeystorePath)
		assert.Empty(t, cfg.KeystoreIdentityFile)
	})

	t.Run("memory store stays keyless", func(t *testing.T) {
		cfg, err := FromEnvSet(env.EnvSet{"GATEPASS_STORE": "memory"})
		require.NoError(t, err)
		assert.Empty(t, cfg.KeystorePath)
	})

	t.Run("staging with identity file", func(t *testing.T) {
		cfg, err := FromEnvSet(env.EnvSet{
			"GATEPASS_ENV":                    "staging",
			"GATEPASS_KEYSTORE_PATH":          "/keys/k.age",
			"GATEPASS_KEYSTORE_IDENTITY_FILE": "/run/secrets/age",
		})
		require.NoError(t, err)
		assert.False(t, cfg.IsDevLike())
	})
}
