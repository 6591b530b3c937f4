package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsync-admin/logging/logtest"
	"civicsync-admin/store"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "ASSIGN_LIMIT_PER_DAY", "TOKEN_TTL", "RECONCILE_INTERVAL", "CORS_ORIGINS", "RECONCILE_POLICY"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.AssignLimitPerDay)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Zero(t, cfg.ReconcileInterval)
	assert.Equal(t, "report", cfg.ReconcilePolicy)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GO_ENV", "production")
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("ASSIGN_LIMIT_PER_DAY", "5")
	t.Setenv("TOKEN_TTL", "12h")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://admin.city.gov ,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, 5, cfg.AssignLimitPerDay)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, []string{"http://localhost:5173", "https://admin.city.gov"}, cfg.CORSOrigins)
}

func TestFromEnvErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend":   {"STORE_BACKEND": "sqlite"},
		"mongo without uri": {"STORE_BACKEND": "mongo", "MONGODB_URI": ""},
		"bad limit":         {"ASSIGN_LIMIT_PER_DAY": "many"},
		"zero limit":        {"ASSIGN_LIMIT_PER_DAY": "0"},
		"bad ttl":           {"TOKEN_TTL": "3 days"},
		"negative interval": {"RECONCILE_INTERVAL": "-1m"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Config{JWTSecret: "s", AdminEmail: "admin@city.gov", AdminPassword: "p"}
	require.NoError(t, cfg.ValidateServer())

	cfg.JWTSecret = ""
	assert.ErrorIs(t, cfg.ValidateServer(), ErrInvalidConfig)

	cfg = Config{JWTSecret: "s"}
	assert.ErrorIs(t, cfg.ValidateServer(), ErrInvalidConfig)
}

func TestOpenMemoryStore(t *testing.T) {
	s, closeFn, err := OpenStore(context.Background(), Config{StoreBackend: BackendMemory}, logtest.New(t))
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &store.Memory{}, s)

	_, _, err = OpenStore(context.Background(), Config{StoreBackend: "etcd"}, logtest.New(t))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
