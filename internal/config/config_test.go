package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/regtools/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Server.MaxBatchSize)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LocalTTL)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
	assert.Empty(t, cfg.Policy.Path)
	assert.Empty(t, cfg.Server.PolicyAdminTenant)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadProTierFromEnv(t *testing.T) {
	t.Setenv("REGTOOLS_TIER", "pro")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, 24*time.Hour, cfg.Cache.EvaluationTTL)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadFileOverridesPreset(t *testing.T) {
	path := writeFile(t, "regtools.yaml", `
server:
  port: 9090
  max_batch_size: 50
cache:
  local_ttl: 30s
policy:
  path: /etc/regtools/policy.yaml
worker:
  tenant_ids: [tenant-a, tenant-b]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.MaxBatchSize)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalTTL)
	assert.Equal(t, "/etc/regtools/policy.yaml", cfg.Policy.Path)
	assert.Equal(t, []string{"tenant-a", "tenant-b"}, cfg.Worker.TenantIDs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "regtools.yaml", "server:\n  port: 9090\n")
	t.Setenv("REGTOOLS_SERVER_PORT", "7070")
	t.Setenv("REGTOOLS_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadPolicyAdminTenantFromEnv(t *testing.T) {
	t.Setenv("REGTOOLS_SERVER_POLICY_ADMIN_TENANT", "compliance")
	t.Setenv("REGTOOLS_TRACING_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "compliance", cfg.Server.PolicyAdminTenant)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadTierFromFile(t *testing.T) {
	path := writeFile(t, "regtools.yaml", "tier: pro\nrepository:\n  postgres_host: db\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "db", cfg.Repository.PostgresHost)
	assert.Equal(t, 5432, cfg.Repository.PostgresPort)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		t.Setenv("REGTOOLS_TIER", "enterprise")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("InvalidDriver", func(t *testing.T) {
		path := writeFile(t, "regtools.yaml", "repository:\n  driver: mysql\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "repository.driver")
	})

	t.Run("InvalidPort", func(t *testing.T) {
		t.Setenv("REGTOOLS_SERVER_PORT", "70000")
		_, err := Load("")
		assert.ErrorContains(t, err, "server.port")
	})
}

func TestValidatePresets(t *testing.T) {
	assert.NoError(t, Validate(domain.DefaultConfig()))
	assert.NoError(t, Validate(domain.ProConfig()))

	cfg := domain.DefaultConfig()
	cfg.EventBus.Type = "kafka"
	assert.Error(t, Validate(cfg))
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "regtools.yaml"))
	require.NoError(t, err)

	want := domain.DefaultConfig()
	want.Policy.Path = "./configs/policy.yaml"
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Cache, cfg.Cache)
	assert.Equal(t, want.Policy, cfg.Policy)
	assert.Empty(t, cfg.Worker.TenantIDs)
	assert.Equal(t, want.Tracing, cfg.Tracing)
}
