// Package config loads the service configuration from presets, an optional
// file and REGTOOLS_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/regtools/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. REGTOOLS_SERVER_PORT.
const EnvPrefix = "REGTOOLS"

// Load builds the configuration. The tier (file key "tier" or REGTOOLS_TIER)
// selects the preset; the file at path, when given, overrides it, and
// environment variables override both.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	preset := domain.DefaultConfig()
	switch tier := domain.Tier(v.GetString("tier")); tier {
	case "", domain.TierCommunity:
	case domain.TierPro:
		preset = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	setDefaults(v, preset)

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("server.max_batch_size must be positive")
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository.driver %q", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache.type %q", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported eventbus.type %q", cfg.EventBus.Type)
	}
	return nil
}

// setDefaults registers every key with its preset value. Viper only maps
// environment variables onto keys it knows about.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.max_batch_size", c.Server.MaxBatchSize)
	v.SetDefault("server.policy_admin_tenant", c.Server.PolicyAdminTenant)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlite_path", c.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", c.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", c.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", c.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", c.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.local_max_size", c.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", c.Cache.LocalTTL)
	v.SetDefault("cache.evaluation_ttl", c.Cache.EvaluationTTL)
	v.SetDefault("cache.redis_addr", c.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", c.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", c.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", c.Cache.EnableTwoPhase)

	v.SetDefault("eventbus.type", c.EventBus.Type)
	v.SetDefault("eventbus.channel_buffer_size", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats_url", c.EventBus.NATSUrl)
	v.SetDefault("eventbus.nats_token", c.EventBus.NATSToken)
	v.SetDefault("eventbus.nats_max_reconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventbus.nats_reconnect_wait", c.EventBus.NATSReconnectWait)

	v.SetDefault("worker.enabled", c.Worker.Enabled)
	v.SetDefault("worker.tenant_ids", c.Worker.TenantIDs)

	v.SetDefault("policy.path", c.Policy.Path)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
}
