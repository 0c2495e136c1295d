// Package config loads the service configuration: defaults, an optional YAML
// file, and NETSENTRY_-prefixed environment overrides, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Store    StoreConfig    `mapstructure:"store"`
	Geo      GeoConfig      `mapstructure:"geo"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// UpstreamConfig selects and locates the event feed.
type UpstreamConfig struct {
	// Source is "http" (bulk endpoint + SSE stream) or "nats".
	Source     string     `mapstructure:"source"`
	ThreatsURL string     `mapstructure:"threats_url"`
	StreamURL  string     `mapstructure:"stream_url"`
	NATS       NATSConfig `mapstructure:"nats"`
}

// NATSConfig locates the NATS feed variant.
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EventSubject    string `mapstructure:"event_subject"`
	SnapshotSubject string `mapstructure:"snapshot_subject"`
}

// IngestConfig tunes the reconnect and liveness policies.
type IngestConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	LivenessWindow time.Duration `mapstructure:"liveness_window"`
}

// StoreConfig bounds in-memory retention. MaxEvents of zero keeps every
// event for the life of the process, matching the historical dashboard.
type StoreConfig struct {
	MaxEvents int `mapstructure:"max_events"`
}

// GeoConfig configures the geolocation enrichment.
type GeoConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ProviderURL string        `mapstructure:"provider_url"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NETSENTRY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("upstream.source", "http")
	v.SetDefault("upstream.threats_url", "http://localhost:5000/api/threats")
	v.SetDefault("upstream.stream_url", "http://localhost:5000/api/threats/stream")
	v.SetDefault("upstream.nats.url", "nats://localhost:4222")
	v.SetDefault("upstream.nats.event_subject", "threats.events")
	v.SetDefault("upstream.nats.snapshot_subject", "threats.snapshot")

	v.SetDefault("ingest.reconnect_delay", "5s")
	v.SetDefault("ingest.liveness_window", "5s")

	v.SetDefault("store.max_events", 0)

	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.provider_url", "http://ip-api.com/json")
	v.SetDefault("geo.redis_addr", "")
	v.SetDefault("geo.cache_ttl", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
