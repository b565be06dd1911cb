// Package config loads sshmux's runtime configuration from an optional
// JSON5 file, then overlays SSH_MCP_-prefixed environment variables so
// env always wins over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Config holds every tunable in the configuration table, plus the
// ambient fields the rest of the service needs at startup.
type Config struct {
	LogLevel string `json:"log_level"`

	PerHostMaxConnections int `json:"per_host_max_connections"`

	CommandTimeoutSeconds int `json:"command_timeout_seconds"`

	IdleConnectionTTLSeconds int `json:"idle_connection_ttl_seconds"`

	ConnectionRetryCount int `json:"connection_retry_count"`

	ConnectionRetryDelaySeconds float64 `json:"connection_retry_delay_seconds"`

	// KnownHostsPolicy is one of "ignore", "warn", "reject".
	KnownHostsPolicy string `json:"known_hosts_policy"`

	// HashAlgorithm is one of "none", "md5", "sha256", "both".
	HashAlgorithm string `json:"hash_algorithm"`

	// CacheMaxSize is the total cache-entry budget shared by both tiers.
	CacheMaxSize int `json:"cache_maxsize"`

	// AllowlistMode puts the safety gate into read-only-only mode.
	AllowlistMode bool `json:"allowlist_mode"`

	// EncryptionKeyHex is the 64-hex-char AES-256 key for the keystore
	// adapter. Sourced from env only; never round-tripped through a file.
	EncryptionKeyHex string `json:"-"`
}

const envPrefix = "SSH_MCP_"

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		LogLevel:                    "INFO",
		PerHostMaxConnections:       5,
		CommandTimeoutSeconds:       30,
		IdleConnectionTTLSeconds:    300,
		ConnectionRetryCount:        3,
		ConnectionRetryDelaySeconds: 1.0,
		KnownHostsPolicy:            "ignore",
		HashAlgorithm:               "md5",
		CacheMaxSize:                128,
		AllowlistMode:               false,
	}
}

// Load reads cfg from path (if non-empty), then overlays SSH_MCP_-prefixed
// env vars. A missing file is not an error; it falls back to Default()
// plus whatever env vars are set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if uerr := json5.Unmarshal(data, cfg); uerr != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, uerr)
			}
		case os.IsNotExist(err):
			// no file on disk — defaults + env only
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration states the core cannot run with.
func (c *Config) Validate() error {
	if c.PerHostMaxConnections < 1 {
		return fmt.Errorf("config: per_host_max_connections must be >= 1, got %d", c.PerHostMaxConnections)
	}
	if c.CommandTimeoutSeconds < 1 {
		return fmt.Errorf("config: command_timeout_seconds must be >= 1, got %d", c.CommandTimeoutSeconds)
	}
	if c.IdleConnectionTTLSeconds < 0 {
		return fmt.Errorf("config: idle_connection_ttl_seconds must be >= 0, got %d", c.IdleConnectionTTLSeconds)
	}
	if c.ConnectionRetryCount < 1 {
		return fmt.Errorf("config: connection_retry_count must be >= 1, got %d", c.ConnectionRetryCount)
	}
	if c.CacheMaxSize < 0 {
		return fmt.Errorf("config: cache_maxsize must be >= 0, got %d", c.CacheMaxSize)
	}
	switch c.KnownHostsPolicy {
	case "ignore", "warn", "reject":
	default:
		return fmt.Errorf("config: known_hosts_policy must be ignore|warn|reject, got %q", c.KnownHostsPolicy)
	}
	switch c.HashAlgorithm {
	case "none", "md5", "sha256", "both":
	default:
		return fmt.Errorf("config: hash_algorithm must be none|md5|sha256|both, got %q", c.HashAlgorithm)
	}
	return nil
}

// applyEnvOverrides overlays SSH_MCP_-prefixed env vars onto c.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(envPrefix + key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("LOG_LEVEL", &c.LogLevel)
	envInt("PER_HOST_MAX_CONNECTIONS", &c.PerHostMaxConnections)
	envInt("COMMAND_TIMEOUT_SECONDS", &c.CommandTimeoutSeconds)
	envInt("IDLE_CONNECTION_TTL_SECONDS", &c.IdleConnectionTTLSeconds)
	envInt("CONNECTION_RETRY_COUNT", &c.ConnectionRetryCount)
	envFloat("CONNECTION_RETRY_DELAY_SECONDS", &c.ConnectionRetryDelaySeconds)
	envStr("KNOWN_HOSTS_POLICY", &c.KnownHostsPolicy)
	envStr("HASH_ALGORITHM", &c.HashAlgorithm)
	envInt("CACHE_MAXSIZE", &c.CacheMaxSize)
	envStr("ENCRYPTION_KEY", &c.EncryptionKeyHex)
	envBool("ALLOWLIST_MODE", &c.AllowlistMode)

	c.LogLevel = strings.ToUpper(c.LogLevel)
	c.KnownHostsPolicy = strings.ToLower(c.KnownHostsPolicy)
	c.HashAlgorithm = strings.ToLower(c.HashAlgorithm)
}
