// Package config provides configuration loading and validation for HydraDNS.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/hydradns/main.go)
//  2. Environment variables (HYDRADNS_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from HYDRADNS_CATEGORY_SETTING format,
// e.g., HYDRADNS_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Environment variable binding
	// Uses HYDRADNS_ prefix: HYDRADNS_SERVER_HOST -> server.host
	v.SetEnvPrefix("HYDRADNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 1053)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.max_concurrency", 0)
	v.SetDefault("server.upstream_socket_pool_size", 0)
	v.SetDefault("server.enable_tcp", true)
	v.SetDefault("server.tcp_fallback", true)

	// Upstream defaults
	v.SetDefault("upstream.servers", []string{"8.8.8.8"})
	v.SetDefault("upstream.udp_timeout", "3s")
	v.SetDefault("upstream.tcp_timeout", "5s")
	v.SetDefault("upstream.max_retries", 3)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Cache defaults
	v.SetDefault("cache.max_rrsets", 0)
	v.SetDefault("cache.serve_stale_ttl", 86400)
	v.SetDefault("cache.serve_stale_refresh", 30)
	v.SetDefault("cache.high_water_bytes", 0)
	v.SetDefault("cache.low_water_bytes", 0)

	// ADB defaults
	v.SetDefault("adb.quota", 0)
	v.SetDefault("adb.atr_freq", 20)
	v.SetDefault("adb.atr_low", 0.10)
	v.SetDefault("adb.atr_high", 0.30)
	v.SetDefault("adb.atr_discount", 0.50)
	v.SetDefault("adb.udp_size_default", 512)

	// Admin (debug/operator HTTP surface) defaults
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8080)
	v.SetDefault("admin.api_key", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadADBConfig(v, cfg)
	loadAdminConfig(v, cfg)

	// Normalize and validate
	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.MaxConcurrency = v.GetInt("server.max_concurrency")
	cfg.Server.UpstreamSocketPoolSize = v.GetInt("server.upstream_socket_pool_size")
	cfg.Server.EnableTCP = v.GetBool("server.enable_tcp")
	cfg.Server.TCPFallback = v.GetBool("server.tcp_fallback")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	cfg.Upstream.Servers = parseServerList(v.GetStringSlice("upstream.servers"))
	if len(cfg.Upstream.Servers) == 0 {
		// Handle comma-separated string from env
		if s := v.GetString("upstream.servers"); s != "" {
			cfg.Upstream.Servers = parseServerList(strings.Split(s, ","))
		}
	}
	cfg.Upstream.UDPTimeout = v.GetString("upstream.udp_timeout")
	cfg.Upstream.TCPTimeout = v.GetString("upstream.tcp_timeout")
	cfg.Upstream.MaxRetries = v.GetInt("upstream.max_retries")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.MaxRRsets = v.GetInt("cache.max_rrsets")
	cfg.Cache.ServeStaleTTL = v.GetInt64("cache.serve_stale_ttl")
	cfg.Cache.ServeStaleRefresh = v.GetInt64("cache.serve_stale_refresh")
	cfg.Cache.HighWaterBytes = v.GetInt64("cache.high_water_bytes")
	cfg.Cache.LowWaterBytes = v.GetInt64("cache.low_water_bytes")
}

func loadADBConfig(v *viper.Viper, cfg *Config) {
	cfg.ADB.Quota = v.GetInt("adb.quota")
	cfg.ADB.ATRFreq = v.GetInt("adb.atr_freq")
	cfg.ADB.ATRLow = v.GetFloat64("adb.atr_low")
	cfg.ADB.ATRHigh = v.GetFloat64("adb.atr_high")
	cfg.ADB.ATRDiscount = v.GetFloat64("adb.atr_discount")
	cfg.ADB.UDPSizeDefault = v.GetInt("adb.udp_size_default")
}

func loadAdminConfig(v *viper.Viper, cfg *Config) {
	cfg.Admin.Enabled = v.GetBool("admin.enabled")
	cfg.Admin.Host = v.GetString("admin.host")
	cfg.Admin.Port = v.GetInt("admin.port")
	cfg.Admin.APIKey = v.GetString("admin.api_key")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// parseServerList cleans up a list of server addresses.
func parseServerList(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Strip port if present (always use port 53)
		if h, _, ok := strings.Cut(s, ":"); ok {
			s = h
		}
		result = append(result, s)
	}
	return result
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	// Validate port
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	// Default upstream servers
	if len(cfg.Upstream.Servers) == 0 {
		cfg.Upstream.Servers = []string{"8.8.8.8"}
	}

	// Limit to 3 upstream servers (the fetcher picks a random healthy one per query)
	if len(cfg.Upstream.Servers) > 3 {
		cfg.Upstream.Servers = cfg.Upstream.Servers[:3]
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize cache tunables
	if cfg.Cache.ServeStaleTTL < 0 {
		cfg.Cache.ServeStaleTTL = 0
	}
	if cfg.Cache.ServeStaleRefresh < 0 {
		cfg.Cache.ServeStaleRefresh = 0
	}

	// Normalize ADB tunables
	if cfg.ADB.ATRFreq <= 0 {
		cfg.ADB.ATRFreq = 20
	}
	if cfg.ADB.UDPSizeDefault < 512 {
		cfg.ADB.UDPSizeDefault = 512
	}

	// Normalize admin surface
	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "127.0.0.1"
	}
	if cfg.Admin.Enabled {
		if cfg.Admin.Port <= 0 || cfg.Admin.Port > 65535 {
			return errors.New("admin.port must be 1..65535")
		}
	}

	return nil
}
