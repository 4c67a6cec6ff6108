// Package config provides configuration loading for HydraDNS using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the HYDRADNS_ prefix and underscore-separated keys:
//   - HYDRADNS_SERVER_HOST -> server.host
//   - HYDRADNS_SERVER_PORT -> server.port
//   - HYDRADNS_UPSTREAM_SERVERS -> upstream.servers (comma-separated)
//   - HYDRADNS_CACHE_MAX_RRSETS -> cache.max_rrsets
//   - HYDRADNS_ADB_QUOTA -> adb.quota
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains server-related settings.
type ServerConfig struct {
	Host                   string        `yaml:"host"                      mapstructure:"host"`
	Port                   int           `yaml:"port"                      mapstructure:"port"`
	Workers                WorkerSetting `yaml:"-"                         mapstructure:"-"`
	WorkersRaw             string        `yaml:"workers"                   mapstructure:"workers"`
	MaxConcurrency         int           `yaml:"max_concurrency"           mapstructure:"max_concurrency"`
	UpstreamSocketPoolSize int           `yaml:"upstream_socket_pool_size" mapstructure:"upstream_socket_pool_size"`
	EnableTCP              bool          `yaml:"enable_tcp"                mapstructure:"enable_tcp"`
	TCPFallback            bool          `yaml:"tcp_fallback"              mapstructure:"tcp_fallback"`
}

// UpstreamConfig contains upstream DNS server settings.
type UpstreamConfig struct {
	Servers    []string `yaml:"servers"     mapstructure:"servers"     json:"servers"`
	UDPTimeout string   `yaml:"udp_timeout" mapstructure:"udp_timeout" json:"udp_timeout"` // Timeout for UDP queries (e.g., "3s")
	TCPTimeout string   `yaml:"tcp_timeout" mapstructure:"tcp_timeout" json:"tcp_timeout"` // Timeout for TCP queries (e.g., "5s")
	MaxRetries int      `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"` // Max retries per upstream on timeout
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// AdminConfig controls the optional debug/operator HTTP surface that
// exposes cache dump() output and ADB/cache stats (gin-based, spec §9).
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// CacheConfig controls the answer cache's size and stale-serving
// behavior (spec §6).
type CacheConfig struct {
	// MaxRRsets is loaded from cache.max_rrsets. No cache code reads it,
	// so it does not limit the number of cached RRset headers.
	MaxRRsets int `yaml:"max_rrsets" mapstructure:"max_rrsets" json:"max_rrsets"`
	// ServeStaleTTL is how long an expired RRset remains eligible to be
	// served stale while a refresh is attempted, in seconds.
	ServeStaleTTL int64 `yaml:"serve_stale_ttl" mapstructure:"serve_stale_ttl" json:"serve_stale_ttl"`
	// ServeStaleRefresh is the minimum interval between refresh attempts
	// for the same stale RRset, in seconds.
	ServeStaleRefresh int64 `yaml:"serve_stale_refresh" mapstructure:"serve_stale_refresh" json:"serve_stale_refresh"`
	// HighWaterBytes triggers the overmem cleaning cycle once the
	// cache's estimated memory footprint crosses it.
	HighWaterBytes int64 `yaml:"high_water_bytes" mapstructure:"high_water_bytes" json:"high_water_bytes"`
	// LowWaterBytes is the target the overmem cleaner evicts down to.
	LowWaterBytes int64 `yaml:"low_water_bytes" mapstructure:"low_water_bytes" json:"low_water_bytes"`
}

// ADBConfig controls the address database's per-entry quota and ATR
// behavior (spec §4.9).
type ADBConfig struct {
	// Quota is the starting per-address UDP-fetch concurrency limit
	// (0 = unlimited).
	Quota int `yaml:"quota" mapstructure:"quota" json:"quota"`
	// ATRFreq is the number of completed fetches between ATR
	// recomputations for an entry.
	ATRFreq int `yaml:"atr_freq" mapstructure:"atr_freq" json:"atr_freq"`
	// ATRLow and ATRHigh are the adaptive-timeout-ratio thresholds that
	// step the quota down/up a level.
	ATRLow  float64 `yaml:"atr_low" mapstructure:"atr_low" json:"atr_low"`
	ATRHigh float64 `yaml:"atr_high" mapstructure:"atr_high" json:"atr_high"`
	// ATRDiscount is the exponential-smoothing weight applied to each
	// new timeout-ratio sample.
	ATRDiscount float64 `yaml:"atr_discount" mapstructure:"atr_discount" json:"atr_discount"`
	// UDPSizeDefault is the initial assumed EDNS UDP payload size for a
	// newly created entry, before any size-probing feedback arrives.
	UDPSizeDefault int `yaml:"udp_size_default" mapstructure:"udp_size_default" json:"udp_size_default"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"   mapstructure:"server"`
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	Cache    CacheConfig    `yaml:"cache"    mapstructure:"cache"`
	ADB      ADBConfig      `yaml:"adb"      mapstructure:"adb"`
	Admin    AdminConfig    `yaml:"admin"    mapstructure:"admin"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("HYDRADNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (HYDRADNS_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
