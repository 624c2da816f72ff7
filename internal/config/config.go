// Package config manages goradius daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete goradius configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Dictionary DictionaryConfig `koanf:"dictionary"`
	Auth       AuthConfig       `koanf:"auth"`
	Proxy      ProxyConfig      `koanf:"proxy"`
	Clients    []ClientConfig   `koanf:"clients"`
}

// ServerConfig holds the three RADIUS UDP listener addresses.
type ServerConfig struct {
	// AuthAddr is the Access-Request listen address, RFC 2865 port 1812.
	AuthAddr string `koanf:"auth_addr"`
	// AcctAddr is the Accounting-Request listen address, RFC 2866 port 1813.
	AcctAddr string `koanf:"acct_addr"`
	// CoAAddr is the CoA/Disconnect listen address, RFC 5176 port 1814.
	CoAAddr string `koanf:"coa_addr"`
	// HandlerBudget bounds the time a registered Handler may run before a
	// packet is dropped rather than answered.
	HandlerBudget time.Duration `koanf:"handler_budget"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DictionaryConfig locates the attribute dictionaries the daemon loads in
// addition to the embedded default dictionary.
type DictionaryConfig struct {
	// Paths lists additional dictionary files to load, each following the
	// same $INCLUDE-capable grammar as the embedded default.
	Paths []string `koanf:"paths"`
}

// AuthConfig holds parameters specific to the authentication listener.
type AuthConfig struct {
	// DedupTTL bounds how long a cached Access-Request response may be
	// replayed to a retransmitted request with the same (source, ID,
	// Request Authenticator).
	DedupTTL time.Duration `koanf:"dedup_ttl"`
}

// ProxyConfig holds parameters for forwarding requests to upstream servers.
type ProxyConfig struct {
	// DedupTTL is loaded and validated like auth.dedup_ttl; no component
	// of the daemon reads it.
	DedupTTL time.Duration `koanf:"dedup_ttl"`
	// Upstreams lists the realms this daemon may proxy requests to.
	Upstreams []UpstreamConfig `koanf:"upstreams"`
}

// UpstreamConfig describes one upstream RADIUS server a ProxyHandler may
// route requests to.
type UpstreamConfig struct {
	// Name identifies the upstream for logging and realm routing.
	Name string `koanf:"name"`
	// Addr is the upstream's host:port.
	Addr string `koanf:"addr"`
	// Secret is the shared secret used with this upstream.
	Secret string `koanf:"secret"`
}

// AddrPort parses Addr as a netip.AddrPort.
func (uc UpstreamConfig) AddrPort() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(uc.Addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse upstream %q addr %q: %w", uc.Name, uc.Addr, err)
	}
	return addr, nil
}

// ClientConfig declares one NAS/client permitted to talk to this server,
// identified by a CIDR block rather than a single address so that an
// entire access-network subnet can share a secret.
type ClientConfig struct {
	// Name identifies the client for logging.
	Name string `koanf:"name"`
	// CIDR is the client network, e.g. "203.0.113.0/24" or a /32 host.
	CIDR string `koanf:"cidr"`
	// Secret is the shared secret used with clients in this network.
	Secret string `koanf:"secret"`
}

// Prefix parses CIDR as a netip.Prefix.
func (cc ClientConfig) Prefix() (netip.Prefix, error) {
	if cc.CIDR == "" {
		return netip.Prefix{}, fmt.Errorf("client %q: %w", cc.Name, ErrInvalidClientCIDR)
	}
	p, err := netip.ParsePrefix(cc.CIDR)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parse client %q cidr %q: %w: %w", cc.Name, cc.CIDR, ErrInvalidClientCIDR, err)
	}
	return p, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// Listener addresses follow the IANA-registered ports for RADIUS: 1812 for
// authentication (RFC 2865), 1813 for accounting (RFC 2866), and 1814 for
// Change-of-Authorization/Disconnect (RFC 5176).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			AuthAddr:      ":1812",
			AcctAddr:      ":1813",
			CoAAddr:       ":1814",
			HandlerBudget: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			DedupTTL: 30 * time.Second,
		},
		Proxy: ProxyConfig{
			DedupTTL: 30 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goradius configuration.
// Variables are named GORADIUS_<section>_<key>, e.g., GORADIUS_SERVER_AUTH_ADDR.
const envPrefix = "GORADIUS_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GORADIUS_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GORADIUS_SERVER_AUTH_ADDR -> server.auth_addr
//	GORADIUS_METRICS_ADDR     -> metrics.addr
//	GORADIUS_LOG_LEVEL        -> log.level
//	GORADIUS_AUTH_DEDUP_TTL   -> auth.dedup_ttl
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// GORADIUS_SERVER_AUTH_ADDR -> server.auth_addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GORADIUS_SERVER_AUTH_ADDR -> server.auth_addr.
// Strips the GORADIUS_ prefix, lowercases, and replaces the first _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.auth_addr":      defaults.Server.AuthAddr,
		"server.acct_addr":      defaults.Server.AcctAddr,
		"server.coa_addr":       defaults.Server.CoAAddr,
		"server.handler_budget": defaults.Server.HandlerBudget.String(),
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"auth.dedup_ttl":        defaults.Auth.DedupTTL.String(),
		"proxy.dedup_ttl":       defaults.Proxy.DedupTTL.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAuthAddr indicates the authentication listen address is empty.
	ErrEmptyAuthAddr = errors.New("server.auth_addr must not be empty")

	// ErrInvalidHandlerBudget indicates the handler budget is non-positive.
	ErrInvalidHandlerBudget = errors.New("server.handler_budget must be > 0")

	// ErrInvalidDedupTTL indicates a dedup TTL is non-positive.
	ErrInvalidDedupTTL = errors.New("dedup_ttl must be > 0")

	// ErrInvalidClientCIDR indicates a client entry has an invalid or empty CIDR.
	ErrInvalidClientCIDR = errors.New("client cidr is invalid")

	// ErrEmptyClientSecret indicates a client entry has no shared secret.
	ErrEmptyClientSecret = errors.New("client secret must not be empty")

	// ErrDuplicateClientCIDR indicates two client entries declare the same network.
	ErrDuplicateClientCIDR = errors.New("duplicate client cidr")

	// ErrInvalidUpstreamAddr indicates a proxy upstream has an invalid address.
	ErrInvalidUpstreamAddr = errors.New("upstream addr is invalid")

	// ErrEmptyUpstreamSecret indicates a proxy upstream has no shared secret.
	ErrEmptyUpstreamSecret = errors.New("upstream secret must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.AuthAddr == "" {
		return ErrEmptyAuthAddr
	}

	if cfg.Server.HandlerBudget <= 0 {
		return ErrInvalidHandlerBudget
	}

	if cfg.Auth.DedupTTL <= 0 {
		return fmt.Errorf("auth.dedup_ttl: %w", ErrInvalidDedupTTL)
	}

	if cfg.Proxy.DedupTTL <= 0 {
		return fmt.Errorf("proxy.dedup_ttl: %w", ErrInvalidDedupTTL)
	}

	if err := validateClients(cfg.Clients); err != nil {
		return err
	}

	if err := validateUpstreams(cfg.Proxy.Upstreams); err != nil {
		return err
	}

	return nil
}

// validateClients checks each declared NAS/client network for correctness.
func validateClients(clients []ClientConfig) error {
	seen := make(map[string]struct{}, len(clients))

	for i, cc := range clients {
		prefix, err := cc.Prefix()
		if err != nil {
			return fmt.Errorf("clients[%d]: %w", i, err)
		}

		if cc.Secret == "" {
			return fmt.Errorf("clients[%d] %q: %w", i, cc.Name, ErrEmptyClientSecret)
		}

		key := prefix.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("clients[%d] %q: %w", i, key, ErrDuplicateClientCIDR)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// validateUpstreams checks each declared proxy upstream for correctness.
func validateUpstreams(upstreams []UpstreamConfig) error {
	for i, uc := range upstreams {
		if _, err := uc.AddrPort(); err != nil {
			return fmt.Errorf("proxy.upstreams[%d]: %w: %w", i, ErrInvalidUpstreamAddr, err)
		}
		if uc.Secret == "" {
			return fmt.Errorf("proxy.upstreams[%d] %q: %w", i, uc.Name, ErrEmptyUpstreamSecret)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
