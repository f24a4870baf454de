// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LobbyConfig holds Store-wide room and client settings.
type LobbyConfig struct {
	// Capacity is the uniform maximum number of members per room.
	Capacity int `mapstructure:"capacity"`
	// MaxClients bounds the client table; 0 means unbounded.
	MaxClients int `mapstructure:"max_clients"`
	// ClientTTL is the idle duration after which a client is evicted; 0 disables expiry.
	ClientTTL time.Duration `mapstructure:"client_ttl"`
}

// ControlConfig holds control-plane (TCP) listener settings.
type ControlConfig struct {
	// Host is the bind address for the control listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the control listener.
	Port int `mapstructure:"port"`
	// AcceptTimeout bounds each accept call so the loop can observe shutdown.
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`
	// ReadTimeout is the deadline for reading one request from a connection.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the deadline for writing one reply.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SweepInterval is the period between idle room sweeps.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// MaxRequestBytes caps the size of a single request envelope.
	MaxRequestBytes int `mapstructure:"max_request_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (c ControlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RelayConfig holds data-plane (UDP) listener settings.
type RelayConfig struct {
	// Host is the bind address for the relay socket.
	Host string `mapstructure:"host"`
	// Port is the UDP port for the relay socket.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds each receive call so the loop can observe shutdown.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// MaxDatagramBytes is the receive buffer size; longer datagrams are truncated and dropped.
	MaxDatagramBytes int `mapstructure:"max_datagram_bytes"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings for the catalog.
type DatabaseConfig struct {
	// Enabled turns on the Postgres-backed catalog lookup.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// LookupTimeout bounds a single catalog lookup issued by the control plane.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// HealthConfig holds gRPC health endpoint settings.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Lobby    LobbyConfig    `mapstructure:"lobby"`
	Control  ControlConfig  `mapstructure:"control"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Health   HealthConfig   `mapstructure:"health"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateControl(c.Control); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Health.Enabled {
		if err := validatePort("health.port", c.Health.Port); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	var errs []string
	if l.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("lobby.capacity must be >= 1, got %d", l.Capacity))
	}
	if l.MaxClients < 0 {
		errs = append(errs, fmt.Sprintf("lobby.max_clients must be >= 0, got %d", l.MaxClients))
	}
	if l.ClientTTL < 0 {
		errs = append(errs, "lobby.client_ttl must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateControl(c ControlConfig) error {
	var errs []string
	if err := validatePort("control.port", c.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if c.AcceptTimeout <= 0 {
		errs = append(errs, "control.accept_timeout must be positive")
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, "control.read_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, "control.write_timeout must not be negative")
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, "control.sweep_interval must be positive")
	}
	if c.MaxRequestBytes < 64 {
		errs = append(errs, fmt.Sprintf("control.max_request_bytes must be >= 64, got %d", c.MaxRequestBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if err := validatePort("relay.port", r.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if r.ReadTimeout <= 0 {
		errs = append(errs, "relay.read_timeout must be positive")
	}
	if r.MaxDatagramBytes < 64 || r.MaxDatagramBytes > 65507 {
		errs = append(errs, fmt.Sprintf("relay.max_datagram_bytes must be 64-65507, got %d", r.MaxDatagramBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if err := validatePort("database.port", d.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if d.LookupTimeout <= 0 {
		errs = append(errs, "database.lookup_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with LOBBY_ prefix
	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lobby.capacity", 4)
	v.SetDefault("lobby.max_clients", 0)
	v.SetDefault("lobby.client_ttl", "0s")

	v.SetDefault("control.host", "0.0.0.0")
	v.SetDefault("control.port", 1234)
	v.SetDefault("control.accept_timeout", "5s")
	v.SetDefault("control.read_timeout", "5s")
	v.SetDefault("control.write_timeout", "5s")
	v.SetDefault("control.sweep_interval", "60s")
	v.SetDefault("control.max_request_bytes", 1024)

	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 1234)
	v.SetDefault("relay.read_timeout", "5s")
	v.SetDefault("relay.max_datagram_bytes", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lobby")
	v.SetDefault("database.password", "lobby")
	v.SetDefault("database.name", "lobby")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.lookup_timeout", "2s")

	v.SetDefault("health.enabled", false)
	v.SetDefault("health.host", "127.0.0.1")
	v.SetDefault("health.port", 50051)
}
