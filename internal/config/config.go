package config

import "time"

// DefaultJWTSecret is the placeholder secret written to a fresh config file.
const DefaultJWTSecret = "change-me-in-production"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty" yaml:"log_pretty"`

	SessionBuffer      int           `mapstructure:"session_buffer" yaml:"session_buffer"`
	OperationTimeout   time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// Lifecycle events are published to Redis only when RedisAddr is set.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisChannel  string `mapstructure:"redis_channel" yaml:"redis_channel"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		DatabasePath:       "wiredesk.db",
		JWTSecret:          DefaultJWTSecret,
		JWTIssuer:          "wiredesk",
		JWTAudience:        "wiredesk-clients",
		JWTTTL:             24 * time.Hour,
		LogLevel:           "info",
		LogPretty:          true,
		SessionBuffer:      64,
		OperationTimeout:   10 * time.Second,
		MaxMessageBytes:    64 * 1024,
		RateLimitPerMinute: 120,
		RedisChannel:       "wiredesk.events",
	}
}

// UsesDefaultJWTSecret reports whether tokens are still signed with the placeholder secret.
func (c Config) UsesDefaultJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}
