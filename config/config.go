/*
Package config loads the pool's immutable configuration from environment
variables and an optional .env file, following the reference gateway's
getEnv/getEnvInt/getEnvBool pattern, extended with duration and float
helpers for timeouts and the retry-jitter fraction.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TLSMode selects the posture of the control channel.
type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSImplicit TLSMode = "implicit"
	TLSExplicit TLSMode = "explicit"
)

// ProxyType selects the outbound proxy protocol, if any.
type ProxyType string

const (
	ProxyNone  ProxyType = ""
	ProxySOCKS ProxyType = "SOCKS"
	ProxyHTTP  ProxyType = "HTTP"
)

// TransferMode is the default data representation type.
type TransferMode string

const (
	TransferASCII  TransferMode = "ASCII"
	TransferBinary TransferMode = "Binary"
)

// Config holds all pool configuration. It is immutable after Load —
// nothing in this package mutates a *Config once constructed.
type Config struct {
	// Remote endpoint
	Hostname string
	Port     int
	Username string
	Password string // secret: never logged, never serialized

	// Timeouts
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	ControlTimeout time.Duration

	// Data-channel strategy
	ActiveMode            bool
	ActivePortRangeStart  int
	ActivePortRangeEnd    int
	ActiveExternalAddress string

	// Pool capacities
	MinIdle  int
	MaxTotal int
	MaxWait  time.Duration

	// Keep-alive / health
	KeepAliveInterval     time.Duration
	ConnectionIdleTimeout time.Duration
	RepairBackoff         time.Duration
	MaxRepairAttempts     int

	// Transfer buffer
	BufferSize int

	// Control channel
	ControlEncoding string
	TransferMode    TransferMode

	// TLS posture
	TLSMode             TLSMode
	EnabledProtocols    []string
	EnabledCipherSuites []string
	ValidateServerCert  bool
	TrustStorePath      string
	TrustStorePassword  string // secret
	TrustStoreType      string

	// Outbound proxy
	ProxyType     ProxyType
	ProxyHost     string
	ProxyPort     int
	ProxyUsername string
	ProxyPassword string // secret

	// Retry / circuit breaker
	MaxRetries              int
	RetryBaseDelay          time.Duration
	RetryJitterFraction     float64
	CircuitFailureThreshold uint32
	CircuitCooldown         time.Duration

	// Logging / env
	Env      string
	LogLevel string

	// Optional alert fan-out
	RedisURL        string
	AlertChannel    string
	AlertWebhookURL string

	// Admin HTTP surface
	AdminAddr    string
	AdminEnabled bool
}

// Load reads configuration from environment variables and an optional
// .env file, applying the defaults a production deployment would ship
// with (spec §3, §6).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Hostname: getEnv("FTPPOOL_HOST", "localhost"),
		Port:     getEnvInt("FTPPOOL_PORT", 21),
		Username: getEnv("FTPPOOL_USERNAME", ""),
		Password: getEnv("FTPPOOL_PASSWORD", ""),

		ConnectTimeout: getEnvDuration("FTPPOOL_CONNECT_TIMEOUT", 10*time.Second),
		DataTimeout:    getEnvDuration("FTPPOOL_DATA_TIMEOUT", 30*time.Second),
		ControlTimeout: getEnvDuration("FTPPOOL_CONTROL_TIMEOUT", 15*time.Second),

		ActiveMode:            getEnvBool("FTPPOOL_ACTIVE_MODE", false),
		ActivePortRangeStart:  getEnvInt("FTPPOOL_ACTIVE_PORT_START", 0),
		ActivePortRangeEnd:    getEnvInt("FTPPOOL_ACTIVE_PORT_END", 0),
		ActiveExternalAddress: getEnv("FTPPOOL_ACTIVE_EXTERNAL_ADDR", ""),

		MinIdle:  getEnvInt("FTPPOOL_MIN_IDLE", 2),
		MaxTotal: getEnvInt("FTPPOOL_MAX_TOTAL", 10),
		MaxWait:  getEnvDuration("FTPPOOL_MAX_WAIT", 5*time.Second),

		KeepAliveInterval:     getEnvDuration("FTPPOOL_KEEPALIVE_INTERVAL", 60*time.Second),
		ConnectionIdleTimeout: getEnvDuration("FTPPOOL_IDLE_TIMEOUT", 300*time.Second),
		RepairBackoff:         getEnvDuration("FTPPOOL_REPAIR_BACKOFF", 5*time.Second),
		MaxRepairAttempts:     getEnvInt("FTPPOOL_MAX_REPAIR_ATTEMPTS", 3),

		BufferSize: getEnvInt("FTPPOOL_BUFFER_SIZE", 64*1024),

		ControlEncoding: getEnv("FTPPOOL_CONTROL_ENCODING", "UTF-8"),
		TransferMode:    TransferMode(getEnv("FTPPOOL_TRANSFER_MODE", string(TransferBinary))),

		TLSMode:            TLSMode(getEnv("FTPPOOL_TLS_MODE", string(TLSNone))),
		ValidateServerCert: getEnvBool("FTPPOOL_TLS_VALIDATE_CERT", true),
		TrustStorePath:     getEnv("FTPPOOL_TRUST_STORE_PATH", ""),
		TrustStorePassword: getEnv("FTPPOOL_TRUST_STORE_PASSWORD", ""),
		TrustStoreType:     getEnv("FTPPOOL_TRUST_STORE_TYPE", "PEM"),

		ProxyType:     ProxyType(getEnv("FTPPOOL_PROXY_TYPE", "")),
		ProxyHost:     getEnv("FTPPOOL_PROXY_HOST", ""),
		ProxyPort:     getEnvInt("FTPPOOL_PROXY_PORT", 0),
		ProxyUsername: getEnv("FTPPOOL_PROXY_USERNAME", ""),
		ProxyPassword: getEnv("FTPPOOL_PROXY_PASSWORD", ""),

		MaxRetries:              getEnvInt("FTPPOOL_MAX_RETRIES", 3),
		RetryBaseDelay:          getEnvDuration("FTPPOOL_RETRY_BASE_DELAY", 200*time.Millisecond),
		RetryJitterFraction:     getEnvFloat("FTPPOOL_RETRY_JITTER_FRACTION", 0.2),
		CircuitFailureThreshold: uint32(getEnvInt("FTPPOOL_CIRCUIT_FAILURE_THRESHOLD", 10)),
		CircuitCooldown:         getEnvDuration("FTPPOOL_CIRCUIT_COOLDOWN", 30*time.Second),

		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisURL:        getEnv("FTPPOOL_REDIS_URL", ""),
		AlertChannel:    getEnv("FTPPOOL_ALERT_CHANNEL", "ftppool:alerts"),
		AlertWebhookURL: getEnv("FTPPOOL_ALERT_WEBHOOK_URL", ""),

		AdminAddr:    getEnv("FTPPOOL_ADMIN_ADDR", ":9090"),
		AdminEnabled: getEnvBool("FTPPOOL_ADMIN_ENABLED", false),
	}

	return cfg, cfg.Validate()
}

// Validate enforces the construction-time invariants named in spec §4.4
// and §6 (min ≤ max, idle timeout > keep-alive interval, buffer bounds).
func (c *Config) Validate() error {
	if c.MinIdle > c.MaxTotal {
		return fmt.Errorf("config: minIdle (%d) must be <= maxTotal (%d)", c.MinIdle, c.MaxTotal)
	}
	if c.MinIdle < 0 || c.MaxTotal < 0 {
		return fmt.Errorf("config: minIdle and maxTotal must be >= 0")
	}
	if c.ConnectionIdleTimeout <= c.KeepAliveInterval {
		return fmt.Errorf("config: connectionIdleTimeout (%s) must be > keepAliveInterval (%s)", c.ConnectionIdleTimeout, c.KeepAliveInterval)
	}
	const minBuf = 1 * 1024
	const maxBuf = 100 * 1024 * 1024
	if c.BufferSize < minBuf || c.BufferSize > maxBuf {
		return fmt.Errorf("config: bufferSize (%d) must be between %d and %d bytes", c.BufferSize, minBuf, maxBuf)
	}
	if c.TLSMode != TLSNone && c.TLSMode != TLSImplicit && c.TLSMode != TLSExplicit {
		return fmt.Errorf("config: invalid tlsMode %q", c.TLSMode)
	}
	if c.ProxyType != ProxyNone && c.ProxyType != ProxySOCKS && c.ProxyType != ProxyHTTP {
		return fmt.Errorf("config: invalid proxyType %q", c.ProxyType)
	}
	return nil
}

// IsDevelopment mirrors the reference gateway's Config.IsDevelopment.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// HealthCheckInterval derives the maintenance-cycle cadence per spec §4.2:
// min(idleTimeout/4, keepAliveInterval/2), clamped to a 15s floor.
func (c *Config) HealthCheckInterval() time.Duration {
	floor := 15 * time.Second
	interval := c.ConnectionIdleTimeout / 4
	if half := c.KeepAliveInterval / 2; half < interval {
		interval = half
	}
	if interval < floor {
		interval = floor
	}
	return interval
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
