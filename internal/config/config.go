package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr      string        // ex: ":8000"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Supervised services
	Root          string        // root of the built-in catalog (<root>/whisper, <root>/tts)
	ServicesFile  string        // optional YAML catalog, empty = built-in whisper/tts
	StopTimeout   time.Duration // grace window before a stopped service is killed
	StopAllOnExit bool          // stop every running service when the daemon exits

	// Health checks
	HealthInterval time.Duration // 0 disables the periodic loop
	HealthTimeout  time.Duration // per-probe timeout

	// Proxy to the voice services
	ProxyTimeout        time.Duration // whole request (synthesis can be slow)
	ProxyConnectTimeout time.Duration // dial only
	ProxyRateBurst      int           // per-IP token bucket size on proxy routes
	ProxyRatePerMin     int           // per-IP refill rate on proxy routes

	RequestTimeout time.Duration // chi Timeout for query routes
	GPUCommand     string        // ex: "nvidia-smi"

	// Redis event journal (optional)
	RedisAddr             string        // ex: "localhost:6379", empty disables the journal
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	EventHistory          int           // events kept per service

	AllowedHosts []string // optional, restrict control routes to specific Host headers
	AllowedCIDRS []string // optional, restrict control routes to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenAddr:      getenv("VOICECTL_LISTEN_ADDR", ":8000"),
		ShutdownTimeout: mustDuration("VOICECTL_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("VOICECTL_LOG_LEVEL", "info"),
		PrettyLog: mustBool("VOICECTL_PRETTY_LOG", true),

		// Services
		Root:          getenv("VOICECTL_ROOT", "."),
		ServicesFile:  getenv("VOICECTL_SERVICES_FILE", ""),
		StopTimeout:   mustDuration("VOICECTL_STOP_TIMEOUT", 10*time.Second),
		StopAllOnExit: mustBool("VOICECTL_STOP_ALL_ON_EXIT", true),

		HealthInterval: mustDuration("VOICECTL_HEALTH_INTERVAL", 30*time.Second),
		HealthTimeout:  mustDuration("VOICECTL_HEALTH_TIMEOUT", 5*time.Second),

		ProxyTimeout:        mustDuration("VOICECTL_PROXY_TIMEOUT", 120*time.Second),
		ProxyConnectTimeout: mustDuration("VOICECTL_PROXY_CONNECT_TIMEOUT", 10*time.Second),
		ProxyRateBurst:      getenvInt("VOICECTL_PROXY_RATE_BURST", 10),
		ProxyRatePerMin:     getenvInt("VOICECTL_PROXY_RATE_PER_MIN", 30),

		RequestTimeout: mustDuration("VOICECTL_REQUEST_TIMEOUT", 5*time.Second),
		GPUCommand:     getenv("VOICECTL_GPU_COMMAND", "nvidia-smi"),

		// Redis settings
		RedisAddr:             getenv("VOICECTL_REDIS_ADDR", ""),
		RedisUser:             getenv("VOICECTL_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("VOICECTL_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("VOICECTL_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("VOICECTL_REDIS_DB", 0),
		RedisDT:               mustDuration("VOICECTL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("VOICECTL_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("VOICECTL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("VOICECTL_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("VOICECTL_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("VOICECTL_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("VOICECTL_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("VOICECTL_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("VOICECTL_REDIS_WARN_THRESHOLD", 3),
		EventHistory:          getenvInt("VOICECTL_EVENT_HISTORY", 200),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("VOICECTL_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("VOICECTL_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("VOICECTL_TRUST_PROXY", false),
	}

	// Validate Redis password configuration
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired {
		cfg.RedisPassword = requireEnv("VOICECTL_REDIS_PASSWORD")
	}

	if cfg.StopTimeout <= 0 {
		panic(fmt.Sprintf("❌ FATAL: VOICECTL_STOP_TIMEOUT must be > 0, got %s", cfg.StopTimeout))
	}
	if cfg.HealthInterval < 0 {
		panic(fmt.Sprintf("❌ FATAL: VOICECTL_HEALTH_INTERVAL must be >= 0, got %s", cfg.HealthInterval))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// JournalEnabled reports whether lifecycle events are mirrored to Redis.
func (c *Config) JournalEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
