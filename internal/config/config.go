package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/grantkeeper/internal/audit"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr            string        `yaml:"addr"`
		AdminAPIKey     string        `yaml:"admin_api_key"` // header X-Admin-API-Key
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Storage: sesiones, required scopes y audit_events.
	Storage struct {
		Driver       string `yaml:"driver"` // postgres | mysql | memory
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"storage"`

	// Protocol: tablas del protocol engine (de solo lectura salvo revocación de tokens).
	Protocol struct {
		Driver string `yaml:"driver"` // postgres | memory
		DSN    string `yaml:"dsn"`    // vacío = mismo DSN que storage
	} `yaml:"protocol"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
		RequiredScopesTTL time.Duration `yaml:"required_scopes_ttl"`
	} `yaml:"cache"`

	Session struct {
		SlidingWindow           time.Duration `yaml:"sliding_window"`
		AbsoluteLifetime        time.Duration `yaml:"absolute_lifetime"` // 0 = sin techo
		ExtensionEventThreshold time.Duration `yaml:"extension_event_threshold"`
	} `yaml:"session"`

	Security struct {
		// RefreshHashSecret es la clave maestra del hash de refresh tokens (>= 32 bytes).
		RefreshHashSecret string `yaml:"refresh_hash_secret"`
	} `yaml:"security"`

	Audit struct {
		Sinks   []string `yaml:"sinks"`   // db | redis | log
		Masking string   `yaml:"masking"` // none | partial | full
		Redis   struct {
			Stream string `yaml:"stream"`
			MaxLen int64  `yaml:"max_len"`
		} `yaml:"redis"`
	} `yaml:"audit"`

	// JWT valida los bearer tokens que llegan a /connect/userinfo.
	JWT struct {
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		HMACSecret string `yaml:"hmac_secret"`
	} `yaml:"jwt"`

	// RateLimit aplica a /connect/userinfo; usa Redis si hay cliente configurado.
	RateLimit struct {
		Enabled bool          `yaml:"enabled"`
		Max     int           `yaml:"max"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

// Load lee el YAML (path vacío = solo defaults), aplica defaults, pisa con
// variables de entorno y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// sane defaults
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Protocol.Driver == "" {
		if c.Storage.Driver == "postgres" {
			c.Protocol.Driver = "postgres"
		} else {
			c.Protocol.Driver = "memory"
		}
	}
	if c.Protocol.Driver == "postgres" && c.Protocol.DSN == "" && c.Storage.Driver == "postgres" {
		c.Protocol.DSN = c.Storage.DSN
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 60
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "grantkeeper"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 2 * time.Minute
	}
	if c.Cache.RequiredScopesTTL == 0 {
		c.Cache.RequiredScopesTTL = 5 * time.Minute
	}
	if c.Session.SlidingWindow == 0 {
		c.Session.SlidingWindow = 14 * 24 * time.Hour
	}
	if c.Session.AbsoluteLifetime == 0 {
		c.Session.AbsoluteLifetime = 90 * 24 * time.Hour
	}
	if c.Session.ExtensionEventThreshold == 0 {
		c.Session.ExtensionEventThreshold = time.Minute
	}
	if len(c.Audit.Sinks) == 0 {
		if c.Storage.Driver == "memory" {
			c.Audit.Sinks = []string{"log"}
		} else {
			c.Audit.Sinks = []string{"db"}
		}
	}
	if c.Audit.Masking == "" {
		c.Audit.Masking = string(audit.MaskPartial)
	}
	if c.Audit.Redis.Stream == "" {
		c.Audit.Redis.Stream = "grantkeeper:audit"
	}
	if c.Audit.Redis.MaxLen == 0 {
		c.Audit.Redis.MaxLen = 100_000
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Server.AdminAPIKey = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_OPEN_CONNS"); ok {
		c.Storage.MaxOpenConns = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_IDLE_CONNS"); ok {
		c.Storage.MaxIdleConns = v
	}

	// PROTOCOL
	if v, ok := getEnvStr("PROTOCOL_DRIVER"); ok {
		c.Protocol.Driver = v
	}
	if v, ok := getEnvStr("PROTOCOL_DSN"); ok {
		c.Protocol.DSN = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}
	if v, ok := getEnvDur("CACHE_REQUIRED_SCOPES_TTL"); ok {
		c.Cache.RequiredScopesTTL = v
	}

	// SESSION
	if v, ok := getEnvDur("SESSION_SLIDING_WINDOW"); ok {
		c.Session.SlidingWindow = v
	}
	if v, ok := getEnvDur("SESSION_ABSOLUTE_LIFETIME"); ok {
		c.Session.AbsoluteLifetime = v
	}
	if v, ok := getEnvDur("SESSION_EXTENSION_EVENT_THRESHOLD"); ok {
		c.Session.ExtensionEventThreshold = v
	}

	// SECURITY
	if v, ok := getEnvStr("REFRESH_HASH_SECRET"); ok {
		c.Security.RefreshHashSecret = v
	}

	// AUDIT
	if v, ok := getEnvCSV("AUDIT_SINKS"); ok {
		c.Audit.Sinks = v
	}
	if v, ok := getEnvStr("AUDIT_MASKING"); ok {
		c.Audit.Masking = v
	}
	if v, ok := getEnvStr("AUDIT_REDIS_STREAM"); ok {
		c.Audit.Redis.Stream = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_AUDIENCE"); ok {
		c.JWT.Audience = v
	}
	if v, ok := getEnvStr("JWT_HMAC_SECRET"); ok {
		c.JWT.HMACSecret = v
	}

	// RATE LIMIT
	if v, ok := getEnvBool("RATE_LIMIT_ENABLED"); ok {
		c.RateLimit.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.RateLimit.Max = v
	}
	if v, ok := getEnvDur("RATE_LIMIT_WINDOW"); ok {
		c.RateLimit.Window = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}

// Validate verifica los valores críticos de configuración.
func (c *Config) Validate() error {
	if len(c.Security.RefreshHashSecret) < 32 {
		return fmt.Errorf("config: security.refresh_hash_secret must be at least 32 bytes")
	}

	switch c.Storage.Driver {
	case "postgres", "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.dsn required for driver %q", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Protocol.Driver {
	case "postgres":
		if strings.TrimSpace(c.Protocol.DSN) == "" {
			return fmt.Errorf("config: protocol.dsn required for driver postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown protocol.driver %q", c.Protocol.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("config: cache.redis.addr required for cache kind redis")
		}
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}

	if c.Session.SlidingWindow <= 0 {
		return fmt.Errorf("config: session.sliding_window must be positive")
	}
	if c.Session.AbsoluteLifetime < 0 || c.Session.ExtensionEventThreshold < 0 {
		return fmt.Errorf("config: session durations must not be negative")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.SlidingWindow > c.Session.AbsoluteLifetime {
		return fmt.Errorf("config: session.sliding_window exceeds session.absolute_lifetime")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Max < 1 || c.RateLimit.Window < time.Second) {
		return fmt.Errorf("config: rate_limit requires max >= 1 and window >= 1s")
	}

	if c.JWT.HMACSecret != "" && len(c.JWT.HMACSecret) < 32 {
		return fmt.Errorf("config: jwt.hmac_secret must be at least 32 bytes")
	}

	if _, err := audit.ParseMaskLevel(c.Audit.Masking); err != nil {
		return fmt.Errorf("config: audit.masking: %w", err)
	}
	for _, s := range c.Audit.Sinks {
		switch s {
		case "db", "log":
		case "redis":
			if c.Cache.Redis.Addr == "" {
				return fmt.Errorf("config: audit sink redis requires cache.redis.addr")
			}
		default:
			return fmt.Errorf("config: unknown audit sink %q", s)
		}
	}
	return nil
}

// IsProd indica si app_env es prod.
func (c *Config) IsProd() bool {
	return strings.EqualFold(c.App.Env, "prod")
}
