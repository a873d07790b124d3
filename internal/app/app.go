// Package app arma el contenedor de dependencias del servicio a partir de la config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/grantkeeper/internal/audit"
	"github.com/dropDatabas3/grantkeeper/internal/cache"
	"github.com/dropDatabas3/grantkeeper/internal/config"
	httpx "github.com/dropDatabas3/grantkeeper/internal/http"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/admin"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/health"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/hooks"
	"github.com/dropDatabas3/grantkeeper/internal/http/controllers/oidc"
	"github.com/dropDatabas3/grantkeeper/internal/http/router"
	jwtx "github.com/dropDatabas3/grantkeeper/internal/jwt"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/protocol"
	protomem "github.com/dropDatabas3/grantkeeper/internal/protocol/memory"
	protopg "github.com/dropDatabas3/grantkeeper/internal/protocol/pg"
	"github.com/dropDatabas3/grantkeeper/internal/rate"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	tokens "github.com/dropDatabas3/grantkeeper/internal/security/token"
	"github.com/dropDatabas3/grantkeeper/internal/session"
	"github.com/dropDatabas3/grantkeeper/internal/store"

	// Registra postgres, mysql y memory.
	_ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/dal"
)

// Container agrupa las dependencias vivas del servicio.
type Container struct {
	Config   *config.Config
	Store    store.AdapterConnection
	Protocol protocol.Engine
	Cache    cache.Client
	Audit    audit.Sink
	Limiter  rate.Limiter
	Sessions session.Manager
	Scopes   scopes.Engine
	Handler  http.Handler

	closers []func() error
}

// poolProvider lo implementa la conexión postgres del store.
type poolProvider interface {
	Pool() *pgxpool.Pool
}

// New abre store, protocol engine, cache y sinks, y arma el handler HTTP.
// Ante error cierra lo que ya abrió.
func New(ctx context.Context, cfg *config.Config) (_ *Container, err error) {
	log := logger.From(ctx).With(logger.Layer("app"), logger.Op("New"))
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	// ─── Store ───
	c.Store, err = store.OpenAdapter(ctx, store.AdapterConfig{
		Name:         cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	var pool *pgxpool.Pool
	if pp, ok := c.Store.(poolProvider); ok {
		pool = pp.Pool()
	}

	// ─── Protocol engine ───
	switch cfg.Protocol.Driver {
	case "postgres":
		if pool != nil && cfg.Protocol.DSN == cfg.Storage.DSN {
			c.Protocol = protopg.New(pool)
		} else {
			pe, perr := protopg.Connect(ctx, cfg.Protocol.DSN)
			if perr != nil {
				return nil, perr
			}
			c.Protocol = pe
			c.closers = append(c.closers, func() error { pe.Close(); return nil })
		}
	default:
		log.Warn("using in-memory protocol engine; only for tests and local runs")
		c.Protocol = protomem.New()
	}

	// ─── Redis (compartido por cache y audit stream) ───
	var rdb *redis.Client
	if cfg.Cache.Kind == "redis" || contains(cfg.Audit.Sinks, "redis") {
		rdb, err = cache.NewRedisClient(ctx, cache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, rdb.Close)
	}

	// ─── Cache ───
	if cfg.Cache.Kind == "redis" {
		c.Cache = cache.WrapRedis(rdb, cfg.Cache.Redis.Prefix, cfg.Cache.RequiredScopesTTL)
	} else {
		c.Cache = cache.NewMemory("", cfg.Cache.Memory.DefaultTTL)
		c.closers = append(c.closers, c.Cache.Close)
	}

	// ─── Rate limit ───
	if cfg.RateLimit.Enabled {
		if rdb != nil {
			c.Limiter = rate.NewRedisLimiter(rdb, cfg.Cache.Redis.Prefix+":rl:", cfg.RateLimit.Max, cfg.RateLimit.Window)
		} else {
			c.Limiter = rate.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		}
	}

	// ─── Audit ───
	c.Audit, err = buildAuditSink(cfg, c.Store, rdb)
	if err != nil {
		return nil, err
	}

	// ─── Core ───
	hasher, err := tokens.NewHasher([]byte(cfg.Security.RefreshHashSecret))
	if err != nil {
		return nil, fmt.Errorf("refresh hasher: %w", err)
	}

	c.Sessions = session.NewManager(session.Deps{
		Sessions: c.Store.Sessions(),
		Engine:   c.Protocol,
		Audit:    c.Audit,
		Hasher:   hasher,
		Config: session.Config{
			SlidingWindow:           cfg.Session.SlidingWindow,
			AbsoluteLifetime:        cfg.Session.AbsoluteLifetime,
			ExtensionEventThreshold: cfg.Session.ExtensionEventThreshold,
		},
	})
	c.Scopes = scopes.NewEngine(scopes.Deps{
		Repo:     c.Store.RequiredScopes(),
		Protocol: c.Protocol,
		Audit:    c.Audit,
		Cache:    c.Cache,
		CacheTTL: cfg.Cache.RequiredScopesTTL,
	})

	// ─── HTTP ───
	c.Handler, err = c.buildHandler(pool)
	if err != nil {
		return nil, err
	}

	log.Info("container ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("protocol", cfg.Protocol.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Strings("audit_sinks", cfg.Audit.Sinks),
	)
	return c, nil
}

func (c *Container) buildHandler(pool *pgxpool.Pool) (http.Handler, error) {
	cfg := c.Config

	var poolFn func() *pgxpool.Pool
	if pool != nil {
		poolFn = func() *pgxpool.Pool { return pool }
	}
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{Pool: poolFn})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var issuer *jwtx.Issuer
	if cfg.JWT.HMACSecret != "" {
		issuer, err = jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.HMACSecret)
		if err != nil {
			return nil, fmt.Errorf("jwt issuer: %w", err)
		}
	}

	checks := map[string]health.Pinger{"store": c.Store, "cache": c.Cache}
	return router.New(router.Deps{
		Admin:       admin.NewControllers(c.Sessions, c.Scopes),
		Hooks:       hooks.NewControllers(c.Sessions, c.Scopes),
		UserInfo:    oidc.NewUserInfoController(),
		Health:      health.NewHealthController(checks),
		Issuer:      issuer,
		RateLimiter: c.Limiter,
		AdminAPIKey: cfg.Server.AdminAPIKey,
		Metrics:     metricsHandler,
		Debug:       !cfg.IsProd() && cfg.Log.Level == "debug",
	}), nil
}

func buildAuditSink(cfg *config.Config, st store.AdapterConnection, rdb *redis.Client) (audit.Sink, error) {
	level, err := audit.ParseMaskLevel(cfg.Audit.Masking)
	if err != nil {
		return nil, err
	}

	var sinks []audit.Sink
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "db":
			sinks = append(sinks, audit.NewRepositorySink(st.Audit()))
		case "redis":
			if rdb == nil {
				return nil, errors.New("audit: redis sink without redis client")
			}
			sinks = append(sinks, audit.NewRedisStreamSink(rdb, cfg.Audit.Redis.Stream, cfg.Audit.Redis.MaxLen))
		case "log":
			sinks = append(sinks, audit.NewLogSink(logger.Named("audit")))
		default:
			return nil, fmt.Errorf("audit: unknown sink %q", name)
		}
	}
	if len(sinks) == 0 {
		return audit.Discard, nil
	}
	return audit.NewMaskingSink(audit.Multi(sinks...), level), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Close libera recursos en orden inverso de apertura.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
