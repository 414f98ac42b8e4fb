package rolecalc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rolecalc/api"
	"github.com/MrEthical07/rolecalc/idp"
	"github.com/MrEthical07/rolecalc/internal/flows"
	"github.com/MrEthical07/rolecalc/internal/logging"
	"github.com/MrEthical07/rolecalc/internal/transport"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/session"
)

// Builder assembles an [Engine]. It is used once: configure it, call Build,
// and discard it.
type Builder struct {
	config Config

	doer      HTTPDoer
	store     SessionStore
	redis     redis.UniversalClient
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient sets the transport for both remote services. The default is
// an *http.Client with Provider.Timeout.
func (b *Builder) WithHTTPClient(doer HTTPDoer) *Builder {
	b.doer = doer
	return b
}

// WithSessionStore overrides Session.Backend with store.
func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the client for the redis session backend. A client given
// here is not closed by Engine.Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger replaces the logger built from Config.Logging.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. Nothing is sent to
// either remote service until the first Engine call.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.New(cfg.Logging, "rolecalc").Logger
	}

	doer := b.doer
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Provider.Timeout}
	}
	tc := transport.New(doer, logger)

	// -------- REMOTE SERVICES --------
	provider, err := idp.NewClient(idp.Config{
		Endpoint:            cfg.Provider.Endpoint,
		ClientID:            cfg.Provider.ClientID,
		PhoneIdentityPrefix: cfg.Phone.IdentityPrefix,
	}, tc)
	if err != nil {
		return nil, err
	}
	service, err := api.NewClient(api.Config{
		Endpoint:   cfg.API.Endpoint,
		AuthScheme: cfg.API.AuthScheme,
	}, tc)
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	var closers []io.Closer
	store := b.store
	if store == nil {
		store, closers, err = b.buildStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	// -------- ROLES --------
	registry := permission.DefaultRegistry()

	engine := &Engine{
		config:   cloneConfig(cfg),
		logger:   logger,
		registry: registry,
		builtins: permission.BuiltinCatalog(registry),
		provider: provider,
		service:  service,
		store:    store,
		closers:  closers,
		now:      time.Now,
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}
	engine.audit = newAuditDispatcher(cfg.Audit, sink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	logger.Debug("engine built",
		"provider", cfg.Provider.Endpoint,
		"api", cfg.API.Endpoint,
		"session_backend", cfg.Session.Backend,
	)
	return engine, nil
}

func (b *Builder) buildStore(cfg Config) (SessionStore, []io.Closer, error) {
	switch cfg.Session.Backend {
	case SessionBackendFile:
		fs, err := session.NewFileStore(cfg.Session.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("session file store: %w", err)
		}
		return fs, nil, nil
	case SessionBackendRedis:
		rdb := b.redis
		var closers []io.Closer
		if rdb == nil {
			if cfg.Session.RedisAddr == "" {
				return nil, nil, errors.New("redis session backend requires Session RedisAddr or WithRedis")
			}
			client := redis.NewClient(&redis.Options{
				Addr: cfg.Session.RedisAddr,
				DB:   cfg.Session.RedisDB,
			})
			rdb = client
			closers = append(closers, client)
		}
		return session.NewRedisStore(rdb, cfg.Session.RedisPrefix, cfg.Session.FallbackTTL), closers, nil
	default:
		return session.NewMemoryStore(), nil, nil
	}
}
