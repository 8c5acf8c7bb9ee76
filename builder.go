package goMFA

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goMFA/channel"
	"github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/internal/sealing"
	"github.com/MrEthical07/goMFA/otp"
	"github.com/redis/go-redis/v9"
)

// channelCodeKeyPurpose labels the subkey that keys channel code digests.
const channelCodeKeyPurpose = "gomfa channel code digest v1"

// Builder assembles an Engine. A Builder is single use: Build may be called
// once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  Store

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time
	prechecks []Precheck
	deliverer Deliverer
	biometric BiometricVerifier

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence backend.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the client used by the attempt and issuance limiters. When
// no Store is given, a RedisStore on the same client is used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets where audit events go. Audit.Enabled must be true for
// events to be dispatched.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operator-facing faults. Codes and secrets
// are never logged.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithPrecheck appends checks that run, in order, before every verification.
func (b *Builder) WithPrecheck(checks ...Precheck) *Builder {
	for _, c := range checks {
		if c != nil {
			b.prechecks = append(b.prechecks, c)
		}
	}
	return b
}

// WithDeliverer hands issued channel codes to d instead of returning them.
func (b *Builder) WithDeliverer(d Deliverer) *Builder {
	b.deliverer = d
	return b
}

// WithBiometricVerifier enables biometric verification. Without one,
// biometric attempts fail closed.
func (b *Builder) WithBiometricVerifier(v BiometricVerifier) *Builder {
	b.biometric = v
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

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.store == nil && b.redis == nil {
		return nil, errors.New("store or redis client required")
	}
	if cfg.Limiter.Enabled && b.redis == nil {
		return nil, errors.New("Limiter requires redis client")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	alg, err := otp.ParseAlgorithm(cfg.TOTP.Algorithm)
	if err != nil {
		return nil, err
	}

	sealer, err := sealing.New(cfg.Security.SecretEncryptionKey)
	if err != nil {
		return nil, err
	}
	codeKey, err := sealing.DeriveKey(cfg.Security.SecretEncryptionKey, channelCodeKeyPurpose)
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store = NewRedisStore(b.redis, "")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config: cfg,
		store:  store,
		verifier: otp.Verifier{
			Digits:    cfg.TOTP.Digits,
			Period:    cfg.TOTP.Period,
			Window:    cfg.TOTP.Window,
			Algorithm: alg,
		},
		sealer:    sealer,
		codes:     channel.NewHasher(codeKey),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
		prechecks: append([]Precheck(nil), b.prechecks...),
		deliverer: b.deliverer,
		biometric: b.biometric,
	}

	// -------- LIMITERS --------
	if cfg.Limiter.Enabled {
		engine.attempts = limiters.NewAttemptLimiter(b.redis, limiters.AttemptConfig{
			MaxAttempts:     cfg.Limiter.MaxAttempts,
			Cooldown:        cfg.Limiter.Cooldown,
			EnableIPLimiter: cfg.Limiter.EnableIPLimiter,
			MaxIPAttempts:   cfg.Limiter.MaxIPAttempts,
		})
		engine.issues = limiters.NewIssueLimiter(b.redis, limiters.IssueConfig{
			MaxPerWindow: cfg.Channel.MaxIssuesPerWindow,
			Window:       cfg.Channel.IssueWindow,
		})
	}

	// -------- AUDIT --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return engine, nil
}
