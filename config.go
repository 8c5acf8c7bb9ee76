package goMFA

import (
	"errors"
	"time"

	"github.com/MrEthical07/goMFA/backup"
	"github.com/MrEthical07/goMFA/channel"
	"github.com/MrEthical07/goMFA/internal/sealing"
	"github.com/MrEthical07/goMFA/otp"
)

// Config holds every tunable of the Engine. Build clones it, so changes
// after Build have no effect.
type Config struct {
	TOTP     TOTPConfig     `envPrefix:"TOTP_"`
	Backup   BackupConfig   `envPrefix:"BACKUP_"`
	Channel  ChannelConfig  `envPrefix:"CHANNEL_"`
	Limiter  LimiterConfig  `envPrefix:"LIMITER_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	Security SecurityConfig `envPrefix:"SECURITY_"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls authenticator-app methods.
type TOTPConfig struct {
	Issuer    string `env:"ISSUER"`
	Digits    int    `env:"DIGITS"`
	Period    uint32 `env:"PERIOD"`
	Algorithm string `env:"ALGORITHM"` // SHA1 (default), SHA256, SHA512
	// Window is the number of time steps accepted on each side of now.
	Window                  int  `env:"WINDOW"`
	SecretSize              int  `env:"SECRET_SIZE"`
	EnforceReplayProtection bool `env:"ENFORCE_REPLAY_PROTECTION"`
	// QRCodeSize is the PNG edge in pixels; 0 omits the QR code from setup results.
	QRCodeSize int `env:"QR_CODE_SIZE"`
}

/*
====================================
BACKUP CODE CONFIG
====================================
*/

// BackupConfig sizes the backup code set issued with a TOTP method.
type BackupConfig struct {
	Count  int `env:"COUNT"`
	Length int `env:"LENGTH"`
}

/*
====================================
CHANNEL CONFIG
====================================
*/

// ChannelConfig controls SMS and email codes.
type ChannelConfig struct {
	CodeLength int           `env:"CODE_LENGTH"`
	TTL        time.Duration `env:"TTL"`
	// UsedRetention keeps records past expiry so late attempts are
	// classified as expired or reused instead of unknown.
	UsedRetention      time.Duration `env:"USED_RETENTION"`
	MaxIssuesPerWindow int           `env:"MAX_ISSUES_PER_WINDOW"`
	IssueWindow        time.Duration `env:"ISSUE_WINDOW"`
}

/*
====================================
LIMITER CONFIG
====================================
*/

// LimiterConfig controls the failed-attempt limiter. It requires a redis
// client (see Builder.WithRedis).
type LimiterConfig struct {
	Enabled         bool          `env:"ENABLED"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS"`
	Cooldown        time.Duration `env:"COOLDOWN"`
	EnableIPLimiter bool          `env:"ENABLE_IP_LIMITER"`
	MaxIPAttempts   int           `env:"MAX_IP_ATTEMPTS"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds hardening switches.
type SecurityConfig struct {
	ProductionMode bool `env:"PRODUCTION_MODE"`
	// SecretEncryptionKey seals TOTP secrets at rest with
	// XChaCha20-Poly1305. It must be 32 bytes; empty stores secrets plain.
	SecretEncryptionKey []byte `env:"SECRET_ENCRYPTION_KEY"`
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "goMFA",
			Digits:                  otp.DefaultDigits,
			Period:                  otp.DefaultPeriod,
			Algorithm:               string(otp.AlgorithmSHA1),
			Window:                  1,
			SecretSize:              otp.DefaultSecretSize,
			EnforceReplayProtection: true,
			QRCodeSize:              otp.DefaultQRCodeSize,
		},
		Backup: BackupConfig{
			Count:  backup.DefaultCount,
			Length: backup.DefaultLength,
		},
		Channel: ChannelConfig{
			CodeLength:         channel.DefaultLength,
			TTL:                channel.DefaultTTL,
			UsedRetention:      10 * time.Minute,
			MaxIssuesPerWindow: 5,
			IssueWindow:        15 * time.Minute,
		},
		Limiter: LimiterConfig{
			Enabled:     false,
			MaxAttempts: 5,
			Cooldown:    5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Security.SecretEncryptionKey = cloneBytes(cfg.Security.SecretEncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Window < 0 {
		return errors.New("TOTP Window must be >= 0")
	}
	if c.TOTP.Window > 10 {
		return errors.New("TOTP Window must be <= 10")
	}
	if _, err := otp.ParseAlgorithm(c.TOTP.Algorithm); err != nil {
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.SecretSize < 16 {
		return errors.New("TOTP SecretSize must be >= 16 bytes")
	}
	if c.TOTP.QRCodeSize < 0 {
		return errors.New("TOTP QRCodeSize must be >= 0")
	}

	if c.Backup.Count <= 0 {
		return errors.New("Backup Count must be > 0")
	}
	if c.Backup.Length < backup.MinLength {
		return errors.New("Backup Length must be >= 8")
	}

	if c.Channel.CodeLength < 4 || c.Channel.CodeLength > 10 {
		return errors.New("Channel CodeLength must be between 4 and 10")
	}
	if c.Channel.TTL <= 0 {
		return errors.New("Channel TTL must be > 0")
	}
	if c.Channel.UsedRetention < 0 {
		return errors.New("Channel UsedRetention must be >= 0")
	}
	if c.Limiter.Enabled {
		if c.Channel.MaxIssuesPerWindow <= 0 {
			return errors.New("Channel MaxIssuesPerWindow must be > 0 when limiter is enabled")
		}
		if c.Channel.IssueWindow <= 0 {
			return errors.New("Channel IssueWindow must be > 0 when limiter is enabled")
		}
		if c.Limiter.MaxAttempts <= 0 {
			return errors.New("Limiter MaxAttempts must be > 0")
		}
		if c.Limiter.Cooldown <= 0 {
			return errors.New("Limiter Cooldown must be > 0")
		}
		if c.Limiter.MaxIPAttempts < 0 {
			return errors.New("Limiter MaxIPAttempts must be >= 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if n := len(c.Security.SecretEncryptionKey); n != 0 && n != sealing.KeySize {
		return errors.New("Security SecretEncryptionKey must be 32 bytes")
	}

	if c.Security.ProductionMode {
		if c.TOTP.Digits < 6 {
			return errors.New("ProductionMode requires TOTP Digits >= 6")
		}
		if c.TOTP.Period > 60 {
			return errors.New("ProductionMode requires TOTP Period <= 60 seconds")
		}
		if c.TOTP.Window > 2 {
			return errors.New("ProductionMode requires TOTP Window <= 2")
		}
		if !c.TOTP.EnforceReplayProtection {
			return errors.New("ProductionMode requires TOTP EnforceReplayProtection")
		}
		if c.Backup.Count < 8 {
			return errors.New("ProductionMode requires Backup Count >= 8")
		}
		if c.Backup.Length < 8 {
			return errors.New("ProductionMode requires Backup Length >= 8")
		}
		if c.Channel.TTL > 15*time.Minute {
			return errors.New("ProductionMode requires Channel TTL <= 15m")
		}
		if len(c.Security.SecretEncryptionKey) == 0 {
			return errors.New("ProductionMode requires Security SecretEncryptionKey")
		}
	}

	return nil
}
