package goMFA

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultEnvPrefix is the variable prefix used when LoadConfigFromEnv is
// called with an empty prefix.
const DefaultEnvPrefix = "MFA_"

// ErrConfigEnv reports an unparsable environment variable.
var ErrConfigEnv = errors.New("invalid mfa environment configuration")

// LoadConfigFromEnv starts from DefaultConfig and overrides every field whose
// variable is set, e.g. MFA_TOTP_ISSUER, MFA_CHANNEL_TTL=10m or
// MFA_SECURITY_SECRET_ENCRYPTION_KEY (standard base64). The result is
// validated.
func LoadConfigFromEnv(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	cfg := defaultConfig()
	opts := env.Options{
		Prefix: prefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf([]byte(nil)): parseBase64Key,
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Join(ErrConfigEnv, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseBase64Key(v string) (interface{}, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return []byte(nil), nil
	}
	key, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode base64 key: %w", err)
	}
	return key, nil
}
