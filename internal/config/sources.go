package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment namespace read by the env layer.
const DefaultEnvPrefix = "APP"

const delim = "."

// Flat keys understood by the resolver.
const (
	keyHost               = "host"
	keyPort               = "port"
	keyRequestTimeout     = "request_timeout_ms"
	keyCORSOrigins        = "cors_origins"
	keyCORSCredentials    = "cors_allow_credentials"
	keyErrorPolicy        = "upstream_error_policy"
	keyShutdownTimeout    = "shutdown_timeout_ms"
	keyLogLevel           = "log.level"
	keyLogFormat          = "log.format"
	keyLogFile            = "log.file"
	keyMetricsEnabled     = "metrics.enabled"
	keyAuthPublicKeyFile  = "auth.public_key_file"
	keyAuthKeyID          = "auth.key_id"
	keyAuthIssuer         = "auth.issuer"
	keyAuthAudience       = "auth.audience"
	keyAuthProtected      = "auth.protected"
	upstreamKeyPrefix     = "upstreams."
	upstreamsTableKey     = "upstreams"
	defaultRequestTimeout = 15000
)

func defaults() map[string]any {
	return map[string]any{
		keyHost:            "",
		keyPort:            3000,
		keyRequestTimeout:  defaultRequestTimeout,
		keyCORSOrigins:     []any{"*"},
		keyCORSCredentials: false,
		keyErrorPolicy:     string(ErrorPolicyPassthrough),
		keyShutdownTimeout: 10000,
		keyLogLevel:        "info",
		keyLogFormat:       "json",
		keyLogFile:         "",
		keyMetricsEnabled:  true,
		keyAuthKeyID:       "default",
	}
}

// DefaultsLayer returns the built-in defaults.
func DefaultsLayer() Layer {
	k := koanf.New(delim)
	// confmap never fails on an in-memory map.
	_ = k.Load(confmap.Provider(defaults(), delim), nil)
	return NewLayer(SourceDefaults, k.All())
}

// ReadFile reads a TOML, YAML or JSON config file into a file layer.
func ReadFile(path string) (Layer, error) {
	parser, err := parserFor(path)
	if err != nil {
		return Layer{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	k := koanf.New(delim)
	if err := k.Load(file.Provider(path), parser); err != nil {
		return Layer{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	return NewLayer(SourceFile, k.All()).withOrigin(path), nil
}

// ReadEnv reads prefixed environment variables into an env layer.
// APP_PORT maps to "port", APP_UPSTREAMS__USER_SERVICE to
// "upstreams.user_service". Values stay strings; coercion happens in Resolve.
func ReadEnv(prefix string) (Layer, error) {
	envPrefix := normalizePrefix(prefix)

	k := koanf.New(delim)
	if err := k.Load(env.Provider(envPrefix, delim, func(name string) string {
		return envKey(envPrefix, name)
	}), nil); err != nil {
		return Layer{}, fmt.Errorf("read environment: %w", err)
	}
	return NewLayer(SourceEnv, k.All()).withOrigin(envPrefix + "*"), nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ToUpper(strings.TrimSuffix(prefix, "_")) + "_"
}

// envKey converts an environment variable name into a flat config key.
// An empty result makes the provider skip the variable.
func envKey(prefix, name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, prefix))
	if key == "" || strings.HasPrefix(key, "_") {
		return ""
	}
	return strings.ReplaceAll(key, "__", delim)
}
