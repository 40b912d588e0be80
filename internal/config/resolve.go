package config

import (
	"errors"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

type entry struct {
	value  any
	source Source
}

// Resolve merges layers in the given order, later layers winning key by key,
// then coerces and validates the result. It performs no I/O: the same layers
// always yield an equal GatewayConfig or an equal error.
//
// Coercion failures are reported as *MalformedError and validation failures
// as *InvalidError, joined with errors.Join when there are several.
func Resolve(layers ...Layer) (*GatewayConfig, error) {
	merged := merge(layers)

	cfg, err := build(merged)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnknownKey is a layer entry that no field consumes.
type UnknownKey struct {
	Key    string
	Source Source
}

// UnknownKeys lists entries Resolve ignores, typically typos.
func UnknownKeys(layers ...Layer) []UnknownKey {
	var out []UnknownKey
	for _, l := range layers {
		for _, key := range l.Keys() {
			if _, ok := kindOf(key); ok || key == upstreamsTableKey {
				continue
			}
			if v, _ := l.Get(key); isEmptyTable(v) {
				continue
			}
			out = append(out, UnknownKey{Key: key, Source: l.Source()})
		}
	}
	return out
}

func merge(layers []Layer) map[string]entry {
	merged := make(map[string]entry)
	for _, l := range layers {
		for _, key := range l.Keys() {
			v, _ := l.Get(key)
			// Empty tables such as a bare [upstreams] carry no values.
			if isEmptyTable(v) {
				continue
			}
			merged[key] = entry{value: v, source: l.Source()}
		}
	}
	return merged
}

func isEmptyTable(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}

func build(merged map[string]entry) (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Upstreams: make(map[string]string),
		Sources:   make(map[string]Source),
	}

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		e := merged[key]
		if key == upstreamsTableKey {
			errs = append(errs, &MalformedError{Key: key, Source: e.source, Value: e.value,
				Err: errors.New("expected a table of service name to URL")})
			continue
		}
		kind, ok := kindOf(key)
		if !ok {
			continue
		}
		if err := assign(cfg, key, kind, e.value); err != nil {
			errs = append(errs, &MalformedError{Key: key, Source: e.source, Value: e.value, Err: err})
			continue
		}
		cfg.Sources[key] = e.source
	}

	for _, key := range slices.Sorted(maps.Keys(defaults())) {
		if _, ok := merged[key]; !ok {
			errs = append(errs, &InvalidError{Field: key, Reason: "not set by any layer", Source: SourceDefaults})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func assign(cfg *GatewayConfig, key string, kind fieldKind, raw any) error {
	switch kind {
	case kindString:
		s, err := coerceString(raw)
		if err != nil {
			return err
		}
		setString(cfg, key, s)
	case kindInt:
		n, err := coerceInt(raw)
		if err != nil {
			return err
		}
		setInt(cfg, key, n)
	case kindBool:
		b, err := coerceBool(raw)
		if err != nil {
			return err
		}
		setBool(cfg, key, b)
	case kindList:
		l, err := coerceList(raw)
		if err != nil {
			return err
		}
		setList(cfg, key, l)
	}
	return nil
}

func setString(cfg *GatewayConfig, key, s string) {
	switch key {
	case keyHost:
		cfg.Host = s
	case keyErrorPolicy:
		cfg.UpstreamErrorPolicy = ErrorPolicy(strings.ToLower(s))
	case keyLogLevel:
		cfg.Log.Level = strings.ToLower(s)
	case keyLogFormat:
		cfg.Log.Format = strings.ToLower(s)
	case keyLogFile:
		cfg.Log.File = s
	case keyAuthPublicKeyFile:
		cfg.Auth.PublicKeyFile = s
	case keyAuthKeyID:
		cfg.Auth.KeyID = s
	case keyAuthIssuer:
		cfg.Auth.Issuer = s
	case keyAuthAudience:
		cfg.Auth.Audience = s
	default:
		if name, ok := strings.CutPrefix(key, upstreamKeyPrefix); ok {
			cfg.Upstreams[name] = s
		}
	}
}

// setInt stores integers without clamping so validation sees the raw value.
func setInt(cfg *GatewayConfig, key string, n int64) {
	switch key {
	case keyPort:
		cfg.Port = int(n)
	case keyRequestTimeout:
		cfg.RequestTimeout = millis(n)
	case keyShutdownTimeout:
		cfg.ShutdownTimeout = millis(n)
	}
}

const maxMillis = int64(math.MaxInt64 / int64(time.Millisecond))

func millis(n int64) time.Duration {
	if n > maxMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(max(n, -maxMillis)) * time.Millisecond
}

func setBool(cfg *GatewayConfig, key string, b bool) {
	switch key {
	case keyCORSCredentials:
		cfg.CORSAllowCredentials = b
	case keyMetricsEnabled:
		cfg.Metrics.Enabled = b
	}
}

func setList(cfg *GatewayConfig, key string, l []string) {
	switch key {
	case keyCORSOrigins:
		cfg.CORSOrigins = dedupe(l)
	case keyAuthProtected:
		cfg.Auth.Protected = dedupe(l)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
