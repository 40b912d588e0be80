package config

import (
	"net"
	"strconv"
	"time"
)

// GatewayConfig is the resolved, validated gateway configuration. It is built
// once at startup and never mutated afterwards.
type GatewayConfig struct {
	Host                 string
	Port                 int
	RequestTimeout       time.Duration
	CORSOrigins          []string
	CORSAllowCredentials bool
	Upstreams            map[string]string
	UpstreamErrorPolicy  ErrorPolicy
	ShutdownTimeout      time.Duration
	Log                  LogConfig
	Metrics              MetricsConfig
	Auth                 AuthConfig

	// Sources records which layer supplied each resolved key.
	Sources map[string]Source
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // empty writes to stderr
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool
}

// AuthConfig holds bearer token verification settings for protected upstreams.
type AuthConfig struct {
	PublicKeyFile string
	KeyID         string
	Issuer        string
	Audience      string
	Protected     []string
}

// Enabled reports whether any upstream requires authentication.
func (a AuthConfig) Enabled() bool {
	return len(a.Protected) > 0
}

// ErrorPolicy controls how upstream 5xx responses are surfaced.
type ErrorPolicy string

const (
	// ErrorPolicyPassthrough relays upstream error responses verbatim.
	ErrorPolicyPassthrough ErrorPolicy = "passthrough"
	// ErrorPolicyTranslate replaces upstream 5xx responses with a gateway error.
	ErrorPolicyTranslate ErrorPolicy = "translate"
)

// Addr returns the listen address.
func (c *GatewayConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SourceOf returns the layer that supplied key.
func (c *GatewayConfig) SourceOf(key string) Source {
	return c.Sources[key]
}
