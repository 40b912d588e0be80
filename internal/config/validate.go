package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var (
	hostnameLabel = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
	upstreamName  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ReservedNames are path segments served locally; an upstream cannot use them.
var ReservedNames = []string{"healthz", "readyz", "metrics"}

// validate checks the merged candidate as a whole and reports every violation.
func validate(cfg *GatewayConfig) error {
	v := &validator{cfg: cfg}

	if cfg.Port < 1 || cfg.Port > 65535 {
		v.fail(keyPort, fmt.Sprintf("invalid port %d: must be between 1 and 65535", cfg.Port))
	}
	if err := validateHost(cfg.Host); err != nil {
		v.fail(keyHost, err.Error())
	}
	if cfg.RequestTimeout <= 0 {
		v.fail(keyRequestTimeout, fmt.Sprintf("invalid timeout %s: must be greater than zero", cfg.RequestTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		v.fail(keyShutdownTimeout, fmt.Sprintf("invalid timeout %s: must be greater than zero", cfg.ShutdownTimeout))
	}

	for _, origin := range cfg.CORSOrigins {
		if err := validateOrigin(origin); err != nil {
			v.fail(keyCORSOrigins, err.Error())
		}
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Upstreams)) {
		key := upstreamKeyPrefix + name
		if err := validateUpstreamName(name); err != nil {
			v.fail(key, err.Error())
			continue
		}
		if err := validateUpstreamURL(cfg.Upstreams[name]); err != nil {
			v.fail(key, err.Error())
		}
	}

	switch cfg.UpstreamErrorPolicy {
	case ErrorPolicyPassthrough, ErrorPolicyTranslate:
	default:
		v.fail(keyErrorPolicy, fmt.Sprintf("unknown policy %q: want %q or %q",
			cfg.UpstreamErrorPolicy, ErrorPolicyPassthrough, ErrorPolicyTranslate))
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		v.fail(keyLogLevel, fmt.Sprintf("unknown level %q", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		v.fail(keyLogFormat, fmt.Sprintf("unknown format %q", cfg.Log.Format))
	}

	v.auth()

	return errors.Join(v.errs...)
}

type validator struct {
	cfg  *GatewayConfig
	errs []error
}

func (v *validator) fail(field, reason string) {
	v.errs = append(v.errs, &InvalidError{Field: field, Reason: reason, Source: v.cfg.Sources[field]})
}

func (v *validator) auth() {
	a := v.cfg.Auth
	if !a.Enabled() {
		return
	}
	if a.PublicKeyFile == "" {
		v.fail(keyAuthPublicKeyFile, "required when auth.protected is set")
	}
	if a.KeyID == "" {
		v.fail(keyAuthKeyID, "required when auth.protected is set")
	}
	if a.Issuer == "" {
		v.fail(keyAuthIssuer, "required when auth.protected is set")
	}
	if a.Audience == "" {
		v.fail(keyAuthAudience, "required when auth.protected is set")
	}
	for _, name := range a.Protected {
		if _, ok := v.cfg.Upstreams[name]; !ok {
			v.fail(keyAuthProtected, fmt.Sprintf("protected upstream %q is not configured", name))
		}
	}
}

// validateHost accepts an empty host, a bare IP literal or an RFC 1123
// hostname. Brackets are added by Addr, so "[::1]" is rejected.
func validateHost(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if strings.ContainsAny(host, "[]") {
		return fmt.Errorf("invalid host %q: write IPv6 addresses without brackets", host)
	}
	if len(host) > 253 {
		return fmt.Errorf("invalid host %q: too long", host)
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if !hostnameLabel.MatchString(label) {
			return fmt.Errorf("invalid host %q: not an IP address or hostname", host)
		}
	}
	return nil
}

// validateOrigin accepts "*" or scheme://host[:port] with nothing after it,
// in the serialized form browsers send: lower-case and without the scheme's
// default port.
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	if origin == "" {
		return errors.New("invalid CORS origin: empty entry")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid CORS origin %q: %v", origin, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid CORS origin %q: scheme must be http or https", origin)
	case u.Host == "" || u.Hostname() == "":
		return fmt.Errorf("invalid CORS origin %q: missing host", origin)
	case u.User != nil:
		return fmt.Errorf("invalid CORS origin %q: must not contain credentials", origin)
	case u.Path != "" || u.RawQuery != "" || u.Fragment != "" || strings.HasSuffix(origin, "?") || strings.HasSuffix(origin, "#"):
		return fmt.Errorf("invalid CORS origin %q: must not contain a path, query or fragment", origin)
	case origin != strings.ToLower(origin):
		return fmt.Errorf("invalid CORS origin %q: must be lower-case", origin)
	case (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443"):
		return fmt.Errorf("invalid CORS origin %q: omit the default port", origin)
	}
	return nil
}

func validateUpstreamName(name string) error {
	if !upstreamName.MatchString(name) {
		return fmt.Errorf("invalid upstream name %q: use lower-case letters, digits, '_' or '-'", name)
	}
	if slices.Contains(ReservedNames, name) {
		return fmt.Errorf("invalid upstream name %q: reserved for a local endpoint", name)
	}
	return nil
}

func validateUpstreamURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid upstream URL %q: %v", raw, err)
	}
	switch {
	case !u.IsAbs():
		return fmt.Errorf("invalid upstream URL %q: must be absolute", raw)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("invalid upstream URL %q: scheme must be http or https", raw)
	case u.Host == "" || u.Hostname() == "":
		return fmt.Errorf("invalid upstream URL %q: missing host", raw)
	case u.RawQuery != "" || u.Fragment != "":
		return fmt.Errorf("invalid upstream URL %q: must not contain a query or fragment", raw)
	}
	return nil
}
