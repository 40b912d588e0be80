// Package cors decides cross-origin access for the gateway.
package cors

import (
	"net/http"
	"strconv"
	"strings"
)

// Response and request header names.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderMaxAge           = "Access-Control-Max-Age"
	HeaderRequestMethod    = "Access-Control-Request-Method"
	HeaderRequestHeaders   = "Access-Control-Request-Headers"
)

// MaxAge is how long, in seconds, browsers may cache a preflight answer.
const MaxAge = 300

var (
	allowedMethods = []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	allowedHeaders = map[string]struct{}{
		"Accept":           {},
		"Accept-Language":  {},
		"Authorization":    {},
		"Content-Language": {},
		"Content-Type":     {},
		"Range":            {},
		"X-Request-Id":     {},
	}
	exposedHeaders = []string{"X-Request-ID"}
)

// Policy holds the allowed origins. It is immutable once built.
type Policy struct {
	wildcard    bool
	origins     map[string]struct{}
	credentials bool
}

// NewPolicy builds a policy from validated origins. "*" allows any origin.
// With allowCredentials the literal origin is echoed instead of "*" and
// Access-Control-Allow-Credentials is sent.
func NewPolicy(origins []string, allowCredentials bool) *Policy {
	p := &Policy{
		origins:     make(map[string]struct{}, len(origins)),
		credentials: allowCredentials,
	}
	for _, o := range origins {
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.origins[o] = struct{}{}
	}
	return p
}

// Decision is the outcome of evaluating one request against the policy.
type Decision struct {
	Allowed        bool
	Origin         string
	Credentials    bool
	ExposedHeaders []string
	AllowMethods   []string
	AllowHeaders   []string
}

// Evaluate decides for the given Origin header value. requestMethod and
// requestHeaders come from a preflight and are empty otherwise.
func (p *Policy) Evaluate(origin, requestMethod string, requestHeaders []string) Decision {
	d := Decision{ExposedHeaders: exposedHeaders}
	if origin == "" {
		return d
	}

	switch {
	case p.wildcard && !p.credentials:
		d.Allowed, d.Origin = true, "*"
	case p.wildcard:
		d.Allowed, d.Origin, d.Credentials = true, origin, true
	default:
		if _, ok := p.origins[origin]; !ok {
			return d
		}
		d.Allowed, d.Origin, d.Credentials = true, origin, p.credentials
	}

	if requestMethod != "" {
		d.AllowMethods = allowedMethods
		for _, h := range requestHeaders {
			if _, ok := allowedHeaders[http.CanonicalHeaderKey(h)]; ok {
				d.AllowHeaders = append(d.AllowHeaders, h)
			}
		}
	}
	return d
}

// Apply writes the decision into response headers, replacing any
// cross-origin headers already present (for example from an upstream).
func (d Decision) Apply(h http.Header, preflight bool) {
	for _, name := range []string{
		HeaderAllowOrigin, HeaderAllowCredentials, HeaderAllowMethods,
		HeaderAllowHeaders, HeaderExposeHeaders, HeaderMaxAge,
	} {
		h.Del(name)
	}

	if d.Origin != "" && d.Origin != "*" {
		addVary(h, "Origin")
	}
	if !d.Allowed {
		return
	}

	h.Set(HeaderAllowOrigin, d.Origin)
	if d.Credentials {
		h.Set(HeaderAllowCredentials, "true")
	}
	if !preflight {
		h.Set(HeaderExposeHeaders, strings.Join(d.ExposedHeaders, ", "))
		return
	}

	addVary(h, HeaderRequestMethod)
	addVary(h, HeaderRequestHeaders)
	h.Set(HeaderAllowMethods, strings.Join(d.AllowMethods, ", "))
	if len(d.AllowHeaders) > 0 {
		h.Set(HeaderAllowHeaders, strings.Join(d.AllowHeaders, ", "))
	}
	h.Set(HeaderMaxAge, strconv.Itoa(MaxAge))
}

// IsPreflight reports whether r is a CORS preflight request.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get(HeaderRequestMethod) != ""
}

// RequestedHeaders splits Access-Control-Request-Headers into names.
func RequestedHeaders(r *http.Request) []string {
	var out []string
	for _, v := range r.Header.Values(HeaderRequestHeaders) {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func addVary(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}
