// Package upstream maps logical service names to their base URLs.
package upstream

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// ErrUnknownService matches every *UnknownServiceError.
var ErrUnknownService = errors.New("unknown service")

// UnknownServiceError is returned for a name no upstream is registered under.
type UnknownServiceError struct {
	Name string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("unknown service %q", e.Name)
}

func (e *UnknownServiceError) Is(target error) bool {
	return target == ErrUnknownService
}

// Target is a resolved upstream.
type Target struct {
	Name    string
	BaseURL *url.URL
	// Protected upstreams require a verified bearer token.
	Protected bool
}

// URL joins the forwarded path and query onto the base URL.
func (t Target) URL(path, rawQuery string) *url.URL {
	u := *t.BaseURL
	u.Path = singleJoiningSlash(t.BaseURL.Path, path)
	u.RawPath = ""
	u.RawQuery = rawQuery
	return &u
}

// Registry is an immutable name → Target table.
type Registry struct {
	targets map[string]Target
}

// NewRegistry builds a registry from validated name → URL pairs. Names in
// protected are marked as requiring authentication.
func NewRegistry(upstreams map[string]string, protected []string) (*Registry, error) {
	reg := &Registry{targets: make(map[string]Target, len(upstreams))}
	for name, raw := range upstreams {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("upstream %s: %w", name, err)
		}
		reg.targets[name] = Target{
			Name:      name,
			BaseURL:   u,
			Protected: slices.Contains(protected, name),
		}
	}
	return reg, nil
}

// Resolve looks up name exactly.
func (r *Registry) Resolve(name string) (Target, error) {
	t, ok := r.targets[name]
	if !ok {
		return Target{}, &UnknownServiceError{Name: name}
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.targets))
}

// Len returns the number of upstreams.
func (r *Registry) Len() int {
	return len(r.targets)
}

func singleJoiningSlash(a, b string) string {
	if b == "" {
		return a
	}
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
