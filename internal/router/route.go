// Package router maps request paths onto logical service names.
package router

import (
	"net/url"
	"strings"
)

// Route is where a request path leads.
type Route struct {
	// Service is the first path segment, empty for "/".
	Service string
	// Path is the remainder forwarded upstream: "" or a path starting with "/".
	Path string
	// RawQuery is the inbound query, forwarded unchanged.
	RawQuery string
}

// Resolve splits u into service name and forwarded path:
// /video_service/streams/42?x=1 → {video_service, /streams/42, x=1}.
func Resolve(u *url.URL) Route {
	path := strings.TrimLeft(u.Path, "/")
	service, rest, found := strings.Cut(path, "/")

	rt := Route{Service: service, RawQuery: u.RawQuery}
	if found {
		rt.Path = "/" + rest
	}
	return rt
}

// String renders the forwarded part, for logs.
func (rt Route) String() string {
	if rt.RawQuery == "" {
		return rt.Path
	}
	return rt.Path + "?" + rt.RawQuery
}
