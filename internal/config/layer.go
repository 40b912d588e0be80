package config

import (
	"maps"
	"slices"
)

// Source identifies which configuration layer supplied a value.
// Layers are ordered by precedence: defaults < file < environment.
type Source int

const (
	SourceDefaults Source = iota
	SourceFile
	SourceEnv
)

func (s Source) String() string {
	switch s {
	case SourceDefaults:
		return "defaults"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "environment"
	default:
		return "unknown"
	}
}

// Layer is one source's partial set of flat, dot-addressed entries
// (e.g. "upstreams.user_service"). A Layer never changes after construction.
type Layer struct {
	source  Source
	origin  string
	entries map[string]any
}

// NewLayer copies entries into a new layer.
func NewLayer(source Source, entries map[string]any) Layer {
	return Layer{source: source, entries: maps.Clone(entries)}
}

// Source returns the layer kind.
func (l Layer) Source() Source {
	return l.source
}

// Origin describes where the layer was read from, such as a file path or an
// environment prefix. It is empty for the defaults layer.
func (l Layer) Origin() string {
	return l.origin
}

// Keys returns the layer's keys in sorted order.
func (l Layer) Keys() []string {
	return slices.Sorted(maps.Keys(l.entries))
}

// Get returns the raw value stored under key.
func (l Layer) Get(key string) (any, bool) {
	v, ok := l.entries[key]
	return v, ok
}

// Len returns the number of entries.
func (l Layer) Len() int {
	return len(l.entries)
}

func (l Layer) withOrigin(origin string) Layer {
	l.origin = origin
	return l
}
