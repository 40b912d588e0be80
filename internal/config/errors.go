package config

import "fmt"

// MalformedError reports a raw value that cannot be coerced to its field type.
type MalformedError struct {
	Key    string
	Source Source
	Value  any
	Err    error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("malformed value for %q in %s layer", e.Key, e.Source)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// InvalidError reports a merged value that fails semantic validation.
// Source is the layer that supplied the offending value.
type InvalidError struct {
	Field  string
	Reason string
	Source Source
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid %s (from %s layer): %s", e.Field, e.Source, e.Reason)
}
