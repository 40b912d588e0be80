package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	kindList
)

// fieldKinds is the single coercion rule per key, whichever layer supplied it.
var fieldKinds = map[string]fieldKind{
	keyHost:              kindString,
	keyPort:              kindInt,
	keyRequestTimeout:    kindInt,
	keyCORSOrigins:       kindList,
	keyCORSCredentials:   kindBool,
	keyErrorPolicy:       kindString,
	keyShutdownTimeout:   kindInt,
	keyLogLevel:          kindString,
	keyLogFormat:         kindString,
	keyLogFile:           kindString,
	keyMetricsEnabled:    kindBool,
	keyAuthPublicKeyFile: kindString,
	keyAuthKeyID:         kindString,
	keyAuthIssuer:        kindString,
	keyAuthAudience:      kindString,
	keyAuthProtected:     kindList,
}

func kindOf(key string) (fieldKind, bool) {
	if k, ok := fieldKinds[key]; ok {
		return k, true
	}
	if strings.HasPrefix(key, upstreamKeyPrefix) {
		return kindString, true
	}
	return 0, false
}

func coerceString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case []any, []string, map[string]any:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return cast.ToStringE(v)
}

func coerceInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", t)
		}
		return n, nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, fmt.Errorf("expected an integer, got %v", t)
		}
		return int64(t), nil
	case float32:
		return coerceInt(float64(t))
	case bool, nil:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
	return cast.ToInt64E(v)
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("expected a boolean, got %q", t)
		}
		return b, nil
	case nil, []any, map[string]any:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
	return cast.ToBoolE(v)
}

// coerceList accepts a native array or a string holding either a JSON array
// (`["https://a","https://b"]`) or a comma separated list.
func coerceList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected a string, got %T", i, item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case string:
		return parseListString(t)
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

func parseListString(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}, nil
	}
	if !strings.HasPrefix(s, "[") {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}

	if !gjson.Valid(s) {
		return nil, fmt.Errorf("invalid JSON array %q", s)
	}
	items := gjson.Parse(s).Array()
	out := make([]string, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("element %d: expected a string, got %s", i, item.Type)
		}
		out = append(out, strings.TrimSpace(item.Str))
	}
	return out, nil
}
