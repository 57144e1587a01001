package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// str reads a scalar field as a string. Numbers are formatted without an
// exponent so numeric identifiers map to stable strings.
func str(rec map[string]any, key string) (string, bool) {
	return scalar(rec[key])
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// id reads an identifier field; blank strings count as absent
func id(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := str(rec, key); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstString returns the first present string field among keys
func firstString(rec map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := str(rec, key); ok {
			return s, true
		}
	}
	return "", false
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func integer(rec map[string]any, key string) (int, bool) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := num(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func object(rec map[string]any, key string) (map[string]any, bool) {
	m, ok := rec[key].(map[string]any)
	return m, ok
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalar(item); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

// enabled interprets the many encodings of an on/off status. The second
// result is false when the value is absent or unrecognized.
func enabled(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, false
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "enabled", "active", "1", "true", "on":
			return true, true
		case "disabled", "inactive", "0", "false", "off":
			return false, true
		}
		return false, false
	default:
		f, ok := num(t)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

// epochMillisThreshold separates second and millisecond epoch values
const epochMillisThreshold = 1e12

// timestamp resolves the creation time of a record, preferring the wire
// create_time over the canonical created_at
func timestamp(rec map[string]any, now func() time.Time) time.Time {
	if v, ok := rec["create_time"]; ok {
		if f, ok := num(v); ok && f > 0 {
			return epoch(f)
		}
	}
	switch v := rec["created_at"].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC().Truncate(time.Second)
		}
	case nil:
	default:
		if f, ok := num(v); ok && f > 0 {
			return epoch(f)
		}
	}
	return now().UTC().Truncate(time.Second)
}

func epoch(f float64) time.Time {
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC().Truncate(time.Second)
	}
	return time.Unix(int64(f), 0).UTC()
}

func copyPlugins(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
