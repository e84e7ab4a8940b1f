package domain

import (
	"fmt"
	"strconv"
)

// JobDataMap carries arbitrary state handed to a job at execution time.
// Stores serialize it either as key/value strings or as an opaque blob,
// depending on store configuration.
type JobDataMap map[string]any

// Clone returns a shallow copy of the map. A nil receiver yields an empty
// non-nil map so callers can mutate the result.
func (m JobDataMap) Clone() JobDataMap {
	out := make(JobDataMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a copy of m and returns the result.
func (m JobDataMap) Merge(other JobDataMap) JobDataMap {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// GetString returns the value under key rendered as a string.
func (m JobDataMap) GetString(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// GetInt returns the value under key as an int, accepting stored ints,
// int64s and numeric strings.
func (m JobDataMap) GetInt(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// GetInt64 returns the value under key as an int64.
func (m JobDataMap) GetInt64(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// GetBool returns the value under key as a bool.
func (m JobDataMap) GetBool(key string) (bool, bool) {
	switch v := m[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// StringsOnly reports whether every value is a plain string. Stores running
// in properties mode require this before persisting.
func (m JobDataMap) StringsOnly() bool {
	for _, v := range m {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	return true
}
