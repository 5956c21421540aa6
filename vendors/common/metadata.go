package common

import (
	"strconv"
	"strings"
)

// MetadataString returns the first non-blank value stored under one of keys.
// Device profiles carry per-OLT overrides (ONU type, T-CONT profile) this way.
func MetadataString(md map[string]string, keys ...string) (string, bool) {
	for _, key := range keys {
		if v := strings.TrimSpace(md[key]); v != "" {
			return v, true
		}
	}
	return "", false
}

// MetadataInt is MetadataString for integer values; unparsable values are skipped.
func MetadataInt(md map[string]string, keys ...string) (int, bool) {
	for _, key := range keys {
		v := strings.TrimSpace(md[key])
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// MetadataStringOr returns the override or def.
func MetadataStringOr(md map[string]string, def string, keys ...string) string {
	if v, ok := MetadataString(md, keys...); ok {
		return v
	}
	return def
}

// MetadataIntOr returns the override or def.
func MetadataIntOr(md map[string]string, def int, keys ...string) int {
	if v, ok := MetadataInt(md, keys...); ok {
		return v
	}
	return def
}
