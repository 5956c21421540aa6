package common

import "strings"

// System group OIDs (RFC 1213) queried by the connection test.
const (
	OIDSysDescr  = "1.3.6.1.2.1.1.1.0"
	OIDSysUpTime = "1.3.6.1.2.1.1.3.0"
	OIDSysName   = "1.3.6.1.2.1.1.5.0"
)

// GetSNMPResult looks up an OID in SNMP results, handling the leading dot issue.
// gosnmp returns OIDs with a leading dot (e.g., ".1.3.6.1..."), but the
// constants above don't have it.
func GetSNMPResult(results map[string]interface{}, oid string) (interface{}, bool) {
	if results == nil {
		return nil, false
	}
	if val, ok := results[oid]; ok {
		return val, true
	}
	if strings.HasPrefix(oid, ".") {
		val, ok := results[strings.TrimPrefix(oid, ".")]
		return val, ok
	}
	val, ok := results["."+oid]
	return val, ok
}

// ParseIntSNMPValue extracts an int64 from the integer types gosnmp returns
// (Integer, Counter32, Gauge32, TimeTicks).
func ParseIntSNMPValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

// ParseStringSNMPValue extracts a string from SNMP result.
// Handles both string and []byte types; trailing NULs some OLTs append are dropped.
func ParseStringSNMPValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimRight(v, "\x00"), true
	case []byte:
		return strings.TrimRight(string(v), "\x00"), true
	default:
		return "", false
	}
}

// TimeTicksToSeconds converts sysUpTime hundredths of a second to seconds.
func TimeTicksToSeconds(ticks int64) int64 {
	return ticks / 100
}
