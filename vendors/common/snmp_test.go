package common

import "testing"

func TestGetSNMPResult(t *testing.T) {
	tests := []struct {
		name      string
		results   map[string]interface{}
		oid       string
		wantValue interface{}
		wantFound bool
	}{
		{name: "nil results", results: nil, oid: OIDSysName},
		{name: "empty results", results: map[string]interface{}{}, oid: OIDSysName},
		{name: "exact match", results: map[string]interface{}{OIDSysName: "ZXAN"}, oid: OIDSysName, wantValue: "ZXAN", wantFound: true},
		{name: "result has dot, oid without", results: map[string]interface{}{"." + OIDSysName: "ZXAN"}, oid: OIDSysName, wantValue: "ZXAN", wantFound: true},
		{name: "result without dot, oid has dot", results: map[string]interface{}{OIDSysName: "ZXAN"}, oid: "." + OIDSysName, wantValue: "ZXAN", wantFound: true},
		{name: "not found", results: map[string]interface{}{OIDSysDescr: "C300"}, oid: OIDSysName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := GetSNMPResult(tt.results, tt.oid)
			if found != tt.wantFound {
				t.Errorf("GetSNMPResult() found = %v, want %v", found, tt.wantFound)
			}
			if got != tt.wantValue {
				t.Errorf("GetSNMPResult() value = %v, want %v", got, tt.wantValue)
			}
		})
	}
}

func TestParseIntSNMPValue(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantValue int64
		wantOK    bool
	}{
		{name: "nil", value: nil},
		{name: "int", value: int(42), wantValue: 42, wantOK: true},
		{name: "int64", value: int64(123), wantValue: 123, wantOK: true},
		{name: "timeticks uint32", value: uint32(8640000), wantValue: 8640000, wantOK: true},
		{name: "counter uint", value: uint(7), wantValue: 7, wantOK: true},
		{name: "string", value: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotValue, gotOK := ParseIntSNMPValue(tt.value)
			if gotOK != tt.wantOK {
				t.Errorf("ParseIntSNMPValue() ok = %v, want %v", gotOK, tt.wantOK)
			}
			if gotOK && gotValue != tt.wantValue {
				t.Errorf("ParseIntSNMPValue() value = %v, want %v", gotValue, tt.wantValue)
			}
		})
	}
}

func TestParseStringSNMPValue(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		wantValue string
		wantOK    bool
	}{
		{name: "nil", value: nil},
		{name: "string", value: "ZXA10 C300", wantValue: "ZXA10 C300", wantOK: true},
		{name: "byte slice", value: []byte("ZXAN"), wantValue: "ZXAN", wantOK: true},
		{name: "trailing nul", value: []byte("ZXAN\x00"), wantValue: "ZXAN", wantOK: true},
		{name: "int", value: int(123)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotValue, gotOK := ParseStringSNMPValue(tt.value)
			if gotOK != tt.wantOK {
				t.Errorf("ParseStringSNMPValue() ok = %v, want %v", gotOK, tt.wantOK)
			}
			if gotValue != tt.wantValue {
				t.Errorf("ParseStringSNMPValue() value = %v, want %v", gotValue, tt.wantValue)
			}
		})
	}
}

func TestTimeTicksToSeconds(t *testing.T) {
	if got := TimeTicksToSeconds(8640000); got != 86400 {
		t.Errorf("TimeTicksToSeconds() = %d, want 86400", got)
	}
}
