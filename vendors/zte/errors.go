package zte

import (
	"strings"

	"github.com/nanoncore/nano-onuprov/types"
)

// errorMapping maps a ZTE CLI error fragment to a structured error
type errorMapping struct {
	Pattern     string
	Code        types.ErrorCode
	Human       string
	Action      string
	Recoverable bool
}

// zteErrorPatterns is checked in order against the lowercased device text
var zteErrorPatterns = []errorMapping{
	{
		Pattern: "already been authenticated",
		Code:    types.ErrCodeONUExists,
		Human:   "ONU serial is already authorized on this OLT",
		Action:  "Check where it is registered with show gpon onu by sn",
	},
	{
		Pattern: "sn is exist",
		Code:    types.ErrCodeONUExists,
		Human:   "ONU serial is already authorized on this OLT",
		Action:  "Check where it is registered with show gpon onu by sn",
	},
	{
		Pattern: "onu already exist",
		Code:    types.ErrCodeONUExists,
		Human:   "ONU is already registered on this OLT",
		Action:  "Delete the existing ONU first",
	},
	{
		Pattern: "onu id is used",
		Code:    types.ErrCodeONUIDInUse,
		Human:   "ONU ID is already taken on this PON port",
		Action:  "Rescan the port and pick a free ID",
		// a concurrent operator may have taken the ID between scan and commit
		Recoverable: true,
	},
	{
		Pattern:     "has been used",
		Code:        types.ErrCodeONUIDInUse,
		Human:       "ONU ID is already taken on this PON port",
		Action:      "Rescan the port and pick a free ID",
		Recoverable: true,
	},
	{
		Pattern: "invalid sn",
		Code:    types.ErrCodeInvalidSerial,
		Human:   "Serial number format is invalid",
		Action:  "Check format: 4 letters + 8 hex characters (e.g., ZTEGC0FFEE01)",
	},
	{
		Pattern: "onu number is full",
		Code:    types.ErrCodePortFull,
		Human:   "Maximum ONUs reached on this PON port",
		Action:  "Delete unused ONUs to free IDs (max 128 per port)",
	},
	{
		Pattern: "profile does not exist",
		Code:    types.ErrCodeProfileMissing,
		Human:   "T-CONT bandwidth profile is not configured",
		Action:  "Create the profile or set zte.tcont_profile to an existing one",
	},
	{
		Pattern: "profile is not exist",
		Code:    types.ErrCodeProfileMissing,
		Human:   "T-CONT bandwidth profile is not configured",
		Action:  "Create the profile or set zte.tcont_profile to an existing one",
	},
	{
		Pattern: "onu type",
		Code:    types.ErrCodeProfileMissing,
		Human:   "ONU type is not defined on this OLT",
		Action:  "Check show onu-type gpon or set zte.onu_type",
	},
	{
		Pattern: "vlan",
		Code:    types.ErrCodeVLANInvalid,
		Human:   "VLAN is invalid or not created on the OLT",
		Action:  "Create the VLAN on the OLT and uplink first",
	},
	{
		Pattern: "does not exist",
		Code:    types.ErrCodePortNotFound,
		Human:   "Interface does not exist",
		Action:  "Verify slot/card/port and ONU ID",
	},
	{
		Pattern: "is not exist",
		Code:    types.ErrCodePortNotFound,
		Human:   "Interface does not exist",
		Action:  "Verify slot/card/port and ONU ID",
	},
	{
		Pattern:     "configuration is locked",
		Code:        types.ErrCodeConfigLocked,
		Human:       "Another session holds the configuration",
		Action:      "Retry when the other session finishes",
		Recoverable: true,
	},
	{
		Pattern: "invalid input",
		Code:    types.ErrCodeUnknownCommand,
		Human:   "Command syntax not accepted by this firmware",
		Action:  "Check firmware version and command mode",
	},
	{
		Pattern: "unknown command",
		Code:    types.ErrCodeUnknownCommand,
		Human:   "Command not supported by this firmware",
		Action:  "Check firmware version",
	},
	{
		Pattern: "incomplete command",
		Code:    types.ErrCodeUnknownCommand,
		Human:   "Command is incomplete",
		Action:  "Check command parameters",
	},
}

// TranslateError converts rejected command output into a DeviceError
func TranslateError(index int, command, output string) *types.DeviceError {
	lower := strings.ToLower(output)

	for _, m := range zteErrorPatterns {
		if strings.Contains(lower, m.Pattern) {
			return &types.DeviceError{
				Code:    m.Code,
				Human:   m.Human,
				Action:  m.Action,
				Index:   index,
				Command: command,
				Output:  output,
			}
		}
	}

	return &types.DeviceError{
		Code:    types.ErrCodeUnknown,
		Human:   firstLine(output),
		Action:  "Check OLT logs for details",
		Index:   index,
		Command: command,
		Output:  output,
	}
}

// IsRecoverable returns true if the device error may succeed on a later attempt
func IsRecoverable(code types.ErrorCode) bool {
	for _, m := range zteErrorPatterns {
		if m.Code == code {
			return m.Recoverable
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
