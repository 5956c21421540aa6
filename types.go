// Package onuprov authorizes ONUs in bulk on ZTE OLTs over the CLI.
//
// The root package picks drivers per vendor; the work happens in session,
// vendors/zte and batch.
package onuprov

// Re-export types from the types sub-package so callers need one import

import (
	"github.com/nanoncore/nano-onuprov/types"
)

// Type aliases
type (
	Protocol        = types.Protocol
	Vendor          = types.Vendor
	Credentials     = types.DeviceCredentials
	Transport       = types.Transport
	Dialer          = types.Dialer
	SNMPExecutor    = types.SNMPExecutor
	EquipmentStatus = types.EquipmentStatus
	DeviceError     = types.DeviceError
)

// Re-export constants
const (
	ProtocolCLI  = types.ProtocolCLI
	ProtocolSNMP = types.ProtocolSNMP

	VendorZTE  = types.VendorZTE
	VendorMock = types.VendorMock
)
