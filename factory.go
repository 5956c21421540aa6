package onuprov

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nanoncore/nano-onuprov/drivers/cli"
	"github.com/nanoncore/nano-onuprov/drivers/mock"
	"github.com/nanoncore/nano-onuprov/drivers/snmp"
	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// CapabilityMatrix defines what each vendor supports
var CapabilityMatrix = map[Vendor]VendorCapabilities{
	VendorZTE: {
		PrimaryProtocol: ProtocolCLI,
		SupportedProtocols: []Protocol{
			ProtocolCLI,
			ProtocolSNMP,
		},
		ConfigMethod:    ProtocolCLI,
		TelemetryMethod: ProtocolSNMP,
	},
	VendorMock: {
		PrimaryProtocol: ProtocolCLI,
		SupportedProtocols: []Protocol{
			ProtocolCLI,
		},
		ConfigMethod:    ProtocolCLI,
		TelemetryMethod: ProtocolCLI,
	},
}

// VendorCapabilities defines what protocols a vendor supports
type VendorCapabilities struct {
	PrimaryProtocol    Protocol
	SupportedProtocols []Protocol
	ConfigMethod       Protocol
	TelemetryMethod    Protocol
}

// Supports reports whether p is usable with the vendor
func (c VendorCapabilities) Supports(p Protocol) bool {
	for _, sp := range c.SupportedProtocols {
		if sp == p {
			return true
		}
	}
	return false
}

// NewDialer returns the transport factory for the vendor of creds.
// The mock vendor gets a fresh simulated OLT. Metadata "mock.unconfigured"
// seeds that many random ONUs and "mock.serials" a comma separated list,
// all waiting on "mock.port" (default 1/1/1).
func NewDialer(creds Credentials) (Dialer, error) {
	creds = creds.WithDefaults()
	caps, ok := CapabilityMatrix[creds.Vendor]
	if !ok {
		return nil, fmt.Errorf("unsupported vendor: %s", creds.Vendor)
	}
	if !caps.Supports(ProtocolCLI) {
		return nil, fmt.Errorf("vendor %s does not support protocol %s", creds.Vendor, ProtocolCLI)
	}

	switch creds.Vendor {
	case VendorZTE:
		if _, err := cli.NewDriver(creds); err != nil {
			return nil, fmt.Errorf("failed to create %s driver: %w", ProtocolCLI, err)
		}
		return cli.Dial, nil
	case VendorMock:
		olt := mock.NewOLT()
		port, err := model.ParsePortAddress(common.MetadataStringOr(creds.Metadata, "1/1/1", "mock.port"))
		if err != nil {
			return nil, fmt.Errorf("mock.port: %w", err)
		}
		if n := common.MetadataIntOr(creds.Metadata, 0, "mock.unconfigured"); n > 0 {
			olt.GenerateUnconfigured(port, n)
		}
		for _, serial := range strings.Split(common.MetadataStringOr(creds.Metadata, "", "mock.serials"), ",") {
			if serial = strings.TrimSpace(serial); serial != "" {
				olt.AddUnconfigured(port, serial)
			}
		}
		return olt.Dialer(), nil
	default:
		return nil, fmt.Errorf("vendor driver not implemented: %s", creds.Vendor)
	}
}

// NewProber returns an SNMP driver for the identity probe, or an error when
// the vendor has no SNMP support
func NewProber(creds Credentials) (*snmp.Driver, error) {
	creds = creds.WithDefaults()
	caps, ok := CapabilityMatrix[creds.Vendor]
	if !ok {
		return nil, fmt.Errorf("unsupported vendor: %s", creds.Vendor)
	}
	if !caps.Supports(ProtocolSNMP) {
		return nil, fmt.Errorf("vendor %s does not support protocol %s", creds.Vendor, ProtocolSNMP)
	}
	return snmp.NewDriver(creds)
}

// GetSupportedVendors returns every vendor in the matrix, sorted
func GetSupportedVendors() []Vendor {
	vendors := make([]Vendor, 0, len(CapabilityMatrix))
	for v := range CapabilityMatrix {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i] < vendors[j] })
	return vendors
}

// GetVendorCapabilities returns the capabilities for a vendor
func GetVendorCapabilities(vendor Vendor) (VendorCapabilities, bool) {
	caps, ok := CapabilityMatrix[vendor]
	return caps, ok
}
