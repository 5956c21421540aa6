package types

import (
	"context"
	"time"
)

// Protocol represents the southbound protocol type
type Protocol string

const (
	ProtocolCLI  Protocol = "cli"
	ProtocolSNMP Protocol = "snmp"
)

// Vendor represents the OLT vendor
type Vendor string

const (
	VendorZTE  Vendor = "zte"
	VendorMock Vendor = "mock" // For testing/simulation
)

// Default values applied by drivers when a field is left empty.
const (
	DefaultSSHPort        = 22
	DefaultSNMPPort       = 161
	DefaultCommandTimeout = 30 * time.Second
)

// DeviceCredentials identifies and authenticates one OLT.
// The core never persists it; internal/store does that for the CLI.
type DeviceCredentials struct {
	// Name is a unique identifier for this OLT
	Name string

	// Vendor is the equipment vendor
	Vendor Vendor

	// Address is the management IP/hostname
	Address string

	// Port is the SSH port (default 22)
	Port int

	// Username for authentication
	Username string

	// Password for authentication
	Password string

	// Timeout bounds every single command round trip
	Timeout time.Duration

	// SNMPCommunity enables the read-only SNMP probe when set
	SNMPCommunity string

	// Metadata contains vendor-specific configuration
	Metadata map[string]string
}

// WithDefaults returns a copy with port and timeout defaults filled in.
func (c DeviceCredentials) WithDefaults() DeviceCredentials {
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultCommandTimeout
	}
	if c.Vendor == "" {
		c.Vendor = VendorZTE
	}
	return c
}

// Transport is a single interactive shell channel to the device.
// Implementations are not safe for concurrent use; one session owns one transport.
type Transport interface {
	// Open authenticates and waits for the first prompt
	Open(ctx context.Context) error

	// Execute sends one command line and returns the text the device printed
	// before the next prompt, with the echo and prompt removed
	Execute(ctx context.Context, command string) (string, error)

	// Close releases the channel. Safe to call more than once.
	Close() error

	// IsAlive is a non-blocking liveness check
	IsAlive() bool
}

// Dialer builds a fresh, unopened Transport. The session manager calls it on
// every reconnect so no state leaks between connections.
type Dialer func(creds DeviceCredentials) (Transport, error)

// SNMPExecutor is an optional interface for drivers that support SNMP queries
type SNMPExecutor interface {
	// GetSNMP retrieves a single SNMP value by OID
	GetSNMP(ctx context.Context, oid string) (interface{}, error)

	// WalkSNMP performs an SNMP walk on an OID subtree
	WalkSNMP(ctx context.Context, oid string) (map[string]interface{}, error)

	// BulkGetSNMP retrieves multiple OIDs in one request
	BulkGetSNMP(ctx context.Context, oids []string) (map[string]interface{}, error)
}

// EquipmentStatus is what the connection test reports about an OLT
type EquipmentStatus struct {
	// IsReachable indicates the SSH shell answered with a prompt
	IsReachable bool

	// SysName and SysDescr come from the SNMP system group, when probed
	SysName  string
	SysDescr string

	// Uptime in seconds
	UptimeSeconds int64

	// Latency of the SSH open
	Latency time.Duration

	// Metadata contains vendor-specific status
	Metadata map[string]interface{}
}
