// Package model contains domain types for ONU provisioning batches.
// They carry no transport or vendor dependencies so the CLI, the store and
// the batch runner can share them.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinVLAN = 1
	MaxVLAN = 4094
)

// TerminalRecord is one ONU to provision.
type TerminalRecord struct {
	// Serial is the ONU serial number, compared case-sensitively
	// Format: 4 letters + 8 hex digits (e.g., ZTEGC0FFEE01)
	Serial string `json:"serial"`

	// Name is the subscriber label written to the ONU interface.
	// Empty means the serial is used.
	Name string `json:"name,omitempty"`

	// VLAN is the service VLAN (1-4094)
	VLAN int `json:"vlan"`
}

// DisplayName returns the name written to the device.
func (r TerminalRecord) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return r.Serial
	}
	return r.Name
}

// Validate checks the record before any device interaction.
func (r TerminalRecord) Validate() error {
	if strings.TrimSpace(r.Serial) == "" {
		return fmt.Errorf("serial is required")
	}
	if strings.ContainsAny(r.Serial, " \t\r\n") {
		return fmt.Errorf("serial %q contains whitespace", r.Serial)
	}
	if r.VLAN < MinVLAN || r.VLAN > MaxVLAN {
		return fmt.Errorf("vlan %d out of range %d-%d", r.VLAN, MinVLAN, MaxVLAN)
	}
	if strings.ContainsAny(r.Name, "\r\n") {
		return fmt.Errorf("name for %s contains a line break", r.Serial)
	}
	return nil
}

// PortAddress locates a PON port as slot/card/port.
type PortAddress struct {
	Slot int `json:"slot"`
	Card int `json:"card"`
	Port int `json:"port"`
}

// ParsePortAddress decodes "S/C/P". Exactly three non-empty numeric
// components are required.
func ParsePortAddress(s string) (PortAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return PortAddress{}, fmt.Errorf("invalid port address %q: want slot/card/port", s)
	}

	var nums [3]int
	for i, p := range parts {
		if p == "" {
			return PortAddress{}, fmt.Errorf("invalid port address %q: empty component", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return PortAddress{}, fmt.Errorf("invalid port address %q: component %q is not a number", s, p)
		}
		nums[i] = n
	}

	return PortAddress{Slot: nums[0], Card: nums[1], Port: nums[2]}, nil
}

// String returns "S/C/P".
func (p PortAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Slot, p.Card, p.Port)
}

// OLTInterface is the PON port interface name, e.g. gpon_olt-1/2/3.
func (p PortAddress) OLTInterface() string {
	return "gpon_olt-" + p.String()
}

// ONUInterface is the ONU interface name, e.g. gpon_onu-1/2/3:5.
func (p PortAddress) ONUInterface(id int) string {
	return fmt.Sprintf("gpon_onu-%s:%d", p.String(), id)
}

// VPortInterface is the virtual port interface name, e.g. vport-1/2/3.5:1.
func (p PortAddress) VPortInterface(id, vport int) string {
	return fmt.Sprintf("vport-%s.%d:%d", p.String(), id, vport)
}
