// Package snmp reads the system group of an OLT. Provisioning is CLI-only;
// SNMP backs the connection test so operators can check community and
// identity of a device before running a batch.
package snmp

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// Driver is a gosnmp client bound to one device
type Driver struct {
	creds types.DeviceCredentials
	snmp  *gosnmp.GoSNMP
}

// NewDriver creates an unconnected SNMP driver
func NewDriver(creds types.DeviceCredentials) (*Driver, error) {
	if creds.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	port := common.MetadataIntOr(creds.Metadata, types.DefaultSNMPPort, "snmp_port")
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid snmp port %d", port)
	}
	creds.Metadata = cloneMetadata(creds.Metadata)
	creds.Metadata["snmp_port"] = fmt.Sprint(port)

	if creds.Timeout == 0 {
		creds.Timeout = 5 * time.Second
	}
	if creds.SNMPCommunity == "" {
		creds.SNMPCommunity = "public"
	}

	return &Driver{creds: creds}, nil
}

// Connect opens the UDP socket. SNMP is connectionless so this does not prove
// the agent answers; Probe does.
func (d *Driver) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	version := gosnmp.Version2c
	switch common.MetadataStringOr(d.creds.Metadata, "2c", "snmp_version") {
	case "1":
		version = gosnmp.Version1
	case "3":
		version = gosnmp.Version3
	}

	port := common.MetadataIntOr(d.creds.Metadata, types.DefaultSNMPPort, "snmp_port")
	client := &gosnmp.GoSNMP{
		Target:    d.creds.Address,
		Port:      uint16(port), //nolint:gosec // validated in NewDriver
		Community: d.creds.SNMPCommunity,
		Version:   version,
		Timeout:   d.creds.Timeout,
		Retries:   1,
		Context:   ctx,
	}

	if version == gosnmp.Version3 {
		client.SecurityModel = gosnmp.UserSecurityModel
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 d.creds.Username,
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: d.creds.Password,
			PrivacyProtocol:          gosnmp.AES,
			PrivacyPassphrase:        d.creds.Password,
		}
		client.MsgFlags = gosnmp.AuthPriv
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("%w: snmp %s: %v", types.ErrConnection, d.creds.Address, err)
	}
	d.snmp = client
	return nil
}

// Close releases the socket
func (d *Driver) Close() error {
	if d.snmp == nil || d.snmp.Conn == nil {
		return nil
	}
	err := d.snmp.Conn.Close()
	d.snmp = nil
	return err
}

// IsConnected returns true after a successful Connect
func (d *Driver) IsConnected() bool {
	return d.snmp != nil
}

// Probe queries sysDescr, sysName and sysUpTime in one request
func (d *Driver) Probe(ctx context.Context) (*types.EquipmentStatus, error) {
	start := time.Now()
	results, err := d.BulkGetSNMP(ctx, []string{common.OIDSysDescr, common.OIDSysName, common.OIDSysUpTime})
	if err != nil {
		return nil, err
	}
	status := StatusFromResults(results)
	status.Latency = time.Since(start)
	return status, nil
}

// StatusFromResults maps system group values onto an EquipmentStatus
func StatusFromResults(results map[string]interface{}) *types.EquipmentStatus {
	status := &types.EquipmentStatus{Metadata: map[string]interface{}{}}

	if v, ok := common.GetSNMPResult(results, common.OIDSysDescr); ok {
		status.SysDescr, _ = common.ParseStringSNMPValue(v)
	}
	if v, ok := common.GetSNMPResult(results, common.OIDSysName); ok {
		status.SysName, _ = common.ParseStringSNMPValue(v)
	}
	if v, ok := common.GetSNMPResult(results, common.OIDSysUpTime); ok {
		if ticks, ok := common.ParseIntSNMPValue(v); ok {
			status.UptimeSeconds = common.TimeTicksToSeconds(ticks)
		}
	}
	status.IsReachable = status.SysDescr != "" || status.SysName != ""
	return status
}

// GetSNMP implements types.SNMPExecutor - retrieves a single SNMP value
func (d *Driver) GetSNMP(ctx context.Context, oid string) (interface{}, error) {
	results, err := d.BulkGetSNMP(ctx, []string{oid})
	if err != nil {
		return nil, err
	}
	v, ok := common.GetSNMPResult(results, oid)
	if !ok {
		return nil, fmt.Errorf("no result for OID %s", oid)
	}
	return v, nil
}

// WalkSNMP implements types.SNMPExecutor - performs SNMP walk
func (d *Driver) WalkSNMP(ctx context.Context, oid string) (map[string]interface{}, error) {
	if !d.IsConnected() {
		return nil, types.ErrSessionInactive
	}
	d.snmp.Context = ctx

	results := make(map[string]interface{})
	err := d.snmp.Walk(oid, func(pdu gosnmp.SnmpPDU) error {
		// index relative to the walked subtree
		index := pdu.Name
		if len(pdu.Name) > len(oid)+1 {
			index = pdu.Name[len(oid)+1:]
		}
		results[index] = pduValue(pdu)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SNMP WALK failed: %w", err)
	}
	return results, nil
}

// BulkGetSNMP implements types.SNMPExecutor - retrieves multiple OIDs
func (d *Driver) BulkGetSNMP(ctx context.Context, oids []string) (map[string]interface{}, error) {
	if !d.IsConnected() {
		return nil, types.ErrSessionInactive
	}
	d.snmp.Context = ctx

	result, err := d.snmp.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("SNMP GET failed: %w", err)
	}

	results := make(map[string]interface{}, len(result.Variables))
	for _, variable := range result.Variables {
		results[variable.Name] = pduValue(variable)
	}
	return results, nil
}

// pduValue normalizes gosnmp values to string, int64 or uint64
func pduValue(pdu gosnmp.SnmpPDU) interface{} {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b)
		}
	case gosnmp.Integer:
		if v, ok := pdu.Value.(int); ok {
			return int64(v)
		}
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks:
		if v, ok := pdu.Value.(uint32); ok {
			return uint64(v)
		}
		if v, ok := pdu.Value.(uint); ok {
			return uint64(v)
		}
	case gosnmp.Counter64:
		if v, ok := pdu.Value.(uint64); ok {
			return v
		}
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null:
		return nil
	}
	return pdu.Value
}

func cloneMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	return out
}

// Ensure Driver implements SNMPExecutor
var _ types.SNMPExecutor = (*Driver)(nil)
