package zte

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// interfacePrefixes covers both naming schemes seen across C300/C600 firmware
var interfacePrefixes = []string{"gpon_onu-", "gpon-onu_", "gpon_olt-", "gpon-olt_"}

// noInformation is printed instead of an empty table
const noInformation = "No related information"

// UnconfiguredONU is an ONU waiting for authorization on a PON port
type UnconfiguredONU struct {
	Port   model.PortAddress
	Serial string
}

// Scanner reads terminal state off the OLT. Every call issues a fresh command;
// nothing is cached between calls.
type Scanner struct {
	sess Runner
	opts Options
	log  logrus.FieldLogger
}

// NewScanner creates a scanner over sess
func NewScanner(sess Runner, opts Options) *Scanner {
	return &Scanner{sess: sess, opts: opts, log: opts.logger()}
}

// FindOccupiedIdentifiers returns the ONU IDs allocated on port
func (s *Scanner) FindOccupiedIdentifiers(ctx context.Context, port model.PortAddress) (map[int]struct{}, error) {
	out, err := s.run(ctx, fmt.Sprintf(CmdShowState, port.OLTInterface()))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", port, err)
	}

	occupied, anomalies := ParseOccupied(out, s.opts.OccupiedMarkers)
	for _, line := range anomalies {
		s.log.WithFields(logrus.Fields{
			"port": port.String(),
			"line": line,
		}).Warn(types.ErrParseAnomaly.Error())
	}
	return occupied, nil
}

// NextFreeIdentifier scans port and returns the smallest unused ONU ID
func (s *Scanner) NextFreeIdentifier(ctx context.Context, port model.PortAddress) (int, error) {
	occupied, err := s.FindOccupiedIdentifiers(ctx, port)
	if err != nil {
		return 0, err
	}
	id := NextFree(occupied)
	s.log.WithFields(logrus.Fields{
		"port":     port.String(),
		"occupied": sortedIDs(occupied),
		"next":     id,
	}).Debug("next free ONU ID")
	return id, nil
}

// IsOccupied reports whether id shows up on port. Used to verify a provisioning run.
func (s *Scanner) IsOccupied(ctx context.Context, port model.PortAddress, id int) (bool, error) {
	occupied, err := s.FindOccupiedIdentifiers(ctx, port)
	if err != nil {
		return false, err
	}
	_, ok := occupied[id]
	return ok, nil
}

// Locate finds the PON port an already authorized ONU is registered on.
// A nil port with a nil error means the serial is not provisioned.
func (s *Scanner) Locate(ctx context.Context, serial string) (*model.PortAddress, error) {
	out, err := s.run(ctx, CmdShowBaseinfo)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", serial, err)
	}
	return s.findSerial(out, serial), nil
}

// Discover finds the PON port an unconfigured ONU is waiting on
func (s *Scanner) Discover(ctx context.Context, serial string) (*model.PortAddress, error) {
	out, err := s.run(ctx, CmdShowUncfg)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", serial, err)
	}
	return s.findSerial(out, serial), nil
}

// run sends a read-only command and turns a rejection into a DeviceError
func (s *Scanner) run(ctx context.Context, cmd string) (string, error) {
	out, err := s.sess.RunCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	if common.FirstMarker(out, s.opts.ErrorMarkers) != "" {
		return "", TranslateError(0, cmd, out)
	}
	return out, nil
}

func (s *Scanner) findSerial(out, serial string) *model.PortAddress {
	port, anomalies := ParseLocation(out, serial)
	for _, line := range anomalies {
		s.log.WithFields(logrus.Fields{
			"serial": serial,
			"line":   line,
		}).Warn(types.ErrParseAnomaly.Error())
	}
	return port
}

// ListUnconfigured returns every ONU waiting for authorization
func (s *Scanner) ListUnconfigured(ctx context.Context) ([]UnconfiguredONU, error) {
	out, err := s.run(ctx, CmdShowUncfg)
	if err != nil {
		return nil, fmt.Errorf("list unconfigured: %w", err)
	}
	return ParseUnconfigured(out), nil
}

// ParseOccupied extracts ONU IDs from "show gpon onu state" output. Lines
// carrying one of the markers must start with "S/C/P:ID"; those that don't
// are returned as anomalies.
func ParseOccupied(output string, markers []string) (map[int]struct{}, []string) {
	occupied := make(map[int]struct{})
	var anomalies []string

	for _, line := range common.Lines(output) {
		if common.FirstMarker(line, markers) == "" {
			continue
		}
		fields := strings.Fields(line)
		idx := strings.LastIndex(fields[0], ":")
		if idx < 0 {
			anomalies = append(anomalies, line)
			continue
		}
		id, err := strconv.Atoi(fields[0][idx+1:])
		if err != nil || id < 1 {
			anomalies = append(anomalies, line)
			continue
		}
		occupied[id] = struct{}{}
	}

	return occupied, anomalies
}

// NextFree returns the smallest positive integer not in occupied
func NextFree(occupied map[int]struct{}) int {
	id := 1
	for {
		if _, taken := occupied[id]; !taken {
			return id
		}
		id++
	}
}

// ParseLocation returns the port of the first line listing serial as a field
// (bare or as "SN:<serial>"). The leading token of that line is an interface
// name such as gpon_olt-1/2/3 or gpon_onu-1/2/3:5.
func ParseLocation(output, serial string) (*model.PortAddress, []string) {
	if strings.Contains(output, noInformation) {
		return nil, nil
	}

	var anomalies []string
	for _, line := range common.Lines(output) {
		if !common.HasField(line, serial, "SN:") {
			continue
		}
		port, err := parseInterfaceToken(strings.Fields(line)[0])
		if err != nil {
			anomalies = append(anomalies, line)
			continue
		}
		return &port, anomalies
	}
	return nil, anomalies
}

// ParseRegistration returns the port and ONU ID serial is authorized at in
// "show gpon onu baseinfo" output.
func ParseRegistration(output, serial string) (model.PortAddress, int, bool) {
	if strings.Contains(output, noInformation) {
		return model.PortAddress{}, 0, false
	}
	for _, line := range common.Lines(output) {
		if !common.HasField(line, serial, "SN:") {
			continue
		}
		token := strings.Fields(line)[0]
		idx := strings.LastIndex(token, ":")
		if idx < 0 {
			continue
		}
		id, err := strconv.Atoi(token[idx+1:])
		if err != nil {
			continue
		}
		port, err := parseInterfaceToken(token)
		if err != nil {
			continue
		}
		return port, id, true
	}
	return model.PortAddress{}, 0, false
}

// ParseUnconfigured parses "show pon onu uncfg" output
func ParseUnconfigured(output string) []UnconfiguredONU {
	if strings.Contains(output, noInformation) {
		return nil
	}

	var list []UnconfiguredONU
	for _, line := range common.Lines(output) {
		fields := strings.Fields(line)
		if len(fields) < 2 || !hasInterfacePrefix(fields[0]) {
			continue
		}
		port, err := parseInterfaceToken(fields[0])
		if err != nil {
			continue
		}
		list = append(list, UnconfiguredONU{Port: port, Serial: strings.TrimPrefix(fields[1], "SN:")})
	}
	return list
}

func hasInterfacePrefix(token string) bool {
	for _, p := range interfacePrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

// parseInterfaceToken decodes gpon_olt-1/2/3 or gpon_onu-1/2/3:5 to 1/2/3
func parseInterfaceToken(token string) (model.PortAddress, error) {
	for _, p := range interfacePrefixes {
		if strings.HasPrefix(token, p) {
			token = strings.TrimPrefix(token, p)
			break
		}
	}
	if idx := strings.Index(token, ":"); idx >= 0 {
		token = token[:idx]
	}
	return model.ParsePortAddress(token)
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
