package mock

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

// Error texts printed by the simulated CLI
const (
	MsgInvalidInput  = "%Error 20000: Invalid input detected at '^' marker."
	MsgONUExists     = "%Error 80211: The ONU has already been authenticated."
	MsgONUIDUsed     = "%Error 80212: The ONU ID is used."
	MsgNoInformation = "No related information to show."
)

var (
	oltIfRegex   = regexp.MustCompile(`^interface gpon_olt-(\d+/\d+/\d+)$`)
	onuIfRegex   = regexp.MustCompile(`^(?:interface|pon-onu-mng) gpon_onu-(\d+/\d+/\d+):(\d+)$`)
	vportIfRegex = regexp.MustCompile(`^interface vport-(\d+/\d+/\d+)\.(\d+):\d+$`)
	onuAddRegex  = regexp.MustCompile(`^onu (\d+) type (\S+) sn (\S+)$`)
	stateRegex   = regexp.MustCompile(`^show gpon onu state gpon_olt-(\S+)$`)
	vlanRegex    = regexp.MustCompile(`vlan (\d+)$`)
)

type mode int

const (
	modeExec mode = iota
	modeConfig
	modeOLTInterface
	modeONUInterface
	modeONUMng
	modeVPort
)

// ONU is a terminal registered on the simulated OLT
type ONU struct {
	Port         model.PortAddress
	ID           int
	Serial       string
	Type         string
	Name         string
	VLAN         int
	TCONTProfile string
	ServicePort  bool
}

type unconfigured struct {
	Port   model.PortAddress
	Serial string
}

// OLT simulates the state and CLI of a ZTE C-series OLT.
// It outlives the connections opened against it, so reconnects see the same state.
type OLT struct {
	mu         sync.Mutex
	onus       map[model.PortAddress]map[int]*ONU
	uncfg      []unconfigured
	cmdHistory []string
	failOn     map[string]string
	dropAfter  int
	refuseOpen int
	latency    time.Duration
	conns      []*Conn
	opens      int
}

// NewOLT creates an empty simulated OLT
func NewOLT() *OLT {
	return &OLT{
		onus:   make(map[model.PortAddress]map[int]*ONU),
		failOn: make(map[string]string),
	}
}

// AddONU registers an already provisioned ONU
func (o *OLT) AddONU(port model.PortAddress, id int, serial, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addONU(&ONU{Port: port, ID: id, Serial: serial, Type: "Bridge", Name: name})
}

func (o *OLT) addONU(onu *ONU) {
	if o.onus[onu.Port] == nil {
		o.onus[onu.Port] = make(map[int]*ONU)
	}
	o.onus[onu.Port][onu.ID] = onu
	o.removeUnconfigured(onu.Serial)
}

// AddUnconfigured makes an ONU show up in the unconfigured list of port
func (o *OLT) AddUnconfigured(port model.PortAddress, serial string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uncfg = append(o.uncfg, unconfigured{Port: port, Serial: serial})
}

// GenerateUnconfigured adds n random ZTE serials waiting on port
func (o *OLT) GenerateUnconfigured(port model.PortAddress, n int) []string {
	serials := make([]string, 0, n)
	//nolint:gosec // mock data
	for i := 0; i < n; i++ {
		serial := fmt.Sprintf("ZTEG%08X", rand.Uint32())
		o.AddUnconfigured(port, serial)
		serials = append(serials, serial)
	}
	return serials
}

// FailOn makes any command containing substr answer with response
func (o *OLT) FailOn(substr, response string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failOn[substr] = response
}

// DropAfter makes the nth following command find the connection reset
func (o *OLT) DropAfter(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropAfter = n
}

// RefuseOpens makes the next n Open calls fail
func (o *OLT) RefuseOpens(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refuseOpen = n
}

// SetLatency delays every command
func (o *OLT) SetLatency(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latency = d
}

// ONU returns the ONU registered at port/id
func (o *OLT) ONU(port model.PortAddress, id int) (ONU, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	onu, ok := o.onus[port][id]
	if !ok {
		return ONU{}, false
	}
	return *onu, true
}

// FindSerial returns where serial is registered
func (o *OLT) FindSerial(serial string) (ONU, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ids := range o.onus {
		for _, onu := range ids {
			if onu.Serial == serial {
				return *onu, true
			}
		}
	}
	return ONU{}, false
}

// GetCommandHistory returns every command received, in order
func (o *OLT) GetCommandHistory() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	history := make([]string, len(o.cmdHistory))
	copy(history, o.cmdHistory)
	return history
}

// Opens returns how many connections were opened
func (o *OLT) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Dialer returns a types.Dialer producing connections to this OLT
func (o *OLT) Dialer() types.Dialer {
	return func(creds types.DeviceCredentials) (types.Transport, error) {
		return &Conn{olt: o}, nil
	}
}

// Conn is one simulated shell channel to the OLT
type Conn struct {
	olt   *OLT
	open  bool
	dead  bool
	mode  mode
	port  model.PortAddress
	onuID int
}

// Open simulates login
func (c *Conn) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := c.olt
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.refuseOpen > 0 {
		o.refuseOpen--
		return fmt.Errorf("%w: connection refused", types.ErrConnection)
	}
	o.opens++
	o.conns = append(o.conns, c)
	c.open = true
	c.dead = false
	c.mode = modeExec
	return nil
}

// Close is idempotent
func (c *Conn) Close() error {
	c.olt.mu.Lock()
	defer c.olt.mu.Unlock()
	c.open = false
	return nil
}

// IsAlive reports whether the connection is usable
func (c *Conn) IsAlive() bool {
	c.olt.mu.Lock()
	defer c.olt.mu.Unlock()
	return c.open && !c.dead
}

// KillAll drops every open connection, as a link flap would
func (o *OLT) KillAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range o.conns {
		c.dead = true
	}
}

// Kill simulates a dropped connection
func (c *Conn) Kill() {
	c.olt.mu.Lock()
	defer c.olt.mu.Unlock()
	c.dead = true
}

// Execute runs one command against the simulated CLI
func (c *Conn) Execute(ctx context.Context, command string) (string, error) {
	o := c.olt
	o.mu.Lock()
	latency := o.latency
	o.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !c.open || c.dead {
		return "", types.ErrSessionInactive
	}

	if o.dropAfter > 0 {
		o.dropAfter--
		if o.dropAfter == 0 {
			c.dead = true
			return "", fmt.Errorf("%w: connection reset by peer", types.ErrSessionInactive)
		}
	}

	o.recordCommand(command)

	for substr, response := range o.failOn {
		if strings.Contains(command, substr) {
			return response, nil
		}
	}

	return c.handle(strings.TrimSpace(command)), nil
}

func (o *OLT) recordCommand(cmd string) {
	o.cmdHistory = append(o.cmdHistory, cmd)
}

// handle dispatches one command; o.mu is held
func (c *Conn) handle(cmd string) string {
	o := c.olt

	switch {
	case cmd == "", cmd == "terminal length 0":
		return ""
	case stateRegex.MatchString(cmd):
		return o.stateOutput(stateRegex.FindStringSubmatch(cmd)[1])
	case cmd == "show gpon onu baseinfo":
		return o.baseinfoOutput()
	case cmd == "show pon onu uncfg":
		return o.uncfgOutput()
	case cmd == "end":
		c.mode = modeExec
		return ""
	case cmd == "exit":
		switch c.mode {
		case modeExec:
			return ""
		case modeConfig:
			c.mode = modeExec
		default:
			c.mode = modeConfig
		}
		return ""
	}

	switch c.mode {
	case modeExec:
		if cmd == "configure terminal" {
			c.mode = modeConfig
			return "Enter configuration commands, one per line. End with CNTL/Z."
		}
	case modeConfig:
		if m := oltIfRegex.FindStringSubmatch(cmd); m != nil {
			port, _ := model.ParsePortAddress(m[1])
			c.mode, c.port = modeOLTInterface, port
			return ""
		}
		if m := onuIfRegex.FindStringSubmatch(cmd); m != nil {
			port, _ := model.ParsePortAddress(m[1])
			id, _ := strconv.Atoi(m[2])
			if _, ok := o.onus[port][id]; !ok {
				return "%Error 20031: The ONU does not exist."
			}
			c.port, c.onuID = port, id
			if strings.HasPrefix(cmd, "pon-onu-mng") {
				c.mode = modeONUMng
			} else {
				c.mode = modeONUInterface
			}
			return ""
		}
		if m := vportIfRegex.FindStringSubmatch(cmd); m != nil {
			port, _ := model.ParsePortAddress(m[1])
			id, _ := strconv.Atoi(m[2])
			if _, ok := o.onus[port][id]; !ok {
				return "%Error 20031: The interface does not exist."
			}
			c.mode, c.port, c.onuID = modeVPort, port, id
			return ""
		}
	case modeOLTInterface:
		if m := onuAddRegex.FindStringSubmatch(cmd); m != nil {
			id, _ := strconv.Atoi(m[1])
			if _, used := o.onus[c.port][id]; used {
				return MsgONUIDUsed
			}
			for _, ids := range o.onus {
				for _, onu := range ids {
					if onu.Serial == m[3] {
						return MsgONUExists
					}
				}
			}
			o.addONU(&ONU{Port: c.port, ID: id, Type: m[2], Serial: m[3]})
			return ""
		}
	case modeONUInterface:
		onu := o.onus[c.port][c.onuID]
		switch {
		case strings.HasPrefix(cmd, "name "):
			onu.Name = strings.TrimPrefix(cmd, "name ")
			return ""
		case strings.HasPrefix(cmd, "tcont 1 name 1 profile "):
			onu.TCONTProfile = strings.TrimPrefix(cmd, "tcont 1 name 1 profile ")
			return ""
		case strings.HasPrefix(cmd, "vport-map "):
			onu.VLAN = lastVLAN(cmd)
			return ""
		case cmd == "vport-mode manual", strings.HasPrefix(cmd, "gemport "), strings.HasPrefix(cmd, "vport "):
			return ""
		}
	case modeONUMng:
		if strings.HasPrefix(cmd, "service ") || strings.HasPrefix(cmd, "vlan port ") {
			return ""
		}
	case modeVPort:
		if strings.HasPrefix(cmd, "service-port ") {
			o.onus[c.port][c.onuID].ServicePort = true
			return ""
		}
	}

	return MsgInvalidInput
}

func lastVLAN(cmd string) int {
	m := vlanRegex.FindStringSubmatch(cmd)
	if m == nil {
		return 0
	}
	v, _ := strconv.Atoi(m[1])
	return v
}

func (o *OLT) sortedONUs(filter func(*ONU) bool) []*ONU {
	var list []*ONU
	for _, ids := range o.onus {
		for _, onu := range ids {
			if filter == nil || filter(onu) {
				list = append(list, onu)
			}
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Port != list[j].Port {
			return list[i].Port.String() < list[j].Port.String()
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (o *OLT) stateOutput(portArg string) string {
	port, err := model.ParsePortAddress(portArg)
	if err != nil {
		return MsgInvalidInput
	}
	list := o.sortedONUs(func(onu *ONU) bool { return onu.Port == port })
	if len(list) == 0 {
		return MsgNoInformation
	}

	var sb strings.Builder
	sb.WriteString("OnuIndex   Admin State  OMCC State  Phase State  Channel\n")
	sb.WriteString("--------------------------------------------------------------\n")
	for _, onu := range list {
		fmt.Fprintf(&sb, "%s:%-6d enable       enable      working      1(GPON)\n", port, onu.ID)
	}
	fmt.Fprintf(&sb, "ONU Number: %d/%d", len(list), len(list))
	return sb.String()
}

func (o *OLT) baseinfoOutput() string {
	list := o.sortedONUs(nil)
	if len(list) == 0 {
		return MsgNoInformation
	}

	var sb strings.Builder
	sb.WriteString("OnuIndex                 Type          Mode        AuthInfo                State\n")
	sb.WriteString("----------------------------------------------------------------------------------\n")
	for _, onu := range list {
		fmt.Fprintf(&sb, "%-24s %-13s sn          SN:%-20s ready\n", onu.Port.ONUInterface(onu.ID), onu.Type, onu.Serial)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o *OLT) uncfgOutput() string {
	if len(o.uncfg) == 0 {
		return MsgNoInformation
	}

	var sb strings.Builder
	sb.WriteString("OnuIndex                 Sn                  State\n")
	sb.WriteString("---------------------------------------------------------------------\n")
	for _, u := range o.uncfg {
		fmt.Fprintf(&sb, "%-24s %-19s unknown\n", u.Port.OLTInterface(), u.Serial)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (o *OLT) removeUnconfigured(serial string) {
	kept := o.uncfg[:0]
	for _, u := range o.uncfg {
		if u.Serial != serial {
			kept = append(kept, u)
		}
	}
	o.uncfg = kept
}

// Ensure Conn implements Transport
var _ types.Transport = (*Conn)(nil)
