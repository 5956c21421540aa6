// Package zte drives ZTE C-series OLTs (C300, C320, C600) over the CLI:
// scraping terminal state and authorizing ONUs with a fixed bridge-mode
// service template.
package zte

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// CLI commands used to read device state
const (
	CmdShowState    = "show gpon onu state %s"
	CmdShowBaseinfo = "show gpon onu baseinfo"
	CmdShowUncfg    = "show pon onu uncfg"
)

// DefaultMaxIdentifier is the GPON limit of ONUs per PON port on C-series boards
const DefaultMaxIdentifier = 128

// Options holds the per-device knobs of the ZTE driver
type Options struct {
	// ONUType is the registered ONU type used in "onu N type <type> sn <serial>"
	ONUType string

	// TCONTProfile is the bandwidth profile bound to T-CONT 1
	TCONTProfile string

	// ErrorMarkers flag a rejected command when found in its output
	ErrorMarkers []string

	// OccupiedMarkers flag a state line as an allocated ONU ID
	OccupiedMarkers []string

	// MaxIdentifier caps ONU IDs per port; 0 means unbounded
	MaxIdentifier int

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// DefaultOptions returns the bridge template used in production
func DefaultOptions() Options {
	return Options{
		ONUType:         "Bridge",
		TCONTProfile:    "PLANO-1G",
		ErrorMarkers:    []string{"Error", "%Invalid", "Invalid input", "%Unknown command"},
		OccupiedMarkers: []string{"enable", "disable"},
		MaxIdentifier:   DefaultMaxIdentifier,
	}
}

// WithMetadata applies per-device overrides from a device profile
func (o Options) WithMetadata(md map[string]string) Options {
	o.ONUType = common.MetadataStringOr(md, o.ONUType, "onu_type", "zte.onu_type")
	o.TCONTProfile = common.MetadataStringOr(md, o.TCONTProfile, "tcont_profile", "zte.tcont_profile")
	o.MaxIdentifier = common.MetadataIntOr(md, o.MaxIdentifier, "max_onu_id", "zte.max_onu_id")
	return o
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Runner delivers read-only commands, reconnecting as needed
type Runner interface {
	RunCommand(ctx context.Context, command string) (string, error)
}

// SequenceRunner is what a multi-command configuration sequence needs from a session
type SequenceRunner interface {
	Ensure(ctx context.Context) error
	Exec(ctx context.Context, command string) (string, error)
	Generation() int
	MaxRetries() int
}
