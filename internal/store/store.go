// Package store keeps named OLT profiles and, on the sqlite backend, a
// journal of batch runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// Profile is a named OLT and the credentials used to reach it
type Profile struct {
	Name          string            `json:"nome"`
	Host          string            `json:"ip"`
	Port          int               `json:"port"`
	Username      string            `json:"user"`
	Password      string            `json:"password"`
	Vendor        types.Vendor      `json:"vendor,omitempty"`
	SNMPCommunity string            `json:"snmp_community,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Normalize trims fields and applies the default port and vendor
func (p Profile) Normalize() Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Host = strings.TrimSpace(p.Host)
	p.Username = strings.TrimSpace(p.Username)
	if p.Port == 0 {
		p.Port = types.DefaultSSHPort
	}
	if p.Vendor == "" {
		p.Vendor = types.VendorZTE
	}
	return p
}

// Validate checks a normalized profile
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Host == "" && p.Vendor != types.VendorMock {
		return fmt.Errorf("%w: host is required for %s", ErrInvalidProfile, p.Name)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidProfile, p.Port)
	}
	return nil
}

// Credentials converts the profile for the transport layer
func (p Profile) Credentials() types.DeviceCredentials {
	return types.DeviceCredentials{
		Name:          p.Name,
		Vendor:        p.Vendor,
		Address:       p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Password:      p.Password,
		SNMPCommunity: p.SNMPCommunity,
		Metadata:      p.Metadata,
	}.WithDefaults()
}

// Store manages device profiles
type Store interface {
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, name string) (Profile, error)
	Add(ctx context.Context, p Profile) error
	Remove(ctx context.Context, name string) error
	Close() error
}

// RunSummary is one journal row
type RunSummary struct {
	RunID       string
	Device      string
	StartedAt   string
	Total       int
	Provisioned int
	Skipped     int
	Failed      int
	Incomplete  bool
}

// Journal records finished batch runs
type Journal interface {
	SaveRun(ctx context.Context, res *model.BatchResult) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Open returns the store for backend ("json" or "sqlite") at path
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "json":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
