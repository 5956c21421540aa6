// Package session owns the single CLI channel a batch runs over. It hides
// reconnects from callers and reports them through a generation counter so
// multi-command sequences can tell when device-side cursor state was lost.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

// Config tunes reconnect and keep-alive behavior
type Config struct {
	// MaxRetries bounds reconnect attempts per Ensure call
	MaxRetries int

	// RetryBackoff is slept before every reconnect attempt
	RetryBackoff time.Duration

	// KeepAliveEvery sends KeepAliveCommand after that many commands; 0 disables
	KeepAliveEvery int

	// KeepAliveCommand is the innocuous line used as keep-alive
	KeepAliveCommand string

	// ResetCommand returns the CLI to exec mode
	ResetCommand string

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger

	// Trace receives every command round trip
	Trace func(model.TraceEntry)
}

// DefaultConfig returns the settings the migration scripts used in production
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryBackoff:     5 * time.Second,
		KeepAliveEvery:   25,
		KeepAliveCommand: "",
		ResetCommand:     "end",
	}
}

// Manager is a reconnecting wrapper around one types.Transport.
// It is not safe for concurrent use.
type Manager struct {
	creds      types.DeviceCredentials
	dial       types.Dialer
	cfg        Config
	log        logrus.FieldLogger
	transport  types.Transport
	generation int
	reconnects int
	sinceAlive int
	serial     string
	closed     bool

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager builds an unopened session
func NewManager(creds types.DeviceCredentials, dial types.Dialer, cfg Config) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		creds: creds.WithDefaults(),
		dial:  dial,
		cfg:   cfg,
		log:   logger.WithField("device", creds.Name),
		sleep: sleepContext,
	}
}

// Open connects for the first time. Failure means the batch cannot run.
func (m *Manager) Open(ctx context.Context) error {
	if m.closed {
		return fmt.Errorf("session for %s already closed", m.creds.Name)
	}
	t, err := m.connect(ctx)
	if err != nil {
		return err
	}
	m.transport = t
	m.log.WithField("address", m.creds.Address).Info("session opened")
	return nil
}

func (m *Manager) connect(ctx context.Context) (types.Transport, error) {
	t, err := m.dial(m.creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConnection, err)
	}
	if err := t.Open(ctx); err != nil {
		_ = t.Close()
		if errors.Is(err, types.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrConnection, err)
	}
	return t, nil
}

// Ensure makes sure the transport is alive, reconnecting up to MaxRetries times.
func (m *Manager) Ensure(ctx context.Context) error {
	if m.closed {
		return types.ErrSessionInactive
	}

	for attempt := 0; ; attempt++ {
		if m.transport != nil && m.transport.IsAlive() {
			return nil
		}
		if attempt == m.cfg.MaxRetries {
			return fmt.Errorf("%w: %s still down after %d reconnect attempts", types.ErrTransportExhausted, m.creds.Name, attempt)
		}
		if err := m.reconnect(ctx, attempt+1); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			m.log.WithError(err).WithField("attempt", attempt+1).Warn("reconnect failed")
		}
	}
}

func (m *Manager) reconnect(ctx context.Context, attempt int) error {
	if m.transport != nil {
		_ = m.transport.Close()
		m.transport = nil
	}

	m.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"backoff": m.cfg.RetryBackoff,
	}).Warn("connection lost, reconnecting")

	if err := m.sleep(ctx, m.cfg.RetryBackoff); err != nil {
		return err
	}

	m.reconnects++
	t, err := m.connect(ctx)
	if err != nil {
		return err
	}

	m.transport = t
	m.generation++
	m.sinceAlive = 0
	m.log.WithField("generation", m.generation).Info("reconnected")
	return nil
}

// Exec sends one command on the current transport without reconnecting.
// A transport failure invalidates the channel; the next Ensure reconnects.
func (m *Manager) Exec(ctx context.Context, command string) (string, error) {
	if m.closed || m.transport == nil {
		return "", types.ErrSessionInactive
	}

	out, err := m.transport.Execute(ctx, command)
	m.record(command, out, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		m.log.WithError(err).WithField("command", command).Warn("command failed on transport")
		_ = m.transport.Close()
		m.transport = nil
		if !errors.Is(err, types.ErrSessionInactive) {
			err = fmt.Errorf("%w: %v", types.ErrSessionInactive, err)
		}
		return out, err
	}

	m.sinceAlive++
	m.maybeKeepAlive(ctx)
	return out, nil
}

// RunCommand ensures a live transport then sends command. Read-only commands
// are redelivered after a transport failure, at most MaxRetries times.
func (m *Manager) RunCommand(ctx context.Context, command string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if err := m.Ensure(ctx); err != nil {
			return "", err
		}
		out, err := m.Exec(ctx, command)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, types.ErrSessionInactive) {
			return out, err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", types.ErrTransportExhausted, lastErr)
}

func (m *Manager) maybeKeepAlive(ctx context.Context) {
	if m.cfg.KeepAliveEvery <= 0 || m.sinceAlive < m.cfg.KeepAliveEvery {
		return
	}
	m.sinceAlive = 0
	if _, err := m.transport.Execute(ctx, m.cfg.KeepAliveCommand); err != nil {
		m.log.WithError(err).Warn("keep-alive failed")
		return
	}
	m.log.Debug("keep-alive sent")
}

// Reset returns the CLI to exec mode, ignoring the outcome
func (m *Manager) Reset(ctx context.Context) {
	if m.cfg.ResetCommand == "" || m.transport == nil || !m.transport.IsAlive() {
		return
	}
	if _, err := m.Exec(ctx, m.cfg.ResetCommand); err != nil {
		m.log.WithError(err).Debug("mode reset failed")
	}
}

// SetSerial labels subsequent trace entries with the record being processed
func (m *Manager) SetSerial(serial string) {
	m.serial = serial
}

func (m *Manager) record(command, out string, err error) {
	if m.cfg.Trace == nil {
		return
	}
	e := model.TraceEntry{
		Time:    time.Now(),
		Serial:  m.serial,
		Command: command,
		Output:  out,
	}
	if err != nil {
		e.Err = err.Error()
	}
	m.cfg.Trace(e)
}

// Generation increments on every successful reconnect
func (m *Manager) Generation() int {
	return m.generation
}

// Reconnects counts reconnect attempts, successful or not
func (m *Manager) Reconnects() int {
	return m.reconnects
}

// MaxRetries exposes the reconnect budget to sequence runners
func (m *Manager) MaxRetries() int {
	return m.cfg.MaxRetries
}

// Device returns the credentials name
func (m *Manager) Device() string {
	return m.creds.Name
}

// Close releases the transport. Safe to call more than once.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	m.log.WithField("reconnects", m.reconnects).Info("session closed")
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
