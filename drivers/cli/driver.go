package cli

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"github.com/nanoncore/nano-onuprov/types"
)

// Algorithm lists include legacy entries that older ZTE C300/C320 firmware
// still negotiates.
var (
	keyExchanges = []string{
		"curve25519-sha256",
		"ecdh-sha2-nistp256",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group1-sha1",
	}
	ciphers = []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-cbc",
		"3des-cbc",
	}
	macs = []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-256",
		"hmac-sha1",
		"hmac-sha1-96",
	}
	hostKeyAlgorithms = []string{
		"ssh-ed25519",
		"ecdsa-sha2-nistp256",
		"rsa-sha2-256",
		"rsa-sha2-512",
		"ssh-rsa",
	}
)

// Driver is the SSH CLI transport. One Driver is one shell channel; the
// session manager builds a new Driver for every reconnect.
type Driver struct {
	creds         types.DeviceCredentials
	sshClient     *ssh.Client
	expectSession *ExpectSession
	dead          atomic.Bool
}

// NewDriver creates a new CLI transport
func NewDriver(creds types.DeviceCredentials) (*Driver, error) {
	if creds.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if creds.Port < 0 || creds.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", creds.Port)
	}

	return &Driver{creds: creds.WithDefaults()}, nil
}

// Dial is a types.Dialer for the SSH transport
func Dial(creds types.DeviceCredentials) (types.Transport, error) {
	return NewDriver(creds)
}

// Open establishes the SSH connection and waits for the CLI prompt
func (d *Driver) Open(ctx context.Context) error {
	if d.IsConnected() {
		return nil
	}

	// Some OLTs require keyboard-interactive instead of password
	keyboardInteractive := ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = d.creds.Password
		}
		return answers, nil
	})

	sshConfig := &ssh.ClientConfig{
		User: d.creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(d.creds.Password),
			keyboardInteractive,
		},
		Config: ssh.Config{
			KeyExchanges: keyExchanges,
			Ciphers:      ciphers,
			MACs:         macs,
		},
		HostKeyAlgorithms: hostKeyAlgorithms,
		Timeout:           d.creds.Timeout,
		HostKeyCallback:   ssh.InsecureIgnoreHostKey(), //nolint:gosec // OLT host keys are not managed
	}

	target := fmt.Sprintf("%s:%d", d.creds.Address, d.creds.Port)

	client, err := dialContext(ctx, target, sshConfig)
	if err != nil {
		return fmt.Errorf("%w: failed to dial SSH %s: %v", types.ErrConnection, target, err)
	}

	expectSession, err := NewExpectSession(ExpectSessionConfig{
		SSHClient:    client,
		Vendor:       string(d.creds.Vendor),
		Timeout:      d.creds.Timeout,
		DisablePager: true,
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %v", types.ErrConnection, err)
	}

	d.sshClient = client
	d.expectSession = expectSession
	d.dead.Store(false)

	go func() {
		_ = client.Wait()
		d.dead.Store(true)
	}()

	return nil
}

// dialContext is ssh.Dial bounded by ctx as well as the config timeout
func dialContext(ctx context.Context, target string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ssh.Dial("tcp", target, cfg)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close closes the SSH connection
func (d *Driver) Close() error {
	if d.expectSession != nil {
		_ = d.expectSession.Close()
		d.expectSession = nil
	}
	if d.sshClient != nil {
		err := d.sshClient.Close()
		d.sshClient = nil
		return err
	}
	return nil
}

// IsConnected returns true if Open succeeded and Close was not called
func (d *Driver) IsConnected() bool {
	return d.sshClient != nil && d.expectSession != nil
}

// IsAlive checks local state and sends a no-reply keepalive request.
// It does not wait for the device.
func (d *Driver) IsAlive() bool {
	if !d.IsConnected() || d.dead.Load() || d.expectSession.Exited() {
		return false
	}
	_, _, err := d.sshClient.SendRequest("keepalive@openssh.com", false, nil)
	return err == nil
}

// Execute runs one command and returns its cleaned output
func (d *Driver) Execute(ctx context.Context, command string) (string, error) {
	if !d.IsAlive() {
		return "", types.ErrSessionInactive
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	output, err := d.expectSession.Execute(command)
	if err != nil {
		d.dead.Store(true)
		return output, fmt.Errorf("%w: command %q failed: %v", types.ErrSessionInactive, command, err)
	}

	return output, nil
}

// Ensure Driver implements Transport
var _ types.Transport = (*Driver)(nil)
