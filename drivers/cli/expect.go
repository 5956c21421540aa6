package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	expect "github.com/google/goexpect"
	"golang.org/x/crypto/ssh"

	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// DefaultPromptPattern matches common CLI prompts like "hostname#" or "hostname>"
var DefaultPromptPattern = regexp.MustCompile(`(?m)^[\w\-.\[\]()]+[#>]\s*$`)

// VendorPrompts contains vendor-specific prompt patterns.
// ZTE prompts carry the mode in parentheses: ZXAN#, ZXAN(config)#,
// ZXAN(config-if-gpon_olt-1/2/3)#, ZXAN(gpon-onu-mng)#.
var VendorPrompts = map[string]*regexp.Regexp{
	"zte": regexp.MustCompile(`(?m)^[\w\-.]+(\([\w\-/:.]+\))?[#>]\s*$`),
}

// PagerDisableCommands contains commands to disable paging per vendor
var PagerDisableCommands = map[string]string{
	"zte": "terminal length 0",
}

// ExpectSession wraps google/goexpect for OLT CLI interaction
type ExpectSession struct {
	expecter *expect.GExpect
	errCh    <-chan error
	promptRE *regexp.Regexp
	timeout  time.Duration
	vendor   string
	exited   bool
}

// ExpectSessionConfig holds configuration for creating an expect session
type ExpectSessionConfig struct {
	SSHClient    *ssh.Client
	Vendor       string
	Timeout      time.Duration
	CustomPrompt *regexp.Regexp
	DisablePager bool
}

// NewExpectSession spawns a PTY shell over client and waits for the first prompt
func NewExpectSession(cfg ExpectSessionConfig) (*ExpectSession, error) {
	if cfg.SSHClient == nil {
		return nil, fmt.Errorf("SSH client is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	promptRE := cfg.CustomPrompt
	if promptRE == nil {
		if vendorPrompt, ok := VendorPrompts[strings.ToLower(cfg.Vendor)]; ok {
			promptRE = vendorPrompt
		} else {
			promptRE = DefaultPromptPattern
		}
	}

	exp, errCh, err := expect.SpawnSSH(cfg.SSHClient, cfg.Timeout,
		expect.Verbose(false),
		expect.CheckDuration(500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn SSH expect session: %w", err)
	}

	session := &ExpectSession{
		expecter: exp,
		errCh:    errCh,
		promptRE: promptRE,
		timeout:  cfg.Timeout,
		vendor:   cfg.Vendor,
	}

	if _, _, err := exp.Expect(promptRE, cfg.Timeout); err != nil {
		_ = exp.Close()
		return nil, fmt.Errorf("failed to detect initial prompt: %w", err)
	}

	// Non-fatal: older firmware answers with an error but still works
	if cfg.DisablePager {
		_, _ = session.Execute(session.pagerCommand())
	}

	return session, nil
}

func (s *ExpectSession) pagerCommand() string {
	if cmd := PagerDisableCommands[strings.ToLower(s.vendor)]; cmd != "" {
		return cmd
	}
	return "terminal length 0"
}

// Execute sends a command and waits for the prompt, returning the output
func (s *ExpectSession) Execute(command string) (string, error) {
	if s.expecter == nil {
		return "", fmt.Errorf("expect session not initialized")
	}

	if err := s.expecter.Send(command + "\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	output, _, err := s.expecter.Expect(s.promptRE, s.timeout)
	if err != nil {
		return s.cleanOutput(output, command), fmt.Errorf("timeout waiting for prompt after command %q: %w", command, err)
	}

	return s.cleanOutput(output, command), nil
}

// Exited reports whether the remote shell has terminated
func (s *ExpectSession) Exited() bool {
	if s.exited {
		return true
	}
	select {
	case <-s.errCh:
		s.exited = true
	default:
	}
	return s.exited
}

// cleanOutput removes command echo and prompt lines from output
func (s *ExpectSession) cleanOutput(output, command string) string {
	lines := strings.Split(common.NormalizeOutput(output), "\n")
	cleaned := make([]string, 0, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i == 0 && command != "" && strings.Contains(trimmed, command) {
			continue
		}
		if s.promptRE.MatchString(trimmed) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// Close closes the expect session
func (s *ExpectSession) Close() error {
	if s.expecter != nil {
		err := s.expecter.Close()
		s.expecter = nil
		return err
	}
	return nil
}

// SetTimeout updates the command timeout
func (s *ExpectSession) SetTimeout(timeout time.Duration) {
	s.timeout = timeout
}
