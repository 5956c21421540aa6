package model

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeKind is the terminal state of one record in a batch.
type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailed  OutcomeKind = "failed"
)

// ErrorKind classifies a failed record.
type ErrorKind string

const (
	ErrorKindDeviceRejected     ErrorKind = "device_rejected"
	ErrorKindTransportExhausted ErrorKind = "transport_exhausted"
	ErrorKindInvalid            ErrorKind = "invalid"
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindPortFull           ErrorKind = "port_full"
	ErrorKindCancelled          ErrorKind = "cancelled"
)

// Outcome is the result of processing a single TerminalRecord.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Port is where the ONU was found (skipped) or provisioned (success)
	Port *PortAddress `json:"port,omitempty"`

	// Identifier is the ONU id allocated on Port (success only)
	Identifier int `json:"identifier,omitempty"`

	// Verified is set when the post-provision status check saw the ONU
	Verified bool `json:"verified,omitempty"`

	// Warning carries non-fatal notes such as a failed status check
	Warning string `json:"warning,omitempty"`

	// Failure details
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	CommandIndex int       `json:"command_index"`
	Command      string    `json:"command,omitempty"`
	Output       string    `json:"output,omitempty"`
}

// Skipped builds the outcome for an ONU already present on the device.
func Skipped(port PortAddress) Outcome {
	return Outcome{Kind: OutcomeSkipped, Port: &port}
}

// Succeeded builds the outcome for a completed provisioning sequence.
func Succeeded(port PortAddress, id int) Outcome {
	return Outcome{Kind: OutcomeSuccess, Port: &port, Identifier: id}
}

// Failed builds a failure outcome without command context.
func Failed(kind ErrorKind, err error) Outcome {
	o := Outcome{Kind: OutcomeFailed, ErrorKind: kind}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// String renders one line for logs and summaries.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSkipped:
		return fmt.Sprintf("skipped (already on %s)", o.Port)
	case OutcomeSuccess:
		s := fmt.Sprintf("provisioned on %s id %d", o.Port, o.Identifier)
		if o.Warning != "" {
			s += " (warning: " + o.Warning + ")"
		}
		return s
	default:
		if o.Command != "" {
			return fmt.Sprintf("failed [%s] at command %d %q: %s", o.ErrorKind, o.CommandIndex, o.Command, o.Error)
		}
		return fmt.Sprintf("failed [%s]: %s", o.ErrorKind, o.Error)
	}
}

// RecordResult pairs an input record with its outcome.
type RecordResult struct {
	Record  TerminalRecord `json:"record"`
	Outcome Outcome        `json:"outcome"`
}

// TraceEntry is one command round trip, kept verbatim.
type TraceEntry struct {
	Time    time.Time `json:"time"`
	Serial  string    `json:"serial,omitempty"`
	Command string    `json:"command"`
	Output  string    `json:"output"`
	Err     string    `json:"error,omitempty"`
}

// BatchResult is the outcome of a batch run against one device.
type BatchResult struct {
	RunID      string         `json:"run_id"`
	Device     string         `json:"device"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Records    []RecordResult `json:"records"`

	// Total is the number of input records, processed or not
	Total int `json:"total"`

	// Incomplete is set when the run was cancelled before every record was processed
	Incomplete bool `json:"incomplete"`

	Trace []TraceEntry `json:"trace,omitempty"`
}

// Add appends a record outcome.
func (b *BatchResult) Add(rec TerminalRecord, o Outcome) {
	b.Records = append(b.Records, RecordResult{Record: rec, Outcome: o})
}

// Count returns the number of records with the given outcome kind.
func (b *BatchResult) Count(kind OutcomeKind) int {
	n := 0
	for _, r := range b.Records {
		if r.Outcome.Kind == kind {
			n++
		}
	}
	return n
}

func (b *BatchResult) serials(kind OutcomeKind) []string {
	var out []string
	for _, r := range b.Records {
		if r.Outcome.Kind == kind {
			out = append(out, r.Record.Serial)
		}
	}
	return out
}

func (b *BatchResult) SuccessSerials() []string { return b.serials(OutcomeSuccess) }
func (b *BatchResult) SkippedSerials() []string { return b.serials(OutcomeSkipped) }
func (b *BatchResult) FailedSerials() []string  { return b.serials(OutcomeFailed) }

// Summary renders a human readable report, one line per record.
func (b *BatchResult) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s on %s: %d records, %d provisioned, %d skipped, %d failed",
		b.RunID, b.Device, b.Total, b.Count(OutcomeSuccess), b.Count(OutcomeSkipped), b.Count(OutcomeFailed))
	if b.Incomplete {
		fmt.Fprintf(&sb, ", %d not processed (cancelled)", b.Total-len(b.Records))
	}
	sb.WriteString("\n")
	for _, r := range b.Records {
		fmt.Fprintf(&sb, "  %-16s %-24s %s\n", r.Record.Serial, r.Record.DisplayName(), r.Outcome)
	}
	return sb.String()
}

// RenderTrace renders the command trace as "command => response" blocks.
func (b *BatchResult) RenderTrace() string {
	var sb strings.Builder
	for _, e := range b.Trace {
		fmt.Fprintf(&sb, "[%s]", e.Time.Format("2006-01-02 15:04:05"))
		if e.Serial != "" {
			fmt.Fprintf(&sb, " [%s]", e.Serial)
		}
		fmt.Fprintf(&sb, " %s =>\n", e.Command)
		if e.Output != "" {
			sb.WriteString(e.Output)
			sb.WriteString("\n")
		}
		if e.Err != "" {
			fmt.Fprintf(&sb, "!! %s\n", e.Err)
		}
	}
	return sb.String()
}
