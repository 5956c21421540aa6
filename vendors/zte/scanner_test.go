package zte

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

const stateOutput = `OnuIndex   Admin State  OMCC State  Phase State  Channel
--------------------------------------------------------------
1/2/3:1    enable       enable      working      1(GPON)
1/2/3:2    enable       enable      working      1(GPON)
1/2/3:4    disable      disable     offline      1(GPON)
ONU Number: 3/3`

const baseinfoOutput = `OnuIndex                 Type          Mode        AuthInfo                State
----------------------------------------------------------------------------------
gpon_onu-1/1/1:1         ZTE-F601      sn          SN:ZTEG00000011         ready
gpon_onu-1/2/3:1         Bridge        sn          SN:ZTEG00000002         ready
gpon_onu-1/2/3:2         Bridge        sn          SN:ZTEG000000021        ready`

const uncfgOutput = `OnuIndex                 Sn                  State
---------------------------------------------------------------------
gpon_olt-1/2/3           ZTEG00000001        unknown
gpon_olt-1/2/4           ZTEG00000003        unknown`

// fakeRunner replays canned outputs per command
type fakeRunner struct {
	outputs map[string]string
	err     error
	calls   []string
}

func (f *fakeRunner) RunCommand(_ context.Context, cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[cmd], nil
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.Logger = discardLogger()
	return opts
}

func TestParseOccupied(t *testing.T) {
	tests := []struct {
		name          string
		output        string
		want          []int
		wantAnomalies int
	}{
		{name: "state table", output: stateOutput, want: []int{1, 2, 4}},
		{name: "empty table", output: "No related information to show.", want: nil},
		{name: "garbled id", output: "1/2/3:x    enable  enable  working\n1/2/3:7  enable", want: []int{7}, wantAnomalies: 1},
		{name: "no colon", output: "ONU enable count 3", want: nil, wantAnomalies: 1},
		{name: "zero id rejected", output: "1/2/3:0  enable", want: nil, wantAnomalies: 1},
		{name: "crlf and pager", output: "1/2/3:1  enable  enable\r\n --More-- \b\b\b\b\b\b\b\b\b\b1/2/3:3  enable  enable\r\n", want: []int{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, anomalies := ParseOccupied(tt.output, DefaultOptions().OccupiedMarkers)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseOccupied() = %v, want %v", sortedIDs(got), tt.want)
			}
			for _, id := range tt.want {
				if _, ok := got[id]; !ok {
					t.Errorf("ParseOccupied() missing id %d", id)
				}
			}
			if len(anomalies) != tt.wantAnomalies {
				t.Errorf("anomalies = %q, want %d", anomalies, tt.wantAnomalies)
			}
		})
	}
}

func TestNextFree(t *testing.T) {
	tests := []struct {
		name     string
		occupied []int
		want     int
	}{
		{"empty", nil, 1},
		{"gap", []int{1, 2, 4}, 3},
		{"dense", []int{1, 2, 3}, 4},
		{"first free", []int{2, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := make(map[int]struct{})
			for _, id := range tt.occupied {
				set[id] = struct{}{}
			}
			if got := NextFree(set); got != tt.want {
				t.Errorf("NextFree(%v) = %d, want %d", tt.occupied, got, tt.want)
			}
		})
	}
}

func TestNextFreeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOf(rapid.IntRange(1, 200)).Draw(t, "occupied")
		set := make(map[int]struct{})
		for _, id := range ids {
			set[id] = struct{}{}
		}

		got := NextFree(set)
		if got < 1 {
			t.Fatalf("NextFree() = %d, want positive", got)
		}
		if _, taken := set[got]; taken {
			t.Fatalf("NextFree() = %d is occupied", got)
		}
		for k := 1; k < got; k++ {
			if _, taken := set[k]; !taken {
				t.Fatalf("NextFree() = %d but %d is free", got, k)
			}
		}
	})
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name   string
		output string
		serial string
		want   string
	}{
		{name: "provisioned", output: baseinfoOutput, serial: "ZTEG00000002", want: "1/2/3"},
		{name: "other port", output: baseinfoOutput, serial: "ZTEG00000011", want: "1/1/1"},
		{name: "absent", output: baseinfoOutput, serial: "ZTEG00000099"},
		{name: "prefix of longer serial", output: baseinfoOutput, serial: "ZTEG0000002"},
		{name: "unconfigured list", output: uncfgOutput, serial: "ZTEG00000003", want: "1/2/4"},
		{name: "empty device", output: "No related information to show.", serial: "ZTEG00000001"},
		{name: "legacy naming", output: "gpon-onu_1/3/8:12  F660  sn  SN:ZTEG0000000A  ready", serial: "ZTEG0000000A", want: "1/3/8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ParseLocation(tt.output, tt.serial)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ParseLocation() = %s, want none", got)
				}
				return
			}
			if got == nil || got.String() != tt.want {
				t.Errorf("ParseLocation() = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestParseLocationIgnoresOrderOfOtherLines(t *testing.T) {
	match := "gpon_onu-1/2/3:9   Bridge  sn  SN:ZTEGMATCH0001  ready"
	noise := []string{
		"gpon_onu-1/1/1:1   Bridge  sn  SN:ZTEG00000001  ready",
		"gpon_onu-1/1/1:2   Bridge  sn  SN:ZTEG00000002  ready",
		"gpon_onu-2/1/1:1   Bridge  sn  SN:ZTEG00000003  ready",
		"gpon_onu-2/1/1:2   Bridge  sn  SN:ZTEG00000004  ready",
	}

	//nolint:gosec // shuffling test data
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		lines := append([]string{}, noise...)
		r.Shuffle(len(lines), func(a, b int) { lines[a], lines[b] = lines[b], lines[a] })
		pos := r.Intn(len(lines) + 1)
		lines = append(lines[:pos], append([]string{match}, lines[pos:]...)...)

		got, _ := ParseLocation(strings.Join(lines, "\n"), "ZTEGMATCH0001")
		if got == nil || got.String() != "1/2/3" {
			t.Fatalf("iteration %d: ParseLocation() = %v", i, got)
		}
	}
}

func TestParseLocationFirstMatchWins(t *testing.T) {
	out := "garbage-token ZTEG00000001\n" +
		"gpon_olt-1/2/3  ZTEG00000001  unknown\n" +
		"gpon_olt-1/2/4  ZTEG00000001  unknown"

	got, anomalies := ParseLocation(out, "ZTEG00000001")
	if got == nil || got.String() != "1/2/3" {
		t.Errorf("ParseLocation() = %v, want 1/2/3", got)
	}
	if len(anomalies) != 1 {
		t.Errorf("anomalies = %q, want the garbage line", anomalies)
	}
}

func TestParseUnconfigured(t *testing.T) {
	got := ParseUnconfigured(uncfgOutput)
	if len(got) != 2 {
		t.Fatalf("ParseUnconfigured() = %+v", got)
	}
	if got[0].Serial != "ZTEG00000001" || got[0].Port.String() != "1/2/3" {
		t.Errorf("first = %+v", got[0])
	}
	if got := ParseUnconfigured("No related information to show."); got != nil {
		t.Errorf("empty = %+v", got)
	}
}

func TestScannerCommands(t *testing.T) {
	port := model.PortAddress{Slot: 1, Card: 2, Port: 3}
	runner := &fakeRunner{outputs: map[string]string{
		"show gpon onu state gpon_olt-1/2/3": stateOutput,
		CmdShowBaseinfo:                      baseinfoOutput,
		CmdShowUncfg:                         uncfgOutput,
	}}
	s := NewScanner(runner, quietOptions())
	ctx := context.Background()

	id, err := s.NextFreeIdentifier(ctx, port)
	if err != nil || id != 3 {
		t.Errorf("NextFreeIdentifier() = %d, %v; want 3", id, err)
	}

	ok, err := s.IsOccupied(ctx, port, 4)
	if err != nil || !ok {
		t.Errorf("IsOccupied(4) = %v, %v", ok, err)
	}

	loc, err := s.Locate(ctx, "ZTEG00000002")
	if err != nil || loc == nil || *loc != port {
		t.Errorf("Locate() = %v, %v", loc, err)
	}

	loc, err = s.Discover(ctx, "ZTEG00000001")
	if err != nil || loc == nil || *loc != port {
		t.Errorf("Discover() = %v, %v", loc, err)
	}

	want := []string{"show gpon onu state gpon_olt-1/2/3", "show gpon onu state gpon_olt-1/2/3", CmdShowBaseinfo, CmdShowUncfg}
	if strings.Join(runner.calls, "|") != strings.Join(want, "|") {
		t.Errorf("commands = %q, want %q", runner.calls, want)
	}
}

func TestScannerRejectedScan(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"show gpon onu state gpon_olt-9/9/9": "%Error 20031: The interface does not exist.",
	}}
	s := NewScanner(runner, quietOptions())

	_, err := s.NextFreeIdentifier(context.Background(), model.PortAddress{Slot: 9, Card: 9, Port: 9})
	if !errors.Is(err, types.ErrDeviceRejected) {
		t.Fatalf("error = %v, want ErrDeviceRejected", err)
	}
	if types.GetErrorCode(err) != types.ErrCodePortNotFound {
		t.Errorf("code = %s", types.GetErrorCode(err))
	}
}

func TestScannerTransportError(t *testing.T) {
	runner := &fakeRunner{err: types.ErrTransportExhausted}
	s := NewScanner(runner, quietOptions())

	if _, err := s.Locate(context.Background(), "ZTEG00000001"); !errors.Is(err, types.ErrTransportExhausted) {
		t.Errorf("Locate() error = %v", err)
	}
}

func TestScannerRejectedLookups(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		call func(*Scanner) error
	}{
		{
			name: "baseinfo",
			cmd:  CmdShowBaseinfo,
			call: func(s *Scanner) error {
				_, err := s.Locate(context.Background(), "ZTEG00000002")
				return err
			},
		},
		{
			name: "uncfg",
			cmd:  CmdShowUncfg,
			call: func(s *Scanner) error {
				_, err := s.Discover(context.Background(), "ZTEG00000001")
				return err
			},
		},
		{
			name: "uncfg listing",
			cmd:  CmdShowUncfg,
			call: func(s *Scanner) error {
				_, err := s.ListUnconfigured(context.Background())
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outputs: map[string]string{
				tt.cmd: "%Error 20000: Invalid input detected at '^' marker.",
			}}

			err := tt.call(NewScanner(runner, quietOptions()))

			if !errors.Is(err, types.ErrDeviceRejected) {
				t.Fatalf("error = %v, want ErrDeviceRejected", err)
			}
			if types.GetErrorCode(err) != types.ErrCodeUnknownCommand {
				t.Errorf("code = %s", types.GetErrorCode(err))
			}
		})
	}
}

func TestParseRegistration(t *testing.T) {
	port, id, ok := ParseRegistration(baseinfoOutput, "ZTEG00000002")
	if !ok || port.String() != "1/2/3" || id != 1 {
		t.Errorf("ParseRegistration() = %s, %d, %v", port, id, ok)
	}

	if _, _, ok := ParseRegistration(baseinfoOutput, "ZTEG0000002"); ok {
		t.Error("ParseRegistration() matched a serial prefix")
	}
	if _, _, ok := ParseRegistration(uncfgOutput, "ZTEG00000001"); ok {
		t.Error("ParseRegistration() matched a port without ONU ID")
	}
	if _, _, ok := ParseRegistration("No related information to show.", "ZTEG00000002"); ok {
		t.Error("ParseRegistration() matched an empty device")
	}
}
