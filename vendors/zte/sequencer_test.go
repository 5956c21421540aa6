package zte

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeSession scripts Exec replies by call number. A transport failure marks
// the session broken; the next Ensure "reconnects" and bumps the generation.
type fakeSession struct {
	reply      func(call int, cmd string) (string, error)
	ensureErr  error
	maxRetries int

	gen     int
	broken  bool
	ensures int
	execs   []string
}

func (f *fakeSession) Ensure(context.Context) error {
	f.ensures++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if f.broken {
		f.broken = false
		f.gen++
	}
	return nil
}

func (f *fakeSession) Exec(_ context.Context, cmd string) (string, error) {
	call := len(f.execs)
	f.execs = append(f.execs, cmd)
	if f.reply == nil {
		return "", nil
	}
	out, err := f.reply(call, cmd)
	if err != nil {
		f.broken = true
	}
	return out, err
}

func (f *fakeSession) Generation() int { return f.gen }
func (f *fakeSession) MaxRetries() int { return f.maxRetries }

var (
	testPort   = model.PortAddress{Slot: 1, Card: 2, Port: 3}
	testRecord = model.TerminalRecord{Serial: "ZTEG00000001", Name: "Client One", VLAN: 100}
)

func newTestSequencer(sess SequenceRunner) *Sequencer {
	return NewSequencer(sess, quietOptions())
}

func TestCommands(t *testing.T) {
	cmds := newTestSequencer(&fakeSession{}).Commands(testPort, 5, testRecord)

	require.Len(t, cmds, 20)
	assert.Equal(t, "configure terminal", cmds[0])
	assert.Equal(t, "interface gpon_olt-1/2/3", cmds[1])
	assert.Equal(t, "onu 5 type Bridge sn ZTEG00000001", cmds[registerCommandIndex])
	assert.Equal(t, "interface gpon_onu-1/2/3:5", cmds[4])
	assert.Equal(t, "name Client One", cmds[5])
	assert.Equal(t, "tcont 1 name 1 profile PLANO-1G", cmds[7])
	assert.Equal(t, "vport-map 1 1 vlan 100", cmds[10])
	assert.Equal(t, "pon-onu-mng gpon_onu-1/2/3:5", cmds[12])
	assert.Equal(t, "vlan port eth_0/1 mode tag vlan 100", cmds[14])
	assert.Equal(t, "interface vport-1/2/3.5:1", cmds[16])
	assert.Equal(t, "service-port 1 user-vlan 100 vlan 100", cmds[17])
	assert.Equal(t, "end", cmds[len(cmds)-1])
}

func TestCommandsNameDefaultsToSerial(t *testing.T) {
	rec := model.TerminalRecord{Serial: "ZTEG00000009", VLAN: 10}
	cmds := newTestSequencer(&fakeSession{}).Commands(testPort, 1, rec)
	assert.Equal(t, "name ZTEG00000009", cmds[5])
}

func TestCommandsUseOptions(t *testing.T) {
	opts := quietOptions().WithMetadata(map[string]string{
		"zte.onu_type":      "ZTE-F601",
		"zte.tcont_profile": "UP-100M",
	})
	cmds := NewSequencer(&fakeSession{}, opts).Commands(testPort, 2, testRecord)
	assert.Equal(t, "onu 2 type ZTE-F601 sn ZTEG00000001", cmds[2])
	assert.Equal(t, "tcont 1 name 1 profile UP-100M", cmds[7])
}

func TestProvisionSuccess(t *testing.T) {
	sess := &fakeSession{maxRetries: 3}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.OutcomeSuccess, out.Kind)
	require.NotNil(t, out.Port)
	assert.Equal(t, testPort, *out.Port)
	assert.Equal(t, 3, out.Identifier)
	assert.Len(t, sess.execs, 20)
	assert.Equal(t, 1, sess.ensures)
}

func TestProvisionStopsAtFirstRejection(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(_ int, cmd string) (string, error) {
			if strings.HasPrefix(cmd, "onu ") {
				return "%Error 80212: The ONU ID is used.", nil
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
	assert.Equal(t, string(types.ErrCodeONUIDInUse), out.ErrorCode)
	assert.Equal(t, registerCommandIndex, out.CommandIndex)
	assert.Equal(t, "onu 3 type Bridge sn ZTEG00000001", out.Command)
	assert.Contains(t, out.Output, "80212")
	// nothing after the rejected command is sent
	assert.Len(t, sess.execs, registerCommandIndex+1)
}

func TestProvisionRejectionLateInSequence(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(_ int, cmd string) (string, error) {
			if strings.HasPrefix(cmd, "tcont") {
				return "%Error 30015: The profile does not exist.", nil
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, string(types.ErrCodeProfileMissing), out.ErrorCode)
	assert.Equal(t, 7, out.CommandIndex)
	assert.Len(t, sess.execs, 8)
}

func TestProvisionRestartsAfterReconnect(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(call int, cmd string) (string, error) {
			if call == 5 {
				return "", types.ErrSessionInactive
			}
			// second pass: the ONU was registered by the first one
			if call > 5 && strings.HasPrefix(cmd, "onu ") {
				return "%Error 80211: The ONU has already been authenticated.", nil
			}
			if cmd == CmdShowBaseinfo {
				return "gpon_onu-1/2/3:3   Bridge  sn  SN:ZTEG00000001  ready", nil
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.OutcomeSuccess, out.Kind, out.String())
	assert.Equal(t, 1, sess.gen)
	// five good commands, the failed one, the full sequence again plus the ownership check
	require.Len(t, sess.execs, 6+20+1)
	assert.Equal(t, "configure terminal", sess.execs[6])
	assert.Equal(t, CmdShowBaseinfo, sess.execs[6+registerCommandIndex+1])
}

func TestProvisionRestartIDTakenByOtherONU(t *testing.T) {
	tests := []struct {
		name     string
		baseinfo string
	}{
		{name: "other serial on the id", baseinfo: "gpon_onu-1/2/3:3   Bridge  sn  SN:ZTEGFOREIGN01  ready"},
		{name: "ours on another id", baseinfo: "gpon_onu-1/2/3:7   Bridge  sn  SN:ZTEG00000001  ready"},
		{name: "ours on another port", baseinfo: "gpon_onu-1/2/4:3   Bridge  sn  SN:ZTEG00000001  ready"},
		{name: "check rejected", baseinfo: "%Error 20000: Invalid input detected at '^' marker."},
		{name: "empty device", baseinfo: "No related information to show."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{
				maxRetries: 3,
				reply: func(call int, cmd string) (string, error) {
					if call == registerCommandIndex {
						return "", types.ErrSessionInactive
					}
					if call > registerCommandIndex && strings.HasPrefix(cmd, "onu ") {
						return "%Error 80212: The ONU ID is used.", nil
					}
					if cmd == CmdShowBaseinfo {
						return tt.baseinfo, nil
					}
					return "", nil
				},
			}

			out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

			assert.Equal(t, model.OutcomeFailed, out.Kind, out.String())
			assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
			assert.Equal(t, string(types.ErrCodeONUIDInUse), out.ErrorCode)
			assert.Equal(t, registerCommandIndex, out.CommandIndex)
			// nothing is configured on the ONU interface
			assert.Equal(t, CmdShowBaseinfo, sess.execs[len(sess.execs)-1])
			for _, cmd := range sess.execs {
				assert.NotContains(t, cmd, "name ")
			}
		})
	}
}

func TestProvisionRestartOwnershipCheckDropped(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(call int, cmd string) (string, error) {
			if call == registerCommandIndex || cmd == CmdShowBaseinfo {
				return "", types.ErrSessionInactive
			}
			if strings.HasPrefix(cmd, "onu ") {
				return "%Error 80212: The ONU ID is used.", nil
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.ErrorKindTransportExhausted, out.ErrorKind)
	assert.Equal(t, registerCommandIndex, out.CommandIndex)
}

func TestProvisionFirstPassRegisterStillRejected(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(_ int, cmd string) (string, error) {
			if strings.HasPrefix(cmd, "onu ") {
				return "%Error 80211: The ONU has already been authenticated.", nil
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
	assert.Equal(t, string(types.ErrCodeONUExists), out.ErrorCode)
}

func TestProvisionTransportExhausted(t *testing.T) {
	sess := &fakeSession{
		maxRetries: 2,
		reply: func(_ int, cmd string) (string, error) {
			if cmd == "exit" {
				return "", types.ErrSessionInactive
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Equal(t, model.ErrorKindTransportExhausted, out.ErrorKind)
	assert.Equal(t, 3, out.CommandIndex)
	assert.Equal(t, 2, sess.gen)
}

func TestProvisionEnsureFailure(t *testing.T) {
	sess := &fakeSession{maxRetries: 3, ensureErr: types.ErrTransportExhausted}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.ErrorKindTransportExhausted, out.ErrorKind)
	assert.Empty(t, sess.execs)
}

func TestProvisionCancelledBetweenCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &fakeSession{
		maxRetries: 3,
		reply: func(call int, _ string) (string, error) {
			if call == 3 {
				cancel()
			}
			return "", nil
		},
	}

	out := newTestSequencer(sess).Provision(ctx, testPort, 3, testRecord)

	assert.Equal(t, model.ErrorKindCancelled, out.ErrorKind)
	assert.Equal(t, 4, out.CommandIndex)
	assert.Len(t, sess.execs, 4)
}

func TestProvisionNonTransportExecError(t *testing.T) {
	boom := errors.New("boom")
	sess := &fakeSession{
		maxRetries: 3,
		reply: func(int, string) (string, error) { return "", boom },
	}

	out := newTestSequencer(sess).Provision(context.Background(), testPort, 3, testRecord)

	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Equal(t, 0, sess.gen)
	assert.Len(t, sess.execs, 1)
}
