package batch

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-onuprov/drivers/mock"
	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
)

var targetPort = model.PortAddress{Slot: 1, Card: 2, Port: 3}

var threeRecords = []model.TerminalRecord{
	{Serial: "SN1", Name: "Alice", VLAN: 100},
	{Serial: "SN2", Name: "Bob", VLAN: 200},
	{Serial: "SN3", Name: "Carol", VLAN: 300},
}

func testOptions() Options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := DefaultOptions()
	opts.Logger = logger
	opts.Session.RetryBackoff = 0
	opts.Session.KeepAliveEvery = 0
	port := targetPort
	opts.Target = &port
	return opts
}

func testCreds() types.DeviceCredentials {
	return types.DeviceCredentials{Name: "olt-test", Vendor: types.VendorMock, Address: "127.0.0.1"}
}

// seededOLT has SN2 on 1/2/3 and IDs {1,2} taken there
func seededOLT() *mock.OLT {
	olt := mock.NewOLT()
	olt.AddONU(targetPort, 1, "ZTEG00000001", "existing")
	olt.AddONU(targetPort, 2, "SN2", "Bob")
	return olt
}

func run(t *testing.T, olt *mock.OLT, opts Options, records []model.TerminalRecord) *model.BatchResult {
	t.Helper()
	res, err := New(testCreds(), olt.Dialer(), opts).Run(context.Background(), records)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func outcomeOf(t *testing.T, res *model.BatchResult, serial string) model.Outcome {
	t.Helper()
	for _, r := range res.Records {
		if r.Record.Serial == serial {
			return r.Outcome
		}
	}
	t.Fatalf("no outcome for %s", serial)
	return model.Outcome{}
}

func TestRunEndToEnd(t *testing.T) {
	olt := seededOLT()

	res := run(t, olt, testOptions(), threeRecords)

	assert.Equal(t, 3, res.Total)
	assert.False(t, res.Incomplete)
	assert.Equal(t, 2, res.Count(model.OutcomeSuccess))
	assert.Equal(t, 1, res.Count(model.OutcomeSkipped))
	assert.Equal(t, 0, res.Count(model.OutcomeFailed))
	assert.Equal(t, []string{"SN1", "SN3"}, res.SuccessSerials())
	assert.Equal(t, []string{"SN2"}, res.SkippedSerials())

	sn1 := outcomeOf(t, res, "SN1")
	assert.Equal(t, 3, sn1.Identifier)
	assert.Equal(t, targetPort, *sn1.Port)

	sn2 := outcomeOf(t, res, "SN2")
	assert.Equal(t, model.OutcomeSkipped, sn2.Kind)
	assert.Equal(t, "1/2/3", sn2.Port.String())

	assert.Equal(t, 4, outcomeOf(t, res, "SN3").Identifier)

	onu, ok := olt.ONU(targetPort, 3)
	require.True(t, ok)
	assert.Equal(t, "SN1", onu.Serial)
	assert.Equal(t, "Alice", onu.Name)
	assert.Equal(t, 100, onu.VLAN)
	assert.Equal(t, "PLANO-1G", onu.TCONTProfile)
	assert.True(t, onu.ServicePort)

	onu, ok = olt.ONU(targetPort, 4)
	require.True(t, ok)
	assert.Equal(t, "SN3", onu.Serial)
	assert.Equal(t, 300, onu.VLAN)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestSkippedRecordNeverProvisions(t *testing.T) {
	olt := seededOLT()

	run(t, olt, testOptions(), threeRecords[1:2])

	for _, cmd := range olt.GetCommandHistory() {
		assert.NotContains(t, cmd, "configure terminal")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	olt := seededOLT()
	run(t, olt, testOptions(), threeRecords)

	second := run(t, olt, testOptions(), threeRecords)

	assert.Equal(t, 3, second.Count(model.OutcomeSkipped))
	assert.Equal(t, "1/2/3", outcomeOf(t, second, "SN1").Port.String())
}

func TestRunTraceIsLabelled(t *testing.T) {
	olt := seededOLT()
	var forwarded int
	opts := testOptions()
	opts.Session.Trace = func(model.TraceEntry) { forwarded++ }

	res := run(t, olt, opts, threeRecords[:1])

	require.NotEmpty(t, res.Trace)
	assert.Equal(t, len(res.Trace), forwarded)
	for _, e := range res.Trace {
		assert.Equal(t, "SN1", e.Serial, e.Command)
	}
	assert.Contains(t, res.RenderTrace(), "onu 3 type Bridge sn SN1 =>")
}

func TestRunVerify(t *testing.T) {
	olt := seededOLT()
	opts := testOptions()
	opts.Verify = true

	res := run(t, olt, opts, threeRecords[:1])

	out := outcomeOf(t, res, "SN1")
	assert.Equal(t, model.OutcomeSuccess, out.Kind)
	assert.True(t, out.Verified)
	assert.Empty(t, out.Warning)
}

func TestRunInvalidRecord(t *testing.T) {
	olt := seededOLT()
	records := []model.TerminalRecord{
		{Serial: "BAD1", VLAN: 0},
		{Serial: "SN1", VLAN: 100},
	}

	res := run(t, olt, testOptions(), records)

	bad := outcomeOf(t, res, "BAD1")
	assert.Equal(t, model.ErrorKindInvalid, bad.ErrorKind)
	assert.Equal(t, model.OutcomeSuccess, outcomeOf(t, res, "SN1").Kind)
	for _, cmd := range olt.GetCommandHistory() {
		assert.NotContains(t, cmd, "BAD1")
	}
}

func TestRunContinuesAfterRejection(t *testing.T) {
	olt := seededOLT()
	olt.FailOn("sn SN1", mock.MsgInvalidInput)

	res := run(t, olt, testOptions(), threeRecords)

	sn1 := outcomeOf(t, res, "SN1")
	assert.Equal(t, model.ErrorKindDeviceRejected, sn1.ErrorKind)
	assert.Equal(t, string(types.ErrCodeUnknownCommand), sn1.ErrorCode)
	assert.Equal(t, 2, sn1.CommandIndex)
	assert.Equal(t, mock.MsgInvalidInput, sn1.Output)

	// SN1 never registered, so SN3 takes the first free ID
	assert.Equal(t, 3, outcomeOf(t, res, "SN3").Identifier)

	history := olt.GetCommandHistory()
	for i, cmd := range history {
		if strings.Contains(cmd, "sn SN1") {
			require.Less(t, i+1, len(history))
			assert.Equal(t, "end", history[i+1], "mode reset after failure")
		}
	}
}

func TestRunAutoDiscoversPort(t *testing.T) {
	olt := mock.NewOLT()
	port := model.PortAddress{Slot: 1, Card: 1, Port: 4}
	olt.AddUnconfigured(port, "ZTEGAAAA0001")
	opts := testOptions()
	opts.Target = nil

	res := run(t, olt, opts, []model.TerminalRecord{
		{Serial: "ZTEGAAAA0001", VLAN: 10},
		{Serial: "ZTEGAAAA0002", VLAN: 10},
	})

	found := outcomeOf(t, res, "ZTEGAAAA0001")
	assert.Equal(t, model.OutcomeSuccess, found.Kind)
	assert.Equal(t, port, *found.Port)
	assert.Equal(t, 1, found.Identifier)

	assert.Equal(t, model.ErrorKindNotFound, outcomeOf(t, res, "ZTEGAAAA0002").ErrorKind)
}

func TestRunPortFull(t *testing.T) {
	olt := seededOLT()
	opts := testOptions()
	opts.ZTE.MaxIdentifier = 2

	res := run(t, olt, opts, threeRecords[:1])

	assert.Equal(t, model.ErrorKindPortFull, outcomeOf(t, res, "SN1").ErrorKind)
}

func TestRunOpenFailure(t *testing.T) {
	olt := seededOLT()
	olt.RefuseOpens(1)

	res, err := New(testCreds(), olt.Dialer(), testOptions()).Run(context.Background(), threeRecords)

	assert.Nil(t, res)
	assert.ErrorIs(t, err, types.ErrConnection)
	assert.Empty(t, olt.GetCommandHistory())
}

func TestRunRestartsSequenceAfterDrop(t *testing.T) {
	olt := seededOLT()
	// baseinfo, state, then the 6th sequence command drops the link
	olt.DropAfter(8)

	res := run(t, olt, testOptions(), threeRecords[:1])

	out := outcomeOf(t, res, "SN1")
	require.Equal(t, model.OutcomeSuccess, out.Kind, out.String())
	assert.Equal(t, 3, out.Identifier)
	assert.Equal(t, 2, olt.Opens())

	onu, ok := olt.ONU(targetPort, 3)
	require.True(t, ok)
	assert.Equal(t, "Alice", onu.Name)
	assert.True(t, onu.ServicePort)
}

func TestRunDropOnRegisterWithIDTakenMeanwhile(t *testing.T) {
	olt := seededOLT()
	// baseinfo, state, configure, interface, then the register command drops
	olt.DropAfter(5)
	opts := testOptions()
	taken := false
	opts.Session.Trace = func(e model.TraceEntry) {
		if !taken && e.Serial == "SN1" && strings.HasPrefix(e.Command, "onu ") && e.Err != "" {
			taken = true
			olt.AddONU(targetPort, 3, "OTHER", "Dave")
		}
	}

	res := run(t, olt, opts, threeRecords[:1])

	out := outcomeOf(t, res, "SN1")
	require.Equal(t, model.OutcomeFailed, out.Kind, out.String())
	assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
	assert.Equal(t, string(types.ErrCodeONUIDInUse), out.ErrorCode)
	assert.Equal(t, 2, olt.Opens())

	onu, ok := olt.ONU(targetPort, 3)
	require.True(t, ok)
	assert.Equal(t, "OTHER", onu.Serial)
	assert.Equal(t, "Dave", onu.Name)
	assert.Zero(t, onu.VLAN)
	assert.False(t, onu.ServicePort)

	_, registered := olt.FindSerial("SN1")
	assert.False(t, registered)
}

func TestRunRejectedLocateFailsRecord(t *testing.T) {
	olt := seededOLT()
	olt.FailOn("show gpon onu baseinfo", mock.MsgInvalidInput)

	res := run(t, olt, testOptions(), threeRecords[1:2])

	out := outcomeOf(t, res, "SN2")
	assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
	assert.Equal(t, string(types.ErrCodeUnknownCommand), out.ErrorCode)
	assert.Equal(t, "show gpon onu baseinfo", out.Command)
	for _, cmd := range olt.GetCommandHistory() {
		assert.NotContains(t, cmd, "configure terminal")
	}
}

func TestRunRejectedDiscoverFailsRecord(t *testing.T) {
	olt := mock.NewOLT()
	olt.AddUnconfigured(model.PortAddress{Slot: 1, Card: 1, Port: 4}, "ZTEGAAAA0001")
	olt.FailOn("show pon onu uncfg", mock.MsgInvalidInput)
	opts := testOptions()
	opts.Target = nil

	res := run(t, olt, opts, []model.TerminalRecord{{Serial: "ZTEGAAAA0001", VLAN: 10}})

	out := outcomeOf(t, res, "ZTEGAAAA0001")
	assert.Equal(t, model.ErrorKindDeviceRejected, out.ErrorKind)
	assert.Equal(t, "show pon onu uncfg", out.Command)
}

func TestRunTransportExhaustedFailsRecordOnly(t *testing.T) {
	olt := seededOLT()
	opts := testOptions()
	opts.Session.Trace = func(e model.TraceEntry) {
		if e.Serial == "SN1" && e.Command == "end" {
			olt.KillAll()
			olt.RefuseOpens(100)
		}
	}

	res := run(t, olt, opts, []model.TerminalRecord{threeRecords[0], threeRecords[2]})

	assert.Equal(t, model.OutcomeSuccess, outcomeOf(t, res, "SN1").Kind)
	assert.Equal(t, model.ErrorKindTransportExhausted, outcomeOf(t, res, "SN3").ErrorKind)
	assert.False(t, res.Incomplete)
}

func TestRunCancellation(t *testing.T) {
	olt := seededOLT()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Session.Trace = func(e model.TraceEntry) {
		if strings.HasPrefix(e.Command, "vport-map") {
			cancel()
		}
	}

	res, err := New(testCreds(), olt.Dialer(), opts).Run(ctx, threeRecords)
	require.NoError(t, err)

	assert.True(t, res.Incomplete)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Records, 1)
	out := res.Records[0].Outcome
	assert.Equal(t, model.ErrorKindCancelled, out.ErrorKind)
	assert.Equal(t, 11, out.CommandIndex)
	assert.Contains(t, res.Summary(), "2 not processed")
}
