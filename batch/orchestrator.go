// Package batch runs a list of terminal records against one OLT: skip what is
// already authorized, pick the next free ONU ID from a fresh scan, provision,
// and collect a per-record outcome plus the full command trace.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/session"
	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/zte"
)

// Options configures one batch run
type Options struct {
	// Target is the PON port to provision on. Nil means each serial is looked
	// up in the unconfigured list.
	Target *model.PortAddress

	// Verify re-scans the port after each provisioning and checks the new ID
	Verify bool

	// RecordPause is slept between records
	RecordPause time.Duration

	Session session.Config
	ZTE     zte.Options

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// DefaultOptions returns production defaults
func DefaultOptions() Options {
	return Options{
		Session: session.DefaultConfig(),
		ZTE:     zte.DefaultOptions(),
	}
}

// Orchestrator provisions records strictly in order over a single session
type Orchestrator struct {
	creds types.DeviceCredentials
	dial  types.Dialer
	opts  Options
	log   logrus.FieldLogger
}

// New creates an orchestrator for one device
func New(creds types.DeviceCredentials, dial types.Dialer, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		creds: creds.WithDefaults(),
		dial:  dial,
		opts:  opts,
		log:   logger,
	}
}

// Run processes records and returns the accumulated result. The only error
// is an unopenable session, in which case no result is produced. Cancelling
// ctx abandons the current record after its in-flight command and returns
// what was done so far with Incomplete set.
func (o *Orchestrator) Run(ctx context.Context, records []model.TerminalRecord) (*model.BatchResult, error) {
	result := &model.BatchResult{
		RunID:     newRunID(),
		Device:    o.creds.Name,
		StartedAt: time.Now(),
		Total:     len(records),
	}
	log := o.log.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"device": o.creds.Name,
	})

	cfg := o.opts.Session
	cfg.Logger = log
	forward := cfg.Trace
	cfg.Trace = func(e model.TraceEntry) {
		result.Trace = append(result.Trace, e)
		if forward != nil {
			forward(e)
		}
	}

	sess := session.NewManager(o.creds, o.dial, cfg)
	if err := sess.Open(ctx); err != nil {
		return nil, fmt.Errorf("open session to %s: %w", o.creds.Name, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Debug("session close")
		}
	}()

	zopts := o.opts.ZTE
	zopts.Logger = log
	w := &worker{
		opts:      o.opts,
		scanner:   zte.NewScanner(sess, zopts),
		sequencer: zte.NewSequencer(sess, zopts),
		maxID:     zopts.MaxIdentifier,
	}

	log.WithField("records", len(records)).Info("batch started")

	for i, rec := range records {
		if ctx.Err() != nil {
			result.Incomplete = true
			break
		}
		if i > 0 && o.opts.RecordPause > 0 {
			if err := sleep(ctx, o.opts.RecordPause); err != nil {
				result.Incomplete = true
				break
			}
		}

		sess.SetSerial(rec.Serial)
		outcome := w.process(ctx, rec)
		result.Add(rec, outcome)

		entry := log.WithFields(logrus.Fields{
			"serial":  rec.Serial,
			"index":   i,
			"outcome": outcome.Kind,
		})
		if outcome.Kind == model.OutcomeFailed {
			entry.WithField("error_kind", outcome.ErrorKind).Warn(outcome.String())
			// the next record must start from exec mode
			sess.Reset(context.WithoutCancel(ctx))
		} else {
			entry.Info(outcome.String())
		}

		if outcome.ErrorKind == model.ErrorKindCancelled {
			result.Incomplete = true
			break
		}
	}
	sess.SetSerial("")

	result.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"provisioned": result.Count(model.OutcomeSuccess),
		"skipped":     result.Count(model.OutcomeSkipped),
		"failed":      result.Count(model.OutcomeFailed),
		"incomplete":  result.Incomplete,
		"reconnects":  sess.Reconnects(),
	}).Info("batch finished")

	return result, nil
}

// worker holds the per-run collaborators
type worker struct {
	opts      Options
	scanner   *zte.Scanner
	sequencer *zte.Sequencer
	maxID     int
}

func (w *worker) process(ctx context.Context, rec model.TerminalRecord) model.Outcome {
	if err := rec.Validate(); err != nil {
		return model.Failed(model.ErrorKindInvalid, err)
	}

	loc, err := w.scanner.Locate(ctx, rec.Serial)
	if err != nil {
		return fromError(ctx, err)
	}
	if loc != nil {
		return model.Skipped(*loc)
	}

	port, outcome, ok := w.resolvePort(ctx, rec.Serial)
	if !ok {
		return outcome
	}

	id, err := w.scanner.NextFreeIdentifier(ctx, port)
	if err != nil {
		return fromError(ctx, err)
	}
	if w.maxID > 0 && id > w.maxID {
		return model.Failed(model.ErrorKindPortFull,
			fmt.Errorf("no free ONU ID on %s (limit %d)", port, w.maxID))
	}

	outcome = w.sequencer.Provision(ctx, port, id, rec)
	if outcome.Kind == model.OutcomeSuccess && w.opts.Verify {
		w.verify(ctx, &outcome, port, id)
	}
	return outcome
}

func (w *worker) resolvePort(ctx context.Context, serial string) (model.PortAddress, model.Outcome, bool) {
	if w.opts.Target != nil {
		return *w.opts.Target, model.Outcome{}, true
	}
	port, err := w.scanner.Discover(ctx, serial)
	if err != nil {
		return model.PortAddress{}, fromError(ctx, err), false
	}
	if port == nil {
		return model.PortAddress{}, model.Failed(model.ErrorKindNotFound,
			fmt.Errorf("serial %s is not in the unconfigured list", serial)), false
	}
	return *port, model.Outcome{}, true
}

// verify never turns a success into a failure; it only annotates
func (w *worker) verify(ctx context.Context, outcome *model.Outcome, port model.PortAddress, id int) {
	ok, err := w.scanner.IsOccupied(ctx, port, id)
	switch {
	case err != nil:
		outcome.Warning = "status check failed: " + err.Error()
	case !ok:
		outcome.Warning = fmt.Sprintf("ONU id %d not listed on %s after provisioning", id, port)
	default:
		outcome.Verified = true
	}
}

// fromError classifies a scan failure
func fromError(ctx context.Context, err error) model.Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return model.Failed(model.ErrorKindCancelled, err)
	}

	var devErr *types.DeviceError
	if errors.As(err, &devErr) {
		o := model.Failed(model.ErrorKindDeviceRejected, err)
		o.ErrorCode = string(devErr.Code)
		o.Command = devErr.Command
		o.Output = devErr.Output
		return o
	}
	return model.Failed(model.ErrorKindTransportExhausted, err)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
