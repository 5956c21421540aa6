package zte

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/common"
)

// registerCommandIndex is the position of "onu N type T sn S" in Commands
const registerCommandIndex = 2

// Sequencer authorizes one ONU with the bridge service template
type Sequencer struct {
	sess SequenceRunner
	opts Options
	log  logrus.FieldLogger
}

// NewSequencer creates a sequencer over sess
func NewSequencer(sess SequenceRunner, opts Options) *Sequencer {
	return &Sequencer{sess: sess, opts: opts, log: opts.logger()}
}

// Commands renders the configuration sequence for one ONU. It starts and
// ends in exec mode so it can be replayed from the top after a reconnect.
func (q *Sequencer) Commands(port model.PortAddress, id int, rec model.TerminalRecord) []string {
	onuIf := port.ONUInterface(id)
	vlan := rec.VLAN

	return []string{
		"configure terminal",
		// Register the ONU on its PON port
		"interface " + port.OLTInterface(),
		fmt.Sprintf("onu %d type %s sn %s", id, q.opts.ONUType, rec.Serial),
		"exit",
		// T-CONT, GEM port and VLAN mapping on the ONU interface
		"interface " + onuIf,
		"name " + rec.DisplayName(),
		"vport-mode manual",
		fmt.Sprintf("tcont 1 name 1 profile %s", q.opts.TCONTProfile),
		"gemport 1 name 1 tcont 1",
		"vport 1 map-type vlan",
		fmt.Sprintf("vport-map 1 1 vlan %d", vlan),
		"exit",
		// OMCI service and tagged ethernet port
		"pon-onu-mng " + onuIf,
		fmt.Sprintf("service 1 gemport 1 vlan %d", vlan),
		fmt.Sprintf("vlan port eth_0/1 mode tag vlan %d", vlan),
		"exit",
		// Service port on the virtual port
		"interface " + port.VPortInterface(id, 1),
		fmt.Sprintf("service-port 1 user-vlan %d vlan %d", vlan, vlan),
		"exit",
		"end",
	}
}

// Provision sends the sequence for rec. It stops at the first rejected
// command and never rolls back what was already applied. A reconnect in the
// middle restarts the sequence from the first command, at most MaxRetries times.
func (q *Sequencer) Provision(ctx context.Context, port model.PortAddress, id int, rec model.TerminalRecord) model.Outcome {
	cmds := q.Commands(port, id, rec)
	log := q.log.WithFields(logrus.Fields{
		"serial": rec.Serial,
		"port":   port.String(),
		"onu_id": id,
	})

	restarts := 0
	i := 0
	if err := q.sess.Ensure(ctx); err != nil {
		return failure(err, i, cmds[i])
	}
	gen := q.sess.Generation()

	for i < len(cmds) {
		if ctx.Err() != nil {
			return cancelled(i, cmds[i])
		}

		out, err := q.sess.Exec(ctx, cmds[i])
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(i, cmds[i])
			}
			if !errors.Is(err, types.ErrSessionInactive) {
				return failure(err, i, cmds[i])
			}
			restarts++
			if restarts > q.sess.MaxRetries() {
				return failure(fmt.Errorf("%w: sequence interrupted %d times: %v", types.ErrTransportExhausted, restarts, err), i, cmds[i])
			}
			if err := q.sess.Ensure(ctx); err != nil {
				return failure(err, i, cmds[i])
			}
			if q.sess.Generation() != gen {
				log.WithFields(logrus.Fields{
					"at_command": i,
					"restart":    restarts,
				}).Warn("connection replaced mid-sequence, restarting from the first command")
				gen = q.sess.Generation()
				i = 0
			}
			continue
		}

		if common.FirstMarker(out, q.opts.ErrorMarkers) != "" {
			devErr := TranslateError(i, cmds[i], out)
			if restarts > 0 && i == registerCommandIndex &&
				(devErr.Code == types.ErrCodeONUExists || devErr.Code == types.ErrCodeONUIDInUse) {
				ours, err := q.registeredAt(ctx, port, id, rec.Serial)
				if err != nil {
					if ctx.Err() != nil {
						return cancelled(i, cmds[i])
					}
					return failure(err, i, cmds[i])
				}
				if ours {
					log.WithField("code", devErr.Code).Info("ONU already registered by previous attempt, continuing")
					i++
					continue
				}
				log.WithField("code", devErr.Code).Warn("ONU ID taken by another terminal during reconnect")
			}
			log.WithFields(logrus.Fields{
				"command_index": i,
				"command":       cmds[i],
				"code":          devErr.Code,
			}).Warn("command rejected")
			return rejected(devErr)
		}
		i++
	}

	log.Info("ONU provisioned")
	return model.Succeeded(port, id)
}

// registeredAt reports whether serial is authorized at port:id. It runs from
// the OLT interface mode the sequence is in at the register command.
func (q *Sequencer) registeredAt(ctx context.Context, port model.PortAddress, id int, serial string) (bool, error) {
	out, err := q.sess.Exec(ctx, CmdShowBaseinfo)
	if err != nil {
		return false, err
	}
	if common.FirstMarker(out, q.opts.ErrorMarkers) != "" {
		return false, nil
	}
	at, atID, ok := ParseRegistration(out, serial)
	return ok && at == port && atID == id, nil
}

func rejected(devErr *types.DeviceError) model.Outcome {
	return model.Outcome{
		Kind:         model.OutcomeFailed,
		ErrorKind:    model.ErrorKindDeviceRejected,
		ErrorCode:    string(devErr.Code),
		Error:        devErr.Error(),
		CommandIndex: devErr.Index,
		Command:      devErr.Command,
		Output:       devErr.Output,
	}
}

func cancelled(i int, cmd string) model.Outcome {
	o := model.Failed(model.ErrorKindCancelled, context.Canceled)
	o.CommandIndex = i
	o.Command = cmd
	return o
}

func failure(err error, i int, cmd string) model.Outcome {
	kind := model.ErrorKindTransportExhausted
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = model.ErrorKindCancelled
	}
	o := model.Failed(kind, err)
	o.CommandIndex = i
	o.Command = cmd
	return o
}
