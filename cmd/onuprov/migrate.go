package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	onuprov "github.com/nanoncore/nano-onuprov"
	"github.com/nanoncore/nano-onuprov/batch"
	"github.com/nanoncore/nano-onuprov/internal/archive"
	"github.com/nanoncore/nano-onuprov/internal/sheet"
	"github.com/nanoncore/nano-onuprov/internal/store"
	"github.com/nanoncore/nano-onuprov/model"
)

type migrateFlags struct {
	olts     []string
	sheet    string
	serials  []string
	vlan     int
	port     string
	verify   bool
	parallel int
	asJSON   bool
}

func newMigrateCmd(a *app) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Authorize a list of ONUs",
		Long: `Authorize every serial of a spreadsheet (or --serial list) on one or more OLTs.

Serials already authorized anywhere on the OLT are skipped. Without --port
each serial is looked up in the unconfigured ONU list to find its PON port.
Failed serials do not stop the batch; rerunning the same list only handles
what is still missing.

With several --olt profiles every OLT receives the full list, so --port is
only accepted together with a single OLT.`,
		Example: `  onuprov migrate --olt central --sheet onus.xlsx --vlan 100 --port 1/2/3
  OLT_HOST=10.0.0.1 OLT_USERNAME=admin OLT_PASSWORD=secret onuprov migrate --serial ZTEGC0FFEE01 --vlan 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("verify") {
				f.verify = a.cfg.Batch.Verify
			}
			if !cmd.Flags().Changed("parallel") {
				f.parallel = a.cfg.Batch.Parallel
			}
			return a.migrate(cmd.Context(), f)
		},
	}

	cmd.Flags().StringSliceVar(&f.olts, "olt", nil, "OLT profile name, repeatable (default: OLT_* environment)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "XLSX with Serial, Name and optional VLAN columns")
	cmd.Flags().StringSliceVar(&f.serials, "serial", nil, "serial to authorize, repeatable")
	cmd.Flags().IntVar(&f.vlan, "vlan", 0, "VLAN for rows without one")
	cmd.Flags().StringVar(&f.port, "port", "", "target PON port as slot/card/port (default: auto-detect)")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "check each new ONU shows up on the port")
	cmd.Flags().IntVar(&f.parallel, "parallel", 0, "OLTs processed at once")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print results as JSON")
	return cmd
}

func (a *app) loadRecords(f *migrateFlags) ([]model.TerminalRecord, error) {
	var records []model.TerminalRecord
	if f.sheet != "" {
		file, err := os.Open(f.sheet)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		records, err = sheet.ReadRecords(file, f.vlan)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.sheet, err)
		}
	}
	for _, s := range f.serials {
		records = append(records, model.TerminalRecord{Serial: strings.TrimSpace(s), VLAN: f.vlan})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no serials: pass --sheet or --serial")
	}
	return records, nil
}

func (a *app) migrate(ctx context.Context, f *migrateFlags) error {
	if f.port != "" && len(f.olts) > 1 {
		return fmt.Errorf("--port targets a single OLT, got %d --olt profiles", len(f.olts))
	}

	records, err := a.loadRecords(f)
	if err != nil {
		return err
	}

	var target *model.PortAddress
	if f.port != "" {
		port, err := model.ParsePortAddress(f.port)
		if err != nil {
			return fmt.Errorf("--port: %w", err)
		}
		target = &port
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	names := f.olts
	if len(names) == 0 {
		names = []string{""}
	}
	jobs := make([]batch.Job, 0, len(names))
	for _, name := range names {
		creds, err := a.device(ctx, st, name)
		if err != nil {
			return err
		}
		dial, err := onuprov.NewDialer(creds)
		if err != nil {
			return err
		}

		opts := a.cfg.BatchOptions(creds)
		opts.Target = target
		opts.Verify = f.verify
		opts.Logger = a.log.WithField("device", creds.Name)
		opts.Session.Trace = a.traceLogger(creds.Name)
		jobs = append(jobs, batch.Job{Credentials: creds, Dial: dial, Records: records, Options: opts})
	}

	results, runErr := batch.RunDevices(ctx, jobs, f.parallel)

	arch, err := archive.New(ctx, a.cfg.Archive, a.log)
	if err != nil {
		return err
	}
	incomplete := false
	for _, res := range results {
		if res == nil {
			continue
		}
		incomplete = incomplete || res.Incomplete
		a.persist(context.WithoutCancel(ctx), st, arch, res)
		if !f.asJSON {
			fmt.Fprint(a.out, res.Summary())
		}
	}
	if f.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if incomplete {
		return errInterrupted
	}
	return nil
}

// traceLogger forwards every command round trip to the log at debug level
func (a *app) traceLogger(device string) func(model.TraceEntry) {
	return func(e model.TraceEntry) {
		entry := a.log.WithFields(logrus.Fields{
			"device":  device,
			"serial":  e.Serial,
			"command": e.Command,
			"output":  e.Output,
		})
		if e.Err != "" {
			entry = entry.WithField("error", e.Err)
		}
		entry.Debug("trace")
	}
}

// persist journals and archives a finished run. Failures are logged only:
// the device work is already done.
func (a *app) persist(ctx context.Context, st store.Store, arch archive.Writer, res *model.BatchResult) {
	log := a.log.WithFields(logrus.Fields{"run_id": res.RunID, "device": res.Device})

	if journal, ok := st.(store.Journal); ok {
		if err := journal.SaveRun(ctx, res); err != nil {
			log.WithError(err).Warn("failed to journal run")
		}
	}

	if arch == nil {
		return
	}
	objs, err := archive.Save(ctx, arch, res)
	if err != nil {
		log.WithError(err).Warn("failed to archive run")
	}
	for _, o := range objs {
		log.WithField("uri", o.URI).Debug("archived")
	}
}
