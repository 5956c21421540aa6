package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nanoncore/nano-onuprov/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect journaled runs (sqlite store)",
	}
	cmd.AddCommand(newRunsListCmd(a), newRunsShowCmd(a))
	return cmd
}

func (a *app) openJournal() (store.Store, *store.SQLStore, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	journal, ok := st.(*store.SQLStore)
	if !ok {
		st.Close()
		return nil, nil, fmt.Errorf("store backend %q keeps no run journal, use sqlite", a.cfg.Store.Backend)
	}
	return st, journal, nil
}

func newRunsListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, journal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := journal.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tDEVICE\tSTARTED\tTOTAL\tOK\tSKIPPED\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", r.RunID, r.Device,
					r.StartedAt, r.Total, r.Provisioned, r.Skipped, r.Failed)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the per-serial outcomes of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, journal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := journal.RunRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(a.out, "%-16s %-24s %s\n", r.Record.Serial, r.Record.DisplayName(), r.Outcome)
			}
			return nil
		},
	}
}
