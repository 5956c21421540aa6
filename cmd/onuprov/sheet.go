package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanoncore/nano-onuprov/internal/sheet"
)

func newSheetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Spreadsheet helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "from-json IN.json OUT.xlsx",
		Short: "Convert a [{serial,name}] export into a migrate spreadsheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			entries, err := sheet.ReadEntries(in)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := sheet.WriteEntries(out, entries); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %d rows to %s\n", len(entries), args[1])
			return nil
		},
	})
	return cmd
}
