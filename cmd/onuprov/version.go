package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	onuprov "github.com/nanoncore/nano-onuprov"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and supported vendors",
		Args:  cobra.NoArgs,
		// needs no config
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.out, "onuprov %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(a.out, "vendors: %v\n", onuprov.GetSupportedVendors())
		},
	}
}
