package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nanoncore/nano-onuprov/model"
	"github.com/nanoncore/nano-onuprov/session"
	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/zte"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var olt string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List ONUs waiting for authorization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(cmd.Context(), olt, func(sess *session.Manager, creds types.DeviceCredentials) error {
				list, err := zte.NewScanner(sess, a.zteOptions(creds)).ListUnconfigured(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PORT\tSERIAL")
				for _, u := range list {
					fmt.Fprintf(w, "%s\t%s\n", u.Port, u.Serial)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&olt, "olt", "", "OLT profile name (default: OLT_* environment)")
	return cmd
}

func newNextIDCmd(a *app) *cobra.Command {
	var olt, port string
	cmd := &cobra.Command{
		Use:   "next-id",
		Short: "Print the lowest free ONU ID of a PON port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := model.ParsePortAddress(port)
			if err != nil {
				return fmt.Errorf("--port: %w", err)
			}
			return a.withDevice(cmd.Context(), olt, func(sess *session.Manager, creds types.DeviceCredentials) error {
				id, err := zte.NewScanner(sess, a.zteOptions(creds)).NextFreeIdentifier(cmd.Context(), addr)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&olt, "olt", "", "OLT profile name (default: OLT_* environment)")
	cmd.Flags().StringVar(&port, "port", "", "PON port as slot/card/port")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

func (a *app) zteOptions(creds types.DeviceCredentials) zte.Options {
	opts := a.cfg.ZTEOptions().WithMetadata(creds.Metadata)
	opts.Logger = a.log.WithField("device", creds.Name)
	return opts
}
