package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	onuprov "github.com/nanoncore/nano-onuprov"
	"github.com/nanoncore/nano-onuprov/internal/store"
	"github.com/nanoncore/nano-onuprov/types"
)

func newOLTCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "olt",
		Short: "Manage OLT profiles",
	}
	cmd.AddCommand(newOLTAddCmd(a), newOLTListCmd(a), newOLTRemoveCmd(a), newOLTTestCmd(a))
	return cmd
}

func newOLTAddCmd(a *app) *cobra.Command {
	var (
		p    store.Profile
		meta []string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Save an OLT profile",
		Example: `  onuprov olt add central --host 10.0.0.1 --user admin
  onuprov olt add lab --vendor mock --meta mock.unconfigured=8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMeta(meta)
			if err != nil {
				return err
			}
			p.Name = args[0]
			p.Metadata = md
			if p.Vendor != types.VendorMock && !cmd.Flags().Changed("password") {
				if p.Password, err = a.readPassword(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Add(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "saved %s\n", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Host, "host", "", "management address")
	cmd.Flags().IntVar(&p.Port, "port", types.DefaultSSHPort, "SSH port")
	cmd.Flags().StringVarP(&p.Username, "user", "u", "", "SSH username")
	cmd.Flags().StringVarP(&p.Password, "password", "p", "", "SSH password (prompted when omitted)")
	cmd.Flags().StringVar((*string)(&p.Vendor), "vendor", string(types.VendorZTE), "zte or mock")
	cmd.Flags().StringVar(&p.SNMPCommunity, "snmp-community", "", "read community for olt test")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "driver override key=value, repeatable")
	return cmd
}

// readPassword prompts on a terminal and reads one line otherwise
func (a *app) readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newOLTListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List OLT profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			profiles, err := st.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHOST\tPORT\tUSER\tVENDOR")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.Name, p.Host, p.Port, p.Username, p.Vendor)
			}
			return w.Flush()
		},
	}
}

func newOLTRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete an OLT profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %s\n", args[0])
			return nil
		},
	}
}

func newOLTTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME",
		Short: "Check SSH login and, with a community, SNMP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			creds, err := a.device(ctx, st, args[0])
			if err != nil {
				return err
			}

			status, err := a.testDevice(ctx, creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ssh: ok (%s)\n", status.Latency.Round(time.Millisecond))
			if status.SysName != "" || status.SysDescr != "" {
				fmt.Fprintf(a.out, "snmp: %s, %s, up %s\n", status.SysName, status.SysDescr,
					time.Duration(status.UptimeSeconds)*time.Second)
			}
			return nil
		},
	}
}

// testDevice opens and closes an SSH session, then probes SNMP when the
// vendor supports it and a community is configured
func (a *app) testDevice(ctx context.Context, creds types.DeviceCredentials) (*types.EquipmentStatus, error) {
	start := time.Now()
	sess, err := a.openSession(ctx, creds)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)
	_ = sess.Close()

	status := &types.EquipmentStatus{IsReachable: true}
	caps, _ := onuprov.GetVendorCapabilities(creds.Vendor)
	if creds.SNMPCommunity != "" && caps.Supports(onuprov.ProtocolSNMP) {
		prober, err := onuprov.NewProber(creds)
		if err != nil {
			return nil, err
		}
		if err := prober.Connect(ctx); err != nil {
			return nil, err
		}
		defer prober.Close()
		if status, err = prober.Probe(ctx); err != nil {
			return nil, fmt.Errorf("snmp probe: %w", err)
		}
		status.IsReachable = true
	}
	status.Latency = latency
	return status, nil
}
