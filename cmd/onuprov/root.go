package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	onuprov "github.com/nanoncore/nano-onuprov"
	"github.com/nanoncore/nano-onuprov/internal/config"
	"github.com/nanoncore/nano-onuprov/internal/logger"
	"github.com/nanoncore/nano-onuprov/internal/store"
	"github.com/nanoncore/nano-onuprov/session"
	"github.com/nanoncore/nano-onuprov/types"
)

// app is the state shared by every subcommand
type app struct {
	cfgFile string
	envFile string

	cfg *config.Config
	log *logrus.Logger

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "onuprov",
		Short: "Bulk ONU authorization for ZTE OLTs",
		Long: `onuprov authorizes ONUs on ZTE C-series OLTs over the SSH CLI.

It skips serials that are already authorized, picks the next free ONU ID
on the PON port from a fresh scan, applies the bridge service template and
reports one outcome per serial.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./onuprov.yaml or ./configs/onuprov.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with OLT_* variables, ignored if missing")

	root.AddCommand(
		newMigrateCmd(a),
		newOLTCmd(a),
		newDiscoverCmd(a),
		newNextIDCmd(a),
		newRunsCmd(a),
		newSheetCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := gotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.GetLogger()
	return nil
}

func (a *app) openStore() (store.Store, error) {
	return store.Open(a.cfg.Store.Backend, a.cfg.Store.Path)
}

// device resolves a profile name, or the OLT_* environment when name is empty
func (a *app) device(ctx context.Context, st store.Store, name string) (types.DeviceCredentials, error) {
	if name == "" {
		creds, ok := a.cfg.LegacyCredentials()
		if !ok {
			return types.DeviceCredentials{}, fmt.Errorf("no device: pass --olt or set OLT_HOST")
		}
		return creds.WithDefaults(), nil
	}

	p, err := st.Get(ctx, name)
	if err != nil {
		return types.DeviceCredentials{}, err
	}
	creds := p.Credentials()
	if a.cfg.SSH.Timeout > 0 {
		creds.Timeout = a.cfg.SSH.Timeout
	}
	return creds, nil
}

// openSession opens a single reconnecting session for read-only commands
func (a *app) openSession(ctx context.Context, creds types.DeviceCredentials) (*session.Manager, error) {
	dial, err := onuprov.NewDialer(creds)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.SessionConfig()
	cfg.Logger = a.log.WithField("device", creds.Name)
	sess := session.NewManager(creds, dial, cfg)
	if err := sess.Open(ctx); err != nil {
		return nil, fmt.Errorf("open session to %s: %w", creds.Name, err)
	}
	return sess, nil
}

// withDevice runs fn against an open session on the selected device
func (a *app) withDevice(ctx context.Context, name string, fn func(*session.Manager, types.DeviceCredentials) error) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := a.device(ctx, st, name)
	if err != nil {
		return err
	}
	sess, err := a.openSession(ctx, creds)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess, creds)
}

// parseMeta decodes repeated key=value flags
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", p)
		}
		md[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return md, nil
}
