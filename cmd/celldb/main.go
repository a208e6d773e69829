package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"celldb/pkg/config"
	"celldb/pkg/store"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type app struct {
	configPath string
	dataDir    string

	cfg config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "celldb",
		Short:        "LSM key-value store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initConfig(a.configPath, a.dataDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg
			return initLogger(&a.cfg, cmd.ErrOrStderr())
		},
	}

	a.bindFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newDeleteCmd(a),
		newScanCmd(a),
		newFlushCmd(a),
		newCompactCmd(a),
		newBenchCmd(a),
	)
	return root
}

func (a *app) bindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&a.configPath, "config", "c", "config.yaml", "path to the YAML config")
	flags.StringVarP(&a.dataDir, "data-dir", "d", "", "data directory, overrides db.path")
}

// withStore opens the configured store, runs fn and closes the store.
func (a *app) withStore(fn func(*store.Store) error) (err error) {
	db, err := store.OpenWithConfig(a.cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close store: %w", cerr)
		}
	}()
	return fn(db)
}
