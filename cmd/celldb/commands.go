package main

import (
	"errors"
	"fmt"
	"log/slog"

	httpserver "celldb/internal/http"
	"celldb/pkg/dberrors"
	"celldb/pkg/metrics"
	"celldb/pkg/store"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			reg := metrics.NewRegistry()
			db, err := store.OpenWithConfig(a.cfg.DB, store.WithMetrics(reg))
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}

			server := httpserver.NewServer(db, a.cfg.Server)
			server.SetRegistry(reg)
			if err := server.Start(); err != nil {
				return errors.Join(err, db.Close())
			}
			slog.Info("celldb started", "addr", server.URL, "data_dir", a.cfg.DB.Path)

			<-cmd.Context().Done()

			err = server.Stop()
			if cerr := db.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("failed to close store: %w", cerr))
			}
			slog.Info("celldb stopped")
			return err
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port, overrides http-server.port")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.Store) error {
				val, err := db.Get([]byte(args[0]))
				if errors.Is(err, dberrors.ErrNotFound) {
					return fmt.Errorf("key %q not found", args[0])
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(val))
				return err
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Store VALUE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.Store) error {
				return db.PutString(args[0], args[1])
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.Store) error {
				return db.DeleteString(args[0])
			})
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var (
		from  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print live entries in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(db *store.Store) error {
				kvs, err := db.ScanAll([]byte(from), limit)
				if err != nil {
					return err
				}
				for _, kv := range kvs {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", kv.Key, kv.Value); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first key to include")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries, 0 for all")
	return cmd
}

func newFlushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Write the memtable to a new table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(db *store.Store) error {
				return db.Flush()
			})
		},
	}
}

func newCompactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Merge all tables into one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(db *store.Store) error {
				if err := db.Compact(); err != nil {
					return err
				}
				stats, err := db.Stats()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "compacted into generation %d (%d rows)\n",
					stats.Tables[0].Generation, stats.Tables[0].Rows)
				return err
			})
		},
	}
}
