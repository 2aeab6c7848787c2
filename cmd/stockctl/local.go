package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vikasavnish/stockmemo/internal/config"
	"github.com/vikasavnish/stockmemo/internal/db"
	"github.com/vikasavnish/stockmemo/internal/localstore"
)

// openLocal opens the offline store on the configured backend
func openLocal(lc config.LocalConfig) (*localstore.Store, error) {
	var backend localstore.Backend
	switch lc.Backend {
	case "", "file":
		b, err := localstore.NewFileBackend(lc.Dir, lc.MaxBytes)
		if err != nil {
			return nil, err
		}
		backend = b
	case "sqlite":
		gdb, err := db.OpenSQLite(lc.SQLitePath)
		if err != nil {
			return nil, err
		}
		b, err := localstore.NewSQLBackend(gdb)
		if err != nil {
			return nil, err
		}
		backend = b
	case "redis":
		client, err := db.ConnectRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		backend = localstore.NewRedisBackend(client)
	default:
		return nil, fmt.Errorf("unknown local backend %q", lc.Backend)
	}
	return localstore.New(backend, sugar.Named("local"), localstore.WithWarningHandler(func(msg string) {
		sugar.Warn(msg)
	})), nil
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Inspect the offline store",
}

var localShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the offline dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal(cfg.Local)
		if err != nil {
			return err
		}
		d := store.Load(cmd.Context())

		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, d)
		}
		fmt.Fprintf(out, "accounts: %d\nstocks: %d\nmemos: %d\nattachments: %d\n",
			len(d.Accounts), len(d.Stocks), len(d.Memos), len(d.Attachments))
		for _, st := range d.Stocks {
			fmt.Fprintf(out, "  %s\t%s\t%s\t%g\n", st.ID, st.Name, st.Status, st.Quantity)
		}
		return nil
	},
}

var localClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the offline dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocal(cfg.Local)
		if err != nil {
			return err
		}
		if err := store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "local data cleared")
		return nil
	},
}

func init() {
	localCmd.AddCommand(localShowCmd, localClearCmd)
	rootCmd.AddCommand(localCmd)
}
