package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vikasavnish/stockmemo/internal/db"
	"github.com/vikasavnish/stockmemo/internal/migration"
	"github.com/vikasavnish/stockmemo/internal/remote"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

var (
	migrateUser  string
	migrateClear bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the offline dataset into a user's account",
	Long: `Copy accounts, stocks, memos and attachments from the offline store into
the database. Inline images are uploaded to storage first.

With --clear the offline store is wiped after a successful run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateUser == "" {
			return errors.New("--user is required")
		}
		ctx := cmd.Context()

		local, err := openLocal(cfg.Local)
		if err != nil {
			return err
		}
		database, err := db.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := remote.Migrate(database); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		bucket, err := storage.NewDiskBucket(cfg.Storage.Dir, cfg.Storage.PublicURL)
		if err != nil {
			return err
		}

		svc := migration.NewService(local, remote.NewStore(database, bucket, sugar.Named("remote")), nil, sugar.Named("migration"))
		if !svc.HasLocalData(ctx) {
			fmt.Fprintln(cmd.OutOrStdout(), "no local data to migrate")
			return nil
		}

		res := svc.MigrateToRemote(ctx, migrateUser)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := writeJSON(out, res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "accounts: %d\nstocks: %d\nmemos: %d\nattachments: %d\n",
				res.Count.Accounts, res.Count.Stocks, res.Count.Memos, res.Count.Attachments)
		}
		if !res.Success {
			return fmt.Errorf("migration failed: %s", res.Error)
		}
		if migrateClear {
			return svc.ClearLocalData(ctx)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateUser, "user", "", "Target user ID")
	migrateCmd.Flags().BoolVar(&migrateClear, "clear", false, "Clear the offline store after a successful run")
	rootCmd.AddCommand(migrateCmd)
}
