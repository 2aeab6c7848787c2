package main

import (
	"github.com/spf13/cobra"

	"github.com/vikasavnish/stockmemo/internal/api"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the HTTP routes of the server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		api.PrintRoutes(cmd.OutOrStdout(), api.SetupRouter(api.Deps{}))
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
