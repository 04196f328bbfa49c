package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "invoicekit",
	Short:   "Invoicing backend with an admin console",
	Version: version,
	// serve is the default so a bare container entrypoint starts the API.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, adminCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "invoicekit: %v\n", err)
		os.Exit(1)
	}
}
