package main

import (
	"os"

	"github.com/spf13/cobra"
)

const service = "clinic-api"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          service,
		Short:        "Clinic appointment scheduling API",
		SilenceUsage:  true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newCreateUserCmd(),
		newHashPasswordCmd(),
	)
	return root
}
