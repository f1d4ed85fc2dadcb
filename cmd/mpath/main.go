package main

import (
	"os"

	"github.com/openfga/mpath/cmd"
	"github.com/openfga/mpath/cmd/migrate"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(
		migrate.NewMigrateCommand(),
		cmd.NewVersionCommand(),
		cmd.NewConfigCommand(),
		cmd.NewNodeCommand(),
		cmd.NewChildrenCommand(),
		cmd.NewAncestorsCommand(),
		cmd.NewTreeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
