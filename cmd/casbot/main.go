// Command casbot runs the CAS verification bot and its private callback listener.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "casbot",
		Short:         "Discord bot that verifies members against the institute CAS",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Server config tooling",
	}
	configCmd.AddCommand(newValidateCommand())

	root.AddCommand(newServeCommand(), configCmd)
	return root
}
