package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"casbot/internal/policy"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate the server config (SERVER_CONFIG or server_config.ini by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := os.Getenv("SERVER_CONFIG")
			if path == "" {
				path = "server_config.ini"
			}
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(cmd.OutOrStdout(), path)
		},
	}
}

// runValidate prints one line per section and fails on the first invalid one.
func runValidate(out io.Writer, path string) error {
	set, report, err := policy.Load(path)
	for _, line := range report.Lines() {
		fmt.Fprintln(out, line)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d server(s) configured\n", set.Len())
	return nil
}
