package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandstormio/gateway/internal/sandbox"
)

var execCmd = &cobra.Command{
	Use:   "exec <sandbox-id> -- <command> [args...]",
	Short: "Run a command inside a running sandbox",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		id := sandbox.ID(args[0])
		result, err := facade.Exec(context.Background(), id, args[1:], nil)
		if err != nil {
			return err
		}
		os.Stdout.Write(result.Stdout)
		os.Stderr.Write(result.Stderr)
		if result.ExitCode != 0 {
			os.Exit(result.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
