package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandstormio/gateway/internal/sandbox"
)

var statusCmd = &cobra.Command{
	Use:   "status <sandbox-id>",
	Short: "Show a sandbox's lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		status, err := facade.Status(context.Background(), sandbox.ID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
