package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sandstormio/gateway/internal/sandbox"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <sandbox-id>",
	Short: "Tear down a sandbox and release its resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		return facade.Destroy(context.Background(), sandbox.ID(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}
