package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runtimesCmd = &cobra.Command{
	Use:   "list-runtimes",
	Short: "List installed backends and the isolation levels each supports",
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		for _, info := range facade.ListRuntimes() {
			fmt.Printf("%s: %v\n", info.Type, info.SupportedLevels)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runtimesCmd)
}
