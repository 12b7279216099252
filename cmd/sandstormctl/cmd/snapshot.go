package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandstormio/gateway/internal/sandbox"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <sandbox-id>",
	Short: "Capture a sandbox's snapshot, printed as JSON on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		snap, err := facade.Snapshot(context.Background(), sandbox.ID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <snapshot-file>",
	Short: "Restore a sandbox from a JSON-encoded snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var snap sandbox.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return err
		}
		id, err := facade.Resume(context.Background(), snap)
		if err != nil {
			return err
		}
		_, err = os.Stdout.WriteString(string(id) + "\n")
		return err
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(resumeCmd)
}
