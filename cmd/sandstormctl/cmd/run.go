package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandstormio/gateway/internal/gateway"
	"github.com/sandstormio/gateway/internal/sandbox"
)

var (
	runLanguage    string
	runCode        string
	runIsolation   string
	runPreference  string
	runCPULimit    float64
	runMemoryLimit int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create and start a sandbox running the given code",
	RunE: func(c *cobra.Command, args []string) error {
		facade, err := newFacade()
		if err != nil {
			return err
		}

		req := gateway.RunRequest{
			Code:           runCode,
			Language:       runLanguage,
			IsolationLevel: sandbox.IsolationLevel(runIsolation),
		}
		if runPreference != "" {
			rt := sandbox.RuntimeType(runPreference)
			req.RuntimePreference = &rt
		}
		if runCPULimit > 0 {
			req.CPULimit = &runCPULimit
		}
		if runMemoryLimit > 0 {
			req.MemoryLimit = &runMemoryLimit
		}

		id, err := facade.RunSandbox(context.Background(), req)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runLanguage, "language", "shell", "language runtime for the sandbox command")
	runCmd.Flags().StringVar(&runCode, "code", "", "inline source to execute")
	runCmd.Flags().StringVar(&runIsolation, "isolation", string(sandbox.Standard), "isolation level: standard, strong, maximum")
	runCmd.Flags().StringVar(&runPreference, "runtime", "", "preferred runtime: gvisor, kata, firecracker")
	runCmd.Flags().Float64Var(&runCPULimit, "cpu-limit", 0, "CPU limit in cores")
	runCmd.Flags().Int64Var(&runMemoryLimit, "memory-limit", 0, "memory limit in bytes")
}
