package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sandstormio/gateway/internal/drivers/firecracker"
	"github.com/sandstormio/gateway/internal/drivers/gvisor"
	"github.com/sandstormio/gateway/internal/drivers/kata"
	"github.com/sandstormio/gateway/internal/gateway"
	"github.com/sandstormio/gateway/internal/runtimeselector"
	"github.com/sandstormio/gateway/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sandstormctl",
	Short: "Operate sandboxes across the gVisor, Kata, and Firecracker backends",
	Long: `sandstormctl drives the sandbox gateway's lifecycle operations
directly against the installed isolation backends: gVisor, Kata Containers,
and Firecracker. It is a thin CLI over the Gateway Facade, useful for
scripting and local operation without a running server.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sandstormctl/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override SANDSTORM_LOG_LEVEL")
	rootCmd.PersistentFlags().String("base-dir", "", "override SANDSTORM_BASE_DIR")

	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("base_dir", rootCmd.PersistentFlags().Lookup("base-dir"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home + "/.sandstormctl")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// newFacade constructs the logger, config, installed drivers, and selector
// shared by every subcommand, wiring whichever backend binaries pkg/config
// resolved from the environment.
func newFacade() (*gateway.Facade, error) {
	cfg := config.Load()
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("base_dir"); v != "" {
		cfg.BaseDir = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))

	gv := gvisor.New(logger, cfg.RunscBin, cfg.BaseDir+"/gvisor")
	kt := kata.New(logger, cfg.KataRuntimeBin, cfg.BaseDir+"/kata")
	fc, err := firecracker.New(logger, cfg.JailerBin, cfg.FirecrackerBin, cfg.BaseDir+"/firecracker", cfg.FirecrackerKernel, cfg.FirecrackerRootFS, cfg.BridgeName)
	if err != nil {
		return nil, fmt.Errorf("init firecracker driver: %w", err)
	}

	selector := runtimeselector.New()
	if err := selector.Register(gv); err != nil {
		return nil, err
	}
	if err := selector.Register(kt); err != nil {
		return nil, err
	}
	if err := selector.Register(fc); err != nil {
		return nil, err
	}

	return gateway.New(logger, selector, gv, kt, fc), nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
