package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/pipetree/internal/cli"
	"github.com/aretw0/pipetree/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipetree",
	Short: "pipetree drives reactive computation pipelines",
	Long: `pipetree builds pipelines of steps from provider configurations, tracks
which results are still consistent with their inputs and persists them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("providers", ".", "Directory containing pipeline configurations")
	flags.String("functions", "", "functions.yaml with process-backed step functions")
	flags.String("store", cli.StoreMemory, "Record store: memory, file or redis")
	flags.String("store-dir", ".pipetree", "Directory of the file store")
	flags.String("redis-addr", "", "Redis address of the redis store")
	flags.String("encryption-key", os.Getenv("PIPETREE_ENCRYPTION_KEY"), "Hex encoded AES-256 key sealing saved inputs and outputs")
	flags.StringSlice("mask", nil, "Regular expressions of input/output names masked before saving")
	flags.Bool("mock", false, "Accept mock results in runStep commands")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
}

// engineOptions reads the persistent flags shared by every command.
func engineOptions(cmd *cobra.Command) cli.EngineOptions {
	flags := cmd.Flags()
	var opts cli.EngineOptions
	opts.Providers, _ = flags.GetString("providers")
	opts.Functions, _ = flags.GetString("functions")
	opts.Store, _ = flags.GetString("store")
	opts.Dir, _ = flags.GetString("store-dir")
	opts.RedisAddr, _ = flags.GetString("redis-addr")
	opts.EncryptionKey, _ = flags.GetString("encryption-key")
	opts.Mask, _ = flags.GetStringSlice("mask")
	opts.Mock, _ = flags.GetBool("mock")
	return opts
}

// newLogger writes to stderr so stdout stays clean for results and stdio transports.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(raw)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(os.Stderr, level), nil
}
