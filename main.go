package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "v2drift",
		Short: "Agent simulation of V2 word order loss under language contact",
		Long: `v2drift simulates two populations of speakers, Celts and Vikings, spread
over a chain of locations. Each agent keeps a memory of exemplar sentences
and a doubt value; repeated speaking and hearing between neighbours shifts
the share of verb-second sentences over time.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			return setupLogging(level, format)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format: json or text")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newCorpusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger (JSON to stdout unless text is requested).
func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return fmt.Errorf("invalid --log-format %q (want json or text)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
