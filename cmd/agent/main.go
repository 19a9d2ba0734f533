// Command agent runs a local, autonomous ReAct agent against an
// OpenAI-compatible inference endpoint: no messaging channels, no gateway,
// no hosted-provider failover. Chats persist to disk between invocations.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "A local, autonomous ReAct agent",
		Long: `agent drives a Thought -> Action -> Observation loop against a local
OpenAI-compatible inference endpoint, with three-tier memory (scratchpad,
compressed history, vector recall) and persistent chat lifecycle.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $AGENT_CONFIG or ./agent.yaml)")

	rootCmd.AddCommand(
		buildRunCmd(&configPath),
		buildChatCmd(&configPath),
		buildChatsCmd(&configPath),
	)
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("AGENT_CONFIG"); env != "" {
		return env
	}
	return "agent.yaml"
}
