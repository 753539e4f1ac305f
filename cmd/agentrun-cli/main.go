// Command agentrun-cli is an operator tool for starting ad-hoc agent runs,
// signaling/querying a running Agent Execution Workflow, and administering
// Triggers. Subcommand factories follow the teacher's cobra convention (one
// NewXCommand() *cobra.Command per verb, local flag vars closed over in
// RunE) as seen throughout the pack's cobra-based CLIs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "agentrun-cli",
		Short: "Operate agentrun agent runs and triggers",
	}

	root.PersistentFlags().StringVar(&cfg.temporalHostPort, "temporal-host-port", envOr("TEMPORAL_HOST_PORT", "127.0.0.1:7233"), "Temporal frontend address")
	root.PersistentFlags().StringVar(&cfg.temporalNamespace, "temporal-namespace", envOr("TEMPORAL_NAMESPACE", "default"), "Temporal namespace")
	root.PersistentFlags().StringVar(&cfg.taskQueue, "task-queue", envOr("AGENT_TASK_QUEUE", "agent-tasks"), "Task queue the agent worker listens on")
	root.PersistentFlags().StringVar(&cfg.mongoURI, "mongo-uri", os.Getenv("MONGO_URI"), "MongoDB connection string (trigger commands only)")
	root.PersistentFlags().StringVar(&cfg.mongoDatabase, "mongo-database", envOr("MONGO_DATABASE", "agentrun"), "MongoDB database name (trigger commands only)")

	root.AddCommand(newRunCommand(cfg))
	root.AddCommand(newTriggerCommand(cfg))
	return root
}

// cliConfig holds the connection settings shared by every subcommand.
type cliConfig struct {
	temporalHostPort  string
	temporalNamespace string
	taskQueue         string
	mongoURI          string
	mongoDatabase     string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
