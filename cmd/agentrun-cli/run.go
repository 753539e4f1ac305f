package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/goadesign/agentrun/runtime"
)

func newRunCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, signal, and inspect Agent Execution Workflow runs",
	}
	cmd.AddCommand(newRunStartCommand(cfg))
	cmd.AddCommand(newRunSignalCommand(cfg))
	cmd.AddCommand(newRunQueryCommand(cfg))
	return cmd
}

func newRunStartCommand(cfg *cliConfig) *cobra.Command {
	var (
		taskID     string
		agentID    string
		taskQuery  string
		paramsJSON string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new agent run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := parseJSONObject(paramsJSON)
			if err != nil {
				return fmt.Errorf("--params: %w", err)
			}
			if taskID == "" {
				taskID = fmt.Sprintf("agentrun-cli-%d", time.Now().UnixNano())
			}

			cli, err := dialTemporal(cfg)
			if err != nil {
				return fmt.Errorf("dial temporal: %w", err)
			}
			defer cli.Close()

			ctx := cmd.Context()
			run, err := cli.ExecuteWorkflow(ctx, clientStartOptions(cfg, taskID), runtime.WorkflowName, runtime.AgentExecutionRequest{
				TaskID:         taskID,
				AgentID:        agentID,
				TaskQuery:      taskQuery,
				TaskParameters: params,
			})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			fmt.Printf("started task %s (run id %s)\n", run.GetID(), run.GetRunID())
			if !wait {
				return nil
			}
			var result runtime.AgentExecutionResult
			if err := run.Get(ctx, &result); err != nil {
				return fmt.Errorf("wait for result: %w", err)
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id to assign (defaults to a generated id)")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "Agent id to run")
	cmd.Flags().StringVar(&taskQuery, "query", "", "Task query/instruction for the agent")
	cmd.Flags().StringVar(&paramsJSON, "params", "{}", "Task parameters as a JSON object")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the run completes and print its result")
	cmd.MarkFlagRequired("agent-id")
	return cmd
}

func newRunSignalCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Send a signal to a running agent execution",
	}
	cmd.AddCommand(newSignalSubcommand(cfg, "pause", runtime.SignalPause, "Pause the run", func(reason string) any {
		return runtime.PauseSignal{Reason: reason}
	}))
	cmd.AddCommand(newSignalSubcommand(cfg, "resume", runtime.SignalResume, "Resume a paused run", func(reason string) any {
		return runtime.ResumeSignal{Reason: reason}
	}))
	cmd.AddCommand(newSignalSubcommand(cfg, "cancel", runtime.SignalCancel, "Cancel the run", func(reason string) any {
		return runtime.CancelSignal{Reason: reason}
	}))
	cmd.AddCommand(newApproveSubcommand(cfg))
	cmd.AddCommand(newFeedbackSubcommand(cfg))
	cmd.AddCommand(newUpdateBudgetSubcommand(cfg))
	return cmd
}

// newSignalSubcommand builds the pause/resume/cancel subcommands, which all
// share the {reason string} payload shape.
func newSignalSubcommand(cfg *cliConfig, use, signalName, short string, payload func(reason string) any) *cobra.Command {
	var taskID, reason string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendSignal(cmd.Context(), cfg, taskID, signalName, payload(reason))
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id of the running execution")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded alongside the signal")
	cmd.MarkFlagRequired("task-id")
	return cmd
}

func newApproveSubcommand(cfg *cliConfig) *cobra.Command {
	var taskID, feedback string
	var approved bool
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve or reject a pending human-approval gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendSignal(cmd.Context(), cfg, taskID, runtime.SignalApprove, runtime.ApproveSignal{
				Approved: approved,
				Feedback: feedback,
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id of the running execution")
	cmd.Flags().BoolVar(&approved, "approved", true, "Whether the pending action is approved")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Optional feedback recorded with the decision")
	cmd.MarkFlagRequired("task-id")
	return cmd
}

func newFeedbackSubcommand(cfg *cliConfig) *cobra.Command {
	var taskID, text string
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Send free-form feedback text to the running agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendSignal(cmd.Context(), cfg, taskID, runtime.SignalFeedback, runtime.FeedbackSignal{Text: text})
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id of the running execution")
	cmd.Flags().StringVar(&text, "text", "", "Feedback text")
	cmd.MarkFlagRequired("task-id")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newUpdateBudgetSubcommand(cfg *cliConfig) *cobra.Command {
	var taskID, reason string
	var newBudget float64
	cmd := &cobra.Command{
		Use:   "update-budget",
		Short: "Raise or lower the run's budget ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendSignal(cmd.Context(), cfg, taskID, runtime.SignalUpdateBudget, runtime.UpdateBudgetSignal{
				NewBudgetUSD: newBudget,
				Reason:       reason,
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id of the running execution")
	cmd.Flags().Float64Var(&newBudget, "new-budget-usd", 0, "New budget ceiling in USD")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded alongside the change")
	cmd.MarkFlagRequired("task-id")
	cmd.MarkFlagRequired("new-budget-usd")
	return cmd
}

func sendSignal(ctx context.Context, cfg *cliConfig, taskID, signalName string, payload any) error {
	cli, err := dialTemporal(cfg)
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer cli.Close()
	if err := cli.SignalWorkflow(ctx, taskID, "", signalName, payload); err != nil {
		return fmt.Errorf("signal %s: %w", signalName, err)
	}
	fmt.Printf("sent %s to %s\n", signalName, taskID)
	return nil
}

func newRunQueryCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a read-only query against a live or completed execution",
	}
	cmd.AddCommand(newQuerySubcommand(cfg, "status", runtime.QueryExecutionStatus, "Current execution status"))
	cmd.AddCommand(newQuerySubcommand(cfg, "history", runtime.QueryConversationHistory, "Full conversation history"))
	cmd.AddCommand(newQuerySubcommand(cfg, "goal-progress", runtime.QueryGoalProgress, "Goal progress summary"))
	cmd.AddCommand(newQuerySubcommand(cfg, "events", runtime.QueryWorkflowEvents, "All workflow events emitted so far"))
	cmd.AddCommand(newQuerySubcommand(cfg, "latest-events", runtime.QueryLatestEvents, "Most recent workflow events"))
	cmd.AddCommand(newQuerySubcommand(cfg, "budget", runtime.QueryBudgetStatus, "Budget status"))
	return cmd
}

func newQuerySubcommand(cfg *cliConfig, use, queryType, short string) *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := dialTemporal(cfg)
			if err != nil {
				return fmt.Errorf("dial temporal: %w", err)
			}
			defer cli.Close()

			resp, err := cli.QueryWorkflow(cmd.Context(), taskID, "", queryType)
			if err != nil {
				return fmt.Errorf("query %s: %w", queryType, err)
			}
			var result any
			if err := resp.Get(&result); err != nil {
				return fmt.Errorf("decode query result: %w", err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id of the execution to query")
	cmd.MarkFlagRequired("task-id")
	return cmd
}

func parseJSONObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(cmdStdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
