package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/goadesign/agentrun/engine"
	temporalengine "github.com/goadesign/agentrun/engine/temporal"
	"github.com/goadesign/agentrun/trigger"
	triggermongo "github.com/goadesign/agentrun/trigger/store/mongo"
	"github.com/goadesign/agentrun/triggerwf"
)

func newTriggerCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Administer cron and webhook triggers",
	}
	cmd.AddCommand(newTriggerCreateCronCommand(cfg))
	cmd.AddCommand(newTriggerListCommand(cfg))
	cmd.AddCommand(newTriggerShowCommand(cfg))
	cmd.AddCommand(newTriggerEnableCommand(cfg))
	cmd.AddCommand(newTriggerDisableCommand(cfg))
	cmd.AddCommand(newTriggerDeleteCommand(cfg))
	return cmd
}

// triggerDeps bundles the store and schedule manager every trigger
// subcommand needs; built fresh per invocation since agentrun-cli is a
// one-shot process, not a long-lived server.
type triggerDeps struct {
	svc      *trigger.Service
	mongoCli *mongodriver.Client
	temporal temporalclient.Client
}

func (d *triggerDeps) Close() {
	if d.mongoCli != nil {
		_ = d.mongoCli.Disconnect(context.Background())
	}
	if d.temporal != nil {
		d.temporal.Close()
	}
}

func dialTriggerDeps(ctx context.Context, cfg *cliConfig) (*triggerDeps, error) {
	if cfg.mongoURI == "" {
		return nil, fmt.Errorf("--mongo-uri (or MONGO_URI) is required for trigger commands")
	}
	mongoCli, err := mongodriver.Connect(options.Client().ApplyURI(cfg.mongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	store, err := triggermongo.New(triggermongo.Options{
		Client:   mongoCli,
		Database: cfg.mongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("construct trigger store: %w", err)
	}

	temporalCli, err := dialTemporal(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	eng, err := temporalengine.New(temporalengine.Options{
		Client: temporalCli,
		WorkerOptions: temporalengine.WorkerOptions{
			TaskQueue: cfg.taskQueue,
		},
		DisableWorkerAutoStart: true,
	})
	if err != nil {
		return nil, fmt.Errorf("construct engine: %w", err)
	}

	svc, err := trigger.NewService(trigger.Options{
		Store:     store,
		Schedules: engine.ScheduleManager(eng),
		Workflow:  triggerwf.WorkflowName,
		TaskQueue: triggerwf.TaskQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("construct trigger service: %w", err)
	}
	return &triggerDeps{svc: svc, mongoCli: mongoCli, temporal: temporalCli}, nil
}

func newTriggerCreateCronCommand(cfg *cliConfig) *cobra.Command {
	var (
		name, agentID, cronExpr, timezone, taskQuery, createdBy string
		maxPerHour, failureThreshold                            int
	)
	cmd := &cobra.Command{
		Use:   "create-cron",
		Short: "Create a cron-scheduled trigger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := dialTriggerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			t, err := deps.svc.CreateTrigger(cmd.Context(), trigger.Trigger{
				Name:                 name,
				AgentID:              agentID,
				CreatedBy:            createdBy,
				Type:                 trigger.TypeCron,
				IsActive:             true,
				MaxExecutionsPerHour: maxPerHour,
				FailureThreshold:     failureThreshold,
				TaskParameters:       map[string]any{"task_query": taskQuery},
				Cron: &trigger.CronConfig{
					CronExpression: cronExpr,
					Timezone:       timezone,
				},
			})
			if err != nil {
				return fmt.Errorf("create trigger: %w", err)
			}
			fmt.Printf("created trigger %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Trigger name")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "Agent id the trigger starts")
	cmd.Flags().StringVar(&createdBy, "created-by", "agentrun-cli", "Identity recorded as the trigger's creator")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression, e.g. \"0 9 * * *\"")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone for the cron expression")
	cmd.Flags().StringVar(&taskQuery, "query", "", "Task query passed to the agent on each fire")
	cmd.Flags().IntVar(&maxPerHour, "max-per-hour", 0, "Rate limit: max executions per hour (0 = unlimited)")
	cmd.Flags().IntVar(&failureThreshold, "failure-threshold", 0, "Consecutive failures before auto-disable (0 = never)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("agent-id")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func newTriggerListCommand(cfg *cliConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := dialTriggerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			triggers, err := deps.svc.ListTriggers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list triggers: %w", err)
			}
			for _, t := range triggers {
				status := "inactive"
				if t.IsActive {
					status = "active"
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Type, status)
			}
			return nil
		},
	}
	return cmd
}

func newTriggerShowCommand(cfg *cliConfig) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one trigger's full record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := dialTriggerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			t, err := deps.svc.GetTrigger(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get trigger: %w", err)
			}
			return printJSON(t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Trigger id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newTriggerEnableCommand(cfg *cliConfig) *cobra.Command {
	return newTriggerToggleCommand(cfg, "enable", "Re-activate a disabled trigger", (*trigger.Service).EnableTrigger)
}

func newTriggerDisableCommand(cfg *cliConfig) *cobra.Command {
	return newTriggerToggleCommand(cfg, "disable", "Deactivate a trigger without deleting it", (*trigger.Service).DisableTrigger)
}

func newTriggerToggleCommand(cfg *cliConfig, use, short string, op func(*trigger.Service, context.Context, string) error) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := dialTriggerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()
			if err := op(deps.svc, cmd.Context(), id); err != nil {
				return fmt.Errorf("%s trigger: %w", use, err)
			}
			fmt.Printf("%sd trigger %s\n", use, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Trigger id")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newTriggerDeleteCommand(cfg *cliConfig) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete a trigger and its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := dialTriggerDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer deps.Close()
			if err := deps.svc.DeleteTrigger(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete trigger: %w", err)
			}
			fmt.Printf("deleted trigger %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Trigger id")
	cmd.MarkFlagRequired("id")
	return cmd
}
