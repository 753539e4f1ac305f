// Package trigger implements the Trigger Service & Schedule Manager (C8):
// CRUD over persisted Trigger records, lockstep management of the workflow
// runtime's cron schedules, and the condition-evaluation policy that gates
// whether a fired trigger creates a task.
//
// Grounded on the teacher's registry/service.go (CRUD-over-store shape,
// ServiceOptions construction) and registry/store.Store (interface pattern,
// ErrNotFound convention); the Trigger/CronConfig/WebhookConfig discriminated
// union follows §9's "tagged variant, not inheritance" design note.
package trigger

import "time"

// Type discriminates the Trigger variant, per §9's tagged-union design note.
type Type string

const (
	TypeCron    Type = "cron"
	TypeWebhook Type = "webhook"
)

// WebhookKind enumerates the supported webhook fan-in shapes.
type WebhookKind string

const (
	WebhookGeneric  WebhookKind = "generic"
	WebhookTelegram WebhookKind = "telegram"
	WebhookSlack    WebhookKind = "slack"
	WebhookGithub   WebhookKind = "github"
)

// ExecutionStatus is the outcome recorded for one TriggerExecution.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionSkipped ExecutionStatus = "skipped"
)

type (
	// Trigger is a persisted rule that starts an Agent Execution Workflow
	// when fired by a schedule or a webhook call. Cron is non-nil iff
	// Type == TypeCron; Webhook is non-nil iff Type == TypeWebhook.
	Trigger struct {
		ID                   string         `json:"id" bson:"_id"`
		Name                 string         `json:"name" bson:"name"`
		Description          string         `json:"description,omitempty" bson:"description,omitempty"`
		AgentID              string         `json:"agent_id" bson:"agent_id"`
		Type                 Type           `json:"trigger_type" bson:"trigger_type"`
		IsActive             bool           `json:"is_active" bson:"is_active"`
		TaskParameters       map[string]any `json:"task_parameters,omitempty" bson:"task_parameters,omitempty"`
		Conditions           map[string]any `json:"conditions,omitempty" bson:"conditions,omitempty"`
		CreatedBy            string         `json:"created_by" bson:"created_by"`
		MaxExecutionsPerHour int            `json:"max_executions_per_hour,omitempty" bson:"max_executions_per_hour,omitempty"`
		FailureThreshold     int            `json:"failure_threshold,omitempty" bson:"failure_threshold,omitempty"`
		ConsecutiveFailures  int            `json:"consecutive_failures" bson:"consecutive_failures"`
		LastExecutionAt      *time.Time     `json:"last_execution_at,omitempty" bson:"last_execution_at,omitempty"`

		Cron    *CronConfig    `json:"cron,omitempty" bson:"cron,omitempty"`
		Webhook *WebhookConfig `json:"webhook,omitempty" bson:"webhook,omitempty"`
	}

	// CronConfig is the cron-specific extension of a Trigger.
	CronConfig struct {
		CronExpression string     `json:"cron_expression" bson:"cron_expression"`
		Timezone       string     `json:"timezone" bson:"timezone"`
		NextRunTime    *time.Time `json:"next_run_time,omitempty" bson:"next_run_time,omitempty"`
	}

	// WebhookConfig is the webhook-specific extension of a Trigger.
	WebhookConfig struct {
		WebhookID       string         `json:"webhook_id" bson:"webhook_id"`
		AllowedMethods  []string       `json:"allowed_methods" bson:"allowed_methods"`
		WebhookType     WebhookKind    `json:"webhook_type" bson:"webhook_type"`
		ValidationRules map[string]any `json:"validation_rules,omitempty" bson:"validation_rules,omitempty"`
		Config          map[string]any `json:"webhook_config,omitempty" bson:"webhook_config,omitempty"`
	}

	// Execution is a TriggerExecution: an append-only record of one fire of
	// a Trigger.
	Execution struct {
		ID              string          `json:"id" bson:"_id"`
		TriggerID       string          `json:"trigger_id" bson:"trigger_id"`
		ExecutedAt      time.Time       `json:"executed_at" bson:"executed_at"`
		Status          ExecutionStatus `json:"status" bson:"status"`
		TaskID          string          `json:"task_id,omitempty" bson:"task_id,omitempty"`
		ExecutionTimeMs int64           `json:"execution_time_ms" bson:"execution_time_ms"`
		ErrorMessage    string          `json:"error_message,omitempty" bson:"error_message,omitempty"`
		TriggerData     map[string]any  `json:"trigger_data,omitempty" bson:"trigger_data,omitempty"`
	}

	// Update carries the mutable fields of update_trigger; nil pointer fields
	// are left unchanged.
	Update struct {
		Name                 *string
		Description          *string
		IsActive             *bool
		TaskParameters       map[string]any
		Conditions           map[string]any
		MaxExecutionsPerHour *int
		FailureThreshold     *int
		CronExpression       *string
		Timezone             *string
		AllowedMethods       []string
	}
)

// standardHTTPMethods is the set allowed_methods must be a subset of.
var standardHTTPMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Apply mutates t in place with the non-nil fields of u, and returns whether
// the cron schedule or active flag changed (the two conditions that require
// the Schedule Manager to be re-synced, per §4.8).
func (u Update) Apply(t *Trigger) (scheduleChanged bool) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.TaskParameters != nil {
		t.TaskParameters = u.TaskParameters
	}
	if u.Conditions != nil {
		t.Conditions = u.Conditions
	}
	if u.MaxExecutionsPerHour != nil {
		t.MaxExecutionsPerHour = *u.MaxExecutionsPerHour
	}
	if u.FailureThreshold != nil {
		t.FailureThreshold = *u.FailureThreshold
	}
	if u.IsActive != nil && *u.IsActive != t.IsActive {
		t.IsActive = *u.IsActive
		scheduleChanged = true
	}
	if t.Cron != nil {
		if u.CronExpression != nil && *u.CronExpression != t.Cron.CronExpression {
			t.Cron.CronExpression = *u.CronExpression
			scheduleChanged = true
		}
		if u.Timezone != nil {
			t.Cron.Timezone = *u.Timezone
		}
	}
	if t.Webhook != nil && u.AllowedMethods != nil {
		t.Webhook.AllowedMethods = u.AllowedMethods
	}
	return scheduleChanged
}
