package trigger

import (
	"context"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/goadesign/agentrun/catalogue"
)

// cronParser accepts both 5-field (minute-precision) and 6-field
// (second-precision) expressions, matching spec.md §3's "5- or 6-field
// cron" contract. It is used purely for syntax validation here — actual
// firing is delegated to the workflow runtime's schedule primitives per
// §4.8/Non-goals.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// validate checks t against spec.md §4.8's create_trigger rules. cat, when
// non-nil, is consulted to validate AgentID against the catalogue.
func validate(ctx context.Context, t *Trigger, cat catalogue.Client) error {
	if strings.TrimSpace(t.Name) == "" {
		return newValidationError("name is required")
	}
	if strings.TrimSpace(t.CreatedBy) == "" {
		return newValidationError("created_by is required")
	}
	if strings.TrimSpace(t.AgentID) == "" {
		return newValidationError("agent_id is required")
	}
	if cat != nil {
		if _, err := cat.GetAgentConfig(ctx, t.AgentID); err != nil {
			return newValidationError("agent %q does not exist: %v", t.AgentID, err)
		}
	}

	switch t.Type {
	case TypeCron:
		if t.Cron == nil {
			return newValidationError("cron trigger requires cron config")
		}
		if err := validateCronConfig(*t.Cron); err != nil {
			return err
		}
	case TypeWebhook:
		if t.Webhook == nil {
			return newValidationError("webhook trigger requires webhook config")
		}
		if err := validateWebhookConfig(*t.Webhook); err != nil {
			return err
		}
	default:
		return newValidationError("unknown trigger_type %q", t.Type)
	}
	return nil
}

func validateCronConfig(c CronConfig) error {
	fields := strings.Fields(c.CronExpression)
	if len(fields) != 5 && len(fields) != 6 {
		return newValidationError("cron_expression must have 5 or 6 fields, got %d", len(fields))
	}
	if _, err := cronParser.Parse(c.CronExpression); err != nil {
		return newValidationError("invalid cron_expression %q: %v", c.CronExpression, err)
	}
	if strings.TrimSpace(c.Timezone) == "" {
		return newValidationError("timezone is required")
	}
	return nil
}

func validateWebhookConfig(w WebhookConfig) error {
	if strings.TrimSpace(w.WebhookID) == "" {
		return newValidationError("webhook_id is required")
	}
	if len(w.WebhookID) > 16 {
		return newValidationError("webhook_id must be at most 16 characters")
	}
	if len(w.AllowedMethods) == 0 {
		return newValidationError("allowed_methods must be non-empty")
	}
	for _, m := range w.AllowedMethods {
		if !standardHTTPMethods[strings.ToUpper(m)] {
			return newValidationError("allowed_methods contains non-standard method %q", m)
		}
	}
	switch w.WebhookType {
	case WebhookGeneric, WebhookTelegram, WebhookSlack, WebhookGithub, "":
	default:
		return newValidationError("unknown webhook_type %q", w.WebhookType)
	}
	return nil
}
