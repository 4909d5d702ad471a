package onboarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bizhub/platform/platform-backend/internal/settings"
	"bizhub/platform/platform-backend/pkg/messaging"
)

const (
	EventStepCompleted       = "onboarding.step_completed"
	EventOnboardingCompleted = "onboarding.completed"
)

// Mailer sends the signup welcome email
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, email messaging.WelcomeEmail) (string, error)
}

// EventPublisher publishes platform events
type EventPublisher interface {
	PublishEvent(ctx context.Context, event messaging.Event) error
}

// Broadcaster pushes live progress to a tenant's connected clients
type Broadcaster interface {
	Broadcast(tenantID, eventType string, payload interface{}) error
}

// Provisioner turns completed steps into tenant settings and notifications.
// Any collaborator may be nil, in which case its hooks are not registered.
type Provisioner struct {
	settings    *settings.Service
	mailer      Mailer
	publisher   EventPublisher
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewProvisioner(settingsService *settings.Service, mailer Mailer, publisher EventPublisher, broadcaster Broadcaster, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		settings:    settingsService,
		mailer:      mailer,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Register attaches the provisioning hooks to d
func (p *Provisioner) Register(d *Dispatcher) {
	if p.settings != nil {
		d.Register(StepSignUp, "apply_business_profile", p.applyBusinessProfile)
		d.Register(StepConfiguration, "apply_workspace_settings", p.applyWorkspaceSettings)
		d.Register(StepToolSelection, "provision_tools", p.provisionTools)
		d.Register(StepBillingPlan, "activate_billing_plan", p.activateBillingPlan)
	}
	if p.mailer != nil {
		d.Register(StepSignUp, "send_welcome_email", p.sendWelcomeEmail)
	}
	if p.broadcaster != nil {
		d.RegisterAll("broadcast_progress", p.broadcastProgress)
	}
	if p.publisher != nil {
		d.RegisterAll("publish_completion", p.publishCompletion)
	}
}

func (p *Provisioner) applyBusinessProfile(ctx context.Context, event HookEvent) error {
	data, ok := event.Data.(*SignUpData)
	if !ok {
		return unexpectedData(event)
	}
	return p.settings.ApplyBusinessProfile(ctx, event.TenantID, settings.BusinessProfile{
		BusinessName: data.BusinessName,
		BusinessType: data.BusinessType,
		ContactName:  data.ContactName,
		ContactEmail: data.ContactEmail,
		Phone:        data.Phone,
	})
}

func (p *Provisioner) sendWelcomeEmail(ctx context.Context, event HookEvent) error {
	data, ok := event.Data.(*SignUpData)
	if !ok {
		return unexpectedData(event)
	}
	messageID, err := p.mailer.SendWelcomeEmail(ctx, messaging.WelcomeEmail{
		To:           data.ContactEmail,
		ContactName:  data.ContactName,
		BusinessName: data.BusinessName,
	})
	if err != nil {
		return err
	}
	p.logger.Debug("Welcome email sent",
		zap.String("tenant_id", event.TenantID),
		zap.String("message_id", messageID))
	return nil
}

func (p *Provisioner) applyWorkspaceSettings(ctx context.Context, event HookEvent) error {
	data, ok := event.Data.(*ConfigurationData)
	if !ok {
		return unexpectedData(event)
	}
	return p.settings.ApplyWorkspacePreferences(ctx, event.TenantID, settings.WorkspacePreferences{
		CompanyName:    data.CompanyName,
		Industry:       data.Industry,
		Timezone:       data.Timezone,
		Currency:       data.Currency,
		Language:       data.Language,
		PrimaryColor:   data.PrimaryColor,
		SecondaryColor: data.SecondaryColor,
		LogoURL:        data.LogoURL,
	})
}

func (p *Provisioner) provisionTools(ctx context.Context, event HookEvent) error {
	data, ok := event.Data.(*ToolSelectionData)
	if !ok {
		return unexpectedData(event)
	}
	items, err := p.settings.ProvisionTools(ctx, event.TenantID, data.Tools)
	if err != nil {
		return err
	}
	p.logger.Info("Tools provisioned",
		zap.String("tenant_id", event.TenantID),
		zap.Int("count", len(items)))
	return nil
}

func (p *Provisioner) activateBillingPlan(ctx context.Context, event HookEvent) error {
	data, ok := event.Data.(*BillingPlanData)
	if !ok {
		return unexpectedData(event)
	}
	sub, err := p.settings.ActivatePlan(ctx, event.TenantID, data.Plan, data.BillingCycle, data.Seats)
	if err != nil {
		return err
	}
	p.logger.Info("Billing plan selected",
		zap.String("tenant_id", event.TenantID),
		zap.String("plan", sub.Plan),
		zap.String("status", sub.Status))
	return nil
}

func (p *Provisioner) broadcastProgress(_ context.Context, event HookEvent) error {
	return p.broadcaster.Broadcast(event.TenantID, EventStepCompleted, map[string]interface{}{
		"stepId":      event.StepID,
		"currentStep": event.State.CurrentStep,
		"isCompleted": event.State.IsCompleted,
		"version":     event.State.Version,
	})
}

// publishCompletion only fires for the step that completed the onboarding
func (p *Provisioner) publishCompletion(ctx context.Context, event HookEvent) error {
	if !event.State.IsCompleted {
		return nil
	}
	occurredAt := event.State.UpdatedAt
	if event.State.CompletedAt != nil {
		occurredAt = *event.State.CompletedAt
	}
	return p.publisher.PublishEvent(ctx, messaging.Event{
		Type:       EventOnboardingCompleted,
		TenantID:   event.TenantID,
		OccurredAt: occurredAt,
		Data: map[string]any{
			"lastStep": string(event.StepID),
			"version":  event.State.Version,
		},
	})
}

func unexpectedData(event HookEvent) error {
	return fmt.Errorf("unexpected payload %T for step %s", event.Data, event.StepID)
}
