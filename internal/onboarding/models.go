package onboarding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"bizhub/platform/platform-backend/pkg/workflows"
)

// StepID identifies one of the fixed onboarding steps
type StepID string

const (
	StepSignUp        StepID = "signup"
	StepConfiguration StepID = "configuration"
	StepToolSelection StepID = "tool-selection"
	StepBillingPlan   StepID = "billing-plan"
)

// StepData is the validated payload of a completed step. Each step id has
// exactly one concrete implementation.
type StepData interface {
	StepID() StepID
}

// SignUpData is the payload of the signup step
type SignUpData struct {
	BusinessName string `json:"businessName,omitempty"`
	BusinessType string `json:"businessType" validate:"required,business_type"`
	ContactName  string `json:"contactName,omitempty"`
	ContactEmail string `json:"contactEmail" validate:"required,email"`
	Phone        string `json:"phone,omitempty"`
}

// ConfigurationData is the payload of the configuration step
type ConfigurationData struct {
	CompanyName    string `json:"companyName,omitempty"`
	Industry       string `json:"industry,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Language       string `json:"language,omitempty"`
	PrimaryColor   string `json:"primaryColor,omitempty"`
	SecondaryColor string `json:"secondaryColor,omitempty"`
	LogoURL        string `json:"logoUrl,omitempty"`
}

// ToolSelectionData is the payload of the tool-selection step
type ToolSelectionData struct {
	Tools []string `json:"tools"`
}

// BillingPlanData is the payload of the billing-plan step
type BillingPlanData struct {
	Plan         string `json:"plan,omitempty"`
	BillingCycle string `json:"billingCycle,omitempty"`
	Seats        int    `json:"seats,omitempty"`
}

func (*SignUpData) StepID() StepID        { return StepSignUp }
func (*ConfigurationData) StepID() StepID { return StepConfiguration }
func (*ToolSelectionData) StepID() StepID { return StepToolSelection }
func (*BillingPlanData) StepID() StepID   { return StepBillingPlan }

// OnboardingStep is one step of a tenant's onboarding
type OnboardingStep struct {
	ID          StepID     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Data        StepData   `json:"data"`
}

type stepJSON struct {
	ID          StepID          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// UnmarshalJSON decodes the step and resolves Data to the concrete payload
// type for the step id. Stored payloads are not re-validated.
func (s *OnboardingStep) UnmarshalJSON(b []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*s = OnboardingStep{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Status:      raw.Status,
		Completed:   raw.Completed,
		CompletedAt: raw.CompletedAt,
	}

	if isEmptyPayload(raw.Data) {
		return nil
	}
	data, err := newStepData(raw.ID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw.Data, data); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", raw.ID, err)
	}
	s.Data = data
	return nil
}

// OnboardingState is the onboarding document of a single tenant
type OnboardingState struct {
	TenantID         string           `json:"tenantId"`
	Version          int64            `json:"version"`
	CurrentStep      int              `json:"currentStep"`
	IsCompleted      bool             `json:"isCompleted"`
	Steps            []OnboardingStep `json:"steps"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
	ForceCompletedBy string           `json:"forceCompletedBy,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Lifecycle reports the overall status of the onboarding
func (s *OnboardingState) Lifecycle() string {
	if s.IsCompleted {
		return workflows.StatusCompleted
	}
	return workflows.StatusInProgress
}

// Step returns the step with the given id
func (s *OnboardingState) Step(id StepID) (*OnboardingStep, bool) {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// FirstIncomplete returns the index of the first step not yet completed, or
// len(Steps) when every step is completed.
func (s *OnboardingState) FirstIncomplete() int {
	for i, step := range s.Steps {
		if !step.Completed {
			return i
		}
	}
	return len(s.Steps)
}

// AllCompleted reports whether every step is completed
func (s *OnboardingState) AllCompleted() bool {
	return s.FirstIncomplete() == len(s.Steps)
}

// Clone returns a deep copy through the JSON encoding used by the stores.
func (s *OnboardingState) Clone() (*OnboardingState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out OnboardingState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func isEmptyPayload(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
