package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BusinessTypes is the accepted set for SignUpData.BusinessType
var BusinessTypes = []string{
	"Consulting",
	"Retail",
	"Healthcare",
	"Technology",
	"Manufacturing",
	"Real Estate",
	"Education",
	"Hospitality",
	"Financial Services",
	"Nonprofit",
	"Other",
}

// StepDefinition is the static description of one onboarding step
type StepDefinition struct {
	ID          StepID
	Title       string
	Description string
}

var stepDefinitions = []StepDefinition{
	{
		ID:          StepSignUp,
		Title:       "Create your account",
		Description: "Tell us about your business and how to reach you.",
	},
	{
		ID:          StepConfiguration,
		Title:       "Configure your workspace",
		Description: "Set your company details, locale and branding.",
	},
	{
		ID:          StepToolSelection,
		Title:       "Choose your tools",
		Description: "Pick the tools to enable for your team.",
	},
	{
		ID:          StepBillingPlan,
		Title:       "Select a plan",
		Description: "Choose the billing plan that fits your business.",
	},
}

func newStepData(id StepID) (StepData, error) {
	switch id {
	case StepSignUp:
		return &SignUpData{}, nil
	case StepConfiguration:
		return &ConfigurationData{}, nil
	case StepToolSelection:
		return &ToolSelectionData{}, nil
	case StepBillingPlan:
		return &BillingPlanData{}, nil
	default:
		return nil, unknownStep(id)
	}
}

// Registry is the ordered source of truth for the onboarding steps and
// validates their payloads. It is immutable after construction.
type Registry struct {
	index    map[StepID]int
	validate *validator.Validate
}

// NewRegistry creates the step registry
func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("business_type", func(fl validator.FieldLevel) bool {
		_, ok := canonicalBusinessType(fl.Field().String())
		return ok
	})

	index := make(map[StepID]int, len(stepDefinitions))
	for i, def := range stepDefinitions {
		index[def.ID] = i
	}

	return &Registry{index: index, validate: v}
}

// StepIDs returns the step ids in onboarding order
func (r *Registry) StepIDs() []StepID {
	ids := make([]StepID, len(stepDefinitions))
	for i, def := range stepDefinitions {
		ids[i] = def.ID
	}
	return ids
}

// Definitions returns the step definitions in onboarding order
func (r *Registry) Definitions() []StepDefinition {
	defs := make([]StepDefinition, len(stepDefinitions))
	copy(defs, stepDefinitions)
	return defs
}

// Lookup returns the definition for id or ErrUnknownStep
func (r *Registry) Lookup(id StepID) (StepDefinition, error) {
	i, ok := r.index[id]
	if !ok {
		return StepDefinition{}, unknownStep(id)
	}
	return stepDefinitions[i], nil
}

// IndexOf returns the position of id in the onboarding order
func (r *Registry) IndexOf(id StepID) (int, error) {
	i, ok := r.index[id]
	if !ok {
		return 0, unknownStep(id)
	}
	return i, nil
}

// Validate decodes payload into the concrete type for id and checks it.
// Only signup carries field rules; the other steps accept any payload that
// decodes into their shape.
func (r *Registry) Validate(id StepID, payload []byte) (StepData, error) {
	data, err := newStepData(id)
	if err != nil {
		return nil, err
	}

	if !isEmptyPayload(payload) {
		if err := json.Unmarshal(payload, data); err != nil {
			return nil, &ValidationError{StepID: id, Fields: []FieldError{decodeFieldError(err)}}
		}
	}

	if signup, ok := data.(*SignUpData); ok {
		signup.BusinessType = strings.TrimSpace(signup.BusinessType)
		signup.ContactEmail = strings.TrimSpace(signup.ContactEmail)
	}

	if err := r.validate.Struct(data); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate %s payload: %w", id, err)
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Reason: reasonFor(fe)})
		}
		return nil, &ValidationError{StepID: id, Fields: fields}
	}

	if signup, ok := data.(*SignUpData); ok {
		signup.BusinessType, _ = canonicalBusinessType(signup.BusinessType)
	}
	return data, nil
}

func canonicalBusinessType(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, bt := range BusinessTypes {
		if strings.EqualFold(bt, value) {
			return bt, true
		}
	}
	return value, false
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "business_type":
		return "must be one of: " + strings.Join(BusinessTypes, ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func decodeFieldError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return FieldError{Field: typeErr.Field, Reason: "must be of type " + typeErr.Type.String()}
	}
	return FieldError{Reason: "payload is not a valid JSON object"}
}
