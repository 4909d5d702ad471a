package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTools are provisioned when a tenant selects no tools
var DefaultTools = []string{"crm", "contacts", "deals"}

var toolNames = map[string]string{
	"crm":             "CRM",
	"contacts":        "Contacts",
	"companies":       "Companies",
	"deals":           "Deals",
	"activities":      "Activities",
	"dashboard":       "Dashboard",
	"chatbot":         "Chatbot",
	"email-marketing": "Email Marketing",
	"invoicing":       "Invoicing",
}

// BusinessProfile is the signup information copied onto the tenant profile
type BusinessProfile struct {
	BusinessName string
	BusinessType string
	ContactName  string
	ContactEmail string
	Phone        string
}

// WorkspacePreferences are the configuration choices copied onto the tenant profile
type WorkspacePreferences struct {
	CompanyName    string
	Industry       string
	Timezone       string
	Currency       string
	Language       string
	PrimaryColor   string
	SecondaryColor string
	LogoURL        string
}

type Service struct {
	repo         Repository
	defaultTools []string
	now          func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, defaultTools: DefaultTools, now: time.Now}
}

// WithDefaultTools overrides the tools provisioned for an empty selection
func (s *Service) WithDefaultTools(tools []string) *Service {
	if len(tools) > 0 {
		s.defaultTools = tools
	}
	return s
}

func (s *Service) GetProfile(ctx context.Context, tenantID string) (*Profile, error) {
	return s.repo.GetProfile(ctx, tenantID)
}

func (s *Service) ListIntegrations(ctx context.Context, tenantID string) ([]Integration, error) {
	return s.repo.ListIntegrations(ctx, tenantID)
}

func (s *Service) GetSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.repo.GetSubscription(ctx, tenantID)
}

// ApplyBusinessProfile writes the signup details onto the tenant profile
func (s *Service) ApplyBusinessProfile(ctx context.Context, tenantID string, bp BusinessProfile) error {
	profile, err := s.loadProfile(ctx, tenantID)
	if err != nil {
		return err
	}
	profile.BusinessName = bp.BusinessName
	profile.BusinessType = bp.BusinessType
	profile.ContactName = bp.ContactName
	profile.ContactEmail = bp.ContactEmail
	profile.Phone = bp.Phone
	profile.UpdatedAt = s.now()
	return s.repo.UpsertProfile(ctx, profile)
}

// ApplyWorkspacePreferences writes the configuration choices onto the tenant
// profile. Empty fields keep the stored value, and brand colours that cannot
// be normalized keep the previous colour.
func (s *Service) ApplyWorkspacePreferences(ctx context.Context, tenantID string, wp WorkspacePreferences) error {
	profile, err := s.loadProfile(ctx, tenantID)
	if err != nil {
		return err
	}
	setIfPresent(&profile.CompanyName, wp.CompanyName)
	setIfPresent(&profile.Industry, wp.Industry)
	setIfPresent(&profile.Timezone, wp.Timezone)
	setIfPresent(&profile.Currency, strings.ToUpper(wp.Currency))
	setIfPresent(&profile.Language, wp.Language)
	setIfPresent(&profile.LogoURL, wp.LogoURL)
	if color, ok := NormalizeHexColor(wp.PrimaryColor); ok {
		profile.PrimaryColor = color
	}
	if color, ok := NormalizeHexColor(wp.SecondaryColor); ok {
		profile.SecondaryColor = color
	}
	profile.UpdatedAt = s.now()
	return s.repo.UpsertProfile(ctx, profile)
}

func setIfPresent(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

// ProvisionTools replaces the tenant's integrations with the selected tools,
// falling back to the default tool set for an empty selection.
func (s *Service) ProvisionTools(ctx context.Context, tenantID string, tools []string) ([]Integration, error) {
	keys := normalizeTools(tools)
	if len(keys) == 0 {
		keys = normalizeTools(s.defaultTools)
	}

	now := s.now()
	items := make([]Integration, 0, len(keys))
	for _, key := range keys {
		items = append(items, Integration{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Type:      key,
			Name:      toolName(key),
			IsActive:  true,
			CreatedAt: now,
		})
	}

	if err := s.repo.ReplaceIntegrations(ctx, tenantID, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ActivatePlan records the selected plan. Paid plans stay pending until billing
// confirms them; the free plan is active immediately.
func (s *Service) ActivatePlan(ctx context.Context, tenantID, plan, cycle string, seats int) (*Subscription, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		plan = "free"
	}
	if cycle == "" {
		cycle = "monthly"
	}
	if seats <= 0 {
		seats = 1
	}

	status := SubscriptionPendingActivation
	if plan == "free" {
		status = SubscriptionActive
	}

	sub := &Subscription{
		TenantID:     tenantID,
		Plan:         plan,
		Status:       status,
		BillingCycle: cycle,
		Seats:        seats,
		UpdatedAt:    s.now(),
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) loadProfile(ctx context.Context, tenantID string) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		now := s.now()
		return &Profile{TenantID: tenantID, Language: "en", Timezone: "UTC", CreatedAt: now}, nil
	}
	return profile, err
}

func normalizeTools(tools []string) []string {
	seen := make(map[string]bool, len(tools))
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func toolName(key string) string {
	if name, ok := toolNames[key]; ok {
		return name
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.Und).String(strings.Join(words, " "))
}
