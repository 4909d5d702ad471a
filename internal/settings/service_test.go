package settings

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ApplyProfileAndPreferences(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	_, err := svc.GetProfile(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.ApplyBusinessProfile(ctx, "t1", BusinessProfile{
		BusinessName: "Acme",
		BusinessType: "Retail",
		ContactEmail: "a@b.com",
	}))
	require.NoError(t, svc.ApplyWorkspacePreferences(ctx, "t1", WorkspacePreferences{
		CompanyName:  "Acme Ltd",
		Currency:     "gbp",
		Timezone:     "Europe/London",
		PrimaryColor: "F0A",
	}))

	profile, err := svc.GetProfile(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.BusinessName)
	assert.Equal(t, "Acme Ltd", profile.CompanyName)
	assert.Equal(t, "GBP", profile.Currency)
	assert.Equal(t, "#ff00aa", profile.PrimaryColor)
	assert.Equal(t, "Europe/London", profile.Timezone)
	assert.False(t, profile.CreatedAt.IsZero())
}

func TestService_ProvisionTools(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	items, err := svc.ProvisionTools(ctx, "t1", []string{" CRM ", "email-marketing", "crm", ""})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "crm", items[0].Type)
	assert.Equal(t, "CRM", items[0].Name)
	assert.Equal(t, "Email Marketing", items[1].Name)

	items, err = svc.ProvisionTools(ctx, "t1", []string{"time_tracking"})
	require.NoError(t, err)
	assert.Equal(t, "Time Tracking", items[0].Name)

	stored, err := svc.ListIntegrations(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "time_tracking", stored[0].Type)
	assert.True(t, stored[0].IsActive)
}

func TestService_ApplyPreferencesKeepsStoredValues(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	require.NoError(t, svc.ApplyWorkspacePreferences(ctx, "t1", WorkspacePreferences{CompanyName: "Acme"}))

	profile, err := svc.GetProfile(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.CompanyName)
	assert.Equal(t, "UTC", profile.Timezone)
	assert.Equal(t, "en", profile.Language)

	require.NoError(t, svc.ApplyWorkspacePreferences(ctx, "t1", WorkspacePreferences{
		Language:     "de",
		PrimaryColor: "#112233",
	}))
	require.NoError(t, svc.ApplyWorkspacePreferences(ctx, "t1", WorkspacePreferences{
		PrimaryColor:   "nope",
		SecondaryColor: "#ABC",
	}))

	profile, err = svc.GetProfile(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.CompanyName)
	assert.Equal(t, "de", profile.Language)
	assert.Equal(t, "UTC", profile.Timezone)
	assert.Equal(t, "#112233", profile.PrimaryColor)
	assert.Equal(t, "#aabbcc", profile.SecondaryColor)
}

func TestService_ProvisionToolsNonASCIIKey(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	items, err := svc.ProvisionTools(ctx, "t1", []string{"école-suite", "ñandu"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "École Suite", items[0].Name)
	assert.Equal(t, "Ñandu", items[1].Name)
	for _, item := range items {
		assert.True(t, utf8.ValidString(item.Name), item.Name)
	}
}

func TestService_ProvisionToolsDefaults(t *testing.T) {
	ctx := context.Background()

	items, err := NewService(NewMemoryRepository()).ProvisionTools(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Len(t, items, len(DefaultTools))

	items, err = NewService(NewMemoryRepository()).WithDefaultTools([]string{"dashboard"}).ProvisionTools(ctx, "t1", []string{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "dashboard", items[0].Type)
}

func TestService_ActivatePlan(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	sub, err := svc.ActivatePlan(ctx, "t1", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "free", sub.Plan)
	assert.Equal(t, SubscriptionActive, sub.Status)
	assert.Equal(t, "monthly", sub.BillingCycle)
	assert.Equal(t, 1, sub.Seats)

	sub, err = svc.ActivatePlan(ctx, "t1", " Business ", "yearly", 10)
	require.NoError(t, err)
	assert.Equal(t, "business", sub.Plan)
	assert.Equal(t, SubscriptionPendingActivation, sub.Status)

	stored, err := svc.GetSubscription(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, *sub, *stored)
}

type failingRepository struct {
	*MemoryRepository
}

func (failingRepository) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	return errors.New("write failed")
}

func TestService_ActivatePlanError(t *testing.T) {
	svc := NewService(failingRepository{NewMemoryRepository()})

	_, err := svc.ActivatePlan(context.Background(), "t1", "pro", "", 1)
	assert.EqualError(t, err, "write failed")
}
