package settings

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses
const (
	SubscriptionActive            = "active"
	SubscriptionPendingActivation = "pending_activation"
)

// Profile holds the business profile and workspace preferences of a tenant
type Profile struct {
	TenantID       string    `gorm:"primaryKey;type:varchar(64)" json:"tenant_id"`
	BusinessName   string    `json:"business_name"`
	BusinessType   string    `json:"business_type"`
	ContactName    string    `json:"contact_name"`
	ContactEmail   string    `json:"contact_email"`
	Phone          string    `json:"phone"`
	CompanyName    string    `json:"company_name"`
	Industry       string    `json:"industry"`
	Language       string    `json:"language"`
	Timezone       string    `json:"timezone"`
	Currency       string    `json:"currency"`
	PrimaryColor   string    `json:"primary_color"`
	SecondaryColor string    `json:"secondary_color"`
	LogoURL        string    `json:"logo_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "tenant_profiles"
}

// Integration is a tool enabled for a tenant
type Integration struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Type      string    `gorm:"not null" json:"type"`
	Name      string    `gorm:"not null" json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Integration) TableName() string {
	return "tenant_integrations"
}

// Subscription is the billing plan placeholder of a tenant
type Subscription struct {
	TenantID     string    `gorm:"primaryKey;type:varchar(64)" json:"tenant_id"`
	Plan         string    `gorm:"not null" json:"plan"`
	Status       string    `gorm:"not null" json:"status"`
	BillingCycle string    `json:"billing_cycle"`
	Seats        int       `json:"seats"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "tenant_subscriptions"
}
