package settings

import (
	"context"
	"errors"
	"sort"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a tenant has no record of the requested kind
var ErrNotFound = errors.New("settings not found")

type Repository interface {
	GetProfile(ctx context.Context, tenantID string) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) error

	ListIntegrations(ctx context.Context, tenantID string) ([]Integration, error)
	ReplaceIntegrations(ctx context.Context, tenantID string, items []Integration) error

	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, sub *Subscription) error
}

// AutoMigrate creates or updates the settings tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Profile{}, &Integration{}, &Subscription{})
}

// RepositoryImpl handles all database operations for settings
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository
func NewRepository(db *gorm.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetProfile(ctx context.Context, tenantID string) (*Profile, error) {
	var profile Profile
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *RepositoryImpl) UpsertProfile(ctx context.Context, profile *Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(profile).Error
}

func (r *RepositoryImpl) ListIntegrations(ctx context.Context, tenantID string) ([]Integration, error) {
	var items []Integration
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("type ASC").
		Find(&items).Error
	return items, err
}

// ReplaceIntegrations swaps the tenant's integrations for items in one transaction.
func (r *RepositoryImpl) ReplaceIntegrations(ctx context.Context, tenantID string, items []Integration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&Integration{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *RepositoryImpl) GetSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *RepositoryImpl) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(sub).Error
}

// MemoryRepository is an in-process Repository for tests and development.
type MemoryRepository struct {
	mu            sync.RWMutex
	profiles      map[string]Profile
	integrations  map[string][]Integration
	subscriptions map[string]Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles:      make(map[string]Profile),
		integrations:  make(map[string][]Integration),
		subscriptions: make(map[string]Subscription),
	}
}

func (m *MemoryRepository) GetProfile(ctx context.Context, tenantID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) UpsertProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.TenantID] = *profile
	return nil
}

func (m *MemoryRepository) ListIntegrations(ctx context.Context, tenantID string) ([]Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]Integration(nil), m.integrations[tenantID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].Type < items[j].Type })
	return items, nil
}

func (m *MemoryRepository) ReplaceIntegrations(ctx context.Context, tenantID string, items []Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations[tenantID] = append([]Integration(nil), items...)
	return nil
}

func (m *MemoryRepository) GetSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.TenantID] = *sub
	return nil
}
