package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// onboardingRecord is the postgres row for a tenant's onboarding state.
// Timestamps are owned by the service, not by gorm.
type onboardingRecord struct {
	TenantID         string         `gorm:"primaryKey;type:varchar(64)"`
	Version          int64          `gorm:"not null"`
	CurrentStep      int            `gorm:"not null"`
	IsCompleted      bool           `gorm:"not null"`
	Steps            datatypes.JSON `gorm:"type:jsonb;not null"`
	CompletedAt      *time.Time
	ForceCompletedBy string    `gorm:"type:varchar(64)"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (onboardingRecord) TableName() string {
	return "onboarding_states"
}

// AutoMigrate creates or updates the onboarding table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&onboardingRecord{})
}

// postgresRepository stores onboarding documents through gorm
type postgresRepository struct {
	db *gorm.DB
}

// NewRepository creates a gorm backed Store
func NewRepository(db *gorm.DB) Store {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Get(ctx context.Context, tenantID string) (*OnboardingState, error) {
	var rec onboardingRecord
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, storageError("load onboarding state", err)
	}
	return rec.toState()
}

func (r *postgresRepository) Put(ctx context.Context, state *OnboardingState, expectedVersion int64) error {
	rec, err := recordFromState(state)
	if err != nil {
		return storageError("encode onboarding state", err)
	}

	if expectedVersion == AnyVersion {
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(rec).Error
		if err != nil {
			return storageError("save onboarding state", err)
		}
		return nil
	}

	res := r.db.WithContext(ctx).
		Model(&onboardingRecord{}).
		Where("tenant_id = ? AND version = ?", rec.TenantID, expectedVersion).
		Updates(map[string]interface{}{
			"version":            rec.Version,
			"current_step":       rec.CurrentStep,
			"is_completed":       rec.IsCompleted,
			"steps":              rec.Steps,
			"completed_at":       rec.CompletedAt,
			"force_completed_by": rec.ForceCompletedBy,
			"updated_at":         rec.UpdatedAt,
		})
	if res.Error != nil {
		return storageError("update onboarding state", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func recordFromState(state *OnboardingState) (*onboardingRecord, error) {
	steps, err := json.Marshal(state.Steps)
	if err != nil {
		return nil, err
	}
	return &onboardingRecord{
		TenantID:         state.TenantID,
		Version:          state.Version,
		CurrentStep:      state.CurrentStep,
		IsCompleted:      state.IsCompleted,
		Steps:            datatypes.JSON(steps),
		CompletedAt:      state.CompletedAt,
		ForceCompletedBy: state.ForceCompletedBy,
		CreatedAt:        state.CreatedAt,
		UpdatedAt:        state.UpdatedAt,
	}, nil
}

func (rec *onboardingRecord) toState() (*OnboardingState, error) {
	var steps []OnboardingStep
	if err := json.Unmarshal(rec.Steps, &steps); err != nil {
		return nil, storageError("decode onboarding steps", err)
	}
	return &OnboardingState{
		TenantID:         rec.TenantID,
		Version:          rec.Version,
		CurrentStep:      rec.CurrentStep,
		IsCompleted:      rec.IsCompleted,
		Steps:            steps,
		CompletedAt:      rec.CompletedAt,
		ForceCompletedBy: rec.ForceCompletedBy,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}, nil
}
