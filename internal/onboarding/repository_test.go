package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(gdb), mock
}

var recordColumns = []string{
	"tenant_id", "version", "current_step", "is_completed", "steps",
	"completed_at", "force_completed_by", "created_at", "updated_at",
}

func TestRepository_Get(t *testing.T) {
	repo, mock := newMockRepository(t)

	state := contractState("t1", 3)
	state.Steps[0].Completed = true
	state.Steps[0].Data = &SignUpData{BusinessType: "Retail", ContactEmail: "a@b.com"}
	state.CurrentStep = 1
	steps, err := json.Marshal(state.Steps)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "onboarding_states" WHERE tenant_id = \$1`).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(
			"t1", 3, 1, false, steps, nil, "", state.CreatedAt, state.UpdatedAt,
		))

	got, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 1, got.CurrentStep)
	require.Len(t, got.Steps, 4)
	assert.Equal(t, &SignUpData{BusinessType: "Retail", ContactEmail: "a@b.com"}, got.Steps[0].Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "onboarding_states" WHERE tenant_id = \$1`).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetDatabaseError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "onboarding_states"`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRepository_PutAnyVersionUpserts(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO "onboarding_states" .* ON CONFLICT \("tenant_id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), contractState("t1", 1), AnyVersion)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PutVersioned(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "onboarding_states" SET .* WHERE tenant_id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	state := contractState("t1", 2)
	state.UpdatedAt = time.Now()
	require.NoError(t, repo.Put(context.Background(), state, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PutStaleVersionConflicts(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE "onboarding_states" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Put(context.Background(), contractState("t1", 5), 4)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PutDatabaseError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO "onboarding_states"`).
		WillReturnError(errors.New("disk full"))

	err := repo.Put(context.Background(), contractState("t1", 1), AnyVersion)
	assert.ErrorIs(t, err, ErrStorage)
}
