package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

func TestPeriodRepository_CreateIfAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPeriodRepository(db, zap.NewNop())
	insert := regexp.QuoteMeta("ON CONFLICT(company_id, year, period) DO NOTHING")

	mock.ExpectExec(insert).
		WithArgs("C1", 2026, 3, entity.PeriodOpen, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec(insert).
		WithArgs("C1", 2026, 3, entity.PeriodOpen, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	period := &entity.AccountingPeriod{CompanyID: "C1", Year: 2026, Period: 3, Status: entity.PeriodOpen}
	created, err := repo.CreateIfAbsent(context.Background(), period)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12), period.ID)

	again := &entity.AccountingPeriod{CompanyID: "C1", Year: 2026, Period: 3, Status: entity.PeriodOpen}
	created, err = repo.CreateIfAbsent(context.Background(), again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, again.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepository_UpdateStatus(t *testing.T) {
	update := regexp.QuoteMeta("WHERE id = ? AND status IN (?)")
	exists := regexp.QuoteMeta("SELECT COUNT(1) FROM accounting_periods WHERE id = ?")
	now := time.Now()

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr []error
	}{
		{
			name: "moves when the source status matches",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing period",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs(int64(1)).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			},
			wantErr: []error{apperr.ErrNotFound},
		},
		{
			name: "status moved underneath",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs(int64(1)).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			},
			wantErr: []error{apperr.ErrConcurrentUpdate},
		},
		{
			name: "lock trigger",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(update).
					WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintTrigger})
			},
			wantErr: []error{apperr.ErrInvalidTransition, apperr.ErrPeriodLocked},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setup(mock)
			repo := NewPeriodRepository(db, zap.NewNop())

			err = repo.UpdateStatus(context.Background(), 1, []string{entity.PeriodOpen}, entity.PeriodClosed, now)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPeriodRepository_UpdateStatusNeedsSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPeriodRepository(db, zap.NewNop())
	err = repo.UpdateStatus(context.Background(), 1, nil, entity.PeriodClosed, time.Now())
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepository_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPeriodRepository(db, zap.NewNop())
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounting_periods WHERE company_id = ? AND year = ? AND period = ?")).
		WithArgs("C1", 2026, 13).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	period, err := repo.Get(context.Background(), "C1", 2026, 13)
	assert.NoError(t, err)
	assert.Nil(t, period)
	assert.NoError(t, mock.ExpectationsWereMet())
}
