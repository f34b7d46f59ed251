package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// PeriodRepository implements port.PeriodRepository
type PeriodRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPeriodRepository creates a new accounting period repository
func NewPeriodRepository(db *sql.DB, logger *zap.Logger) *PeriodRepository {
	return &PeriodRepository{
		db:     db,
		logger: logger,
	}
}

const periodColumns = `id, company_id, year, period, status, closed_at, locked_at, created_at, updated_at`

// CreateIfAbsent inserts the period unless it already exists
func (r *PeriodRepository) CreateIfAbsent(ctx context.Context, period *entity.AccountingPeriod) (bool, error) {
	query := `
		INSERT INTO accounting_periods (company_id, year, period, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, year, period) DO NOTHING
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		period.CompanyID,
		period.Year,
		period.Period,
		period.Status,
		period.CreatedAt,
		period.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create period",
			zap.String("company_id", period.CompanyID),
			zap.Int("year", period.Year),
			zap.Int("period", period.Period),
			zap.Error(err))
		return false, fmt.Errorf("failed to create period: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	period.ID = id
	return true, nil
}

// GetByID retrieves a period by ID
func (r *PeriodRepository) GetByID(ctx context.Context, id int64) (*entity.AccountingPeriod, error) {
	return r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id = ?`, id)
}

// Get retrieves a period by its natural key
func (r *PeriodRepository) Get(ctx context.Context, companyID string, year, period int) (*entity.AccountingPeriod, error) {
	return r.getOne(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE company_id = ? AND year = ? AND period = ?`,
		companyID, year, period)
}

// ListByYear returns a company's periods of one year in month order
func (r *PeriodRepository) ListByYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error) {
	return r.list(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE company_id = ? AND year = ? ORDER BY period`,
		companyID, year)
}

// ListByStatus returns periods of every company in status for one month
func (r *PeriodRepository) ListByStatus(ctx context.Context, status string, year, period int) ([]*entity.AccountingPeriod, error) {
	return r.list(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE status = ? AND year = ? AND period = ? ORDER BY company_id`,
		status, year, period)
}

// UpdateStatus moves the period to status if it is currently in one of from.
// The lock trigger rejects any change out of LOCKED.
func (r *PeriodRepository) UpdateStatus(ctx context.Context, id int64, from []string, to string, at time.Time) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status for period %d", apperr.ErrInvalidInput, id)
	}

	var closedAt, lockedAt sql.NullTime
	switch to {
	case entity.PeriodClosed:
		closedAt = sql.NullTime{Time: at, Valid: true}
	case entity.PeriodLocked:
		lockedAt = sql.NullTime{Time: at, Valid: true}
	}

	query := `
		UPDATE accounting_periods
		SET status = ?,
			closed_at = CASE WHEN ? = 'OPEN' THEN NULL ELSE COALESCE(?, closed_at) END,
			locked_at = COALESCE(?, locked_at),
			updated_at = ?
		WHERE id = ? AND status IN (` + placeholders(len(from)) + `)
	`
	args := []interface{}{to, to, closedAt, lockedAt, at, id}
	args = append(args, stringArgs(from)...)

	conn := sqlite.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx, query, args...)
	if isTriggerAbort(err) {
		return fmt.Errorf("%w: %w: period %d", apperr.ErrInvalidTransition, apperr.ErrPeriodLocked, id)
	}
	if err != nil {
		r.logger.Error("Failed to update period status",
			zap.Int64("period_id", id),
			zap.String("to", to),
			zap.Error(err))
		return fmt.Errorf("failed to update period status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounting_periods WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check period: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: period %d", apperr.ErrNotFound, id)
	}
	return fmt.Errorf("%w: period %d is no longer in %v", apperr.ErrConcurrentUpdate, id, from)
}

func (r *PeriodRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.AccountingPeriod, error) {
	period, err := scanPeriod(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get period", zap.Error(err))
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	return period, nil
}

func (r *PeriodRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.AccountingPeriod, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list periods", zap.Error(err))
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	periods := []*entity.AccountingPeriod{}
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

func scanPeriod(row rowScanner) (*entity.AccountingPeriod, error) {
	var period entity.AccountingPeriod
	var closedAt, lockedAt sql.NullTime

	if err := row.Scan(
		&period.ID,
		&period.CompanyID,
		&period.Year,
		&period.Period,
		&period.Status,
		&closedAt,
		&lockedAt,
		&period.CreatedAt,
		&period.UpdatedAt,
	); err != nil {
		return nil, err
	}

	period.ClosedAt = timePtr(closedAt)
	period.LockedAt = timePtr(lockedAt)
	return &period, nil
}

var _ port.PeriodRepository = (*PeriodRepository)(nil)
