package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/ledger"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// VoucherRepository implements port.VoucherRepository. Guarded writes carry
// the open-period condition in their WHERE clause so a period closed by a
// concurrent transaction cannot be written into.
type VoucherRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db *sql.DB, logger *zap.Logger) *VoucherRepository {
	return &VoucherRepository{
		db:     db,
		logger: logger,
	}
}

const voucherColumns = `id, company_id, number, period_id, status, description, created_by,
	version, posted_at, voided_at, created_at, updated_at`

const openPeriodClause = `EXISTS (SELECT 1 FROM accounting_periods p WHERE p.id = vouchers.period_id AND p.status = 'OPEN')`

// Create inserts the voucher and its lines if the period is OPEN
func (r *VoucherRepository) Create(ctx context.Context, voucher *entity.Voucher) error {
	if voucher.Version == 0 {
		voucher.Version = 1
	}

	query := `
		INSERT INTO vouchers (
			company_id, number, period_id, status, description, created_by,
			version, created_at, updated_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM accounting_periods p WHERE p.id = ? AND p.status = 'OPEN')
	`
	conn := sqlite.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx, query,
		voucher.CompanyID,
		voucher.Number,
		voucher.PeriodID,
		voucher.Status,
		voucher.Description,
		voucher.CreatedBy,
		voucher.Version,
		voucher.CreatedAt,
		voucher.UpdatedAt,
		voucher.PeriodID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: voucher number %s already exists", apperr.ErrInvalidInput, voucher.Number)
	}
	if err != nil {
		r.logger.Error("Failed to create voucher", zap.Int64("period_id", voucher.PeriodID), zap.Error(err))
		return fmt.Errorf("failed to create voucher: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return r.periodError(ctx, voucher.PeriodID, entity.StatusDraft, ledger.OpCreate)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	voucher.ID = id

	return r.insertLines(ctx, voucher)
}

// GetByID retrieves a voucher with its lines
func (r *VoucherRepository) GetByID(ctx context.Context, id int64) (*entity.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = ?`

	voucher, err := scanVoucher(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get voucher", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	lines, err := r.loadLines(ctx, `WHERE voucher_id = ?`, id)
	if err != nil {
		return nil, err
	}
	voucher.Lines = lines[id]
	return voucher, nil
}

// ListByPeriod returns the vouchers of a period with their lines
func (r *VoucherRepository) ListByPeriod(ctx context.Context, periodID int64) ([]*entity.Voucher, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE period_id = ? ORDER BY id`, periodID)
	if err != nil {
		r.logger.Error("Failed to list vouchers", zap.Int64("period_id", periodID), zap.Error(err))
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}

	vouchers := []*entity.Voucher{}
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, voucher)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := r.loadLines(ctx,
		`WHERE voucher_id IN (SELECT id FROM vouchers WHERE period_id = ?)`, periodID)
	if err != nil {
		return nil, err
	}
	for _, v := range vouchers {
		v.Lines = lines[v.ID]
	}
	return vouchers, nil
}

// ReplaceLines rewrites the description and lines and bumps the version
func (r *VoucherRepository) ReplaceLines(ctx context.Context, voucher *entity.Voucher) error {
	query := `
		UPDATE vouchers
		SET description = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND ` + openPeriodClause
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		voucher.Description,
		voucher.UpdatedAt,
		voucher.ID,
		voucher.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update voucher", zap.Int64("id", voucher.ID), zap.Error(err))
		return fmt.Errorf("failed to update voucher: %w", err)
	}
	if err := r.guarded(ctx, result, voucher.ID, voucher.Version, ledger.OpUpdate); err != nil {
		return err
	}

	if _, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM voucher_lines WHERE voucher_id = ?`, voucher.ID); err != nil {
		return fmt.Errorf("failed to delete voucher lines: %w", err)
	}
	return r.insertLines(ctx, voucher)
}

// Delete removes the voucher; lines cascade
func (r *VoucherRepository) Delete(ctx context.Context, id, expectedVersion int64) error {
	query := `DELETE FROM vouchers WHERE id = ? AND version = ? AND ` + openPeriodClause
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to delete voucher", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete voucher: %w", err)
	}
	return r.guarded(ctx, result, id, expectedVersion, ledger.OpDelete)
}

// UpdateStatus moves the voucher to status and stamps posted_at or voided_at
func (r *VoucherRepository) UpdateStatus(ctx context.Context, id, expectedVersion int64, to string, requireOpen bool, at time.Time) error {
	query := `
		UPDATE vouchers
		SET status = ?,
			version = version + 1,
			posted_at = CASE WHEN ? = 'POSTED' THEN ? ELSE posted_at END,
			voided_at = CASE WHEN ? = 'VOID' THEN ? ELSE voided_at END,
			updated_at = ?
		WHERE id = ? AND version = ?`
	if requireOpen {
		query += ` AND ` + openPeriodClause
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		to, to, at, to, at, at, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update voucher status",
			zap.Int64("id", id),
			zap.String("to", to),
			zap.Error(err))
		return fmt.Errorf("failed to update voucher status: %w", err)
	}

	op := ledger.OpPost
	if to == entity.StatusVoid {
		op = ledger.OpVoid
	}
	return r.guarded(ctx, result, id, expectedVersion, op)
}

// guarded explains a guarded write that touched no row
func (r *VoucherRepository) guarded(ctx context.Context, result sql.Result, id, expectedVersion int64, op ledger.Operation) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	var version, periodID int64
	err = sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT status, version, period_id FROM vouchers WHERE id = ?`, id,
	).Scan(&status, &version, &periodID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: voucher %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check voucher: %w", err)
	}
	if version != expectedVersion {
		return fmt.Errorf("%w: voucher %d is at version %d, expected %d",
			apperr.ErrConcurrentUpdate, id, version, expectedVersion)
	}
	return r.periodError(ctx, periodID, status, op)
}

// periodError reports why the period rejected op
func (r *VoucherRepository) periodError(ctx context.Context, periodID int64, voucherStatus string, op ledger.Operation) error {
	var periodStatus string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT status FROM accounting_periods WHERE id = ?`, periodID,
	).Scan(&periodStatus)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: period %d", apperr.ErrNotFound, periodID)
	}
	if err != nil {
		return fmt.Errorf("failed to check period: %w", err)
	}

	if err := ledger.CheckMutation(voucherStatus, periodStatus, op); err != nil {
		return fmt.Errorf("period %d: %w", periodID, err)
	}
	return fmt.Errorf("%w: period %d changed underneath", apperr.ErrConcurrentUpdate, periodID)
}

func (r *VoucherRepository) insertLines(ctx context.Context, voucher *entity.Voucher) error {
	query := `
		INSERT INTO voucher_lines (voucher_id, line_no, account_code, description, debit_amount, credit_amount)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	conn := sqlite.Conn(ctx, r.db)
	for i := range voucher.Lines {
		line := &voucher.Lines[i]
		line.VoucherID = voucher.ID
		result, err := conn.ExecContext(ctx, query,
			voucher.ID,
			line.LineNo,
			line.AccountCode,
			line.Description,
			line.DebitAmount.String(),
			line.CreditAmount.String(),
		)
		if err != nil {
			r.logger.Error("Failed to insert voucher line",
				zap.Int64("voucher_id", voucher.ID),
				zap.Int("line_no", line.LineNo),
				zap.Error(err))
			return fmt.Errorf("failed to insert voucher line: %w", err)
		}
		if line.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

// loadLines returns lines grouped by voucher id for the given filter
func (r *VoucherRepository) loadLines(ctx context.Context, where string, args ...interface{}) (map[int64][]entity.VoucherLine, error) {
	query := `
		SELECT id, voucher_id, line_no, account_code, description, debit_amount, credit_amount
		FROM voucher_lines ` + where + `
		ORDER BY voucher_id, line_no
	`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to load voucher lines", zap.Error(err))
		return nil, fmt.Errorf("failed to load voucher lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[int64][]entity.VoucherLine)
	for rows.Next() {
		var line entity.VoucherLine
		var debit, credit string
		if err := rows.Scan(
			&line.ID,
			&line.VoucherID,
			&line.LineNo,
			&line.AccountCode,
			&line.Description,
			&debit,
			&credit,
		); err != nil {
			return nil, fmt.Errorf("failed to scan voucher line: %w", err)
		}
		if line.DebitAmount, err = decimal.NewFromString(debit); err != nil {
			return nil, fmt.Errorf("failed to parse debit amount: %w", err)
		}
		if line.CreditAmount, err = decimal.NewFromString(credit); err != nil {
			return nil, fmt.Errorf("failed to parse credit amount: %w", err)
		}
		lines[line.VoucherID] = append(lines[line.VoucherID], line)
	}
	return lines, rows.Err()
}

func scanVoucher(row rowScanner) (*entity.Voucher, error) {
	var voucher entity.Voucher
	var postedAt, voidedAt sql.NullTime

	if err := row.Scan(
		&voucher.ID,
		&voucher.CompanyID,
		&voucher.Number,
		&voucher.PeriodID,
		&voucher.Status,
		&voucher.Description,
		&voucher.CreatedBy,
		&voucher.Version,
		&postedAt,
		&voidedAt,
		&voucher.CreatedAt,
		&voucher.UpdatedAt,
	); err != nil {
		return nil, err
	}

	voucher.PostedAt = timePtr(postedAt)
	voucher.VoidedAt = timePtr(voidedAt)
	return &voucher, nil
}

var _ port.VoucherRepository = (*VoucherRepository)(nil)
