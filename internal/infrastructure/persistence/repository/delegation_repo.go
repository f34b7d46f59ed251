package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// dateLayout is how grant windows are stored: calendar dates, no zone
const dateLayout = "2006-01-02"

// DelegationRepository implements port.DelegationRepository
type DelegationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDelegationRepository creates a new delegation repository
func NewDelegationRepository(db *sql.DB, logger *zap.Logger) *DelegationRepository {
	return &DelegationRepository{
		db:     db,
		logger: logger,
	}
}

const delegationColumns = `id, principal_id, delegate_id, start_date, end_date, request_types,
	company_ids, is_active, reason, created_at, updated_at`

// Create inserts a grant
func (r *DelegationRepository) Create(ctx context.Context, grant *entity.DelegationGrant) error {
	requestTypes, companyIDs, err := marshalScope(grant)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO delegation_grants (
			principal_id, delegate_id, start_date, end_date, request_types,
			company_ids, is_active, reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		grant.PrincipalID,
		grant.DelegateID,
		grant.StartDate.Format(dateLayout),
		grant.EndDate.Format(dateLayout),
		requestTypes,
		companyIDs,
		grant.IsActive,
		grant.Reason,
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create delegation", zap.String("principal_id", grant.PrincipalID), zap.Error(err))
		return fmt.Errorf("failed to create delegation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	grant.ID = id
	return nil
}

// GetByID retrieves a grant by ID
func (r *DelegationRepository) GetByID(ctx context.Context, id int64) (*entity.DelegationGrant, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegation_grants WHERE id = ?`

	grant, err := scanDelegation(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get delegation", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	return grant, nil
}

// Update rewrites the window, scope, flag and reason of a grant
func (r *DelegationRepository) Update(ctx context.Context, grant *entity.DelegationGrant) error {
	requestTypes, companyIDs, err := marshalScope(grant)
	if err != nil {
		return err
	}

	query := `
		UPDATE delegation_grants
		SET start_date = ?, end_date = ?, request_types = ?, company_ids = ?,
			is_active = ?, reason = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		grant.StartDate.Format(dateLayout),
		grant.EndDate.Format(dateLayout),
		requestTypes,
		companyIDs,
		grant.IsActive,
		grant.Reason,
		grant.UpdatedAt,
		grant.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update delegation", zap.Int64("id", grant.ID), zap.Error(err))
		return fmt.Errorf("failed to update delegation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: delegation %d", apperr.ErrNotFound, grant.ID)
	}
	return nil
}

// Delete removes a grant. Approvals decided under it keep their reference.
func (r *DelegationRepository) Delete(ctx context.Context, id int64) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM delegation_grants WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete delegation", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete delegation: %w", err)
	}
	return nil
}

// ListByPrincipal returns the principal's grants
func (r *DelegationRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error) {
	return r.list(ctx,
		`SELECT `+delegationColumns+` FROM delegation_grants WHERE principal_id = ? ORDER BY id`,
		principalID)
}

// ListActiveByDelegate returns active grants naming the delegate
func (r *DelegationRepository) ListActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationGrant, error) {
	return r.list(ctx,
		`SELECT `+delegationColumns+` FROM delegation_grants WHERE delegate_id = ? AND is_active = 1 ORDER BY id`,
		delegateID)
}

func (r *DelegationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.DelegationGrant, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list delegations", zap.Error(err))
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	defer rows.Close()

	grants := []*entity.DelegationGrant{}
	for rows.Next() {
		grant, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func marshalScope(grant *entity.DelegationGrant) (string, string, error) {
	requestTypes := grant.RequestTypes
	if requestTypes == nil {
		requestTypes = []entity.ModuleType{}
	}
	companyIDs := grant.CompanyIDs
	if companyIDs == nil {
		companyIDs = []string{}
	}

	rt, err := json.Marshal(requestTypes)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request types: %w", err)
	}
	ci, err := json.Marshal(companyIDs)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal company ids: %w", err)
	}
	return string(rt), string(ci), nil
}

func scanDelegation(row rowScanner) (*entity.DelegationGrant, error) {
	var grant entity.DelegationGrant
	var startDate, endDate, requestTypes, companyIDs string

	if err := row.Scan(
		&grant.ID,
		&grant.PrincipalID,
		&grant.DelegateID,
		&startDate,
		&endDate,
		&requestTypes,
		&companyIDs,
		&grant.IsActive,
		&grant.Reason,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if grant.StartDate, err = time.Parse(dateLayout, startDate); err != nil {
		return nil, fmt.Errorf("failed to parse start date: %w", err)
	}
	if grant.EndDate, err = time.Parse(dateLayout, endDate); err != nil {
		return nil, fmt.Errorf("failed to parse end date: %w", err)
	}
	if err := json.Unmarshal([]byte(requestTypes), &grant.RequestTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request types: %w", err)
	}
	if err := json.Unmarshal([]byte(companyIDs), &grant.CompanyIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal company ids: %w", err)
	}
	return &grant, nil
}

var _ port.DelegationRepository = (*DelegationRepository)(nil)
