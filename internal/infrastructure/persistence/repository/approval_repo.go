package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

const approvalColumns = `a.id, a.execution_id, a.step_order, a.step_name, a.assigned_approver_id,
	a.decision, a.decided_by_id, a.proxy_delegation_id, a.comment, a.decided_at, a.created_at`

// Create inserts an undecided approval for a step
func (r *ApprovalRepository) Create(ctx context.Context, approval *entity.FlowApproval) error {
	query := `
		INSERT INTO flow_approvals (
			execution_id, step_order, step_name, assigned_approver_id, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		approval.ExecutionID,
		approval.StepOrder,
		approval.StepName,
		approval.AssignedApproverID,
		approval.Comment,
		approval.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: step %d of execution %d already exists",
			apperr.ErrConcurrentUpdate, approval.StepOrder, approval.ExecutionID)
	}
	if err != nil {
		r.logger.Error("Failed to create approval",
			zap.Int64("execution_id", approval.ExecutionID),
			zap.Int("step_order", approval.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	approval.ID = id
	return nil
}

// GetByID retrieves an approval by ID
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.FlowApproval, error) {
	return r.getOne(ctx, `SELECT `+approvalColumns+` FROM flow_approvals a WHERE a.id = ?`, id)
}

// GetByStep retrieves the approval of one step of an execution
func (r *ApprovalRepository) GetByStep(ctx context.Context, executionID int64, stepOrder int) (*entity.FlowApproval, error) {
	return r.getOne(ctx,
		`SELECT `+approvalColumns+` FROM flow_approvals a WHERE a.execution_id = ? AND a.step_order = ?`,
		executionID, stepOrder)
}

// ListByExecution returns the approvals of an execution in step order
func (r *ApprovalRepository) ListByExecution(ctx context.Context, executionID int64) ([]*entity.FlowApproval, error) {
	return r.list(ctx,
		`SELECT `+approvalColumns+` FROM flow_approvals a WHERE a.execution_id = ? ORDER BY a.step_order`,
		executionID)
}

// RecordDecision writes the decision if the step is still undecided
func (r *ApprovalRepository) RecordDecision(ctx context.Context, id int64, d port.Decision) error {
	query := `
		UPDATE flow_approvals
		SET decision = ?, decided_by_id = ?, proxy_delegation_id = ?, comment = ?, decided_at = ?
		WHERE id = ? AND decision IS NULL
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		d.Decision,
		d.DecidedByID,
		nullInt64(d.ProxyDelegationID),
		d.Comment,
		d.DecidedAt,
		id,
	)
	if err != nil {
		r.logger.Error("Failed to record decision", zap.Int64("approval_id", id), zap.Error(err))
		return fmt.Errorf("failed to record decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: approval %d", apperr.ErrAlreadyDecided, id)
	}
	return nil
}

// ListPending returns the undecided current steps assigned to any of the
// given employees, oldest first
func (r *ApprovalRepository) ListPending(ctx context.Context, assignedApproverIDs []string) ([]*entity.PendingApproval, error) {
	if len(assignedApproverIDs) == 0 {
		return []*entity.PendingApproval{}, nil
	}

	query := `
		SELECT ` + approvalColumns + `,
			e.document_id, e.module_type, e.company_id, e.applicant_id
		FROM flow_approvals a
		JOIN flow_executions e ON e.id = a.execution_id
		WHERE a.decision IS NULL
			AND e.status = 'RUNNING'
			AND e.current_step_order = a.step_order
			AND a.assigned_approver_id IN (` + placeholders(len(assignedApproverIDs)) + `)
		ORDER BY a.created_at, a.id
	`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, stringArgs(assignedApproverIDs)...)
	if err != nil {
		r.logger.Error("Failed to list pending approvals", zap.Strings("approvers", assignedApproverIDs), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	items := []*entity.PendingApproval{}
	for rows.Next() {
		var item entity.PendingApproval
		if err := scanApprovalInto(rows, &item.FlowApproval,
			&item.DocumentID, &item.ModuleType, &item.CompanyID, &item.ApplicantID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending approval: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// ListDecidedBy returns the approvals decided by the employee, newest first
func (r *ApprovalRepository) ListDecidedBy(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error) {
	return r.list(ctx, `
		SELECT `+approvalColumns+` FROM flow_approvals a
		WHERE a.decided_by_id = ? AND a.decision IS NOT NULL
		ORDER BY a.decided_at DESC, a.id DESC
		LIMIT ?`,
		employeeID, limit)
}

func (r *ApprovalRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.FlowApproval, error) {
	var approval entity.FlowApproval
	err := scanApprovalInto(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...), &approval)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval", zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return &approval, nil
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.FlowApproval, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	approvals := []*entity.FlowApproval{}
	for rows.Next() {
		var approval entity.FlowApproval
		if err := scanApprovalInto(rows, &approval); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, &approval)
	}
	return approvals, rows.Err()
}

// scanApprovalInto scans approvalColumns followed by any extra columns
func scanApprovalInto(row rowScanner, approval *entity.FlowApproval, extra ...interface{}) error {
	var decision, decidedBy sql.NullString
	var proxyID sql.NullInt64
	var decidedAt sql.NullTime

	dest := []interface{}{
		&approval.ID,
		&approval.ExecutionID,
		&approval.StepOrder,
		&approval.StepName,
		&approval.AssignedApproverID,
		&decision,
		&decidedBy,
		&proxyID,
		&approval.Comment,
		&decidedAt,
		&approval.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	approval.Decision = decision.String
	approval.DecidedByID = decidedBy.String
	approval.ProxyDelegationID = int64Ptr(proxyID)
	approval.DecidedAt = timePtr(decidedAt)
	return nil
}

var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
