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

// ExecutionRepository implements port.ExecutionRepository. Writes after
// creation are guarded by the row version and the RUNNING status.
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

const executionColumns = `id, template_id, document_id, module_type, applicant_id, company_id,
	current_step_order, status, version, created_at, updated_at, completed_at`

// Create inserts an execution
func (r *ExecutionRepository) Create(ctx context.Context, exec *entity.FlowExecution) error {
	if exec.Version == 0 {
		exec.Version = 1
	}

	query := `
		INSERT INTO flow_executions (
			template_id, document_id, module_type, applicant_id, company_id,
			current_step_order, status, version, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		nullInt64(exec.TemplateID),
		exec.DocumentID,
		exec.ModuleType,
		exec.ApplicantID,
		exec.CompanyID,
		exec.CurrentStepOrder,
		exec.Status,
		exec.Version,
		exec.CreatedAt,
		exec.UpdatedAt,
		nullTime(exec.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: document %d", apperr.ErrExecutionRunning, exec.DocumentID)
	}
	if err != nil {
		r.logger.Error("Failed to create execution", zap.Int64("document_id", exec.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	exec.ID = id
	return nil
}

// GetByID retrieves an execution by ID
func (r *ExecutionRepository) GetByID(ctx context.Context, id int64) (*entity.FlowExecution, error) {
	return r.getOne(ctx, `SELECT `+executionColumns+` FROM flow_executions WHERE id = ?`, id)
}

// GetRunningByDocument retrieves the document's RUNNING execution
func (r *ExecutionRepository) GetRunningByDocument(ctx context.Context, documentID int64) (*entity.FlowExecution, error) {
	return r.getOne(ctx,
		`SELECT `+executionColumns+` FROM flow_executions WHERE document_id = ? AND status = ?`,
		documentID, entity.ExecutionRunning)
}

// ListByDocument returns every execution of a document, oldest first
func (r *ExecutionRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.FlowExecution, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+executionColumns+` FROM flow_executions WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		r.logger.Error("Failed to list executions", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var execs []*entity.FlowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// Advance moves the execution to the next step
func (r *ExecutionRepository) Advance(ctx context.Context, id, expectedVersion int64, nextStep int) error {
	query := `
		UPDATE flow_executions
		SET current_step_order = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		nextStep, time.Now(), id, expectedVersion, entity.ExecutionRunning)
	if err != nil {
		r.logger.Error("Failed to advance execution", zap.Int64("execution_id", id), zap.Error(err))
		return fmt.Errorf("failed to advance execution: %w", err)
	}
	return expectOneRow(result, id)
}

// Finish moves the execution to a terminal status
func (r *ExecutionRepository) Finish(ctx context.Context, id, expectedVersion int64, status string, at time.Time) error {
	query := `
		UPDATE flow_executions
		SET status = ?, version = version + 1, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ? AND status = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		status, at, at, id, expectedVersion, entity.ExecutionRunning)
	if err != nil {
		r.logger.Error("Failed to finish execution",
			zap.Int64("execution_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return expectOneRow(result, id)
}

func (r *ExecutionRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.FlowExecution, error) {
	exec, err := scanExecution(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get execution", zap.Error(err))
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, nil
}

func expectOneRow(result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: execution %d changed underneath", apperr.ErrConcurrentUpdate, id)
	}
	return nil
}

func scanExecution(row rowScanner) (*entity.FlowExecution, error) {
	var exec entity.FlowExecution
	var templateID sql.NullInt64
	var completedAt sql.NullTime

	if err := row.Scan(
		&exec.ID,
		&templateID,
		&exec.DocumentID,
		&exec.ModuleType,
		&exec.ApplicantID,
		&exec.CompanyID,
		&exec.CurrentStepOrder,
		&exec.Status,
		&exec.Version,
		&exec.CreatedAt,
		&exec.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	exec.TemplateID = int64Ptr(templateID)
	exec.CompletedAt = timePtr(completedAt)
	return &exec, nil
}

var _ port.ExecutionRepository = (*ExecutionRepository)(nil)
