package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
)

// TemplateRepository implements port.TemplateRepository. Steps are stored as
// a JSON column so a template version is written and read as one row.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `id, module_type, company_id, name, version, is_active, steps, created_at`

// Create inserts a template version
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.FlowTemplate) error {
	steps, err := json.Marshal(tpl.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO flow_templates (module_type, company_id, name, version, is_active, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		tpl.ModuleType,
		tpl.CompanyID,
		tpl.Name,
		tpl.Version,
		tpl.IsActive,
		string(steps),
		tpl.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template",
			zap.String("module_type", tpl.ModuleType.String()),
			zap.String("company_id", tpl.CompanyID),
			zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tpl.ID = id
	return nil
}

// GetByID retrieves a template version by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.FlowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM flow_templates WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetActive retrieves the active template for a module and company
func (r *TemplateRepository) GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM flow_templates WHERE module_type = ? AND company_id = ? AND is_active = 1`
	return r.getOne(ctx, query, moduleType, companyID)
}

// LatestVersion returns the highest version number, 0 if none
func (r *TemplateRepository) LatestVersion(ctx context.Context, moduleType entity.ModuleType, companyID string) (int, error) {
	var version int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM flow_templates WHERE module_type = ? AND company_id = ?`,
		moduleType, companyID,
	).Scan(&version)
	if err != nil {
		r.logger.Error("Failed to get latest template version", zap.Error(err))
		return 0, fmt.Errorf("failed to get latest template version: %w", err)
	}
	return version, nil
}

// Deactivate clears the active flag for a module and company
func (r *TemplateRepository) Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE flow_templates SET is_active = 0 WHERE module_type = ? AND company_id = ? AND is_active = 1`,
		moduleType, companyID,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate template", zap.Error(err))
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	return nil
}

// ListByCompany returns every template version of a company
func (r *TemplateRepository) ListByCompany(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM flow_templates WHERE company_id = ? ORDER BY module_type, version DESC`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, companyID)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.String("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.FlowTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.FlowTemplate, error) {
	tpl, err := scanTemplate(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

func scanTemplate(row rowScanner) (*entity.FlowTemplate, error) {
	var tpl entity.FlowTemplate
	var steps string

	if err := row.Scan(
		&tpl.ID,
		&tpl.ModuleType,
		&tpl.CompanyID,
		&tpl.Name,
		&tpl.Version,
		&tpl.IsActive,
		&steps,
		&tpl.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &tpl.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	return &tpl, nil
}

var _ port.TemplateRepository = (*TemplateRepository)(nil)
