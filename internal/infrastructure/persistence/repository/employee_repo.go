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

// EmployeeRepository implements port.EmployeeRepository on the employees table
type EmployeeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

const employeeColumns = `id, company_id, name, department, supervisor_id, is_department_head, roles, is_active`

// Save inserts or replaces an employee
func (r *EmployeeRepository) Save(ctx context.Context, emp *entity.Employee) error {
	roles, err := json.Marshal(emp.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	if emp.Roles == nil {
		roles = []byte("[]")
	}

	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			department = excluded.department,
			supervisor_id = excluded.supervisor_id,
			is_department_head = excluded.is_department_head,
			roles = excluded.roles,
			is_active = excluded.is_active
	`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		emp.ID,
		emp.CompanyID,
		emp.Name,
		emp.Department,
		emp.SupervisorID,
		emp.IsDepartmentHead,
		string(roles),
		emp.IsActive,
	)
	if err != nil {
		r.logger.Error("Failed to save employee", zap.String("id", emp.ID), zap.Error(err))
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// GetEmployee retrieves an employee by ID
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = ?`

	emp, err := scanEmployee(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return emp, nil
}

// ResolveSupervisor returns the direct supervisor, or "" if there is none
func (r *EmployeeRepository) ResolveSupervisor(ctx context.Context, employeeID string) (string, error) {
	var supervisorID string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT supervisor_id FROM employees WHERE id = ?`, employeeID,
	).Scan(&supervisorID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to resolve supervisor", zap.String("employee_id", employeeID), zap.Error(err))
		return "", fmt.Errorf("failed to resolve supervisor: %w", err)
	}
	return supervisorID, nil
}

// FindDepartmentHead returns the active head of a department, or ""
func (r *EmployeeRepository) FindDepartmentHead(ctx context.Context, companyID, department string) (string, error) {
	query := `
		SELECT id FROM employees
		WHERE company_id = ? AND department = ? AND is_department_head = 1 AND is_active = 1
		ORDER BY id
		LIMIT 1
	`
	var id string
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, companyID, department).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to find department head",
			zap.String("company_id", companyID),
			zap.String("department", department),
			zap.Error(err))
		return "", fmt.Errorf("failed to find department head: %w", err)
	}
	return id, nil
}

// FindByRole returns active employees of the company holding role, by id
func (r *EmployeeRepository) FindByRole(ctx context.Context, companyID, role string) ([]*entity.Employee, error) {
	query := `
		SELECT ` + employeeColumns + ` FROM employees
		WHERE company_id = ? AND is_active = 1
			AND EXISTS (SELECT 1 FROM json_each(employees.roles) WHERE json_each.value = ?)
		ORDER BY id
	`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, companyID, role)
	if err != nil {
		r.logger.Error("Failed to find employees by role", zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to find employees by role: %w", err)
	}
	defer rows.Close()

	var emps []*entity.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		emps = append(emps, emp)
	}
	return emps, rows.Err()
}

func scanEmployee(row rowScanner) (*entity.Employee, error) {
	var emp entity.Employee
	var roles string

	if err := row.Scan(
		&emp.ID,
		&emp.CompanyID,
		&emp.Name,
		&emp.Department,
		&emp.SupervisorID,
		&emp.IsDepartmentHead,
		&roles,
		&emp.IsActive,
	); err != nil {
		return nil, err
	}

	if roles != "" {
		if err := json.Unmarshal([]byte(roles), &emp.Roles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
		}
	}
	return &emp, nil
}

var _ port.EmployeeRepository = (*EmployeeRepository)(nil)
