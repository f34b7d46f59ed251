package port

import (
	"context"
	"time"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Lookups return (nil, nil) when the record does not exist.

// DocumentStore is the document collaborator the approval core reads and
// updates. SetStatus is conditional on the current status being from and
// returns apperr.ErrConcurrentUpdate otherwise.
type DocumentStore interface {
	Load(ctx context.Context, id int64) (*entity.Document, error)
	SetStatus(ctx context.Context, id int64, from, to string) error
}

// DocumentRepository is the standalone document table
type DocumentRepository interface {
	DocumentStore
	Create(ctx context.Context, doc *entity.Document) error
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Document, error)
}

// OrgChart answers organisational questions for approver resolution
type OrgChart interface {
	GetEmployee(ctx context.Context, id string) (*entity.Employee, error)
	// ResolveSupervisor returns "" when the employee has no supervisor
	ResolveSupervisor(ctx context.Context, employeeID string) (string, error)
	// FindDepartmentHead returns "" when the department has no active head
	FindDepartmentHead(ctx context.Context, companyID, department string) (string, error)
	// FindByRole returns active employees holding role, ordered by id
	FindByRole(ctx context.Context, companyID, role string) ([]*entity.Employee, error)
}

// EmployeeRepository is the standalone org-chart table
type EmployeeRepository interface {
	OrgChart
	Save(ctx context.Context, emp *entity.Employee) error
}

// TemplateRepository defines persistence operations for FlowTemplate
type TemplateRepository interface {
	Create(ctx context.Context, tpl *entity.FlowTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.FlowTemplate, error)
	GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error)
	LatestVersion(ctx context.Context, moduleType entity.ModuleType, companyID string) (int, error)
	Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error
	ListByCompany(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error)
}

// ExecutionRepository defines persistence operations for FlowExecution
type ExecutionRepository interface {
	// Create fails with apperr.ErrExecutionRunning when the document already
	// has a RUNNING execution
	Create(ctx context.Context, exec *entity.FlowExecution) error
	GetByID(ctx context.Context, id int64) (*entity.FlowExecution, error)
	GetRunningByDocument(ctx context.Context, documentID int64) (*entity.FlowExecution, error)
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.FlowExecution, error)

	// Advance moves a RUNNING execution to nextStep. It fails with
	// apperr.ErrConcurrentUpdate unless the stored version is expectedVersion.
	Advance(ctx context.Context, id, expectedVersion int64, nextStep int) error

	// Finish moves a RUNNING execution to a terminal status under the same
	// version check as Advance
	Finish(ctx context.Context, id, expectedVersion int64, status string, at time.Time) error
}

// Decision is the write-once outcome recorded on a FlowApproval
type Decision struct {
	Decision          string
	DecidedByID       string
	ProxyDelegationID *int64
	Comment           string
	DecidedAt         time.Time
}

// ApprovalRepository defines persistence operations for FlowApproval
type ApprovalRepository interface {
	Create(ctx context.Context, approval *entity.FlowApproval) error
	GetByID(ctx context.Context, id int64) (*entity.FlowApproval, error)
	GetByStep(ctx context.Context, executionID int64, stepOrder int) (*entity.FlowApproval, error)
	ListByExecution(ctx context.Context, executionID int64) ([]*entity.FlowApproval, error)

	// RecordDecision sets the decision only while it is still null and fails
	// with apperr.ErrAlreadyDecided when another writer got there first
	RecordDecision(ctx context.Context, id int64, d Decision) error

	// ListPending returns undecided approvals assigned to any of the given
	// employees whose execution is RUNNING and positioned on that step
	ListPending(ctx context.Context, assignedApproverIDs []string) ([]*entity.PendingApproval, error)

	// ListDecidedBy returns approvals decided by the employee, newest first
	ListDecidedBy(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error)
}

// DelegationRepository defines persistence operations for DelegationGrant
type DelegationRepository interface {
	Create(ctx context.Context, grant *entity.DelegationGrant) error
	GetByID(ctx context.Context, id int64) (*entity.DelegationGrant, error)
	Update(ctx context.Context, grant *entity.DelegationGrant) error
	Delete(ctx context.Context, id int64) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error)
	// ListActiveByDelegate returns grants with is_active set; the date window
	// and scope are checked by the caller
	ListActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationGrant, error)
}

// PeriodRepository defines persistence operations for AccountingPeriod
type PeriodRepository interface {
	// CreateIfAbsent inserts the period unless (company, year, period)
	// exists and reports whether a row was created
	CreateIfAbsent(ctx context.Context, period *entity.AccountingPeriod) (bool, error)
	GetByID(ctx context.Context, id int64) (*entity.AccountingPeriod, error)
	Get(ctx context.Context, companyID string, year, period int) (*entity.AccountingPeriod, error)
	ListByYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error)
	// ListByStatus returns periods of all companies in status for the given month
	ListByStatus(ctx context.Context, status string, year, period int) ([]*entity.AccountingPeriod, error)

	// UpdateStatus moves the period to status only if its current status is
	// one of from; it fails with apperr.ErrConcurrentUpdate otherwise
	UpdateStatus(ctx context.Context, id int64, from []string, to string, at time.Time) error
}

// VoucherRepository defines persistence operations for Voucher and its lines.
// Writes marked period-guarded re-check the owning period inside the write
// and fail with apperr.ErrPeriodNotOpen (wrapping apperr.ErrPeriodLocked when
// locked) if it is no longer OPEN.
type VoucherRepository interface {
	// Create is period-guarded
	Create(ctx context.Context, voucher *entity.Voucher) error
	GetByID(ctx context.Context, id int64) (*entity.Voucher, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]*entity.Voucher, error)

	// ReplaceLines is period-guarded and version-checked
	ReplaceLines(ctx context.Context, voucher *entity.Voucher) error
	// Delete is period-guarded and version-checked
	Delete(ctx context.Context, id, expectedVersion int64) error

	// UpdateStatus is version-checked and period-guarded when requireOpen
	UpdateStatus(ctx context.Context, id, expectedVersion int64, to string, requireOpen bool, at time.Time) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
