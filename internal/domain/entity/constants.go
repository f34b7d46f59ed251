package entity

// ModuleType identifies the request module that owns a document
type ModuleType string

const (
	ModuleLeave      ModuleType = "LEAVE"
	ModuleExpense    ModuleType = "EXPENSE"
	ModuleSeal       ModuleType = "SEAL"
	ModuleCard       ModuleType = "CARD"       // business cards
	ModuleStationery ModuleType = "STATIONERY" // office supplies
	ModuleVoucher    ModuleType = "VOUCHER"    // accounting vouchers
)

// String returns the string representation of the module type
func (m ModuleType) String() string {
	return string(m)
}

// IsValid returns true if the module type is known
func (m ModuleType) IsValid() bool {
	switch m {
	case ModuleLeave, ModuleExpense, ModuleSeal, ModuleCard, ModuleStationery, ModuleVoucher:
		return true
	default:
		return false
	}
}

// AllModuleTypes returns every known module type
func AllModuleTypes() []ModuleType {
	return []ModuleType{ModuleLeave, ModuleExpense, ModuleSeal, ModuleCard, ModuleStationery, ModuleVoucher}
}

// Document status constants shared by every request module
const (
	StatusDraft     = "DRAFT"
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"

	// Module terminal branch
	StatusPrinting  = "PRINTING"
	StatusCompleted = "COMPLETED"
	StatusIssued    = "ISSUED"
	StatusPaid      = "PAID"

	// Voucher lifecycle
	StatusPosted = "POSTED"
	StatusVoid   = "VOID"
)

// Execution status constants for FlowExecution
const (
	ExecutionRunning   = "RUNNING"
	ExecutionApproved  = "APPROVED"
	ExecutionRejected  = "REJECTED"
	ExecutionCancelled = "CANCELLED"
)

// Decision constants for FlowApproval
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Approver resolution kinds for StepDefinition
const (
	ApproverEmployee       = "EMPLOYEE"
	ApproverRole           = "ROLE"
	ApproverSupervisor     = "SUPERVISOR"
	ApproverDepartmentHead = "DEPARTMENT_HEAD"
)

// Accounting period status constants
const (
	PeriodOpen   = "OPEN"
	PeriodClosed = "CLOSED"
	PeriodLocked = "LOCKED"
)

// RoleOperator is the org-chart role allowed to drive module progression
// (printing, issuing, paying) after approval.
const RoleOperator = "OPERATOR"
