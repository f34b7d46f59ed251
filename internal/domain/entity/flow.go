package entity

import "time"

// ApproverRule describes how a step's approver is resolved when the step
// activates. Value is the employee id for EMPLOYEE and the role name for ROLE;
// it is unused for SUPERVISOR and DEPARTMENT_HEAD.
type ApproverRule struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// StepDefinition is one ordered step of a FlowTemplate
type StepDefinition struct {
	Order    int          `json:"order"`
	Name     string       `json:"name"`
	Approver ApproverRule `json:"approver"`

	// Condition is an optional boolean expression evaluated at activation
	// time. A step whose condition is false is skipped.
	Condition string `json:"condition,omitempty"`
}

// FlowTemplate is a company-scoped ordered approval chain for one module.
// Templates are immutable once an execution references them; edits create a
// new version.
type FlowTemplate struct {
	ID         int64            `json:"id"`
	ModuleType ModuleType       `json:"module_type"`
	CompanyID  string           `json:"company_id"`
	Name       string           `json:"name"`
	Version    int              `json:"version"`
	IsActive   bool             `json:"is_active"`
	Steps      []StepDefinition `json:"steps"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Step returns the step definition with the given order, or nil
func (t *FlowTemplate) Step(order int) *StepDefinition {
	for i := range t.Steps {
		if t.Steps[i].Order == order {
			return &t.Steps[i]
		}
	}
	return nil
}

// FlowExecution is one run of a template against a submitted document.
// At most one execution per document is RUNNING at any time.
type FlowExecution struct {
	ID               int64      `json:"id"`
	TemplateID       *int64     `json:"template_id,omitempty"` // nil when the module default step was used
	DocumentID       int64      `json:"document_id"`
	ModuleType       ModuleType `json:"module_type"`
	ApplicantID      string     `json:"applicant_id"`
	CompanyID        string     `json:"company_id"`
	CurrentStepOrder int        `json:"current_step_order"`
	Status           string     `json:"status"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// IsRunning reports whether the execution still accepts decisions
func (e *FlowExecution) IsRunning() bool {
	return e.Status == ExecutionRunning
}

// FlowApproval is the decision record for one step of one execution.
// Decision is write-once: empty until decided, immutable afterwards.
type FlowApproval struct {
	ID                 int64      `json:"id"`
	ExecutionID        int64      `json:"execution_id"`
	StepOrder          int        `json:"step_order"`
	StepName           string     `json:"step_name"`
	AssignedApproverID string     `json:"assigned_approver_id"`
	Decision           string     `json:"decision,omitempty"`
	DecidedByID        string     `json:"decided_by_id,omitempty"`
	ProxyDelegationID  *int64     `json:"proxy_delegation_id,omitempty"`
	Comment            string     `json:"comment,omitempty"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsDecided reports whether a decision has been recorded
func (a *FlowApproval) IsDecided() bool {
	return a.Decision != ""
}

// PendingApproval is an undecided step joined with its execution, as shown
// in an approver's inbox. DelegationID is set for proxy items and names the
// grant the delegate should present to decide.
type PendingApproval struct {
	FlowApproval
	DocumentID   int64      `json:"document_id"`
	ModuleType   ModuleType `json:"module_type"`
	CompanyID    string     `json:"company_id"`
	ApplicantID  string     `json:"applicant_id"`
	DelegationID *int64     `json:"delegation_id,omitempty"`
}
