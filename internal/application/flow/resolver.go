package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// ResolveRequest carries what a resolver may look at when a step activates
type ResolveRequest struct {
	ApplicantID string
	CompanyID   string
	ModuleType  entity.ModuleType
}

// ApproverResolver maps an approver rule to one employee id. It returns ""
// when the rule yields nobody.
type ApproverResolver interface {
	Resolve(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error)
}

// ResolverFunc adapts a function to ApproverResolver
type ResolverFunc func(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error)

// Resolve implements ApproverResolver
func (f ResolverFunc) Resolve(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error) {
	return f(ctx, rule, req)
}

// ResolverRegistry dispatches approver rules to resolvers by kind
type ResolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]ApproverResolver
}

// NewResolverRegistry creates a registry with the built-in EMPLOYEE, ROLE,
// SUPERVISOR and DEPARTMENT_HEAD resolvers backed by the org chart
func NewResolverRegistry(org port.OrgChart) *ResolverRegistry {
	r := &ResolverRegistry{resolvers: make(map[string]ApproverResolver)}
	r.Register(entity.ApproverEmployee, &employeeResolver{org: org})
	r.Register(entity.ApproverRole, &roleResolver{org: org})
	r.Register(entity.ApproverSupervisor, &supervisorResolver{org: org})
	r.Register(entity.ApproverDepartmentHead, &departmentHeadResolver{org: org})
	return r
}

// Register adds or replaces the resolver for a rule kind
func (r *ResolverRegistry) Register(kind string, resolver ApproverResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[kind] = resolver
}

// Resolve returns the approver for the rule or ErrNoApproverResolvable
func (r *ResolverRegistry) Resolve(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[rule.Kind]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: unknown approver rule %q", apperr.ErrNoApproverResolvable, rule.Kind)
	}

	approverID, err := resolver.Resolve(ctx, rule, req)
	if err != nil {
		return "", fmt.Errorf("resolve %s approver: %w", rule.Kind, err)
	}
	if approverID == "" {
		return "", fmt.Errorf("%w: %s rule yields nobody for applicant %s", apperr.ErrNoApproverResolvable, rule.Kind, req.ApplicantID)
	}
	return approverID, nil
}

// employeeResolver returns a fixed employee if it is still active
type employeeResolver struct {
	org port.OrgChart
}

func (r *employeeResolver) Resolve(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error) {
	if rule.Value == "" {
		return "", nil
	}
	emp, err := r.org.GetEmployee(ctx, rule.Value)
	if err != nil {
		return "", err
	}
	if emp == nil || !emp.IsActive {
		return "", nil
	}
	return emp.ID, nil
}

// roleResolver picks the first active holder of a role, skipping the applicant
type roleResolver struct {
	org port.OrgChart
}

func (r *roleResolver) Resolve(ctx context.Context, rule entity.ApproverRule, req ResolveRequest) (string, error) {
	if rule.Value == "" {
		return "", nil
	}
	holders, err := r.org.FindByRole(ctx, req.CompanyID, rule.Value)
	if err != nil {
		return "", err
	}
	for _, emp := range holders {
		if emp.ID != req.ApplicantID {
			return emp.ID, nil
		}
	}
	return "", nil
}

// supervisorResolver returns the applicant's direct supervisor
type supervisorResolver struct {
	org port.OrgChart
}

func (r *supervisorResolver) Resolve(ctx context.Context, _ entity.ApproverRule, req ResolveRequest) (string, error) {
	return r.org.ResolveSupervisor(ctx, req.ApplicantID)
}

// departmentHeadResolver returns the head of the applicant's department.
// A head applying for themselves goes to their own supervisor.
type departmentHeadResolver struct {
	org port.OrgChart
}

func (r *departmentHeadResolver) Resolve(ctx context.Context, _ entity.ApproverRule, req ResolveRequest) (string, error) {
	emp, err := r.org.GetEmployee(ctx, req.ApplicantID)
	if err != nil {
		return "", err
	}
	if emp == nil || emp.Department == "" {
		return "", nil
	}

	head, err := r.org.FindDepartmentHead(ctx, req.CompanyID, emp.Department)
	if err != nil {
		return "", err
	}
	if head == req.ApplicantID {
		return r.org.ResolveSupervisor(ctx, req.ApplicantID)
	}
	return head, nil
}
