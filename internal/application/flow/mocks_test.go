package flow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// memDB is an in-memory backing store shared by the fake repositories. The
// fakes enforce the same conditional-write rules as the sqlite repositories.
type memDB struct {
	mu          sync.Mutex
	nextID      int64
	documents   map[int64]*entity.Document
	employees   map[string]*entity.Employee
	templates   map[int64]*entity.FlowTemplate
	executions  map[int64]*entity.FlowExecution
	approvals   map[int64]*entity.FlowApproval
	delegations map[int64]*entity.DelegationGrant
}

func newMemDB() *memDB {
	return &memDB{
		documents:   make(map[int64]*entity.Document),
		employees:   make(map[string]*entity.Employee),
		templates:   make(map[int64]*entity.FlowTemplate),
		executions:  make(map[int64]*entity.FlowExecution),
		approvals:   make(map[int64]*entity.FlowApproval),
		delegations: make(map[int64]*entity.DelegationGrant),
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) repositories() Repositories {
	return Repositories{
		Templates:   &memTemplates{db},
		Executions:  &memExecutions{db},
		Approvals:   &memApprovals{db},
		Delegations: &memDelegations{db},
		Documents:   &memDocuments{db},
		TxManager:   memTx{},
	}
}

func (db *memDB) addDocument(doc *entity.Document) *entity.Document {
	db.mu.Lock()
	defer db.mu.Unlock()
	doc.ID = db.id()
	if doc.Status == "" {
		doc.Status = entity.StatusDraft
	}
	db.documents[doc.ID] = doc
	return doc
}

func (db *memDB) documentStatus(id int64) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.documents[id].Status
}

func (db *memDB) addEmployee(emp *entity.Employee) {
	db.mu.Lock()
	defer db.mu.Unlock()
	emp.IsActive = true
	db.employees[emp.ID] = emp
}

func (db *memDB) addTemplate(tpl *entity.FlowTemplate) *entity.FlowTemplate {
	db.mu.Lock()
	defer db.mu.Unlock()
	tpl.ID = db.id()
	tpl.IsActive = true
	db.templates[tpl.ID] = tpl
	return tpl
}

func (db *memDB) addGrant(g *entity.DelegationGrant) *entity.DelegationGrant {
	db.mu.Lock()
	defer db.mu.Unlock()
	g.ID = db.id()
	db.delegations[g.ID] = g
	return g
}

func (db *memDB) approvalsOf(executionID int64) []*entity.FlowApproval {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*entity.FlowApproval
	for _, a := range db.approvals {
		if a.ExecutionID == executionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

// memTx runs fn directly. Transactions are not serialized so racing
// deciders reach the conditional write concurrently.
type memTx struct{}

func (memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memDocuments struct{ db *memDB }

func (m *memDocuments) Load(ctx context.Context, id int64) (*entity.Document, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	doc, ok := m.db.documents[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocuments) SetStatus(ctx context.Context, id int64, from, to string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	doc, ok := m.db.documents[id]
	if !ok || doc.Status != from {
		return apperr.ErrConcurrentUpdate
	}
	doc.Status = to
	return nil
}

type memOrg struct{ db *memDB }

func (m *memOrg) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	emp, ok := m.db.employees[id]
	if !ok {
		return nil, nil
	}
	cp := *emp
	return &cp, nil
}

func (m *memOrg) ResolveSupervisor(ctx context.Context, employeeID string) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if emp, ok := m.db.employees[employeeID]; ok {
		return emp.SupervisorID, nil
	}
	return "", nil
}

func (m *memOrg) FindDepartmentHead(ctx context.Context, companyID, department string) (string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, emp := range m.db.employees {
		if emp.CompanyID == companyID && emp.Department == department && emp.IsDepartmentHead && emp.IsActive {
			return emp.ID, nil
		}
	}
	return "", nil
}

func (m *memOrg) FindByRole(ctx context.Context, companyID, role string) ([]*entity.Employee, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.Employee
	for _, emp := range m.db.employees {
		if emp.CompanyID == companyID && emp.IsActive && emp.HasRole(role) {
			cp := *emp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTemplates struct{ db *memDB }

func (m *memTemplates) Create(ctx context.Context, tpl *entity.FlowTemplate) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	tpl.ID = m.db.id()
	m.db.templates[tpl.ID] = tpl
	return nil
}

func (m *memTemplates) GetByID(ctx context.Context, id int64) (*entity.FlowTemplate, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.templates[id], nil
}

func (m *memTemplates) GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, tpl := range m.db.templates {
		if tpl.ModuleType == moduleType && tpl.CompanyID == companyID && tpl.IsActive {
			return tpl, nil
		}
	}
	return nil, nil
}

func (m *memTemplates) LatestVersion(ctx context.Context, moduleType entity.ModuleType, companyID string) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	latest := 0
	for _, tpl := range m.db.templates {
		if tpl.ModuleType == moduleType && tpl.CompanyID == companyID && tpl.Version > latest {
			latest = tpl.Version
		}
	}
	return latest, nil
}

func (m *memTemplates) Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, tpl := range m.db.templates {
		if tpl.ModuleType == moduleType && tpl.CompanyID == companyID {
			tpl.IsActive = false
		}
	}
	return nil
}

func (m *memTemplates) ListByCompany(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error) {
	return nil, nil
}

type memExecutions struct{ db *memDB }

func (m *memExecutions) Create(ctx context.Context, exec *entity.FlowExecution) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if exec.Status == entity.ExecutionRunning {
		for _, other := range m.db.executions {
			if other.DocumentID == exec.DocumentID && other.Status == entity.ExecutionRunning {
				return apperr.ErrExecutionRunning
			}
		}
	}
	exec.ID = m.db.id()
	cp := *exec
	m.db.executions[exec.ID] = &cp
	return nil
}

func (m *memExecutions) GetByID(ctx context.Context, id int64) (*entity.FlowExecution, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	exec, ok := m.db.executions[id]
	if !ok {
		return nil, nil
	}
	cp := *exec
	return &cp, nil
}

func (m *memExecutions) GetRunningByDocument(ctx context.Context, documentID int64) (*entity.FlowExecution, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, exec := range m.db.executions {
		if exec.DocumentID == documentID && exec.Status == entity.ExecutionRunning {
			cp := *exec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memExecutions) ListByDocument(ctx context.Context, documentID int64) ([]*entity.FlowExecution, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.FlowExecution
	for _, exec := range m.db.executions {
		if exec.DocumentID == documentID {
			cp := *exec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memExecutions) Advance(ctx context.Context, id, expectedVersion int64, nextStep int) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	exec, ok := m.db.executions[id]
	if !ok || exec.Version != expectedVersion || exec.Status != entity.ExecutionRunning {
		return apperr.ErrConcurrentUpdate
	}
	exec.CurrentStepOrder = nextStep
	exec.Version++
	return nil
}

func (m *memExecutions) Finish(ctx context.Context, id, expectedVersion int64, status string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	exec, ok := m.db.executions[id]
	if !ok || exec.Version != expectedVersion || exec.Status != entity.ExecutionRunning {
		return apperr.ErrConcurrentUpdate
	}
	exec.Status = status
	exec.Version++
	exec.CompletedAt = &at
	return nil
}

type memApprovals struct{ db *memDB }

func (m *memApprovals) Create(ctx context.Context, a *entity.FlowApproval) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, other := range m.db.approvals {
		if other.ExecutionID == a.ExecutionID && other.StepOrder == a.StepOrder {
			return apperr.ErrConcurrentUpdate
		}
	}
	a.ID = m.db.id()
	cp := *a
	m.db.approvals[a.ID] = &cp
	return nil
}

func (m *memApprovals) GetByID(ctx context.Context, id int64) (*entity.FlowApproval, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.approvals[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memApprovals) GetByStep(ctx context.Context, executionID int64, stepOrder int) (*entity.FlowApproval, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, a := range m.db.approvals {
		if a.ExecutionID == executionID && a.StepOrder == stepOrder {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memApprovals) ListByExecution(ctx context.Context, executionID int64) ([]*entity.FlowApproval, error) {
	return m.db.approvalsOf(executionID), nil
}

func (m *memApprovals) RecordDecision(ctx context.Context, id int64, d port.Decision) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	a, ok := m.db.approvals[id]
	if !ok || a.Decision != "" {
		return apperr.ErrAlreadyDecided
	}
	at := d.DecidedAt
	a.Decision = d.Decision
	a.DecidedByID = d.DecidedByID
	a.ProxyDelegationID = d.ProxyDelegationID
	a.Comment = d.Comment
	a.DecidedAt = &at
	return nil
}

func (m *memApprovals) ListPending(ctx context.Context, assignedApproverIDs []string) ([]*entity.PendingApproval, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	wanted := make(map[string]bool)
	for _, id := range assignedApproverIDs {
		wanted[id] = true
	}
	var out []*entity.PendingApproval
	for _, a := range m.db.approvals {
		exec := m.db.executions[a.ExecutionID]
		if a.Decision != "" || !wanted[a.AssignedApproverID] {
			continue
		}
		if exec.Status != entity.ExecutionRunning || exec.CurrentStepOrder != a.StepOrder {
			continue
		}
		out = append(out, &entity.PendingApproval{
			FlowApproval: *a,
			DocumentID:   exec.DocumentID,
			ModuleType:   exec.ModuleType,
			CompanyID:    exec.CompanyID,
			ApplicantID:  exec.ApplicantID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memApprovals) ListDecidedBy(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.FlowApproval
	for _, a := range m.db.approvals {
		if a.Decision != "" && a.DecidedByID == employeeID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(*out[j].DecidedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memDelegations struct{ db *memDB }

func (m *memDelegations) Create(ctx context.Context, g *entity.DelegationGrant) error {
	m.db.addGrant(g)
	return nil
}

func (m *memDelegations) GetByID(ctx context.Context, id int64) (*entity.DelegationGrant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.delegations[id], nil
}

func (m *memDelegations) Update(ctx context.Context, g *entity.DelegationGrant) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.delegations[g.ID] = g
	return nil
}

func (m *memDelegations) Delete(ctx context.Context, id int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.delegations, id)
	return nil
}

func (m *memDelegations) ListByPrincipal(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.DelegationGrant
	for _, g := range m.db.delegations {
		if g.PrincipalID == principalID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memDelegations) ListActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationGrant, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.DelegationGrant
	for _, g := range m.db.delegations {
		if g.DelegateID == delegateID && g.IsActive {
			out = append(out, g)
		}
	}
	return out, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...*event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
