package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/doc-approval/internal/application/flow"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

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

// Flow engine

type mockEngine struct {
	startFunc           func(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error)
	decideFunc          func(ctx context.Context, req flow.DecideRequest) (*entity.FlowExecution, error)
	cancelFunc          func(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error)
	cancelDocumentFunc  func(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error)
	getPendingFunc      func(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
	getProxyPendingFunc func(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
}

func (m *mockEngine) Start(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, documentID, actorID)
	}
	return &entity.FlowExecution{ID: 1, DocumentID: documentID, Status: entity.ExecutionRunning}, nil
}

func (m *mockEngine) Decide(ctx context.Context, req flow.DecideRequest) (*entity.FlowExecution, error) {
	if m.decideFunc != nil {
		return m.decideFunc(ctx, req)
	}
	return &entity.FlowExecution{ID: req.ExecutionID}, nil
}

func (m *mockEngine) Cancel(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, executionID, actorID)
	}
	return &entity.FlowExecution{ID: executionID, Status: entity.ExecutionCancelled}, nil
}

func (m *mockEngine) CancelDocument(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error) {
	if m.cancelDocumentFunc != nil {
		return m.cancelDocumentFunc(ctx, documentID, actorID)
	}
	return nil, nil
}

func (m *mockEngine) GetPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	if m.getPendingFunc != nil {
		return m.getPendingFunc(ctx, employeeID)
	}
	return []*entity.PendingApproval{}, nil
}

func (m *mockEngine) GetProxyPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	if m.getProxyPendingFunc != nil {
		return m.getProxyPendingFunc(ctx, employeeID)
	}
	return []*entity.PendingApproval{}, nil
}

func (m *mockEngine) GetHistory(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error) {
	return []*entity.FlowApproval{}, nil
}

func (m *mockEngine) GetExecution(ctx context.Context, executionID int64) (*entity.FlowExecution, []*entity.FlowApproval, error) {
	return &entity.FlowExecution{ID: executionID}, nil, nil
}

// Documents and org chart

type mockDocumentStore struct {
	mu   sync.Mutex
	docs map[int64]*entity.Document
}

func newMockDocumentStore(docs ...*entity.Document) *mockDocumentStore {
	m := &mockDocumentStore{docs: make(map[int64]*entity.Document)}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *mockDocumentStore) Load(ctx context.Context, id int64) (*entity.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentStore) SetStatus(ctx context.Context, id int64, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Status != from {
		return apperr.ErrConcurrentUpdate
	}
	d.Status = to
	return nil
}

func (m *mockDocumentStore) status(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Status
}

type mockOrg struct {
	employees map[string]*entity.Employee
}

func newMockOrg(emps ...*entity.Employee) *mockOrg {
	m := &mockOrg{employees: make(map[string]*entity.Employee)}
	for _, e := range emps {
		m.employees[e.ID] = e
	}
	return m
}

func (m *mockOrg) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	return m.employees[id], nil
}

func (m *mockOrg) ResolveSupervisor(ctx context.Context, employeeID string) (string, error) {
	if e := m.employees[employeeID]; e != nil {
		return e.SupervisorID, nil
	}
	return "", nil
}

func (m *mockOrg) FindDepartmentHead(ctx context.Context, companyID, department string) (string, error) {
	return "", nil
}

func (m *mockOrg) FindByRole(ctx context.Context, companyID, role string) ([]*entity.Employee, error) {
	return nil, nil
}

// Delegations

type mockDelegationRepo struct {
	mu     sync.Mutex
	nextID int64
	grants map[int64]*entity.DelegationGrant
}

func newMockDelegationRepo() *mockDelegationRepo {
	return &mockDelegationRepo{grants: make(map[int64]*entity.DelegationGrant)}
}

func (m *mockDelegationRepo) Create(ctx context.Context, grant *entity.DelegationGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	grant.ID = m.nextID
	cp := *grant
	m.grants[grant.ID] = &cp
	return nil
}

func (m *mockDelegationRepo) GetByID(ctx context.Context, id int64) (*entity.DelegationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockDelegationRepo) Update(ctx context.Context, grant *entity.DelegationGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grants[grant.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *grant
	m.grants[grant.ID] = &cp
	return nil
}

func (m *mockDelegationRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, id)
	return nil
}

func (m *mockDelegationRepo) ListByPrincipal(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.DelegationGrant
	for _, g := range m.grants {
		if g.PrincipalID == principalID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDelegationRepo) ListActiveByDelegate(ctx context.Context, delegateID string) ([]*entity.DelegationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.DelegationGrant
	for _, g := range m.grants {
		if g.DelegateID == delegateID && g.IsActive {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Periods and vouchers

type memPeriodRepo struct {
	mu      sync.Mutex
	nextID  int64
	periods map[int64]*entity.AccountingPeriod
}

func newMemPeriodRepo() *memPeriodRepo {
	return &memPeriodRepo{periods: make(map[int64]*entity.AccountingPeriod)}
}

func (m *memPeriodRepo) CreateIfAbsent(ctx context.Context, p *entity.AccountingPeriod) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.periods {
		if existing.CompanyID == p.CompanyID && existing.Year == p.Year && existing.Period == p.Period {
			return false, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.periods[p.ID] = &cp
	return true, nil
}

func (m *memPeriodRepo) GetByID(ctx context.Context, id int64) (*entity.AccountingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPeriodRepo) Get(ctx context.Context, companyID string, year, period int) (*entity.AccountingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.CompanyID == companyID && p.Year == year && p.Period == period {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPeriodRepo) ListByYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AccountingPeriod
	for _, p := range m.periods {
		if p.CompanyID == companyID && p.Year == year {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func (m *memPeriodRepo) ListByStatus(ctx context.Context, status string, year, period int) ([]*entity.AccountingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AccountingPeriod
	for _, p := range m.periods {
		if p.Status == status && p.Year == year && p.Period == period {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPeriodRepo) UpdateStatus(ctx context.Context, id int64, from []string, to string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return apperr.ErrNotFound
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			p.UpdatedAt = at
			return nil
		}
	}
	return apperr.ErrConcurrentUpdate
}

func (m *memPeriodRepo) status(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.periods[id].Status
}

func (m *memPeriodRepo) setStatus(id int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[id].Status = status
}

func (m *memPeriodRepo) isOpen(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	return ok && p.Status == entity.PeriodOpen
}

type memVoucherRepo struct {
	mu       sync.Mutex
	periods  *memPeriodRepo
	nextID   int64
	vouchers map[int64]*entity.Voucher
}

func newMemVoucherRepo(periods *memPeriodRepo) *memVoucherRepo {
	return &memVoucherRepo{periods: periods, vouchers: make(map[int64]*entity.Voucher)}
}

func cloneVoucher(v *entity.Voucher) *entity.Voucher {
	cp := *v
	cp.Lines = append([]entity.VoucherLine(nil), v.Lines...)
	return &cp
}

func (m *memVoucherRepo) Create(ctx context.Context, v *entity.Voucher) error {
	if !m.periods.isOpen(v.PeriodID) {
		return apperr.ErrPeriodNotOpen
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	v.ID = m.nextID
	m.vouchers[v.ID] = cloneVoucher(v)
	return nil
}

func (m *memVoucherRepo) GetByID(ctx context.Context, id int64) (*entity.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vouchers[id]
	if !ok {
		return nil, nil
	}
	return cloneVoucher(v), nil
}

func (m *memVoucherRepo) ListByPeriod(ctx context.Context, periodID int64) ([]*entity.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Voucher
	for _, v := range m.vouchers {
		if v.PeriodID == periodID {
			out = append(out, cloneVoucher(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memVoucherRepo) ReplaceLines(ctx context.Context, v *entity.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.vouchers[v.ID]
	if !ok || stored.Version != v.Version {
		return apperr.ErrConcurrentUpdate
	}
	if !m.periods.isOpen(stored.PeriodID) {
		return apperr.ErrPeriodNotOpen
	}
	stored.Description = v.Description
	stored.Lines = append([]entity.VoucherLine(nil), v.Lines...)
	stored.Version++
	return nil
}

func (m *memVoucherRepo) Delete(ctx context.Context, id, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.vouchers[id]
	if !ok || stored.Version != expectedVersion {
		return apperr.ErrConcurrentUpdate
	}
	if !m.periods.isOpen(stored.PeriodID) {
		return apperr.ErrPeriodNotOpen
	}
	delete(m.vouchers, id)
	return nil
}

func (m *memVoucherRepo) UpdateStatus(ctx context.Context, id, expectedVersion int64, to string, requireOpen bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.vouchers[id]
	if !ok || stored.Version != expectedVersion {
		return apperr.ErrConcurrentUpdate
	}
	if requireOpen && !m.periods.isOpen(stored.PeriodID) {
		return apperr.ErrPeriodNotOpen
	}
	stored.Status = to
	stored.Version++
	stored.UpdatedAt = at
	return nil
}

func (m *memVoucherRepo) status(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vouchers[id].Status
}

// Templates

type memTemplateRepo struct {
	mu        sync.Mutex
	nextID    int64
	templates []*entity.FlowTemplate
}

func (m *memTemplateRepo) Create(ctx context.Context, tpl *entity.FlowTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tpl.ID = m.nextID
	cp := *tpl
	m.templates = append(m.templates, &cp)
	return nil
}

func (m *memTemplateRepo) GetByID(ctx context.Context, id int64) (*entity.FlowTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTemplateRepo) GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.ModuleType == moduleType && t.CompanyID == companyID && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTemplateRepo) LatestVersion(ctx context.Context, moduleType entity.ModuleType, companyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := 0
	for _, t := range m.templates {
		if t.ModuleType == moduleType && t.CompanyID == companyID && t.Version > latest {
			latest = t.Version
		}
	}
	return latest, nil
}

func (m *memTemplateRepo) Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.ModuleType == moduleType && t.CompanyID == companyID {
			t.IsActive = false
		}
	}
	return nil
}

func (m *memTemplateRepo) ListByCompany(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.FlowTemplate
	for _, t := range m.templates {
		if t.CompanyID == companyID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}
