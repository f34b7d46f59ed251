package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/flow"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/application/service"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/doc-approval/migrations"
	"github.com/garyjia/doc-approval/pkg/database"
)

type quietLogger struct{}

func (quietLogger) Info(string, ...interface{})  {}
func (quietLogger) Error(string, ...interface{}) {}

type store struct {
	db          *sql.DB
	tx          *sqlite.DB
	documents   *repository.DocumentRepository
	employees   *repository.EmployeeRepository
	templates   *repository.TemplateRepository
	executions  *repository.ExecutionRepository
	approvals   *repository.ApprovalRepository
	delegations *repository.DelegationRepository
	periods     *repository.PeriodRepository
	vouchers    *repository.VoucherRepository
}

func openStore(t *testing.T) *store {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "approval.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		BusyTimeout:  10 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrationsFS(migrations.FS))

	return &store{
		db:          db.DB,
		tx:          sqlite.NewDB(db.DB, logger),
		documents:   repository.NewDocumentRepository(db.DB, logger),
		employees:   repository.NewEmployeeRepository(db.DB, logger),
		templates:   repository.NewTemplateRepository(db.DB, logger),
		executions:  repository.NewExecutionRepository(db.DB, logger),
		approvals:   repository.NewApprovalRepository(db.DB, logger),
		delegations: repository.NewDelegationRepository(db.DB, logger),
		periods:     repository.NewPeriodRepository(db.DB, logger),
		vouchers:    repository.NewVoucherRepository(db.DB, logger),
	}
}

func (s *store) engine() *flow.Engine {
	return flow.NewEngine(flow.Repositories{
		Templates:   s.templates,
		Executions:  s.executions,
		Approvals:   s.approvals,
		Delegations: s.delegations,
		Documents:   s.documents,
		TxManager:   s.tx,
	}, flow.NewResolverRegistry(s.employees), workflow.NewRegistry())
}

func (s *store) seedOrg(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, emp := range []*entity.Employee{
		{ID: "E1", CompanyID: "C1", Name: "Applicant", Department: "Sales", SupervisorID: "E2", IsActive: true},
		{ID: "E2", CompanyID: "C1", Name: "Manager", Department: "Sales", IsDepartmentHead: true, IsActive: true},
		{ID: "E9", CompanyID: "C1", Name: "Accountant", Department: "Finance", Roles: []string{entity.RoleOperator}, IsActive: true},
	} {
		require.NoError(t, s.employees.Save(ctx, emp))
	}
}

func (s *store) openPeriod(t *testing.T) *entity.AccountingPeriod {
	t.Helper()
	now := time.Now()
	period := &entity.AccountingPeriod{
		CompanyID: "C1", Year: 2026, Period: 3, Status: entity.PeriodOpen,
		CreatedAt: now, UpdatedAt: now,
	}
	created, err := s.periods.CreateIfAbsent(context.Background(), period)
	require.NoError(t, err)
	require.True(t, created)
	return period
}

func TestConcurrentDecisionsOnOneStep(t *testing.T) {
	s := openStore(t)
	s.seedOrg(t)
	ctx := context.Background()

	doc := &entity.Document{ModuleType: entity.ModuleLeave, CompanyID: "C1", OwnerID: "E1", Title: "Annual leave"}
	require.NoError(t, s.documents.Create(ctx, doc))

	engine := s.engine()
	exec, err := engine.Start(ctx, doc.ID, "E1")
	require.NoError(t, err)
	require.Equal(t, entity.ExecutionRunning, exec.Status)

	const deciders = 8
	var wg sync.WaitGroup
	errs := make([]error, deciders)
	for i := 0; i < deciders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Decide(ctx, flow.DecideRequest{
				ExecutionID: exec.ID,
				StepOrder:   exec.CurrentStepOrder,
				ActorID:     "E2",
				Decision:    entity.DecisionApproved,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyDecided)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := s.documents.Load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, stored.Status)

	approvals, err := s.approvals.ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, "E2", approvals[0].DecidedByID)
}

func TestOneRunningExecutionPerDocument(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	doc := &entity.Document{ModuleType: entity.ModuleSeal, CompanyID: "C1", OwnerID: "E1"}
	require.NoError(t, s.documents.Create(ctx, doc))

	newExec := func() *entity.FlowExecution {
		now := time.Now()
		return &entity.FlowExecution{
			DocumentID: doc.ID, ModuleType: doc.ModuleType, ApplicantID: "E1", CompanyID: "C1",
			CurrentStepOrder: 1, Status: entity.ExecutionRunning, CreatedAt: now, UpdatedAt: now,
		}
	}

	first := newExec()
	require.NoError(t, s.executions.Create(ctx, first))
	assert.ErrorIs(t, s.executions.Create(ctx, newExec()), apperr.ErrExecutionRunning)

	require.NoError(t, s.executions.Finish(ctx, first.ID, first.Version, entity.ExecutionCancelled, time.Now()))
	assert.NoError(t, s.executions.Create(ctx, newExec()))
}

func TestLockedPeriodIsAbsorbing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	period := s.openPeriod(t)

	require.NoError(t, s.periods.UpdateStatus(ctx, period.ID,
		[]string{entity.PeriodOpen, entity.PeriodClosed}, entity.PeriodLocked, time.Now()))

	err := s.periods.UpdateStatus(ctx, period.ID, []string{entity.PeriodLocked}, entity.PeriodOpen, time.Now())
	assert.ErrorIs(t, err, apperr.ErrPeriodLocked)

	_, err = s.db.ExecContext(ctx, `UPDATE accounting_periods SET status = 'OPEN' WHERE id = ?`, period.ID)
	assert.Error(t, err)

	stored, err := s.periods.GetByID(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PeriodLocked, stored.Status)
	assert.NotNil(t, stored.LockedAt)
}

func TestGuardedVoucherWrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	period := s.openPeriod(t)

	now := time.Now()
	voucher := &entity.Voucher{
		CompanyID: "C1", Number: "V202603-TEST", PeriodID: period.ID, Status: entity.StatusDraft,
		CreatedBy: "E1", Version: 1, CreatedAt: now, UpdatedAt: now,
		Lines: []entity.VoucherLine{
			{LineNo: 1, AccountCode: "1001", DebitAmount: decimal.NewFromInt(50)},
			{LineNo: 2, AccountCode: "2001", CreditAmount: decimal.NewFromInt(50)},
		},
	}
	require.NoError(t, s.vouchers.Create(ctx, voucher))

	require.NoError(t, s.periods.UpdateStatus(ctx, period.ID, []string{entity.PeriodOpen}, entity.PeriodClosed, time.Now()))

	voucher.Description = "edited"
	err := s.vouchers.ReplaceLines(ctx, voucher)
	assert.ErrorIs(t, err, apperr.ErrPeriodNotOpen)

	err = s.vouchers.UpdateStatus(ctx, voucher.ID, voucher.Version, entity.StatusPosted, true, time.Now())
	assert.ErrorIs(t, err, apperr.ErrPeriodNotOpen)

	err = s.vouchers.Delete(ctx, voucher.ID, 99)
	assert.ErrorIs(t, err, apperr.ErrConcurrentUpdate)

	require.NoError(t, s.vouchers.UpdateStatus(ctx, voucher.ID, voucher.Version, entity.StatusVoid, false, time.Now()))

	stored, err := s.vouchers.GetByID(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusVoid, stored.Status)
	assert.Equal(t, voucher.Version+1, stored.Version)
	assert.Empty(t, stored.Description)
	assert.Len(t, stored.Lines, 2)
	assert.NotNil(t, stored.VoidedAt)
}

func TestUnbalancedVoucherIsNotSubmittedOrPosted(t *testing.T) {
	s := openStore(t)
	s.seedOrg(t)
	ctx := context.Background()
	period := s.openPeriod(t)

	vouchers := service.NewVoucherService(s.vouchers, s.periods, s.employees, s.tx, port.NopPublisher{}, quietLogger{})

	created, err := vouchers.Create(ctx, service.CreateVoucherInput{
		CompanyID: "C1",
		PeriodID:  period.ID,
		CreatedBy: "E1",
		Lines: []entity.VoucherLine{
			{AccountCode: "6601", DebitAmount: decimal.NewFromInt(100)},
			{AccountCode: "1001", CreditAmount: decimal.NewFromInt(80)},
		},
	})
	require.NoError(t, err)

	assertUnchanged := func(status string) {
		t.Helper()
		stored, err := s.vouchers.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
		assert.Equal(t, created.Version, stored.Version)
		assert.Nil(t, stored.PostedAt)
	}

	_, err = vouchers.Submit(ctx, created.ID, "E1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnbalancedVoucher))
	assert.Contains(t, err.Error(), "20.00")
	assertUnchanged(entity.StatusDraft)

	_, err = vouchers.Post(ctx, created.ID, "E9")
	assert.ErrorIs(t, err, apperr.ErrUnbalancedVoucher)
	assertUnchanged(entity.StatusDraft)

	// A PENDING voucher whose lines no longer balance stays PENDING
	_, err = s.db.ExecContext(ctx, `UPDATE vouchers SET status = 'PENDING' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	_, err = vouchers.Post(ctx, created.ID, "E9")
	assert.ErrorIs(t, err, apperr.ErrUnbalancedVoucher)
	assertUnchanged(entity.StatusPending)
}

// racingExecutions runs a competing submit right after the first running
// execution lookup and gives it time to commit before returning.
type racingExecutions struct {
	port.ExecutionRepository
	once   sync.Once
	submit func() error
	done   chan error
}

func (r *racingExecutions) GetRunningByDocument(ctx context.Context, documentID int64) (*entity.FlowExecution, error) {
	running, err := r.ExecutionRepository.GetRunningByDocument(ctx, documentID)
	r.once.Do(func() {
		go func() { r.done <- r.submit() }()
		time.Sleep(300 * time.Millisecond)
	})
	return running, err
}

func TestCancelDocumentRacingSubmit(t *testing.T) {
	s := openStore(t)
	s.seedOrg(t)
	ctx := context.Background()

	doc := &entity.Document{ModuleType: entity.ModuleLeave, CompanyID: "C1", OwnerID: "E1", Title: "Sick leave"}
	require.NoError(t, s.documents.Create(ctx, doc))

	submitter := s.engine()
	racing := &racingExecutions{
		ExecutionRepository: s.executions,
		submit: func() error {
			_, err := submitter.Start(context.Background(), doc.ID, "E1")
			return err
		},
		done: make(chan error, 1),
	}
	canceller := flow.NewEngine(flow.Repositories{
		Templates:   s.templates,
		Executions:  racing,
		Approvals:   s.approvals,
		Delegations: s.delegations,
		Documents:   s.documents,
		TxManager:   s.tx,
	}, flow.NewResolverRegistry(s.employees), workflow.NewRegistry())

	exec, err := canceller.CancelDocument(ctx, doc.ID, "E1")
	require.NoError(t, err)
	assert.Nil(t, exec)

	// The submit waits for the cancel to commit and then finds the
	// document already CANCELLED
	select {
	case err := <-racing.done:
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	case <-time.After(15 * time.Second):
		t.Fatal("competing submit did not finish")
	}

	stored, err := s.documents.Load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, stored.Status)

	running, err := s.executions.GetRunningByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, running)

	pending, err := submitter.GetPending(ctx, "E2")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
