package container

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/flow"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/application/service"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
	infraLark "github.com/garyjia/doc-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/doc-approval/internal/infrastructure/worker"
	"github.com/garyjia/doc-approval/migrations"
	"github.com/garyjia/doc-approval/pkg/database"
	"github.com/garyjia/doc-approval/pkg/expression"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database and runs pending migrations, from
// MigrationsDir when set and from the embedded schema otherwise.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sqlDB := db.DB
	return &RepositoryBundle{
		Documents:   repository.NewDocumentRepository(sqlDB, logger),
		Employees:   repository.NewEmployeeRepository(sqlDB, logger),
		Templates:   repository.NewTemplateRepository(sqlDB, logger),
		Executions:  repository.NewExecutionRepository(sqlDB, logger),
		Approvals:   repository.NewApprovalRepository(sqlDB, logger),
		Delegations: repository.NewDelegationRepository(sqlDB, logger),
		Periods:     repository.NewPeriodRepository(sqlDB, logger),
		Vouchers:    repository.NewVoucherRepository(sqlDB, logger),
	}, nil
}

// eventHandlerTimeout bounds one subscriber run, such as a Lark delivery
const eventHandlerTimeout = 30 * time.Second

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
		dispatcher.WithHandlerTimeout(eventHandlerTimeout),
	), nil
}

// EngineDeps holds dependencies required for creating the flow engine.
type EngineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Publisher  port.EventPublisher
	Machines   *workflow.Registry
	Expression *expression.Engine
	Clock      func() time.Time
	Workflow   *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideFlowEngine creates the flow engine with its approver resolvers.
func ProvideFlowEngine(deps *EngineDeps) (*flow.Engine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow config is required")
	}

	repos := flow.Repositories{
		Templates:   deps.Repos.Templates,
		Executions:  deps.Repos.Executions,
		Approvals:   deps.Repos.Approvals,
		Delegations: deps.Repos.Delegations,
		Documents:   deps.Repos.Documents,
		TxManager:   deps.TxManager,
	}

	return flow.NewEngine(repos,
		flow.NewResolverRegistry(deps.Repos.Employees),
		deps.Machines,
		flow.WithClock(deps.Clock),
		flow.WithPublisher(deps.Publisher),
		flow.WithFallbackRule(deps.Workflow.FallbackRule),
		flow.WithConditionEvaluator(flow.NewConditionEvaluator(deps.Expression)),
		flow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("flow")}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	Engine     *flow.Engine
	TxManager  port.TransactionManager
	Publisher  port.EventPublisher
	Machines   *workflow.Registry
	Expression *expression.Engine
	Clock      func() time.Time
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("flow engine is required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Approval: service.NewApprovalService(
			deps.Engine,
			deps.Repos.Documents,
			deps.Repos.Employees,
			deps.Machines,
			deps.TxManager,
			deps.Publisher,
			serviceLogger,
		),
		Delegation: service.NewDelegationService(
			deps.Repos.Delegations,
			deps.Clock,
			serviceLogger,
		),
		Period: service.NewPeriodService(
			deps.Repos.Periods,
			deps.TxManager,
			deps.Publisher,
			serviceLogger,
		),
		Voucher: service.NewVoucherService(
			deps.Repos.Vouchers,
			deps.Repos.Periods,
			deps.Repos.Employees,
			deps.TxManager,
			deps.Publisher,
			serviceLogger,
		),
		Template: service.NewTemplateService(
			deps.Repos.Templates,
			deps.Expression,
			deps.TxManager,
			serviceLogger,
		),
	}, nil
}

// ProvideStepNotifier subscribes the Lark step notifier to step activation
// events. It returns nil when Lark is not configured.
func ProvideStepNotifier(cfg *LarkConfig, repos *RepositoryBundle, disp dispatcher.Dispatcher, clock func() time.Time, logger *zap.Logger) (*infraLark.StepNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	larkCfg := infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark credentials not set, step notifications disabled")
		return nil, nil
	}

	sdkClient := infraLark.NewSDKClient(larkCfg, logger)
	messenger := infraLark.NewMessenger(sdkClient, logger)
	notifier := infraLark.NewStepNotifier(messenger, repos.Delegations, clock, logger.Named("notifier"))

	disp.Subscribe("lark-step-notifier", notifier.HandleStepActivated, event.TypeStepActivated)
	return notifier, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services  *ServiceBundle
	LedgerCfg *LedgerConfig
	Location  *time.Location
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager and registers the scheduled
// period close when a schedule is configured.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.LedgerCfg != nil && deps.LedgerCfg.AutoCloseCron != "" {
		closer, err := worker.NewPeriodCloseWorker(deps.Services.Period, worker.PeriodCloseConfig{
			Spec:     deps.LedgerCfg.AutoCloseCron,
			Location: deps.Location,
			Timeout:  deps.LedgerCfg.AutoCloseTimeout,
		}, deps.Logger.Named("period-close"))
		if err != nil {
			return nil, err
		}
		manager.Register(closer)
	}

	return manager, nil
}
