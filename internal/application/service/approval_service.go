package service

import (
	"context"
	"fmt"

	"github.com/garyjia/doc-approval/internal/application/flow"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// FlowEngine is the flow execution engine as seen by the approval API
type FlowEngine interface {
	Start(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error)
	Decide(ctx context.Context, req flow.DecideRequest) (*entity.FlowExecution, error)
	Cancel(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error)
	CancelDocument(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error)
	GetPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
	GetProxyPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
	GetHistory(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error)
	GetExecution(ctx context.Context, executionID int64) (*entity.FlowExecution, []*entity.FlowApproval, error)
}

var _ FlowEngine = (*flow.Engine)(nil)

// ApprovalService is the approval API used by document modules
type ApprovalService interface {
	Submit(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error)
	Decide(ctx context.Context, req flow.DecideRequest) (*entity.FlowExecution, error)
	Cancel(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error)

	// CancelDocument cancels a document by id: a DRAFT directly, a PENDING
	// one through its running execution
	CancelDocument(ctx context.Context, documentID int64, actorID string) error

	// Advance applies a post-approval progression action (printing, issuing,
	// paying). The actor must hold the operator role in the document's company.
	Advance(ctx context.Context, documentID int64, action workflow.Action, actorID string) (*entity.Document, error)

	GetPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
	GetProxyPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error)
	GetHistory(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error)
	GetExecution(ctx context.Context, executionID int64) (*entity.FlowExecution, []*entity.FlowApproval, error)
}

type approvalServiceImpl struct {
	engine    FlowEngine
	documents port.DocumentStore
	org       port.OrgChart
	machines  *workflow.Registry
	txManager port.TransactionManager
	publisher port.EventPublisher
	logger    Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	engine FlowEngine,
	documents port.DocumentStore,
	org port.OrgChart,
	machines *workflow.Registry,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		engine:    engine,
		documents: documents,
		org:       org,
		machines:  machines,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *approvalServiceImpl) Submit(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error) {
	return s.engine.Start(ctx, documentID, actorID)
}

func (s *approvalServiceImpl) Decide(ctx context.Context, req flow.DecideRequest) (*entity.FlowExecution, error) {
	return s.engine.Decide(ctx, req)
}

func (s *approvalServiceImpl) Cancel(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error) {
	return s.engine.Cancel(ctx, executionID, actorID)
}

// CancelDocument cancels a document whether or not it has been submitted
func (s *approvalServiceImpl) CancelDocument(ctx context.Context, documentID int64, actorID string) error {
	_, err := s.engine.CancelDocument(ctx, documentID, actorID)
	return err
}

// Advance drives the module-specific branch after approval
func (s *approvalServiceImpl) Advance(ctx context.Context, documentID int64, action workflow.Action, actorID string) (*entity.Document, error) {
	var doc *entity.Document
	var from string

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.loadDocument(txCtx, documentID)
		if err != nil {
			return err
		}
		if doc.ModuleType == entity.ModuleVoucher {
			return fmt.Errorf("%w: vouchers are driven by the voucher service", apperr.ErrInvalidInput)
		}

		capability, err := s.operatorCapability(txCtx, actorID, doc.CompanyID)
		if err != nil {
			return err
		}

		machine, err := s.machines.For(doc.ModuleType)
		if err != nil {
			return err
		}
		next, err := machine.Transition(txCtx, workflow.State(doc.Status), action, capability)
		if err != nil {
			return err
		}

		if err := s.documents.SetStatus(txCtx, doc.ID, doc.Status, next.String()); err != nil {
			return err
		}
		from = doc.Status
		doc.Status = next.String()
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to advance document", "error", err, "document_id", documentID, "action", action)
		return nil, err
	}

	s.logger.Info("Document advanced", "document_id", doc.ID, "action", action, "from", from, "to", doc.Status)
	s.publisher.Publish(ctx, event.NewEvent(event.TypeDocumentAdvanced, doc.ID, doc.ID, doc.CompanyID, map[string]interface{}{
		"module_type": doc.ModuleType.String(),
		"action":      action.String(),
		"from_status": from,
		"to_status":   doc.Status,
		"actor_id":    actorID,
	}))
	return doc, nil
}

func (s *approvalServiceImpl) GetPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	return s.engine.GetPending(ctx, employeeID)
}

func (s *approvalServiceImpl) GetProxyPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	return s.engine.GetProxyPending(ctx, employeeID)
}

func (s *approvalServiceImpl) GetHistory(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error) {
	return s.engine.GetHistory(ctx, employeeID, limit)
}

func (s *approvalServiceImpl) GetExecution(ctx context.Context, executionID int64) (*entity.FlowExecution, []*entity.FlowApproval, error) {
	return s.engine.GetExecution(ctx, executionID)
}

func (s *approvalServiceImpl) operatorCapability(ctx context.Context, actorID, companyID string) (workflow.Capability, error) {
	return operatorCapability(ctx, s.org, actorID, companyID)
}

func (s *approvalServiceImpl) loadDocument(ctx context.Context, id int64) (*entity.Document, error) {
	doc, err := s.documents.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", apperr.ErrNotFound, id)
	}
	return doc, nil
}

// operatorCapability returns CapabilityOperator when the actor is an active
// OPERATOR of the company
func operatorCapability(ctx context.Context, org port.OrgChart, actorID, companyID string) (workflow.Capability, error) {
	emp, err := org.GetEmployee(ctx, actorID)
	if err != nil {
		return workflow.CapabilityNone, fmt.Errorf("load employee: %w", err)
	}
	if emp != nil && emp.IsActive && emp.CompanyID == companyID && emp.HasRole(entity.RoleOperator) {
		return workflow.CapabilityOperator, nil
	}
	return workflow.CapabilityNone, nil
}
