package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/delegation"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/pkg/expression"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Repositories groups the stores the engine works on
type Repositories struct {
	Templates   port.TemplateRepository
	Executions  port.ExecutionRepository
	Approvals   port.ApprovalRepository
	Delegations port.DelegationRepository
	Documents   port.DocumentStore
	TxManager   port.TransactionManager
}

// DecideRequest is one approver's decision on one step
type DecideRequest struct {
	ExecutionID int64
	StepOrder   int
	ActorID     string
	Decision    string
	Comment     string
	// ProxyDelegationID names the grant a delegate decides under. It is
	// ignored when the actor is the assigned approver.
	ProxyDelegationID *int64
}

// Engine drives flow executions: it activates steps, records decisions and
// moves documents through their lifecycle. All mutations of one call happen
// in a single transaction; events are published after commit.
type Engine struct {
	repos        Repositories
	resolvers    *ResolverRegistry
	machines     *workflow.Registry
	conditions   ConditionEvaluator
	publisher    port.EventPublisher
	logger       Logger
	now          func() time.Time
	fallbackRule entity.ApproverRule
}

// EngineOption configures the flow engine
type EngineOption func(*Engine)

// WithClock sets the clock used for decision timestamps and delegation windows
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p port.EventPublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithLogger sets a logger for the engine
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFallbackRule sets the approver rule of the implicit single step used
// when a company has no template for a module
func WithFallbackRule(rule entity.ApproverRule) EngineOption {
	return func(e *Engine) {
		e.fallbackRule = rule
	}
}

// WithConditionEvaluator replaces the step condition evaluator
func WithConditionEvaluator(c ConditionEvaluator) EngineOption {
	return func(e *Engine) {
		e.conditions = c
	}
}

// NewEngine creates a flow engine
func NewEngine(repos Repositories, resolvers *ResolverRegistry, machines *workflow.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		repos:        repos,
		resolvers:    resolvers,
		machines:     machines,
		conditions:   NewConditionEvaluator(expression.NewEngine()),
		publisher:    port.NopPublisher{},
		logger:       nopLogger{},
		now:          time.Now,
		fallbackRule: entity.ApproverRule{Kind: entity.ApproverSupervisor},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start submits a DRAFT document into approval. It picks the active template
// for the document's module and company, or the implicit single fallback
// step, activates the first applicable step and moves the document to
// PENDING. If every step is skipped by its condition the execution is
// approved immediately.
func (e *Engine) Start(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error) {
	var exec *entity.FlowExecution
	var events []*event.Event

	err := e.repos.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := e.loadDocument(txCtx, documentID)
		if err != nil {
			return err
		}
		if doc.ModuleType == entity.ModuleVoucher {
			return fmt.Errorf("%w: vouchers are posted, not routed through approval flows", apperr.ErrInvalidInput)
		}

		machine, err := e.machines.For(doc.ModuleType)
		if err != nil {
			return err
		}
		pending, err := machine.Transition(txCtx, workflow.State(doc.Status), workflow.ActionSubmit, ownerCapability(doc, actorID))
		if err != nil {
			return err
		}

		running, err := e.repos.Executions.GetRunningByDocument(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to check running execution: %w", err)
		}
		if running != nil {
			return fmt.Errorf("%w: execution %d", apperr.ErrExecutionRunning, running.ID)
		}

		tpl, err := e.repos.Templates.GetActive(txCtx, doc.ModuleType, doc.CompanyID)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		steps := e.stepsFor(tpl)

		next, approverID, err := e.nextStep(txCtx, steps, 0, doc)
		if err != nil {
			return err
		}

		now := e.now()
		exec = &entity.FlowExecution{
			DocumentID:  doc.ID,
			ModuleType:  doc.ModuleType,
			ApplicantID: doc.OwnerID,
			CompanyID:   doc.CompanyID,
			Status:      entity.ExecutionRunning,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if tpl != nil {
			exec.TemplateID = &tpl.ID
		}

		final := pending
		if next == nil {
			final, err = machine.Transition(txCtx, pending, workflow.ActionApprove, workflow.CapabilityApprover)
			if err != nil {
				return err
			}
			exec.Status = entity.ExecutionApproved
			exec.CompletedAt = &now
		} else {
			exec.CurrentStepOrder = next.Order
		}

		if err := e.repos.Executions.Create(txCtx, exec); err != nil {
			return fmt.Errorf("failed to create execution: %w", err)
		}
		events = append(events, e.executionEvent(event.TypeExecutionStarted, exec, nil))

		if next != nil {
			approval, err := e.activate(txCtx, exec, next, approverID)
			if err != nil {
				return err
			}
			events = append(events, e.stepEvent(event.TypeStepActivated, exec, approval))
		} else {
			events = append(events, e.executionEvent(event.TypeExecutionApproved, exec, nil))
		}

		if err := e.repos.Documents.SetStatus(txCtx, doc.ID, doc.Status, final.String()); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to start execution", "document_id", documentID, "actor_id", actorID, "error", err)
		return nil, err
	}

	e.logger.Info("Execution started",
		"execution_id", exec.ID,
		"document_id", documentID,
		"step_order", exec.CurrentStepOrder,
		"status", exec.Status,
	)
	e.publisher.Publish(ctx, events...)
	return exec, nil
}

// Decide records one decision on the execution's current step. A rejection
// ends the execution; an approval activates the next applicable step or,
// after the last step, approves the execution and its document.
func (e *Engine) Decide(ctx context.Context, req DecideRequest) (*entity.FlowExecution, error) {
	if req.Decision != entity.DecisionApproved && req.Decision != entity.DecisionRejected {
		return nil, fmt.Errorf("%w: decision must be %s or %s", apperr.ErrInvalidInput, entity.DecisionApproved, entity.DecisionRejected)
	}

	var exec *entity.FlowExecution
	var events []*event.Event

	err := e.repos.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		exec, err = e.repos.Executions.GetByID(txCtx, req.ExecutionID)
		if err != nil {
			return fmt.Errorf("failed to load execution: %w", err)
		}
		if exec == nil {
			return fmt.Errorf("%w: execution %d does not exist", apperr.ErrStepNotFound, req.ExecutionID)
		}

		approval, err := e.repos.Approvals.GetByStep(txCtx, exec.ID, req.StepOrder)
		if err != nil {
			return fmt.Errorf("failed to load approval: %w", err)
		}
		if approval != nil && approval.IsDecided() {
			return fmt.Errorf("%w: step %d of execution %d", apperr.ErrAlreadyDecided, req.StepOrder, exec.ID)
		}
		if approval == nil || !exec.IsRunning() || req.StepOrder != exec.CurrentStepOrder {
			return fmt.Errorf("%w: step %d is not the current step of execution %d", apperr.ErrStepNotFound, req.StepOrder, exec.ID)
		}

		now := e.now()
		proxyID, err := e.authorize(txCtx, exec, approval, req, now)
		if err != nil {
			return err
		}

		decision := port.Decision{
			Decision:          req.Decision,
			DecidedByID:       req.ActorID,
			ProxyDelegationID: proxyID,
			Comment:           req.Comment,
			DecidedAt:         now,
		}
		if err := e.repos.Approvals.RecordDecision(txCtx, approval.ID, decision); err != nil {
			return err
		}
		approval.Decision = decision.Decision
		approval.DecidedByID = decision.DecidedByID
		approval.ProxyDelegationID = decision.ProxyDelegationID
		approval.Comment = decision.Comment
		approval.DecidedAt = &now
		events = append(events, e.stepEvent(event.TypeStepDecided, exec, approval))

		doc, err := e.loadDocument(txCtx, exec.DocumentID)
		if err != nil {
			return err
		}

		if req.Decision == entity.DecisionRejected {
			evt, err := e.finish(txCtx, exec, doc, entity.ExecutionRejected, workflow.ActionReject, now)
			if err != nil {
				return err
			}
			events = append(events, evt)
			return nil
		}

		steps, err := e.executionSteps(txCtx, exec)
		if err != nil {
			return err
		}
		next, approverID, err := e.nextStep(txCtx, steps, req.StepOrder, doc)
		if err != nil {
			return err
		}

		if next == nil {
			evt, err := e.finish(txCtx, exec, doc, entity.ExecutionApproved, workflow.ActionApprove, now)
			if err != nil {
				return err
			}
			events = append(events, evt)
			return nil
		}

		if err := e.repos.Executions.Advance(txCtx, exec.ID, exec.Version, next.Order); err != nil {
			return err
		}
		exec.CurrentStepOrder = next.Order
		exec.Version++
		exec.UpdatedAt = now

		activated, err := e.activate(txCtx, exec, next, approverID)
		if err != nil {
			return err
		}
		events = append(events, e.stepEvent(event.TypeStepActivated, exec, activated))
		return nil
	})
	if err != nil {
		if !isDecisionConflict(err) {
			e.logger.Error("Failed to record decision",
				"execution_id", req.ExecutionID,
				"step_order", req.StepOrder,
				"actor_id", req.ActorID,
				"error", err,
			)
		}
		return nil, err
	}

	e.logger.Info("Decision recorded",
		"execution_id", exec.ID,
		"step_order", req.StepOrder,
		"decision", req.Decision,
		"actor_id", req.ActorID,
		"status", exec.Status,
	)
	e.publisher.Publish(ctx, events...)
	return exec, nil
}

// Cancel ends a RUNNING execution at the applicant's request. Undecided
// approvals are left untouched.
func (e *Engine) Cancel(ctx context.Context, executionID int64, actorID string) (*entity.FlowExecution, error) {
	var exec *entity.FlowExecution
	var events []*event.Event

	err := e.repos.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		exec, err = e.repos.Executions.GetByID(txCtx, executionID)
		if err != nil {
			return fmt.Errorf("failed to load execution: %w", err)
		}
		if exec == nil {
			return fmt.Errorf("%w: execution %d", apperr.ErrNotFound, executionID)
		}
		if !exec.IsRunning() {
			return fmt.Errorf("%w: execution %d is %s", apperr.ErrInvalidTransition, exec.ID, exec.Status)
		}

		doc, err := e.loadDocument(txCtx, exec.DocumentID)
		if err != nil {
			return err
		}

		evt, err := e.cancelRunning(txCtx, exec, doc, actorID)
		if err != nil {
			return err
		}
		events = append(events, evt)
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to cancel execution", "execution_id", executionID, "actor_id", actorID, "error", err)
		return nil, err
	}

	e.logger.Info("Execution cancelled", "execution_id", exec.ID, "actor_id", actorID)
	e.publisher.Publish(ctx, events...)
	return exec, nil
}

// CancelDocument cancels a document at its owner's request: a submitted
// document through its running execution, a DRAFT one directly. The
// running-execution lookup and the cancel share one transaction, so a
// concurrent Start either commits first and is cancelled with the document
// or finds the document already CANCELLED. The returned execution is nil
// when the document had none running.
func (e *Engine) CancelDocument(ctx context.Context, documentID int64, actorID string) (*entity.FlowExecution, error) {
	var exec *entity.FlowExecution
	var events []*event.Event

	err := e.repos.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		doc, err := e.loadDocument(txCtx, documentID)
		if err != nil {
			return err
		}

		running, err := e.repos.Executions.GetRunningByDocument(txCtx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to check running execution: %w", err)
		}
		if running != nil {
			evt, err := e.cancelRunning(txCtx, running, doc, actorID)
			if err != nil {
				return err
			}
			exec = running
			events = append(events, evt)
			return nil
		}

		machine, err := e.machines.For(doc.ModuleType)
		if err != nil {
			return err
		}
		next, err := machine.Transition(txCtx, workflow.State(doc.Status), workflow.ActionCancel, ownerCapability(doc, actorID))
		if err != nil {
			return err
		}
		return e.repos.Documents.SetStatus(txCtx, doc.ID, doc.Status, next.String())
	})
	if err != nil {
		e.logger.Error("Failed to cancel document", "document_id", documentID, "actor_id", actorID, "error", err)
		return nil, err
	}

	e.logger.Info("Document cancelled", "document_id", documentID, "actor_id", actorID)
	e.publisher.Publish(ctx, events...)
	return exec, nil
}

// GetPending lists undecided current steps assigned to the employee
func (e *Engine) GetPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	items, err := e.repos.Approvals.ListPending(ctx, []string{employeeID})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return items, nil
}

// GetProxyPending lists undecided current steps the employee may decide as
// a delegate. Each item carries the grant to present to Decide. The filter
// is the same rule Decide applies.
func (e *Engine) GetProxyPending(ctx context.Context, employeeID string) ([]*entity.PendingApproval, error) {
	grants, err := e.repos.Delegations.ListActiveByDelegate(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	if len(grants) == 0 {
		return []*entity.PendingApproval{}, nil
	}

	sort.Slice(grants, func(i, j int) bool { return grants[i].ID < grants[j].ID })

	principals := make([]string, 0, len(grants))
	seen := make(map[string]bool)
	for _, g := range grants {
		if g.PrincipalID == employeeID || seen[g.PrincipalID] {
			continue
		}
		seen[g.PrincipalID] = true
		principals = append(principals, g.PrincipalID)
	}
	if len(principals) == 0 {
		return []*entity.PendingApproval{}, nil
	}

	items, err := e.repos.Approvals.ListPending(ctx, principals)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	now := e.now()
	result := make([]*entity.PendingApproval, 0, len(items))
	for _, item := range items {
		scope := delegation.Scope{ModuleType: item.ModuleType, CompanyID: item.CompanyID}
		for _, g := range grants {
			if delegation.Authorizes(g, employeeID, item.AssignedApproverID, scope, now) {
				id := g.ID
				item.DelegationID = &id
				result = append(result, item)
				break
			}
		}
	}
	return result, nil
}

// GetHistory lists decisions made by the employee, newest first
func (e *Engine) GetHistory(ctx context.Context, employeeID string, limit int) ([]*entity.FlowApproval, error) {
	if limit <= 0 {
		limit = 100
	}
	items, err := e.repos.Approvals.ListDecidedBy(ctx, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision history: %w", err)
	}
	return items, nil
}

// GetExecution returns an execution with all its approval rows
func (e *Engine) GetExecution(ctx context.Context, executionID int64) (*entity.FlowExecution, []*entity.FlowApproval, error) {
	exec, err := e.repos.Executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load execution: %w", err)
	}
	if exec == nil {
		return nil, nil, fmt.Errorf("%w: execution %d", apperr.ErrNotFound, executionID)
	}
	approvals, err := e.repos.Approvals.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	return exec, approvals, nil
}

// authorize returns the delegation id to record, nil for a direct decision
func (e *Engine) authorize(ctx context.Context, exec *entity.FlowExecution, approval *entity.FlowApproval, req DecideRequest, now time.Time) (*int64, error) {
	if req.ActorID != "" && req.ActorID == approval.AssignedApproverID {
		return nil, nil
	}
	if req.ProxyDelegationID == nil {
		return nil, fmt.Errorf("%w: %s is not the assigned approver", apperr.ErrNotAuthorized, req.ActorID)
	}

	grant, err := e.repos.Delegations.GetByID(ctx, *req.ProxyDelegationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load delegation: %w", err)
	}

	scope := delegation.Scope{ModuleType: exec.ModuleType, CompanyID: exec.CompanyID}
	if !delegation.Authorizes(grant, req.ActorID, approval.AssignedApproverID, scope, now) {
		return nil, fmt.Errorf("%w: delegation %d does not cover %s for this step", apperr.ErrNotAuthorized, *req.ProxyDelegationID, req.ActorID)
	}

	id := grant.ID
	return &id, nil
}

// cancelRunning finishes a RUNNING execution as CANCELLED. Only the
// applicant holds the owner capability the cancel edge requires.
func (e *Engine) cancelRunning(ctx context.Context, exec *entity.FlowExecution, doc *entity.Document, actorID string) (*event.Event, error) {
	capability := workflow.CapabilityNone
	if actorID == exec.ApplicantID {
		capability = workflow.CapabilityOwner
	}
	return e.finishAs(ctx, exec, doc, entity.ExecutionCancelled, workflow.ActionCancel, capability, e.now())
}

// finish ends the execution as an approver-driven outcome
func (e *Engine) finish(ctx context.Context, exec *entity.FlowExecution, doc *entity.Document, status string, action workflow.Action, at time.Time) (*event.Event, error) {
	return e.finishAs(ctx, exec, doc, status, action, workflow.CapabilityApprover, at)
}

func (e *Engine) finishAs(ctx context.Context, exec *entity.FlowExecution, doc *entity.Document, status string, action workflow.Action, capability workflow.Capability, at time.Time) (*event.Event, error) {
	machine, err := e.machines.For(doc.ModuleType)
	if err != nil {
		return nil, err
	}
	next, err := machine.Transition(ctx, workflow.State(doc.Status), action, capability)
	if err != nil {
		return nil, err
	}

	if err := e.repos.Executions.Finish(ctx, exec.ID, exec.Version, status, at); err != nil {
		return nil, err
	}
	if err := e.repos.Documents.SetStatus(ctx, doc.ID, doc.Status, next.String()); err != nil {
		return nil, fmt.Errorf("failed to update document status: %w", err)
	}

	exec.Status = status
	exec.Version++
	exec.UpdatedAt = at
	exec.CompletedAt = &at

	var eventType event.Type
	switch status {
	case entity.ExecutionApproved:
		eventType = event.TypeExecutionApproved
	case entity.ExecutionRejected:
		eventType = event.TypeExecutionRejected
	default:
		eventType = event.TypeExecutionCancelled
	}
	return e.executionEvent(eventType, exec, map[string]interface{}{"document_status": next.String()}), nil
}

// nextStep returns the first step ordered after `after` whose condition
// holds, with its approver resolved now. It returns nil when none remain.
func (e *Engine) nextStep(ctx context.Context, steps []entity.StepDefinition, after int, doc *entity.Document) (*entity.StepDefinition, string, error) {
	for i := range steps {
		step := &steps[i]
		if step.Order <= after {
			continue
		}

		applies, err := e.conditions.Evaluate(step.Condition, doc)
		if err != nil {
			return nil, "", err
		}
		if !applies {
			e.logger.Info("Step skipped by condition", "document_id", doc.ID, "step_order", step.Order)
			continue
		}

		approverID, err := e.resolvers.Resolve(ctx, step.Approver, ResolveRequest{
			ApplicantID: doc.OwnerID,
			CompanyID:   doc.CompanyID,
			ModuleType:  doc.ModuleType,
		})
		if err != nil {
			return nil, "", err
		}
		return step, approverID, nil
	}
	return nil, "", nil
}

func (e *Engine) activate(ctx context.Context, exec *entity.FlowExecution, step *entity.StepDefinition, approverID string) (*entity.FlowApproval, error) {
	approval := &entity.FlowApproval{
		ExecutionID:        exec.ID,
		StepOrder:          step.Order,
		StepName:           step.Name,
		AssignedApproverID: approverID,
		CreatedAt:          e.now(),
	}
	if err := e.repos.Approvals.Create(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to activate step %d: %w", step.Order, err)
	}
	return approval, nil
}

func (e *Engine) executionSteps(ctx context.Context, exec *entity.FlowExecution) ([]entity.StepDefinition, error) {
	if exec.TemplateID == nil {
		return e.stepsFor(nil), nil
	}
	tpl, err := e.repos.Templates.GetByID(ctx, *exec.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: template %d of execution %d", apperr.ErrNotFound, *exec.TemplateID, exec.ID)
	}
	return e.stepsFor(tpl), nil
}

// stepsFor returns the template's steps sorted by order, or the implicit
// fallback step
func (e *Engine) stepsFor(tpl *entity.FlowTemplate) []entity.StepDefinition {
	if tpl == nil || len(tpl.Steps) == 0 {
		return []entity.StepDefinition{{Order: 1, Name: "Default approval", Approver: e.fallbackRule}}
	}
	steps := append([]entity.StepDefinition{}, tpl.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

func (e *Engine) loadDocument(ctx context.Context, id int64) (*entity.Document, error) {
	doc, err := e.repos.Documents.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %d", apperr.ErrNotFound, id)
	}
	return doc, nil
}

func (e *Engine) executionEvent(t event.Type, exec *entity.FlowExecution, extra map[string]interface{}) *event.Event {
	payload := map[string]interface{}{
		"module_type":  exec.ModuleType.String(),
		"applicant_id": exec.ApplicantID,
		"status":       exec.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return event.NewEvent(t, exec.ID, exec.DocumentID, exec.CompanyID, payload)
}

func (e *Engine) stepEvent(t event.Type, exec *entity.FlowExecution, approval *entity.FlowApproval) *event.Event {
	payload := map[string]interface{}{
		"module_type":          exec.ModuleType.String(),
		"applicant_id":         exec.ApplicantID,
		"step_order":           approval.StepOrder,
		"step_name":            approval.StepName,
		"assigned_approver_id": approval.AssignedApproverID,
	}
	if approval.IsDecided() {
		payload["decision"] = approval.Decision
		payload["decided_by_id"] = approval.DecidedByID
		payload["via_delegation"] = approval.ProxyDelegationID != nil
	}
	return event.NewEvent(t, exec.ID, exec.DocumentID, exec.CompanyID, payload)
}

func ownerCapability(doc *entity.Document, actorID string) workflow.Capability {
	if actorID != "" && actorID == doc.OwnerID {
		return workflow.CapabilityOwner
	}
	return workflow.CapabilityNone
}

// isDecisionConflict reports expected outcomes of racing deciders
func isDecisionConflict(err error) bool {
	return errors.Is(err, apperr.ErrAlreadyDecided) || errors.Is(err, apperr.ErrStepNotFound)
}
