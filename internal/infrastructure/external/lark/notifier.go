package lark

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/delegation"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// StepNotifier tells the assigned approver of a newly activated step, and
// every delegate currently acting for them, that a decision is waiting.
type StepNotifier struct {
	sender      port.MessageSender
	delegations port.DelegationRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewStepNotifier creates a step notifier. now should be the clock the flow
// engine authorizes delegates with; nil means time.Now.
func NewStepNotifier(sender port.MessageSender, delegations port.DelegationRepository, now func() time.Time, logger *zap.Logger) *StepNotifier {
	if now == nil {
		now = time.Now
	}
	return &StepNotifier{
		sender:      sender,
		delegations: delegations,
		logger:      logger,
		now:         now,
	}
}

// HandleStepActivated is a dispatcher handler for step.activated events.
// Delivery failures are logged per recipient and do not stop the others.
func (n *StepNotifier) HandleStepActivated(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeStepActivated {
		return nil
	}

	approverID := evt.GetPayloadString("assigned_approver_id")
	if approverID == "" {
		return fmt.Errorf("step event %s has no assigned approver", evt.ID)
	}
	module := entity.ModuleType(evt.GetPayloadString("module_type"))

	grants, err := n.delegations.ListByPrincipal(ctx, approverID)
	if err != nil {
		return fmt.Errorf("failed to list delegations: %w", err)
	}
	recipients := delegation.ResolveEffectiveApprovers(approverID, grants,
		delegation.Scope{ModuleType: module, CompanyID: evt.CompanyID}, n.now())

	var failed int
	for _, recipient := range recipients {
		text := stepMessage(evt, module)
		if recipient != approverID {
			text += fmt.Sprintf(" (on behalf of %s)", approverID)
		}
		if err := n.sender.SendText(ctx, recipient, text); err != nil {
			failed++
			n.logger.Error("Failed to notify approver",
				zap.String("recipient", recipient),
				zap.Int64("execution_id", evt.AggregateID),
				zap.Error(err))
		}
	}

	n.logger.Info("Step notification sent",
		zap.Int64("execution_id", evt.AggregateID),
		zap.Int64("step_order", evt.GetPayloadInt("step_order")),
		zap.Int("recipients", len(recipients)),
		zap.Int("failed", failed))
	return nil
}

func stepMessage(evt *event.Event, module entity.ModuleType) string {
	return fmt.Sprintf("Approval needed: %s request #%d from %s is waiting at step %d (%s).",
		module,
		evt.DocumentID,
		evt.GetPayloadString("applicant_id"),
		evt.GetPayloadInt("step_order"),
		evt.GetPayloadString("step_name"),
	)
}
