package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/domain/ledger"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
)

// CreateVoucherInput carries the fields of a new voucher
type CreateVoucherInput struct {
	CompanyID   string
	PeriodID    int64
	Description string
	CreatedBy   string
	Lines       []entity.VoucherLine
}

// VoucherService manages vouchers under the accounting period guard.
// Every write re-checks the period inside the same transaction.
type VoucherService interface {
	Create(ctx context.Context, input CreateVoucherInput) (*entity.Voucher, error)
	// Update replaces description and lines of a DRAFT voucher
	Update(ctx context.Context, id, expectedVersion int64, actorID, description string, lines []entity.VoucherLine) (*entity.Voucher, error)
	Delete(ctx context.Context, id, expectedVersion int64, actorID string) error

	Submit(ctx context.Context, id int64, actorID string) (*entity.Voucher, error)
	Withdraw(ctx context.Context, id int64, actorID string) (*entity.Voucher, error)
	Post(ctx context.Context, id int64, actorID string) (*entity.Voucher, error)
	Void(ctx context.Context, id int64, actorID string) (*entity.Voucher, error)

	Get(ctx context.Context, id int64) (*entity.Voucher, error)
	ListByPeriod(ctx context.Context, periodID int64) ([]*entity.Voucher, error)
}

type voucherServiceImpl struct {
	vouchers  port.VoucherRepository
	periods   port.PeriodRepository
	org       port.OrgChart
	machine   workflow.Machine
	txManager port.TransactionManager
	publisher port.EventPublisher
	logger    Logger
	now       func() time.Time
}

// NewVoucherService creates a new VoucherService
func NewVoucherService(
	vouchers port.VoucherRepository,
	periods port.PeriodRepository,
	org port.OrgChart,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	logger Logger,
) VoucherService {
	return &voucherServiceImpl{
		vouchers:  vouchers,
		periods:   periods,
		org:       org,
		machine:   workflow.NewVoucherMachine(),
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *voucherServiceImpl) Create(ctx context.Context, input CreateVoucherInput) (*entity.Voucher, error) {
	if input.CompanyID == "" || input.CreatedBy == "" {
		return nil, fmt.Errorf("%w: company and creator are required", apperr.ErrInvalidInput)
	}
	if err := ledger.ValidateLines(input.Lines); err != nil {
		return nil, err
	}

	var voucher *entity.Voucher
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		period, err := s.loadPeriod(txCtx, input.PeriodID)
		if err != nil {
			return err
		}
		if period.CompanyID != input.CompanyID {
			return fmt.Errorf("%w: period %d belongs to another company", apperr.ErrInvalidInput, period.ID)
		}
		if err := ledger.CheckMutation(entity.StatusDraft, period.Status, ledger.OpCreate); err != nil {
			return err
		}

		now := s.now()
		voucher = &entity.Voucher{
			CompanyID:   input.CompanyID,
			Number:      voucherNumber(period),
			PeriodID:    period.ID,
			Status:      entity.StatusDraft,
			Description: input.Description,
			CreatedBy:   input.CreatedBy,
			Lines:       numberLines(input.Lines),
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.vouchers.Create(txCtx, voucher)
	})
	if err != nil {
		s.logger.Error("Failed to create voucher", "error", err, "period_id", input.PeriodID)
		return nil, err
	}

	s.logger.Info("Voucher created", "voucher_id", voucher.ID, "number", voucher.Number, "period_id", voucher.PeriodID)
	return voucher, nil
}

func (s *voucherServiceImpl) Update(ctx context.Context, id, expectedVersion int64, actorID, description string, lines []entity.VoucherLine) (*entity.Voucher, error) {
	if err := ledger.ValidateLines(lines); err != nil {
		return nil, err
	}

	var voucher *entity.Voucher
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		voucher, err = s.loadEditable(txCtx, id, expectedVersion, actorID, ledger.OpUpdate)
		if err != nil {
			return err
		}

		voucher.Description = description
		voucher.Lines = numberLines(lines)
		voucher.UpdatedAt = s.now()
		if err := s.vouchers.ReplaceLines(txCtx, voucher); err != nil {
			return err
		}
		voucher.Version++
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update voucher", "error", err, "voucher_id", id)
		return nil, err
	}

	s.logger.Info("Voucher updated", "voucher_id", id, "lines", len(voucher.Lines))
	return voucher, nil
}

func (s *voucherServiceImpl) Delete(ctx context.Context, id, expectedVersion int64, actorID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.loadEditable(txCtx, id, expectedVersion, actorID, ledger.OpDelete); err != nil {
			return err
		}
		return s.vouchers.Delete(txCtx, id, expectedVersion)
	})
	if err != nil {
		s.logger.Error("Failed to delete voucher", "error", err, "voucher_id", id)
		return err
	}

	s.logger.Info("Voucher deleted", "voucher_id", id)
	return nil
}

// Submit moves a balanced DRAFT voucher to PENDING
func (s *voucherServiceImpl) Submit(ctx context.Context, id int64, actorID string) (*entity.Voucher, error) {
	return s.transition(ctx, id, actorID, workflow.ActionSubmit, ledger.OpUpdate)
}

// Withdraw returns a PENDING voucher to DRAFT for editing
func (s *voucherServiceImpl) Withdraw(ctx context.Context, id int64, actorID string) (*entity.Voucher, error) {
	return s.transition(ctx, id, actorID, workflow.ActionWithdraw, ledger.OpUpdate)
}

// Post is all-or-nothing: an unbalanced voucher keeps its status
func (s *voucherServiceImpl) Post(ctx context.Context, id int64, actorID string) (*entity.Voucher, error) {
	return s.transition(ctx, id, actorID, workflow.ActionPost, ledger.OpPost)
}

// Void is allowed in any period status
func (s *voucherServiceImpl) Void(ctx context.Context, id int64, actorID string) (*entity.Voucher, error) {
	return s.transition(ctx, id, actorID, workflow.ActionVoid, ledger.OpVoid)
}

func (s *voucherServiceImpl) Get(ctx context.Context, id int64) (*entity.Voucher, error) {
	return s.loadVoucher(ctx, id)
}

func (s *voucherServiceImpl) ListByPeriod(ctx context.Context, periodID int64) ([]*entity.Voucher, error) {
	vouchers, err := s.vouchers.ListByPeriod(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	return vouchers, nil
}

func (s *voucherServiceImpl) transition(ctx context.Context, id int64, actorID string, action workflow.Action, op ledger.Operation) (*entity.Voucher, error) {
	var voucher *entity.Voucher
	var from string

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		voucher, err = s.loadVoucher(txCtx, id)
		if err != nil {
			return err
		}
		period, err := s.loadPeriod(txCtx, voucher.PeriodID)
		if err != nil {
			return err
		}
		if err := ledger.CheckMutation(voucher.Status, period.Status, op); err != nil {
			return err
		}

		capability, err := s.capability(txCtx, voucher, actorID, action)
		if err != nil {
			return err
		}
		to, err := s.machine.Transition(txCtx, workflow.State(voucher.Status), action, capability)
		if err != nil {
			return err
		}

		if to == workflow.StatePending || to == workflow.StatePosted {
			if err := ledger.ValidateLines(voucher.Lines); err != nil {
				return err
			}
			if err := ledger.CheckBalanced(voucher); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.vouchers.UpdateStatus(txCtx, voucher.ID, voucher.Version, to.String(), op != ledger.OpVoid, now); err != nil {
			return err
		}

		from = voucher.Status
		voucher.Status = to.String()
		voucher.Version++
		voucher.UpdatedAt = now
		switch to {
		case workflow.StatePosted:
			voucher.PostedAt = &now
		case workflow.StateVoid:
			voucher.VoidedAt = &now
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to change voucher status", "error", err, "voucher_id", id, "action", action)
		return nil, err
	}

	s.logger.Info("Voucher status changed", "voucher_id", voucher.ID, "action", action, "from", from, "to", voucher.Status)

	var eventType event.Type
	switch voucher.Status {
	case entity.StatusPosted:
		eventType = event.TypeVoucherPosted
	case entity.StatusVoid:
		eventType = event.TypeVoucherVoided
	}
	if eventType != "" {
		debit, _ := voucher.Totals()
		s.publisher.Publish(ctx, event.NewEvent(eventType, voucher.ID, 0, voucher.CompanyID, map[string]interface{}{
			"number":      voucher.Number,
			"period_id":   voucher.PeriodID,
			"from_status": from,
			"amount":      debit.StringFixed(2),
			"actor_id":    actorID,
		}))
	}
	return voucher, nil
}

// capability maps the actor to the role the action is requested in: the
// creator submits and withdraws, company operators post and void
func (s *voucherServiceImpl) capability(ctx context.Context, voucher *entity.Voucher, actorID string, action workflow.Action) (workflow.Capability, error) {
	switch action {
	case workflow.ActionSubmit, workflow.ActionWithdraw:
		if actorID == voucher.CreatedBy {
			return workflow.CapabilityOwner, nil
		}
		return workflow.CapabilityNone, nil
	default:
		return operatorCapability(ctx, s.org, actorID, voucher.CompanyID)
	}
}

func (s *voucherServiceImpl) loadEditable(ctx context.Context, id, expectedVersion int64, actorID string, op ledger.Operation) (*entity.Voucher, error) {
	voucher, err := s.loadVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	if voucher.Version != expectedVersion {
		return nil, fmt.Errorf("%w: voucher %d is at version %d", apperr.ErrConcurrentUpdate, id, voucher.Version)
	}
	if voucher.CreatedBy != actorID {
		return nil, fmt.Errorf("%w: only the creator may edit voucher %d", apperr.ErrNotAuthorized, id)
	}

	period, err := s.loadPeriod(ctx, voucher.PeriodID)
	if err != nil {
		return nil, err
	}
	if err := ledger.CheckMutation(voucher.Status, period.Status, op); err != nil {
		return nil, err
	}
	if voucher.Status != entity.StatusDraft {
		return nil, fmt.Errorf("%w: voucher %d is %s", apperr.ErrInvalidTransition, id, voucher.Status)
	}
	return voucher, nil
}

func (s *voucherServiceImpl) loadVoucher(ctx context.Context, id int64) (*entity.Voucher, error) {
	voucher, err := s.vouchers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	if voucher == nil {
		return nil, fmt.Errorf("%w: voucher %d", apperr.ErrNotFound, id)
	}
	return voucher, nil
}

func (s *voucherServiceImpl) loadPeriod(ctx context.Context, id int64) (*entity.AccountingPeriod, error) {
	period, err := s.periods.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get period: %w", err)
	}
	if period == nil {
		return nil, fmt.Errorf("%w: period %d", apperr.ErrNotFound, id)
	}
	return period, nil
}

func voucherNumber(period *entity.AccountingPeriod) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("V%04d%02d-%s", period.Year, period.Period, suffix)
}

func numberLines(lines []entity.VoucherLine) []entity.VoucherLine {
	out := make([]entity.VoucherLine, len(lines))
	for i, l := range lines {
		l.LineNo = i + 1
		out[i] = l
	}
	return out
}
