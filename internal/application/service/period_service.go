package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	"github.com/garyjia/doc-approval/internal/domain/ledger"
)

// PeriodService manages the accounting period lifecycle
type PeriodService interface {
	// InitializeYear creates the twelve OPEN periods of a year. Periods that
	// already exist are left untouched.
	InitializeYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error)

	Close(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error)
	Reopen(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error)
	Lock(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error)

	// CloseMonth closes every OPEN period of the given month across
	// companies and returns how many were closed
	CloseMonth(ctx context.Context, year, month int) (int, error)

	Get(ctx context.Context, companyID string, year, period int) (*entity.AccountingPeriod, error)
	ListYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error)
}

type periodServiceImpl struct {
	repo      port.PeriodRepository
	txManager port.TransactionManager
	publisher port.EventPublisher
	logger    Logger
	now       func() time.Time
}

// NewPeriodService creates a new PeriodService
func NewPeriodService(
	repo port.PeriodRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	logger Logger,
) PeriodService {
	return &periodServiceImpl{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *periodServiceImpl) InitializeYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error) {
	if companyID == "" {
		return nil, fmt.Errorf("%w: company id is required", apperr.ErrInvalidInput)
	}
	if err := ledger.ValidatePeriod(year, 1); err != nil {
		return nil, err
	}

	created := 0
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		now := s.now()
		for p := 1; p <= ledger.PeriodsPerYear; p++ {
			ok, err := s.repo.CreateIfAbsent(txCtx, &entity.AccountingPeriod{
				CompanyID: companyID,
				Year:      year,
				Period:    p,
				Status:    entity.PeriodOpen,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("create period %d-%02d: %w", year, p, err)
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to initialize accounting year", "error", err, "company_id", companyID, "year", year)
		return nil, err
	}

	s.logger.Info("Accounting year initialized", "company_id", companyID, "year", year, "created", created)
	return s.ListYear(ctx, companyID, year)
}

func (s *periodServiceImpl) Close(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error) {
	return s.apply(ctx, periodID, ledger.PeriodActionClose, actorID)
}

func (s *periodServiceImpl) Reopen(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error) {
	return s.apply(ctx, periodID, ledger.PeriodActionReopen, actorID)
}

func (s *periodServiceImpl) Lock(ctx context.Context, periodID int64, actorID string) (*entity.AccountingPeriod, error) {
	return s.apply(ctx, periodID, ledger.PeriodActionLock, actorID)
}

func (s *periodServiceImpl) CloseMonth(ctx context.Context, year, month int) (int, error) {
	if err := ledger.ValidatePeriod(year, month); err != nil {
		return 0, err
	}

	periods, err := s.repo.ListByStatus(ctx, entity.PeriodOpen, year, month)
	if err != nil {
		return 0, fmt.Errorf("list open periods: %w", err)
	}

	closed := 0
	for _, p := range periods {
		if _, err := s.apply(ctx, p.ID, ledger.PeriodActionClose, ""); err != nil {
			// Someone else closed or locked it in the meantime
			if errors.Is(err, apperr.ErrConcurrentUpdate) || errors.Is(err, apperr.ErrInvalidTransition) || errors.Is(err, apperr.ErrPeriodLocked) {
				continue
			}
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func (s *periodServiceImpl) Get(ctx context.Context, companyID string, year, period int) (*entity.AccountingPeriod, error) {
	p, err := s.repo.Get(ctx, companyID, year, period)
	if err != nil {
		return nil, fmt.Errorf("get period: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: period %s %d-%02d", apperr.ErrNotFound, companyID, year, period)
	}
	return p, nil
}

func (s *periodServiceImpl) ListYear(ctx context.Context, companyID string, year int) ([]*entity.AccountingPeriod, error) {
	periods, err := s.repo.ListByYear(ctx, companyID, year)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

func (s *periodServiceImpl) apply(ctx context.Context, periodID int64, action ledger.PeriodAction, actorID string) (*entity.AccountingPeriod, error) {
	var period *entity.AccountingPeriod
	var from string

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		period, err = s.repo.GetByID(txCtx, periodID)
		if err != nil {
			return fmt.Errorf("get period: %w", err)
		}
		if period == nil {
			return fmt.Errorf("%w: period %d", apperr.ErrNotFound, periodID)
		}

		to, err := ledger.NextPeriodStatus(period.Status, action)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.repo.UpdateStatus(txCtx, period.ID, ledger.SourceStatuses(action), to, now); err != nil {
			return err
		}

		from = period.Status
		period.Status = to
		period.UpdatedAt = now
		switch to {
		case entity.PeriodClosed:
			period.ClosedAt = &now
		case entity.PeriodLocked:
			period.LockedAt = &now
		case entity.PeriodOpen:
			period.ClosedAt = nil
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to change period status", "error", err, "period_id", periodID, "action", action)
		return nil, err
	}

	s.logger.Info("Period status changed",
		"period_id", period.ID,
		"company_id", period.CompanyID,
		"year", period.Year,
		"period", period.Period,
		"from", from,
		"to", period.Status,
	)
	s.publisher.Publish(ctx, event.NewEvent(periodEventType(action), period.ID, 0, period.CompanyID, map[string]interface{}{
		"year":        period.Year,
		"period":      period.Period,
		"from_status": from,
		"to_status":   period.Status,
		"actor_id":    actorID,
	}))
	return period, nil
}

func periodEventType(action ledger.PeriodAction) event.Type {
	switch action {
	case ledger.PeriodActionReopen:
		return event.TypePeriodReopened
	case ledger.PeriodActionLock:
		return event.TypePeriodLocked
	default:
		return event.TypePeriodClosed
	}
}
