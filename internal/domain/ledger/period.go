package ledger

import (
	"fmt"

	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// PeriodAction is a lifecycle operation on an accounting period
type PeriodAction string

const (
	PeriodActionClose  PeriodAction = "CLOSE"
	PeriodActionReopen PeriodAction = "REOPEN"
	PeriodActionLock   PeriodAction = "LOCK"
)

// PeriodsPerYear is the number of accounting periods created for a year
const PeriodsPerYear = 12

// NextPeriodStatus returns the status reached by applying action. LOCKED is
// absorbing: every action from it fails with ErrPeriodLocked.
func NextPeriodStatus(from string, action PeriodAction) (string, error) {
	if from == entity.PeriodLocked {
		return from, apperr.ErrPeriodLocked
	}

	switch action {
	case PeriodActionClose:
		if from == entity.PeriodOpen {
			return entity.PeriodClosed, nil
		}
	case PeriodActionReopen:
		if from == entity.PeriodClosed {
			return entity.PeriodOpen, nil
		}
	case PeriodActionLock:
		if from == entity.PeriodOpen || from == entity.PeriodClosed {
			return entity.PeriodLocked, nil
		}
	}

	return from, fmt.Errorf("%w: cannot %s period in status %s", apperr.ErrInvalidTransition, action, from)
}

// SourceStatuses lists the statuses from which action is legal. Stores use it
// to make the status update conditional on the prior state.
func SourceStatuses(action PeriodAction) []string {
	switch action {
	case PeriodActionClose:
		return []string{entity.PeriodOpen}
	case PeriodActionReopen:
		return []string{entity.PeriodClosed}
	case PeriodActionLock:
		return []string{entity.PeriodOpen, entity.PeriodClosed}
	default:
		return nil
	}
}

// ValidatePeriod checks a year and month number
func ValidatePeriod(year, period int) error {
	if year < 1900 || year > 9999 {
		return fmt.Errorf("%w: year %d out of range", apperr.ErrInvalidInput, year)
	}
	if period < 1 || period > PeriodsPerYear {
		return fmt.Errorf("%w: period %d out of range", apperr.ErrInvalidInput, period)
	}
	return nil
}
