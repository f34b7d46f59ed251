// Package delegation decides whether a DelegationGrant lets a delegate act on
// behalf of a principal. The same rule backs both the decision path and the
// proxy-pending listing, so an item shown as approvable is never rejected.
package delegation

import (
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Scope is what a delegated decision is about
type Scope struct {
	ModuleType entity.ModuleType
	CompanyID  string
}

// Covers reports whether the grant is active on the given date and its scope
// includes the request. Dates are compared as calendar days, each in its own
// location, with both window ends inclusive.
func Covers(grant *entity.DelegationGrant, scope Scope, onDate time.Time) bool {
	if grant == nil || !grant.IsActive {
		return false
	}

	day := calendarDay(onDate)
	if day.Before(calendarDay(grant.StartDate)) {
		return false
	}
	if day.After(calendarDay(grant.EndDate)) {
		return false
	}

	if len(grant.RequestTypes) > 0 && !containsModule(grant.RequestTypes, scope.ModuleType) {
		return false
	}
	if len(grant.CompanyIDs) > 0 && !containsString(grant.CompanyIDs, scope.CompanyID) {
		return false
	}

	return true
}

// Authorizes reports whether the grant lets delegateID decide a step assigned
// to principalID. Only one hop is considered: the grant's principal must be
// the assigned approver itself.
func Authorizes(grant *entity.DelegationGrant, delegateID, principalID string, scope Scope, onDate time.Time) bool {
	if grant == nil {
		return false
	}
	if grant.DelegateID != delegateID || grant.PrincipalID != principalID {
		return false
	}
	return Covers(grant, scope, onDate)
}

// ResolveEffectiveApprovers returns the principal plus every delegate holding a
// matching grant, sorted and without duplicates. Grants for other principals
// are ignored.
func ResolveEffectiveApprovers(principalID string, grants []*entity.DelegationGrant, scope Scope, onDate time.Time) []string {
	set := map[string]struct{}{principalID: {}}
	for _, g := range grants {
		if g == nil || g.PrincipalID != principalID {
			continue
		}
		if Covers(g, scope, onDate) {
			set[g.DelegateID] = struct{}{}
		}
	}

	result := make([]string, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func containsModule(list []entity.ModuleType, m entity.ModuleType) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks a grant before it is stored
func Validate(grant *entity.DelegationGrant) error {
	if grant.PrincipalID == "" || grant.DelegateID == "" {
		return fmt.Errorf("%w: principal and delegate are required", apperr.ErrInvalidInput)
	}
	if grant.PrincipalID == grant.DelegateID {
		return fmt.Errorf("%w: cannot delegate to self", apperr.ErrInvalidInput)
	}
	if grant.StartDate.IsZero() || grant.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", apperr.ErrInvalidInput)
	}
	if calendarDay(grant.EndDate).Before(calendarDay(grant.StartDate)) {
		return fmt.Errorf("%w: end date before start date", apperr.ErrInvalidInput)
	}
	for _, m := range grant.RequestTypes {
		if !m.IsValid() {
			return fmt.Errorf("%w: unknown request type %s", apperr.ErrInvalidInput, m)
		}
	}
	return nil
}
