package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/delegation"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// DelegationService manages delegation grants. Only the principal may
// create, edit or remove a grant. Removing a grant leaves decided approvals untouched.
type DelegationService interface {
	Create(ctx context.Context, actorID string, grant *entity.DelegationGrant) (*entity.DelegationGrant, error)
	Update(ctx context.Context, actorID string, grant *entity.DelegationGrant) (*entity.DelegationGrant, error)
	Delete(ctx context.Context, actorID string, id int64) error
	List(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error)
	ResolveEffectiveApprovers(ctx context.Context, principalID string, moduleType entity.ModuleType, companyID string, onDate time.Time) ([]string, error)
}

type delegationServiceImpl struct {
	repo   port.DelegationRepository
	logger Logger
	now    func() time.Time
}

// NewDelegationService creates a new DelegationService. A nil clock means
// time.Now.
func NewDelegationService(repo port.DelegationRepository, now func() time.Time, logger Logger) DelegationService {
	if now == nil {
		now = time.Now
	}
	return &delegationServiceImpl{
		repo:   repo,
		logger: logger,
		now:    now,
	}
}

func (s *delegationServiceImpl) Create(ctx context.Context, actorID string, grant *entity.DelegationGrant) (*entity.DelegationGrant, error) {
	if err := delegation.Validate(grant); err != nil {
		return nil, err
	}
	if grant.PrincipalID != actorID {
		s.logger.Error("Delegation created by someone other than the principal",
			"actor_id", actorID, "principal_id", grant.PrincipalID, "delegate_id", grant.DelegateID)
		return nil, fmt.Errorf("%w: only %s may delegate their approvals", apperr.ErrNotAuthorized, grant.PrincipalID)
	}

	now := s.now()
	grant.CreatedAt = now
	grant.UpdatedAt = now

	if err := s.repo.Create(ctx, grant); err != nil {
		s.logger.Error("Failed to create delegation", "error", err, "principal_id", grant.PrincipalID)
		return nil, fmt.Errorf("create delegation: %w", err)
	}

	s.logger.Info("Delegation created",
		"id", grant.ID,
		"principal_id", grant.PrincipalID,
		"delegate_id", grant.DelegateID,
	)
	return grant, nil
}

// Update replaces the window, scope, active flag and reason of a grant.
// Principal and delegate are fixed at creation.
func (s *delegationServiceImpl) Update(ctx context.Context, actorID string, grant *entity.DelegationGrant) (*entity.DelegationGrant, error) {
	existing, err := s.owned(ctx, actorID, grant.ID)
	if err != nil {
		return nil, err
	}

	existing.StartDate = grant.StartDate
	existing.EndDate = grant.EndDate
	existing.RequestTypes = grant.RequestTypes
	existing.CompanyIDs = grant.CompanyIDs
	existing.IsActive = grant.IsActive
	existing.Reason = grant.Reason
	existing.UpdatedAt = s.now()

	if err := delegation.Validate(existing); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		s.logger.Error("Failed to update delegation", "error", err, "id", grant.ID)
		return nil, fmt.Errorf("update delegation: %w", err)
	}

	s.logger.Info("Delegation updated", "id", existing.ID, "is_active", existing.IsActive)
	return existing, nil
}

func (s *delegationServiceImpl) Delete(ctx context.Context, actorID string, id int64) error {
	if _, err := s.owned(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete delegation", "error", err, "id", id)
		return fmt.Errorf("delete delegation: %w", err)
	}

	s.logger.Info("Delegation deleted", "id", id)
	return nil
}

func (s *delegationServiceImpl) List(ctx context.Context, principalID string) ([]*entity.DelegationGrant, error) {
	grants, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	return grants, nil
}

func (s *delegationServiceImpl) ResolveEffectiveApprovers(ctx context.Context, principalID string, moduleType entity.ModuleType, companyID string, onDate time.Time) ([]string, error) {
	grants, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	scope := delegation.Scope{ModuleType: moduleType, CompanyID: companyID}
	return delegation.ResolveEffectiveApprovers(principalID, grants, scope, onDate), nil
}

func (s *delegationServiceImpl) owned(ctx context.Context, actorID string, id int64) (*entity.DelegationGrant, error) {
	grant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	if grant == nil {
		return nil, fmt.Errorf("%w: delegation %d", apperr.ErrNotFound, id)
	}
	if grant.PrincipalID != actorID {
		return nil, fmt.Errorf("%w: only the principal may change delegation %d", apperr.ErrNotAuthorized, id)
	}
	return grant, nil
}
