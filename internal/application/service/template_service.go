package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// ConditionValidator checks that a step condition compiles
type ConditionValidator interface {
	Validate(expression string) error
}

// TemplateService manages flow templates. Saving never edits a stored
// template: it writes a new version and deactivates the previous one, so
// running executions keep the steps they started with.
type TemplateService interface {
	Save(ctx context.Context, tpl *entity.FlowTemplate) (*entity.FlowTemplate, error)
	Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error
	GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error)
	List(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error)
}

type templateServiceImpl struct {
	repo       port.TemplateRepository
	conditions ConditionValidator
	txManager  port.TransactionManager
	logger     Logger
	now        func() time.Time
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	repo port.TemplateRepository,
	conditions ConditionValidator,
	txManager port.TransactionManager,
	logger Logger,
) TemplateService {
	return &templateServiceImpl{
		repo:       repo,
		conditions: conditions,
		txManager:  txManager,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *templateServiceImpl) Save(ctx context.Context, tpl *entity.FlowTemplate) (*entity.FlowTemplate, error) {
	if err := s.validate(tpl); err != nil {
		return nil, err
	}

	saved := &entity.FlowTemplate{
		ModuleType: tpl.ModuleType,
		CompanyID:  tpl.CompanyID,
		Name:       tpl.Name,
		IsActive:   true,
		Steps:      append([]entity.StepDefinition(nil), tpl.Steps...),
		CreatedAt:  s.now(),
	}
	sort.Slice(saved.Steps, func(i, j int) bool { return saved.Steps[i].Order < saved.Steps[j].Order })

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		latest, err := s.repo.LatestVersion(txCtx, tpl.ModuleType, tpl.CompanyID)
		if err != nil {
			return fmt.Errorf("latest template version: %w", err)
		}
		if err := s.repo.Deactivate(txCtx, tpl.ModuleType, tpl.CompanyID); err != nil {
			return fmt.Errorf("deactivate template: %w", err)
		}

		saved.Version = latest + 1
		return s.repo.Create(txCtx, saved)
	})
	if err != nil {
		s.logger.Error("Failed to save template", "error", err, "module_type", tpl.ModuleType, "company_id", tpl.CompanyID)
		return nil, err
	}

	s.logger.Info("Template saved",
		"template_id", saved.ID,
		"module_type", saved.ModuleType,
		"company_id", saved.CompanyID,
		"version", saved.Version,
		"steps", len(saved.Steps),
	)
	return saved, nil
}

// Deactivate removes the active template so new submissions use the
// module default step
func (s *templateServiceImpl) Deactivate(ctx context.Context, moduleType entity.ModuleType, companyID string) error {
	if err := s.repo.Deactivate(ctx, moduleType, companyID); err != nil {
		s.logger.Error("Failed to deactivate template", "error", err, "module_type", moduleType, "company_id", companyID)
		return fmt.Errorf("deactivate template: %w", err)
	}
	return nil
}

func (s *templateServiceImpl) GetActive(ctx context.Context, moduleType entity.ModuleType, companyID string) (*entity.FlowTemplate, error) {
	tpl, err := s.repo.GetActive(ctx, moduleType, companyID)
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: no active %s template for %s", apperr.ErrNotFound, moduleType, companyID)
	}
	return tpl, nil
}

func (s *templateServiceImpl) List(ctx context.Context, companyID string) ([]*entity.FlowTemplate, error) {
	templates, err := s.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// validate requires a known module, step orders 1..n and an approver rule per
// step. Custom resolver kinds are accepted; they fail at activation if unregistered.
func (s *templateServiceImpl) validate(tpl *entity.FlowTemplate) error {
	if tpl == nil {
		return fmt.Errorf("%w: template is required", apperr.ErrInvalidInput)
	}
	if !tpl.ModuleType.IsValid() || tpl.ModuleType == entity.ModuleVoucher {
		return fmt.Errorf("%w: module type %q cannot carry a flow template", apperr.ErrInvalidInput, tpl.ModuleType)
	}
	if tpl.CompanyID == "" {
		return fmt.Errorf("%w: company id is required", apperr.ErrInvalidInput)
	}
	if len(tpl.Steps) == 0 {
		return fmt.Errorf("%w: template has no steps", apperr.ErrInvalidInput)
	}

	seen := make(map[int]bool, len(tpl.Steps))
	for _, step := range tpl.Steps {
		if step.Order < 1 || step.Order > len(tpl.Steps) || seen[step.Order] {
			return fmt.Errorf("%w: step orders must be 1..%d without gaps", apperr.ErrInvalidInput, len(tpl.Steps))
		}
		seen[step.Order] = true

		switch step.Approver.Kind {
		case entity.ApproverEmployee, entity.ApproverRole:
			if step.Approver.Value == "" {
				return fmt.Errorf("%w: step %d %s rule needs a value", apperr.ErrInvalidInput, step.Order, step.Approver.Kind)
			}
		case "":
			return fmt.Errorf("%w: step %d has no approver rule", apperr.ErrInvalidInput, step.Order)
		}

		if step.Condition != "" && s.conditions != nil {
			if err := s.conditions.Validate(step.Condition); err != nil {
				return fmt.Errorf("%w: step %d condition: %v", apperr.ErrInvalidInput, step.Order, err)
			}
		}
	}
	return nil
}
