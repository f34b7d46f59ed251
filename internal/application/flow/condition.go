package flow

import (
	"fmt"
	"strings"

	"github.com/garyjia/doc-approval/internal/domain/apperr"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/pkg/expression"
)

// ConditionEvaluator decides whether a step applies to a document
type ConditionEvaluator interface {
	Evaluate(condition string, doc *entity.Document) (bool, error)
}

// exprConditions evaluates conditions with the expression engine against
// {document: {amount, moduleType, companyId, ownerId, attributes}}
type exprConditions struct {
	engine *expression.Engine
}

// NewConditionEvaluator wraps an expression engine
func NewConditionEvaluator(engine *expression.Engine) ConditionEvaluator {
	return &exprConditions{engine: engine}
}

func (c *exprConditions) Evaluate(condition string, doc *entity.Document) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	ok, err := c.engine.EvaluateBool(condition, documentEnv(doc))
	if err != nil {
		return false, fmt.Errorf("%w: step condition: %w", apperr.ErrInvalidInput, err)
	}
	return ok, nil
}

func documentEnv(doc *entity.Document) map[string]interface{} {
	attrs := doc.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	amount, _ := doc.Amount.Float64()

	return map[string]interface{}{
		"document": map[string]interface{}{
			"id":         doc.ID,
			"amount":     amount,
			"moduleType": doc.ModuleType.String(),
			"companyId":  doc.CompanyID,
			"ownerId":    doc.OwnerID,
			"title":      doc.Title,
			"attributes": attrs,
		},
	}
}
