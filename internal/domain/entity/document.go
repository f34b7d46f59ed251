package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is the workflow view of a business request (leave, expense, seal,
// card, stationery). The owning module keeps its own field schema; the core
// only reads and writes Status and the timestamps.
type Document struct {
	ID         int64                  `json:"id"`
	ModuleType ModuleType             `json:"module_type"`
	CompanyID  string                 `json:"company_id"`
	OwnerID    string                 `json:"owner_id"`
	Status     string                 `json:"status"`
	Title      string                 `json:"title,omitempty"`
	Amount     decimal.Decimal        `json:"amount"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Employee is an org-chart entry used by approver resolution
type Employee struct {
	ID               string   `json:"id"`
	CompanyID        string   `json:"company_id"`
	Name             string   `json:"name"`
	Department       string   `json:"department"`
	SupervisorID     string   `json:"supervisor_id,omitempty"`
	IsDepartmentHead bool     `json:"is_department_head"`
	Roles            []string `json:"roles,omitempty"`
	IsActive         bool     `json:"is_active"`
}

// HasRole reports whether the employee holds the given role
func (e *Employee) HasRole(role string) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}
