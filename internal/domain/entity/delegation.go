package entity

import "time"

// DelegationGrant lets DelegateID decide steps assigned to PrincipalID while
// the grant is active, the date window covers the decision date and the scope
// covers the request. StartDate and EndDate are calendar dates (inclusive).
//
// An empty RequestTypes or CompanyIDs set means no restriction on that axis.
type DelegationGrant struct {
	ID           int64        `json:"id"`
	PrincipalID  string       `json:"principal_id"`
	DelegateID   string       `json:"delegate_id"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      time.Time    `json:"end_date"`
	RequestTypes []ModuleType `json:"request_types,omitempty"`
	CompanyIDs   []string     `json:"company_ids,omitempty"`
	IsActive     bool         `json:"is_active"`
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
