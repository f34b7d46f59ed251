package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountingPeriod is one month of a company's fiscal year.
// LOCKED is absorbing; CLOSED may be reopened.
type AccountingPeriod struct {
	ID        int64      `json:"id"`
	CompanyID string     `json:"company_id"`
	Year      int        `json:"year"`
	Period    int        `json:"period"` // 1-12
	Status    string     `json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsOpen reports whether the period accepts voucher mutations
func (p *AccountingPeriod) IsOpen() bool {
	return p.Status == PeriodOpen
}

// Voucher is an accounting voucher posted into an accounting period
type Voucher struct {
	ID          int64         `json:"id"`
	CompanyID   string        `json:"company_id"`
	Number      string        `json:"number"`
	PeriodID    int64         `json:"period_id"`
	Status      string        `json:"status"`
	Description string        `json:"description,omitempty"`
	CreatedBy   string        `json:"created_by"`
	Lines       []VoucherLine `json:"lines"`
	Version     int64         `json:"version"`
	PostedAt    *time.Time    `json:"posted_at,omitempty"`
	VoidedAt    *time.Time    `json:"voided_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// VoucherLine carries either a debit or a credit amount, never both
type VoucherLine struct {
	ID           int64           `json:"id"`
	VoucherID    int64           `json:"voucher_id"`
	LineNo       int             `json:"line_no"`
	AccountCode  string          `json:"account_code"`
	Description  string          `json:"description,omitempty"`
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`
}

// Totals returns the debit and credit sums across all lines
func (v *Voucher) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range v.Lines {
		debit = debit.Add(l.DebitAmount)
		credit = credit.Add(l.CreditAmount)
	}
	return debit, credit
}

// IsBalanced reports whether total debits equal total credits
func (v *Voucher) IsBalanced() bool {
	debit, credit := v.Totals()
	return debit.Equal(credit)
}
