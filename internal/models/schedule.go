package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
)

type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	SchedulePartial ScheduleStatus = "partial"
	SchedulePaid    ScheduleStatus = "paid"
	ScheduleOverdue ScheduleStatus = "overdue"
)

// RepaymentSchedule is one installment of a loan. InstallmentNo is 1-based
// and strictly increasing by due date within a loan.
type RepaymentSchedule struct {
	ID            int64          `json:"id"`
	LoanID        int64          `json:"loan_id"`
	InstallmentNo int            `json:"installment_no"`
	DueDate       time.Time      `json:"due_date"`
	AmountDue     money.Minor    `json:"amount_due"`
	PrincipalDue  money.Minor    `json:"principal_due"`
	InterestDue   money.Minor    `json:"interest_due"`
	PaidAmount    money.Minor    `json:"paid_amount"`
	Status        ScheduleStatus `json:"status"`
	LenderNote    string         `json:"lender_note,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// DeriveScheduleStatus is the single source of truth for installment status.
// The cached column in the database is only ever written with this value.
func DeriveScheduleStatus(paid, due money.Minor, dueDate, asOf time.Time) ScheduleStatus {
	switch {
	case paid >= due:
		return SchedulePaid
	case paid > 0:
		return SchedulePartial
	case asOf.After(endOfDay(dueDate)):
		return ScheduleOverdue
	default:
		return SchedulePending
	}
}

// Outstanding is the unpaid remainder of the installment.
func (s *RepaymentSchedule) Outstanding() money.Minor {
	if s.PaidAmount >= s.AmountDue {
		return 0
	}
	return s.AmountDue - s.PaidAmount
}

// DaysOverdue is whole days elapsed since the due date, 0 if not yet due.
func (s *RepaymentSchedule) DaysOverdue(asOf time.Time) int {
	if !asOf.After(endOfDay(s.DueDate)) {
		return 0
	}
	return int(asOf.Sub(s.DueDate).Hours() / 24)
}

// A payment on or before the due date counts as on time; only strictly
// after is late.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
