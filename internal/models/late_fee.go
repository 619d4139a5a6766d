package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
	"github.com/shopspring/decimal"
)

type LateFeeStatus string

const (
	FeePending LateFeeStatus = "pending"
	FeePaid    LateFeeStatus = "paid"
	FeeWaived  LateFeeStatus = "waived"
)

// LateFee is a tiered penalty on an overdue installment. At most one pending
// fee may exist per (schedule, tier); recalculation never duplicates.
type LateFee struct {
	ID           int64           `json:"id"`
	LoanID       int64           `json:"loan_id"`
	ScheduleID   int64           `json:"schedule_id"`
	Amount       money.Minor     `json:"amount"`
	FeePercent   decimal.Decimal `json:"fee_percent"`
	Tier         int             `json:"tier"`
	DaysOverdue  int             `json:"days_overdue"`
	Status       LateFeeStatus   `json:"status"`
	WaiverReason string          `json:"waiver_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FeeTier is one step of the configured ascending tier table.
type FeeTier struct {
	MinDays    int
	FeePercent decimal.Decimal
}

// SelectTier picks the highest tier whose MinDays <= daysOverdue. The table
// must be ascending by MinDays. Returns the tier index, or -1 when no tier
// applies or the matched percentage is zero.
func SelectTier(table []FeeTier, daysOverdue int) int {
	selected := -1
	for i, t := range table {
		if t.MinDays <= daysOverdue {
			selected = i
		}
	}
	if selected >= 0 && table[selected].FeePercent.IsZero() {
		return -1
	}
	return selected
}
