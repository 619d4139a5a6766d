package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
)

// RepaymentEvent records money applied to one installment. Events are
// immutable; corrections are new events, dispute adjudication may void one.
type RepaymentEvent struct {
	ID         int64       `json:"id"`
	LoanID     int64       `json:"loan_id"`
	ScheduleID int64       `json:"schedule_id"`
	Amount     money.Minor `json:"amount"`
	Method     string      `json:"method"`
	Reference  string      `json:"reference"`
	HMAC       string      `json:"-"`
	PaidAt     time.Time   `json:"paid_at"`
	Voided     bool        `json:"voided"`
	CreatedAt  time.Time   `json:"created_at"`
}
