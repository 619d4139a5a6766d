package service

import (
	"context"
	"time"

	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// PayoffQuote is a point-in-time snapshot of what settles the loan.
type PayoffQuote struct {
	LoanID           int64       `json:"loan_id"`
	AsOf             time.Time   `json:"as_of"`
	TotalDue         money.Minor `json:"total_due"`
	TotalPaid        money.Minor `json:"total_paid"`
	RemainingBalance money.Minor `json:"remaining_balance"`
}

// GetPayoffQuote computes the exact figure that settles the loan as of a
// point in time. Pure read; the caller submits the figure back through
// RecordPayment, which re-derives outstanding balance itself, so a payment
// landing between quote and commit can never double-settle.
func (s *Service) GetPayoffQuote(ctx context.Context, loanID int64, asOf time.Time) (*PayoffQuote, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	schedules, err := s.store.ListSchedules(ctx, loanID)
	if err != nil {
		return nil, err
	}
	fees, err := s.store.ListLateFees(ctx, loanID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListRepaymentEvents(ctx, loanID)
	if err != nil {
		return nil, err
	}

	quote := &PayoffQuote{LoanID: loanID, AsOf: asOf}
	for _, sched := range schedules {
		quote.TotalDue += sched.AmountDue
	}
	for _, fee := range fees {
		if fee.Status == models.FeePending {
			quote.TotalDue += fee.Amount
		}
	}
	for _, ev := range events {
		quote.TotalPaid += ev.Amount
	}
	if quote.TotalDue > quote.TotalPaid {
		quote.RemainingBalance = quote.TotalDue - quote.TotalPaid
	}
	return quote, nil
}
