package service

import (
	"context"
	"time"

	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// scoreLoan derives the health view from schedule and event state. Pure;
// everything takes an explicit asOf so scores are deterministic under test.
func scoreLoan(loanID int64, schedules []models.RepaymentSchedule, events []models.RepaymentEvent, asOf time.Time) models.LoanHealth {
	h := models.LoanHealth{LoanID: loanID}

	// The moment a schedule became fully paid is the PaidAt of the last
	// event that touched it.
	lastPaid := make(map[int64]time.Time)
	for _, ev := range events {
		if ev.PaidAt.After(lastPaid[ev.ScheduleID]) {
			lastPaid[ev.ScheduleID] = ev.PaidAt
		}
	}

	var totalDue, totalPaid money.Minor
	for _, sched := range schedules {
		totalDue += sched.AmountDue
		totalPaid += sched.PaidAmount
		switch models.DeriveScheduleStatus(sched.PaidAmount, sched.AmountDue, sched.DueDate, asOf) {
		case models.SchedulePaid:
			h.PaidCount++
			// On or before the due date is on time; only strictly after
			// is late. Early and on-time share the predicate.
			if paidAt, ok := lastPaid[sched.ID]; ok && !paidAt.After(endOfDueDay(sched.DueDate)) {
				h.OnTimeCount++
			}
		case models.ScheduleOverdue:
			h.OverdueCount++
		}
	}

	if h.PaidCount > 0 {
		h.OnTimeRate = float64(h.OnTimeCount) / float64(h.PaidCount) * 100
	}
	score := h.OnTimeRate - 10*float64(h.OverdueCount)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	h.HealthScore = score

	if totalDue > 0 {
		// Amount-based, so a large partial payment shows immediately.
		h.ProgressPercentage = float64(totalPaid) / float64(totalDue) * 100
	}
	return h
}

func endOfDueDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// GetLoanHealth returns the derived health view for one loan.
func (s *Service) GetLoanHealth(ctx context.Context, loanID int64, asOf time.Time) (*models.LoanHealth, error) {
	if _, err := s.store.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	schedules, err := s.store.ListSchedules(ctx, loanID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListRepaymentEvents(ctx, loanID)
	if err != nil {
		return nil, err
	}
	h := scoreLoan(loanID, schedules, events, asOf)
	return &h, nil
}

// GetBorrowerHealth averages the borrower's per-loan scores. Loans with no
// paid installments are excluded so new loans do not drag the average to
// zero.
func (s *Service) GetBorrowerHealth(ctx context.Context, borrowerID int64, asOf time.Time) (*models.HealthAggregate, error) {
	loans, err := s.store.ListLoansByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, loans, asOf)
}

// GetSystemHealth averages health scores across every loan in the system.
func (s *Service) GetSystemHealth(ctx context.Context, asOf time.Time) (*models.HealthAggregate, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, loans, asOf)
}

func (s *Service) aggregate(ctx context.Context, loans []models.Loan, asOf time.Time) (*models.HealthAggregate, error) {
	agg := &models.HealthAggregate{LoanCount: len(loans)}
	var scoreSum, onTimeSum float64
	for _, loan := range loans {
		schedules, err := s.store.ListSchedules(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		events, err := s.store.ListRepaymentEvents(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		h := scoreLoan(loan.ID, schedules, events, asOf)
		agg.TotalOverdue += h.OverdueCount
		if h.PaidCount == 0 {
			continue
		}
		agg.ScoredLoanCount++
		scoreSum += h.HealthScore
		onTimeSum += h.OnTimeRate
	}
	if agg.ScoredLoanCount > 0 {
		agg.AverageScore = scoreSum / float64(agg.ScoredLoanCount)
		agg.AverageOnTimePct = onTimeSum / float64(agg.ScoredLoanCount)
	}
	return agg, nil
}
