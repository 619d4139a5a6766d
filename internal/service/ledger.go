package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
	"github.com/paylend/loan-service/internal/utils"
)

// PaymentResult reports how an incoming payment was allocated.
type PaymentResult struct {
	SchedulesAffected []int64     `json:"schedules_affected"`
	LoanCompleted     bool        `json:"loan_completed"`
	OverpaymentMinor  money.Minor `json:"overpayment_minor"`
	RemainingMinor    money.Minor `json:"remaining_minor"`
}

type allocation struct {
	schedule *models.RepaymentSchedule
	applied  money.Minor
}

// allocate applies amount to the outstanding schedules oldest-first, by
// installment number. The tie-break is fixed, not configurable. Returns the
// per-schedule allocations and the unapplied surplus.
func allocate(schedules []models.RepaymentSchedule, amount money.Minor) ([]allocation, money.Minor) {
	var allocs []allocation
	remaining := amount
	for i := range schedules {
		if remaining <= 0 {
			break
		}
		sched := &schedules[i]
		outstanding := sched.Outstanding()
		if outstanding <= 0 {
			continue
		}
		applied := outstanding
		if remaining < outstanding {
			applied = remaining
		}
		allocs = append(allocs, allocation{schedule: sched, applied: applied})
		remaining -= applied
	}
	return allocs, remaining
}

// RecordPayment allocates an incoming amount against the loan's schedules,
// settles pending late fees with any surplus, and surfaces the rest as
// overpayment. Outstanding balance is always re-derived from current rows;
// a stale payoff quote can never over- or under-apply.
func (s *Service) RecordPayment(ctx context.Context, actor Actor, loanID int64, amount money.Minor, method string, paidAt time.Time) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidAmount, "payment amount must be positive, got %d", amount)
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var result *PaymentResult
	err := s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may record payments on loan %d", loanID)
		}
		result, err = s.recordPaymentLocked(ctx, store, loan, amount, method, paidAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Payment of %d recorded for loan %d across %d schedules (overpayment %d)",
		amount, loanID, len(result.SchedulesAffected), result.OverpaymentMinor)
	return result, nil
}

// recordPaymentLocked runs the allocation inside the caller's transaction;
// the loan row must already be locked.
func (s *Service) recordPaymentLocked(ctx context.Context, store Store, loan *models.Loan, amount money.Minor, method string, paidAt time.Time) (*PaymentResult, error) {
	if loan.Status == models.StatusCompleted {
		return nil, apperr.Wrap(apperr.ErrNoOutstandingBalance, "loan %d is fully settled", loan.ID)
	}
	if loan.Status != models.StatusActive {
		return nil, apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is %s, not active", loan.ID, loan.Status)
	}

	schedules, err := store.ListSchedulesForUpdate(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	allocs, surplus := allocate(schedules, amount)
	if len(allocs) == 0 {
		return nil, apperr.Wrap(apperr.ErrNoOutstandingBalance, "loan %d has no outstanding schedules", loan.ID)
	}

	result := &PaymentResult{}
	var applied money.Minor
	for _, a := range allocs {
		newPaid := a.schedule.PaidAmount + a.applied
		status := models.DeriveScheduleStatus(newPaid, a.schedule.AmountDue, a.schedule.DueDate, paidAt)
		if err := store.UpdateSchedulePayment(ctx, a.schedule.ID, newPaid, status); err != nil {
			return nil, err
		}
		a.schedule.PaidAmount = newPaid
		a.schedule.Status = status
		if err := s.createEvent(ctx, store, loan.ID, a.schedule.ID, a.applied, method, paidAt); err != nil {
			return nil, err
		}
		applied += a.applied
		result.SchedulesAffected = append(result.SchedulesAffected, a.schedule.ID)
	}

	// Surplus settles pending late fees oldest-first before anything is
	// reported back as overpayment.
	surplus, err = s.settleFees(ctx, store, loan, surplus, method, paidAt)
	if err != nil {
		return nil, err
	}
	result.OverpaymentMinor = surplus

	if err := store.AddLoanRepaid(ctx, loan.ID, int64(applied), int64(surplus)); err != nil {
		return nil, err
	}
	loan.TotalRepaid += applied

	var outstanding money.Minor
	allPaid := true
	for i := range schedules {
		out := schedules[i].Outstanding()
		outstanding += out
		if out > 0 {
			allPaid = false
		}
	}
	result.RemainingMinor = outstanding

	if allPaid {
		// The one implicit transition in the system.
		if err := s.transition(ctx, store, loan, models.StatusCompleted); err != nil {
			return nil, err
		}
		result.LoanCompleted = true
	}
	return result, nil
}

func (s *Service) createEvent(ctx context.Context, store Store, loanID, scheduleID int64, amount money.Minor, method string, paidAt time.Time) error {
	ev := &models.RepaymentEvent{
		LoanID:     loanID,
		ScheduleID: scheduleID,
		Amount:     amount,
		Method:     method,
		Reference:  uuid.NewString(),
		HMAC:       utils.EventHMAC(loanID, scheduleID, int64(amount), paidAt, s.config.HMACSecret),
		PaidAt:     paidAt,
	}
	return store.CreateRepaymentEvent(ctx, ev)
}

// settleFees applies surplus funds to pending fees oldest-first and returns
// what is left over.
func (s *Service) settleFees(ctx context.Context, store Store, loan *models.Loan, surplus money.Minor, method string, paidAt time.Time) (money.Minor, error) {
	if surplus <= 0 {
		return surplus, nil
	}
	fees, err := store.ListLateFees(ctx, loan.ID)
	if err != nil {
		return 0, err
	}
	for i := range fees {
		fee := &fees[i]
		if fee.Status != models.FeePending || surplus < fee.Amount {
			continue
		}
		if err := store.UpdateLateFeeStatus(ctx, fee.ID, models.FeePaid, "", paidAt); err != nil {
			return 0, err
		}
		if err := s.createEvent(ctx, store, loan.ID, fee.ScheduleID, fee.Amount, method, paidAt); err != nil {
			return 0, err
		}
		surplus -= fee.Amount
		s.log.Infof("Late fee %d on loan %d settled", fee.ID, loan.ID)
	}
	return surplus, nil
}
