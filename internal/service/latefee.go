package service

import (
	"context"
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// CalculateLateFees runs the tier table over every overdue installment of
// the loan as of asOf. Invoked repeatedly (daily sweep, or a lender's manual
// refresh); a (schedule, tier) pair that already carries a pending fee is
// never duplicated.
func (s *Service) CalculateLateFees(ctx context.Context, actor Actor, loanID int64, asOf time.Time) ([]models.LateFee, error) {
	var applied []models.LateFee
	err := s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may calculate fees on loan %d", loanID)
		}
		if loan.Status != models.StatusActive {
			return nil
		}

		schedules, err := store.ListSchedulesForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		for i := range schedules {
			sched := &schedules[i]
			outstanding := sched.Outstanding()
			if outstanding <= 0 {
				continue
			}
			days := sched.DaysOverdue(asOf)
			if days <= 0 {
				continue
			}

			// Keep the cached status column in step with the derivation.
			derived := models.DeriveScheduleStatus(sched.PaidAmount, sched.AmountDue, sched.DueDate, asOf)
			if derived != sched.Status {
				if err := store.UpdateScheduleStatus(ctx, sched.ID, derived); err != nil {
					return err
				}
			}

			tier := models.SelectTier(s.config.FeeTiers, days)
			if tier < 0 {
				continue
			}
			pct := s.config.FeeTiers[tier].FeePercent
			fee := &models.LateFee{
				LoanID:      loanID,
				ScheduleID:  sched.ID,
				Amount:      money.PercentOf(outstanding, pct),
				FeePercent:  pct,
				Tier:        tier,
				DaysOverdue: days,
				Status:      models.FeePending,
			}
			created, err := store.CreateLateFee(ctx, fee)
			if err != nil {
				return err
			}
			if created {
				applied = append(applied, *fee)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(applied) > 0 {
		s.log.Infof("Applied %d late fees to loan %d", len(applied), loanID)
	}
	return applied, nil
}

// WaiveLateFee forgives a pending fee. Paid and waived fees are immutable
// history.
func (s *Service) WaiveLateFee(ctx context.Context, actor Actor, feeID int64, reason string) error {
	if reason == "" {
		return apperr.Wrap(apperr.ErrValidation, "a waiver reason is required")
	}
	return s.store.WithTx(ctx, func(store Store) error {
		fee, err := store.GetLateFee(ctx, feeID)
		if err != nil {
			return err
		}
		loan, err := store.GetLoanForUpdate(ctx, fee.LoanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may waive fee %d", feeID)
		}
		if fee.Status != models.FeePending {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "fee %d is already %s", feeID, fee.Status)
		}
		if err := store.UpdateLateFeeStatus(ctx, feeID, models.FeeWaived, reason, s.now()); err != nil {
			return err
		}
		s.log.Infof("Late fee %d on loan %d waived: %s", feeID, fee.LoanID, reason)
		return nil
	})
}

// ListLateFees returns all fees of a loan.
func (s *Service) ListLateFees(ctx context.Context, loanID int64) ([]models.LateFee, error) {
	return s.store.ListLateFees(ctx, loanID)
}
