package service

import (
	"context"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// RequestRestructure opens a term/rate renegotiation. The partial unique
// index behind CreateRestructure makes "at most one pending per loan" hold
// under concurrency, not just under check-then-insert.
func (s *Service) RequestRestructure(ctx context.Context, actor Actor, loanID int64, newTermMonths int, newRateBps int64, reason, details string) (*models.LoanRestructure, error) {
	if reason == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "a restructure reason is required")
	}
	if newTermMonths < 1 {
		return nil, apperr.Wrap(apperr.ErrValidation, "proposed term must be at least one month")
	}
	if newRateBps < 0 {
		return nil, apperr.Wrap(apperr.ErrValidation, "proposed rate must not be negative")
	}
	if err := s.checkRateCeiling(newRateBps); err != nil {
		return nil, err
	}

	var rs *models.LoanRestructure
	err := s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		var requestedBy models.Role
		switch actor.ID {
		case loan.LenderID:
			requestedBy = models.RoleLender
		case loan.BorrowerID:
			requestedBy = models.RoleBorrower
		default:
			return apperr.Wrap(apperr.ErrForbidden, "actor %d is not a party to loan %d", actor.ID, loanID)
		}
		if loan.Status != models.StatusActive {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is %s, not active", loanID, loan.Status)
		}
		rs = &models.LoanRestructure{
			LoanID:          loanID,
			OriginalTerm:    loan.TermMonths,
			OriginalRateBps: loan.RateBps,
			ProposedTerm:    newTermMonths,
			ProposedRateBps: newRateBps,
			Reason:          reason,
			Details:         details,
			RequestedBy:     requestedBy,
			Status:          models.RestructurePending,
		}
		return store.CreateRestructure(ctx, rs)
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("Restructure %d requested on loan %d by %s", rs.ID, loanID, rs.RequestedBy)
	return rs, nil
}

// checkRateCeiling rejects proposals above the central-bank key rate plus
// the configured margin. Skipped when no rate source is wired.
func (s *Service) checkRateCeiling(rateBps int64) error {
	if s.rates == nil {
		return nil
	}
	keyRate, err := s.rates.GetKeyRate()
	if err != nil {
		s.log.Warnf("Key rate unavailable, skipping rate ceiling check: %v", err)
		return nil
	}
	ceilingBps := int64((keyRate + s.config.RateMarginPct) * 100)
	if rateBps > ceilingBps {
		return apperr.Wrap(apperr.ErrValidation, "proposed rate %d bps exceeds the %d bps ceiling", rateBps, ceilingBps)
	}
	return nil
}

// RespondToRestructure is the counterparty's decision. Approval rewrites
// the loan's terms and regenerates the unpaid portion of the schedule from
// the current remaining balance; fully paid installments are untouched.
func (s *Service) RespondToRestructure(ctx context.Context, actor Actor, restructureID int64, approve bool, rejectionReason string) error {
	if !approve && rejectionReason == "" {
		return apperr.Wrap(apperr.ErrValidation, "a rejection reason is required when declining")
	}
	return s.store.WithTx(ctx, func(store Store) error {
		rs, err := store.GetRestructure(ctx, restructureID)
		if err != nil {
			return err
		}
		if rs.Status != models.RestructurePending {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "restructure %d is already %s", restructureID, rs.Status)
		}
		loan, err := store.GetLoanForUpdate(ctx, rs.LoanID)
		if err != nil {
			return err
		}
		var counterparty int64
		if rs.RequestedBy == models.RoleLender {
			counterparty = loan.BorrowerID
		} else {
			counterparty = loan.LenderID
		}
		if actor.ID != counterparty {
			return apperr.Wrap(apperr.ErrForbidden, "only the counterparty may respond to restructure %d", restructureID)
		}

		now := s.now()
		if !approve {
			if err := store.UpdateRestructureStatus(ctx, restructureID, models.RestructureDeclined, rejectionReason, now); err != nil {
				return err
			}
			s.log.Infof("Restructure %d on loan %d declined", restructureID, rs.LoanID)
			return nil
		}

		if err := store.UpdateRestructureStatus(ctx, restructureID, models.RestructureApproved, "", now); err != nil {
			return err
		}
		if err := store.UpdateLoanTerms(ctx, rs.LoanID, rs.ProposedTerm, rs.ProposedRateBps); err != nil {
			return err
		}

		schedules, err := store.ListSchedulesForUpdate(ctx, rs.LoanID)
		if err != nil {
			return err
		}
		var remaining money.Minor
		kept := 0
		for i := range schedules {
			out := schedules[i].Outstanding()
			if out == 0 {
				kept++
				continue
			}
			remaining += out
		}
		if err := store.DeleteUnpaidSchedules(ctx, rs.LoanID); err != nil {
			return err
		}
		if remaining > 0 {
			// Split the remaining balance back into principal and interest
			// in the loan's original proportion.
			principalShare := money.Minor(0)
			if loan.TotalAmount() > 0 {
				principalShare = money.Minor(int64(remaining) * int64(loan.Principal) / int64(loan.TotalAmount()))
			}
			items := money.GenerateSchedule(principalShare, remaining-principalShare, rs.ProposedTerm, now.AddDate(0, 1, 0))
			for i := range items {
				items[i].Number += kept
			}
			if err := store.CreateSchedules(ctx, rs.LoanID, items); err != nil {
				return err
			}
		}
		s.log.Infof("Restructure %d approved: loan %d rescheduled over %d months", restructureID, rs.LoanID, rs.ProposedTerm)
		return nil
	})
}
