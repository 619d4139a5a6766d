package service

import (
	"context"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
	"github.com/paylend/loan-service/internal/utils"
)

// SubmitDisbursementProof records the lender's evidence that funds were
// sent. Resubmission after a dispute overwrites the proof and clears the
// dispute, which is the path back toward confirmation.
func (s *Service) SubmitDisbursementProof(ctx context.Context, actor Actor, loanID int64, amount money.Minor, method, reference, proofRef, notes string) error {
	if amount <= 0 {
		return apperr.Wrap(apperr.ErrInvalidAmount, "disbursement amount must be positive")
	}
	if proofRef == "" {
		return apperr.Wrap(apperr.ErrValidation, "a proof reference is required")
	}
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may submit disbursement proof for loan %d", loanID)
		}
		if loan.Status != models.StatusPendingDisbursement {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is %s, not awaiting disbursement", loanID, loan.Status)
		}

		encRef := reference
		if reference != "" {
			if encRef, err = utils.Encrypt(reference, s.encKey); err != nil {
				return err
			}
		}
		proof := &models.DisbursementProof{
			LoanID:      loanID,
			Amount:      amount,
			Method:      method,
			Reference:   encRef,
			ProofRef:    proofRef,
			Notes:       notes,
			State:       models.DisbursementSubmitted,
			SubmittedAt: s.now(),
		}
		if err := store.UpsertDisbursementProof(ctx, proof); err != nil {
			return err
		}
		s.log.Infof("Disbursement proof submitted for loan %d", loanID)
		return nil
	})
}

// ConfirmReceipt is the borrower's acknowledgement that funds arrived; it
// is the only way into active. Activation generates the repayment schedule
// with installments due monthly from the disbursement.
func (s *Service) ConfirmReceipt(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.ID != loan.BorrowerID {
			return apperr.Wrap(apperr.ErrForbidden, "only the borrower may confirm receipt for loan %d", loanID)
		}
		proof, err := store.GetDisbursementProof(ctx, loanID)
		if err != nil {
			return err
		}
		switch proof.State {
		case models.DisbursementNoProof:
			return apperr.Wrap(apperr.ErrPreconditionFailed, "no disbursement proof submitted for loan %d", loanID)
		case models.DisbursementDisputed:
			return apperr.Wrap(apperr.ErrPreconditionFailed, "disbursement for loan %d is disputed; lender must resubmit", loanID)
		case models.DisbursementConfirmed:
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "disbursement for loan %d already confirmed", loanID)
		}

		now := s.now()
		if err := store.SetDisbursementState(ctx, loanID, models.DisbursementConfirmed, "", now); err != nil {
			return err
		}
		if err := s.transition(ctx, store, loan, models.StatusActive); err != nil {
			return err
		}
		items := money.GenerateSchedule(loan.Principal, loan.InterestAmount, loan.TermMonths, now.AddDate(0, 1, 0))
		if err := store.CreateSchedules(ctx, loanID, items); err != nil {
			return err
		}
		s.log.Infof("Loan %d activated with %d installments", loanID, len(items))
		return nil
	})
}

// DisputeDisbursement records the borrower's dispute. The loan stays
// blocked in pending_disbursement; only resubmission or manual
// intervention moves it forward.
func (s *Service) DisputeDisbursement(ctx context.Context, actor Actor, loanID int64, reason string) error {
	if reason == "" {
		return apperr.Wrap(apperr.ErrValidation, "a dispute reason is required")
	}
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.ID != loan.BorrowerID {
			return apperr.Wrap(apperr.ErrForbidden, "only the borrower may dispute disbursement for loan %d", loanID)
		}
		proof, err := store.GetDisbursementProof(ctx, loanID)
		if err != nil {
			return err
		}
		if proof.State == models.DisbursementNoProof {
			return apperr.Wrap(apperr.ErrPreconditionFailed, "no disbursement proof submitted for loan %d", loanID)
		}
		if proof.State == models.DisbursementConfirmed {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "disbursement for loan %d already confirmed", loanID)
		}
		if err := store.SetDisbursementState(ctx, loanID, models.DisbursementDisputed, reason, s.now()); err != nil {
			return err
		}
		s.log.Warnf("Disbursement for loan %d disputed: %s", loanID, reason)
		return nil
	})
}

// GetDisbursementProof returns the proof record with the bank reference
// decrypted for the response.
func (s *Service) GetDisbursementProof(ctx context.Context, loanID int64) (*models.DisbursementProof, error) {
	proof, err := s.store.GetDisbursementProof(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if proof.Reference != "" {
		if plain, err := utils.Decrypt(proof.Reference, s.encKey); err == nil {
			proof.Reference = plain
		}
	}
	return proof, nil
}
