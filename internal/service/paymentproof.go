package service

import (
	"context"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// SubmitPaymentProof files a borrower's claim of an off-ledger payment for
// lender review.
func (s *Service) SubmitPaymentProof(ctx context.Context, actor Actor, loanID int64, amount money.Minor, method, proofRef, proofHash string) (*models.PaymentProof, error) {
	if amount <= 0 {
		return nil, apperr.Wrap(apperr.ErrInvalidAmount, "claimed amount must be positive")
	}
	if proofRef == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "a proof reference is required")
	}
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if actor.ID != loan.BorrowerID {
		return nil, apperr.Wrap(apperr.ErrForbidden, "only the borrower may submit payment proof for loan %d", loanID)
	}
	if loan.Status != models.StatusActive {
		return nil, apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is %s, not active", loanID, loan.Status)
	}
	proof := &models.PaymentProof{
		LoanID:      loanID,
		Amount:      amount,
		Method:      method,
		ProofRef:    proofRef,
		ProofHash:   proofHash,
		Status:      models.ProofPending,
		SubmittedAt: s.now(),
	}
	if err := s.store.CreatePaymentProof(ctx, proof); err != nil {
		return nil, err
	}
	s.log.Infof("Payment proof %d submitted on loan %d for %d", proof.ID, loanID, amount)
	return proof, nil
}

// ReviewPaymentProof is the lender's decision on a claimed payment.
// Approval records the payment through the ledger in the same transaction
// that marks the proof approved, so the two can never diverge. Rejection
// requires a reason.
func (s *Service) ReviewPaymentProof(ctx context.Context, actor Actor, proofID int64, approve bool, rejectionReason string) (*PaymentResult, error) {
	if !approve && rejectionReason == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "a rejection reason is required")
	}
	var result *PaymentResult
	err := s.store.WithTx(ctx, func(store Store) error {
		proof, err := store.GetPaymentProofForUpdate(ctx, proofID)
		if err != nil {
			return err
		}
		if proof.Status != models.ProofPending {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "payment proof %d is already %s", proofID, proof.Status)
		}
		loan, err := store.GetLoanForUpdate(ctx, proof.LoanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may review payment proof %d", proofID)
		}

		now := s.now()
		if !approve {
			if err := store.UpdatePaymentProofStatus(ctx, proofID, models.ProofRejected, rejectionReason, now); err != nil {
				return err
			}
			s.log.Infof("Payment proof %d on loan %d rejected: %s", proofID, proof.LoanID, rejectionReason)
			return nil
		}
		if err := store.UpdatePaymentProofStatus(ctx, proofID, models.ProofApproved, "", now); err != nil {
			return err
		}
		result, err = s.recordPaymentLocked(ctx, store, loan, proof.Amount, proof.Method, now)
		if err != nil {
			return err
		}
		s.log.Infof("Payment proof %d on loan %d approved and recorded", proofID, proof.LoanID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
