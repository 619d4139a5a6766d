package service

import (
	"context"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// legalTransitions is the complete loan state machine. The service is the
// sole writer of Loan.status; every component requests transitions here.
var legalTransitions = map[models.LoanStatus][]models.LoanStatus{
	models.StatusPendingOffer: {
		models.StatusPendingSignatures,
		models.StatusDeclined,
		models.StatusCancelled,
	},
	models.StatusPendingSignatures: {
		models.StatusPendingDisbursement,
		models.StatusCancelled,
	},
	models.StatusPendingDisbursement: {
		models.StatusActive,
	},
	models.StatusActive: {
		models.StatusCompleted,
		models.StatusDefaulted,
		models.StatusWrittenOff,
	},
}

func transitionAllowed(from, to models.LoanStatus) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// transition flips loan status inside the caller's transaction. The loan
// row must already be locked via GetLoanForUpdate.
func (s *Service) transition(ctx context.Context, store Store, loan *models.Loan, to models.LoanStatus) error {
	from := loan.Status
	if from.Terminal() {
		return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is %s, a terminal state", loan.ID, from)
	}
	if !transitionAllowed(from, to) {
		return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d cannot move %s -> %s", loan.ID, from, to)
	}
	now := s.now()
	if err := store.SetLoanStatus(ctx, loan.ID, from, to, now); err != nil {
		return err
	}
	loan.Status = to
	switch to {
	case models.StatusActive:
		loan.DisbursedAt = &now
	case models.StatusCompleted:
		loan.CompletedAt = &now
	}
	s.log.Infof("Loan %d transitioned %s -> %s", loan.ID, from, to)
	s.notifyStatusChange(loan, from)
	return nil
}

// CreateLoan records an accepted offer in pending_offer state.
func (s *Service) CreateLoan(ctx context.Context, actor Actor, borrowerID int64, principal int64, rateBps int64, termMonths int, paymentType models.PaymentType, currency string) (*models.Loan, error) {
	if actor.Role != models.RoleLender {
		return nil, apperr.Wrap(apperr.ErrForbidden, "only a lender may create a loan offer")
	}
	loan, err := models.NewLoan(actor.ID, borrowerID, money.Minor(principal), rateBps, termMonths, paymentType, currency)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}
	s.log.Infof("Loan %d offered to borrower %d", loan.ID, borrowerID)
	return loan, nil
}

// AcceptOffer moves an offered loan into signature collection.
func (s *Service) AcceptOffer(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.BorrowerID {
			return apperr.Wrap(apperr.ErrForbidden, "only the borrower may accept the offer for loan %d", loanID)
		}
		return s.transition(ctx, store, loan, models.StatusPendingSignatures)
	})
}

// DeclineOffer declines an offered loan.
func (s *Service) DeclineOffer(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.BorrowerID {
			return apperr.Wrap(apperr.ErrForbidden, "only the borrower may decline the offer for loan %d", loanID)
		}
		return s.transition(ctx, store, loan, models.StatusDeclined)
	})
}

// SignAgreement records a party's signature; once both are on file the loan
// advances to pending_disbursement.
func (s *Service) SignAgreement(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		var role models.Role
		switch actor.ID {
		case loan.LenderID:
			role = models.RoleLender
		case loan.BorrowerID:
			role = models.RoleBorrower
		default:
			return apperr.Wrap(apperr.ErrForbidden, "actor %d is not a party to loan %d", actor.ID, loanID)
		}
		if loan.Status != models.StatusPendingSignatures {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is not collecting signatures", loanID)
		}
		if err := store.RecordSignature(ctx, loanID, actor.ID, role, s.now()); err != nil {
			return err
		}
		both, err := store.BothSigned(ctx, loanID)
		if err != nil {
			return err
		}
		if !both {
			return nil
		}
		return s.transition(ctx, store, loan, models.StatusPendingDisbursement)
	})
}

// CancelLoan is the borrower's escape hatch before money moves. The
// borrower-has-not-signed check runs inside the same transaction that flips
// status, so a concurrent signature upload cannot also succeed.
func (s *Service) CancelLoan(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.ID != loan.BorrowerID {
			return apperr.Wrap(apperr.ErrForbidden, "only the borrower may cancel loan %d", loanID)
		}
		if loan.Status == models.StatusPendingSignatures {
			signed, err := store.BorrowerSigned(ctx, loanID)
			if err != nil {
				return err
			}
			if signed {
				return apperr.Wrap(apperr.ErrForbidden, "loan %d can no longer be cancelled: borrower has signed", loanID)
			}
		}
		return s.transition(ctx, store, loan, models.StatusCancelled)
	})
}

// WriteOffLoan is the lender's irreversible abandonment of an active loan.
func (s *Service) WriteOffLoan(ctx context.Context, actor Actor, loanID int64) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && actor.ID != loan.LenderID {
			return apperr.Wrap(apperr.ErrForbidden, "only the lender may write off loan %d", loanID)
		}
		return s.transition(ctx, store, loan, models.StatusWrittenOff)
	})
}

// GetLoan returns a loan by id.
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

// GetSchedule returns the loan's installments.
func (s *Service) GetSchedule(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error) {
	return s.store.ListSchedules(ctx, loanID)
}
