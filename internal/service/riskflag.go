package service

import (
	"context"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

func validFlagType(t models.RiskFlagType) bool {
	switch t {
	case models.FlagLate1To7, models.FlagLate8To30, models.FlagLate31To60,
		models.FlagDefault, models.FlagCleared:
		return true
	}
	return false
}

// FlagBorrower files a lender-reported risk signal against a borrower,
// independent of any single loan. A reason and a proof reference are both
// mandatory.
func (s *Service) FlagBorrower(ctx context.Context, actor Actor, borrowerID int64, flagType models.RiskFlagType, reason string, amountAtIssue money.Minor, proofRef, proofHash string) (*models.RiskFlag, error) {
	if actor.Role != models.RoleLender && actor.Role != models.RoleAdmin {
		return nil, apperr.Wrap(apperr.ErrForbidden, "only a lender may report a risk flag")
	}
	if reason == "" || proofRef == "" {
		return nil, apperr.Wrap(apperr.ErrValidation, "a reason and a proof reference are required")
	}
	if !validFlagType(flagType) {
		return nil, apperr.Wrap(apperr.ErrValidation, "unknown risk flag type %q", flagType)
	}
	flag := &models.RiskFlag{
		BorrowerID:    borrowerID,
		Type:          flagType,
		Origin:        models.OriginLenderReported,
		Reason:        reason,
		AmountAtIssue: amountAtIssue,
		ProofRef:      proofRef,
		ProofHash:     proofHash,
		CreatedBy:     actor.ID,
	}
	if err := s.store.CreateRiskFlag(ctx, flag); err != nil {
		return nil, err
	}
	s.log.Warnf("Borrower %d flagged %s by lender %d", borrowerID, flagType, actor.ID)
	return flag, nil
}

// ResolveFlag annotates a flag as resolved. Flags are permanent history;
// resolution never removes the record or lowers the total count.
func (s *Service) ResolveFlag(ctx context.Context, actor Actor, flagID int64, resolutionReason string) error {
	if resolutionReason == "" {
		return apperr.Wrap(apperr.ErrValidation, "a resolution reason is required")
	}
	return s.store.WithTx(ctx, func(store Store) error {
		flag, err := store.GetRiskFlag(ctx, flagID)
		if err != nil {
			return err
		}
		if flag.Resolved() {
			return apperr.Wrap(apperr.ErrInvalidStateTransition, "flag %d is already resolved", flagID)
		}
		allowed := actor.Role == models.RoleAdmin || actor.ID == flag.CreatedBy
		if !allowed {
			related, err := store.LenderHasLoanWithBorrower(ctx, actor.ID, flag.BorrowerID)
			if err != nil {
				return err
			}
			allowed = related
		}
		if !allowed {
			return apperr.Wrap(apperr.ErrForbidden, "actor %d may not resolve flag %d", actor.ID, flagID)
		}
		if err := store.ResolveRiskFlag(ctx, flagID, actor.ID, resolutionReason, s.now()); err != nil {
			return err
		}
		s.log.Infof("Risk flag %d on borrower %d resolved by %d", flagID, flag.BorrowerID, actor.ID)
		return nil
	})
}

// BorrowerFlags lists a borrower's flags and the count still unresolved.
func (s *Service) BorrowerFlags(ctx context.Context, borrowerID int64) ([]models.RiskFlag, int, error) {
	flags, err := s.store.ListRiskFlags(ctx, borrowerID)
	if err != nil {
		return nil, 0, err
	}
	active := 0
	for _, f := range flags {
		if !f.Resolved() {
			active++
		}
	}
	return flags, active, nil
}

// autoFlagDefault files the system-originated DEFAULT flag when the
// scheduler moves a loan to defaulted.
func (s *Service) autoFlagDefault(ctx context.Context, store Store, loan *models.Loan, outstanding money.Minor) error {
	flag := &models.RiskFlag{
		BorrowerID:    loan.BorrowerID,
		Type:          models.FlagDefault,
		Origin:        models.OriginSystemAuto,
		Reason:        "loan overdue beyond the configured default threshold",
		AmountAtIssue: outstanding,
		CreatedBy:     loan.LenderID,
	}
	return store.CreateRiskFlag(ctx, flag)
}
