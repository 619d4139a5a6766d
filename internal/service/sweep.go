package service

import (
	"context"
	"time"

	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

// SweepLateFees runs the fee engine over every active loan. At-least-once
// semantics are fine: the per-tier pending-fee uniqueness makes reruns
// no-ops.
func (s *Service) SweepLateFees(ctx context.Context, asOf time.Time) error {
	loans, err := s.store.ListLoansByStatus(ctx, models.StatusActive)
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if _, err := s.CalculateLateFees(ctx, system, loan.ID, asOf); err != nil {
			s.log.Errorf("Late fee sweep failed for loan %d: %v", loan.ID, err)
		}
	}
	return nil
}

// SweepDefaults moves loans overdue beyond the configured threshold into
// defaulted and files the system-originated risk flag. The threshold is a
// policy input, never hard-coded.
func (s *Service) SweepDefaults(ctx context.Context, asOf time.Time) error {
	loans, err := s.store.ListLoansByStatus(ctx, models.StatusActive)
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if err := s.defaultIfOverdue(ctx, loan.ID, asOf); err != nil {
			s.log.Errorf("Default sweep failed for loan %d: %v", loan.ID, err)
		}
	}
	return nil
}

func (s *Service) defaultIfOverdue(ctx context.Context, loanID int64, asOf time.Time) error {
	return s.store.WithTx(ctx, func(store Store) error {
		loan, err := store.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.StatusActive {
			return nil
		}
		schedules, err := store.ListSchedulesForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		var outstanding money.Minor
		worst := 0
		for i := range schedules {
			out := schedules[i].Outstanding()
			if out == 0 {
				continue
			}
			outstanding += out
			if days := schedules[i].DaysOverdue(asOf); days > worst {
				worst = days
			}
		}
		if worst < s.config.DefaultAfterDays {
			return nil
		}
		if err := s.transition(ctx, store, loan, models.StatusDefaulted); err != nil {
			return err
		}
		return s.autoFlagDefault(ctx, store, loan, outstanding)
	})
}
