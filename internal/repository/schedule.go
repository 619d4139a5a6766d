package repository

import (
	"context"
	"fmt"

	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
)

const scheduleColumns = `id, loan_id, installment_no, due_date, amount_due,
		principal_due, interest_due, paid_amount, status, COALESCE(lender_note, ''),
		created_at, updated_at`

// CreateSchedules inserts the generated installments for a loan.
func (r *Repository) CreateSchedules(ctx context.Context, loanID int64, items []money.Installment) error {
	query := `
		INSERT INTO lending.repayment_schedules
			(loan_id, installment_no, due_date, amount_due, principal_due, interest_due,
			 paid_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	for _, it := range items {
		if _, err := r.q.ExecContext(ctx, query, loanID, it.Number, it.DueDate,
			it.AmountDue, it.Principal, it.Interest); err != nil {
			return fmt.Errorf("failed to create schedule %d: %w", it.Number, err)
		}
	}
	return nil
}

// ListSchedules retrieves all installments of a loan ordered by number.
func (r *Repository) ListSchedules(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM lending.repayment_schedules WHERE loan_id = $1 ORDER BY installment_no`
	return r.listSchedules(ctx, query, loanID)
}

// ListSchedulesForUpdate locks and retrieves all installments of a loan.
// Allocation order is installment number ascending, oldest due first.
func (r *Repository) ListSchedulesForUpdate(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM lending.repayment_schedules WHERE loan_id = $1 ORDER BY installment_no FOR UPDATE`
	return r.listSchedules(ctx, query, loanID)
}

func (r *Repository) listSchedules(ctx context.Context, query string, args ...any) ([]models.RepaymentSchedule, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.RepaymentSchedule
	for rows.Next() {
		var s models.RepaymentSchedule
		if err := rows.Scan(&s.ID, &s.LoanID, &s.InstallmentNo, &s.DueDate, &s.AmountDue,
			&s.PrincipalDue, &s.InterestDue, &s.PaidAmount, &s.Status, &s.LenderNote,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// UpdateSchedulePayment writes the accumulated paid amount and the status
// derived from it. The cached status column is only ever written here.
func (r *Repository) UpdateSchedulePayment(ctx context.Context, id int64, paid money.Minor, status models.ScheduleStatus) error {
	query := `
		UPDATE lending.repayment_schedules
		SET paid_amount = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`
	if _, err := r.q.ExecContext(ctx, query, paid, status, id); err != nil {
		return fmt.Errorf("failed to update schedule payment: %w", err)
	}
	return nil
}

// UpdateScheduleStatus refreshes the cached status column.
func (r *Repository) UpdateScheduleStatus(ctx context.Context, id int64, status models.ScheduleStatus) error {
	query := `
		UPDATE lending.repayment_schedules
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2`
	if _, err := r.q.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	return nil
}

// DeleteUnpaidSchedules removes every installment that is not fully paid;
// an approved restructure replaces them with a regenerated plan. Payment
// history survives in repayment_events.
func (r *Repository) DeleteUnpaidSchedules(ctx context.Context, loanID int64) error {
	query := `DELETE FROM lending.repayment_schedules WHERE loan_id = $1 AND paid_amount < amount_due`
	if _, err := r.q.ExecContext(ctx, query, loanID); err != nil {
		return fmt.Errorf("failed to delete unpaid schedules: %w", err)
	}
	return nil
}

// CreateRepaymentEvent inserts an immutable payment record.
func (r *Repository) CreateRepaymentEvent(ctx context.Context, ev *models.RepaymentEvent) error {
	query := `
		INSERT INTO lending.repayment_events
			(loan_id, schedule_id, amount, method, reference, hmac, paid_at, voided, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, ev.LoanID, ev.ScheduleID, ev.Amount,
		ev.Method, ev.Reference, ev.HMAC, ev.PaidAt).
		Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create repayment event: %w", err)
	}
	return nil
}

// ListRepaymentEvents retrieves all non-voided events of a loan.
func (r *Repository) ListRepaymentEvents(ctx context.Context, loanID int64) ([]models.RepaymentEvent, error) {
	query := `
		SELECT id, loan_id, schedule_id, amount, method, reference, hmac, paid_at, voided, created_at
		FROM lending.repayment_events
		WHERE loan_id = $1 AND voided = false
		ORDER BY paid_at, id`
	rows, err := r.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repayment events: %w", err)
	}
	defer rows.Close()

	var events []models.RepaymentEvent
	for rows.Next() {
		var ev models.RepaymentEvent
		if err := rows.Scan(&ev.ID, &ev.LoanID, &ev.ScheduleID, &ev.Amount, &ev.Method,
			&ev.Reference, &ev.HMAC, &ev.PaidAt, &ev.Voided, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan repayment event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
