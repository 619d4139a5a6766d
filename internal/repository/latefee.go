package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
)

const lateFeeColumns = `id, loan_id, schedule_id, amount, fee_percent, tier,
		days_overdue, status, COALESCE(waiver_reason, ''), created_at, updated_at`

// CreateLateFee inserts a pending fee. A partial unique index on
// (schedule_id, tier) WHERE status = 'pending' makes concurrent sweeps safe;
// a duplicate returns (false, nil) so recalculation stays idempotent.
func (r *Repository) CreateLateFee(ctx context.Context, fee *models.LateFee) (bool, error) {
	query := `
		INSERT INTO lending.late_fees
			(loan_id, schedule_id, amount, fee_percent, tier, days_overdue, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, fee.LoanID, fee.ScheduleID, fee.Amount,
		fee.FeePercent, fee.Tier, fee.DaysOverdue).
		Scan(&fee.ID, &fee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create late fee: %w", err)
	}
	return true, nil
}

// GetLateFee retrieves a fee by id and locks it.
func (r *Repository) GetLateFee(ctx context.Context, id int64) (*models.LateFee, error) {
	fee := &models.LateFee{}
	query := `SELECT ` + lateFeeColumns + ` FROM lending.late_fees WHERE id = $1 FOR UPDATE`
	err := r.q.QueryRowContext(ctx, query, id).
		Scan(&fee.ID, &fee.LoanID, &fee.ScheduleID, &fee.Amount, &fee.FeePercent,
			&fee.Tier, &fee.DaysOverdue, &fee.Status, &fee.WaiverReason,
			&fee.CreatedAt, &fee.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "late fee not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find late fee: %w", err)
	}
	return fee, nil
}

// ListLateFees retrieves all fees of a loan.
func (r *Repository) ListLateFees(ctx context.Context, loanID int64) ([]models.LateFee, error) {
	query := `SELECT ` + lateFeeColumns + ` FROM lending.late_fees WHERE loan_id = $1 ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list late fees: %w", err)
	}
	defer rows.Close()

	var fees []models.LateFee
	for rows.Next() {
		var fee models.LateFee
		if err := rows.Scan(&fee.ID, &fee.LoanID, &fee.ScheduleID, &fee.Amount,
			&fee.FeePercent, &fee.Tier, &fee.DaysOverdue, &fee.Status,
			&fee.WaiverReason, &fee.CreatedAt, &fee.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan late fee: %w", err)
		}
		fees = append(fees, fee)
	}
	return fees, rows.Err()
}

// UpdateLateFeeStatus moves a fee through its lifecycle.
func (r *Repository) UpdateLateFeeStatus(ctx context.Context, id int64, status models.LateFeeStatus, waiverReason string, at time.Time) error {
	query := `
		UPDATE lending.late_fees
		SET status = $1, waiver_reason = NULLIF($2, ''), updated_at = $3
		WHERE id = $4`
	if _, err := r.q.ExecContext(ctx, query, status, waiverReason, at, id); err != nil {
		return fmt.Errorf("failed to update late fee status: %w", err)
	}
	return nil
}
