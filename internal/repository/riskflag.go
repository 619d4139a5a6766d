package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
)

const riskFlagColumns = `id, borrower_id, type, origin, reason, amount_at_issue,
		COALESCE(proof_ref, ''), COALESCE(proof_hash, ''), created_by, created_at,
		resolved_at, resolved_by, COALESCE(resolution_reason, '')`

// CreateRiskFlag inserts a permanent flag; flags are never deleted.
func (r *Repository) CreateRiskFlag(ctx context.Context, f *models.RiskFlag) error {
	query := `
		INSERT INTO lending.risk_flags
			(borrower_id, type, origin, reason, amount_at_issue, proof_ref, proof_hash,
			 created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, f.BorrowerID, f.Type, f.Origin, f.Reason,
		f.AmountAtIssue, f.ProofRef, f.ProofHash, f.CreatedBy).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create risk flag: %w", err)
	}
	return nil
}

// GetRiskFlag retrieves a flag by id and locks it.
func (r *Repository) GetRiskFlag(ctx context.Context, id int64) (*models.RiskFlag, error) {
	f := &models.RiskFlag{}
	query := `SELECT ` + riskFlagColumns + ` FROM lending.risk_flags WHERE id = $1 FOR UPDATE`
	err := r.q.QueryRowContext(ctx, query, id).
		Scan(&f.ID, &f.BorrowerID, &f.Type, &f.Origin, &f.Reason, &f.AmountAtIssue,
			&f.ProofRef, &f.ProofHash, &f.CreatedBy, &f.CreatedAt,
			&f.ResolvedAt, &f.ResolvedBy, &f.ResolutionReason)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "risk flag not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find risk flag: %w", err)
	}
	return f, nil
}

// ListRiskFlags retrieves all flags of a borrower, newest first.
func (r *Repository) ListRiskFlags(ctx context.Context, borrowerID int64) ([]models.RiskFlag, error) {
	query := `SELECT ` + riskFlagColumns + `
		FROM lending.risk_flags WHERE borrower_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.q.QueryContext(ctx, query, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk flags: %w", err)
	}
	defer rows.Close()

	var flags []models.RiskFlag
	for rows.Next() {
		var f models.RiskFlag
		if err := rows.Scan(&f.ID, &f.BorrowerID, &f.Type, &f.Origin, &f.Reason,
			&f.AmountAtIssue, &f.ProofRef, &f.ProofHash, &f.CreatedBy, &f.CreatedAt,
			&f.ResolvedAt, &f.ResolvedBy, &f.ResolutionReason); err != nil {
			return nil, fmt.Errorf("failed to scan risk flag: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// ResolveRiskFlag annotates a flag as resolved. The row stays forever.
func (r *Repository) ResolveRiskFlag(ctx context.Context, id, resolvedBy int64, reason string, at time.Time) error {
	query := `
		UPDATE lending.risk_flags
		SET resolved_at = $1, resolved_by = $2, resolution_reason = $3
		WHERE id = $4`
	if _, err := r.q.ExecContext(ctx, query, at, resolvedBy, reason, id); err != nil {
		return fmt.Errorf("failed to resolve risk flag: %w", err)
	}
	return nil
}
