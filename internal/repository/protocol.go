package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
)

// GetDisbursementProof retrieves the proof record for a loan, or the
// implicit no_proof state when none exists.
func (r *Repository) GetDisbursementProof(ctx context.Context, loanID int64) (*models.DisbursementProof, error) {
	p := &models.DisbursementProof{}
	query := `
		SELECT id, loan_id, amount, method, reference, proof_ref, COALESCE(notes, ''),
		       state, COALESCE(dispute_reason, ''), disputed_at, submitted_at, confirmed_at
		FROM lending.disbursement_proofs
		WHERE loan_id = $1`
	err := r.q.QueryRowContext(ctx, query, loanID).
		Scan(&p.ID, &p.LoanID, &p.Amount, &p.Method, &p.Reference, &p.ProofRef,
			&p.Notes, &p.State, &p.DisputeReason, &p.DisputedAt, &p.SubmittedAt, &p.ConfirmedAt)
	if err == sql.ErrNoRows {
		return &models.DisbursementProof{LoanID: loanID, State: models.DisbursementNoProof}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find disbursement proof: %w", err)
	}
	return p, nil
}

// UpsertDisbursementProof inserts the proof or overwrites it on
// resubmission, clearing any prior dispute.
func (r *Repository) UpsertDisbursementProof(ctx context.Context, p *models.DisbursementProof) error {
	query := `
		INSERT INTO lending.disbursement_proofs
			(loan_id, amount, method, reference, proof_ref, notes, state, submitted_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (loan_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			method = EXCLUDED.method,
			reference = EXCLUDED.reference,
			proof_ref = EXCLUDED.proof_ref,
			notes = EXCLUDED.notes,
			state = EXCLUDED.state,
			submitted_at = EXCLUDED.submitted_at,
			dispute_reason = NULL,
			disputed_at = NULL,
			confirmed_at = NULL
		RETURNING id`
	err := r.q.QueryRowContext(ctx, query, p.LoanID, p.Amount, p.Method, p.Reference,
		p.ProofRef, p.Notes, p.State, p.SubmittedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert disbursement proof: %w", err)
	}
	return nil
}

// SetDisbursementState records the borrower's response on the proof.
func (r *Repository) SetDisbursementState(ctx context.Context, loanID int64, state models.DisbursementState, disputeReason string, at time.Time) error {
	query := `
		UPDATE lending.disbursement_proofs
		SET state = $1,
		    dispute_reason = NULLIF($2, ''),
		    disputed_at = CASE WHEN $1 = 'disputed' THEN $3 ELSE disputed_at END,
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN $3 ELSE confirmed_at END
		WHERE loan_id = $4`
	res, err := r.q.ExecContext(ctx, query, state, disputeReason, at, loanID)
	if err != nil {
		return fmt.Errorf("failed to update disbursement state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update disbursement state: %w", err)
	}
	if n == 0 {
		return apperr.Wrap(apperr.ErrPreconditionFailed, "no disbursement proof for loan %d", loanID)
	}
	return nil
}

// CreateRestructure inserts a pending restructure. A partial unique index on
// loan_id WHERE status = 'pending' enforces mutual exclusion; a duplicate
// maps to Conflict.
func (r *Repository) CreateRestructure(ctx context.Context, rs *models.LoanRestructure) error {
	query := `
		INSERT INTO lending.loan_restructures
			(loan_id, original_term, original_rate_bps, proposed_term, proposed_rate_bps,
			 reason, details, requested_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, 'pending', CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, rs.LoanID, rs.OriginalTerm, rs.OriginalRateBps,
		rs.ProposedTerm, rs.ProposedRateBps, rs.Reason, rs.Details, rs.RequestedBy).
		Scan(&rs.ID, &rs.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrConflict, "a pending restructure already exists for loan %d", rs.LoanID)
		}
		return fmt.Errorf("failed to create restructure: %w", err)
	}
	return nil
}

// GetRestructure retrieves a restructure by id and locks it.
func (r *Repository) GetRestructure(ctx context.Context, id int64) (*models.LoanRestructure, error) {
	rs := &models.LoanRestructure{}
	query := `
		SELECT id, loan_id, original_term, original_rate_bps, proposed_term, proposed_rate_bps,
		       reason, COALESCE(details, ''), requested_by, status,
		       COALESCE(rejection_reason, ''), created_at, responded_at
		FROM lending.loan_restructures
		WHERE id = $1
		FOR UPDATE`
	err := r.q.QueryRowContext(ctx, query, id).
		Scan(&rs.ID, &rs.LoanID, &rs.OriginalTerm, &rs.OriginalRateBps, &rs.ProposedTerm,
			&rs.ProposedRateBps, &rs.Reason, &rs.Details, &rs.RequestedBy, &rs.Status,
			&rs.RejectionReason, &rs.CreatedAt, &rs.RespondedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "restructure not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find restructure: %w", err)
	}
	return rs, nil
}

// UpdateRestructureStatus records the counterparty's decision.
func (r *Repository) UpdateRestructureStatus(ctx context.Context, id int64, status models.RestructureStatus, rejectionReason string, at time.Time) error {
	query := `
		UPDATE lending.loan_restructures
		SET status = $1, rejection_reason = NULLIF($2, ''), responded_at = $3
		WHERE id = $4`
	if _, err := r.q.ExecContext(ctx, query, status, rejectionReason, at, id); err != nil {
		return fmt.Errorf("failed to update restructure: %w", err)
	}
	return nil
}

// CreatePaymentProof inserts a borrower payment claim.
func (r *Repository) CreatePaymentProof(ctx context.Context, p *models.PaymentProof) error {
	query := `
		INSERT INTO lending.payment_proofs
			(loan_id, amount, method, proof_ref, proof_hash, status, submitted_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), 'pending', $6)
		RETURNING id`
	err := r.q.QueryRowContext(ctx, query, p.LoanID, p.Amount, p.Method, p.ProofRef,
		p.ProofHash, p.SubmittedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment proof: %w", err)
	}
	return nil
}

// GetPaymentProofForUpdate retrieves and locks a payment proof.
func (r *Repository) GetPaymentProofForUpdate(ctx context.Context, id int64) (*models.PaymentProof, error) {
	p := &models.PaymentProof{}
	query := `
		SELECT id, loan_id, amount, method, proof_ref, COALESCE(proof_hash, ''), status,
		       COALESCE(rejection_reason, ''), submitted_at, reviewed_at
		FROM lending.payment_proofs
		WHERE id = $1
		FOR UPDATE`
	err := r.q.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.LoanID, &p.Amount, &p.Method, &p.ProofRef, &p.ProofHash,
			&p.Status, &p.RejectionReason, &p.SubmittedAt, &p.ReviewedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "payment proof not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment proof: %w", err)
	}
	return p, nil
}

// UpdatePaymentProofStatus records the lender's review decision.
func (r *Repository) UpdatePaymentProofStatus(ctx context.Context, id int64, status models.PaymentProofStatus, rejectionReason string, at time.Time) error {
	query := `
		UPDATE lending.payment_proofs
		SET status = $1, rejection_reason = NULLIF($2, ''), reviewed_at = $3
		WHERE id = $4`
	if _, err := r.q.ExecContext(ctx, query, status, rejectionReason, at, id); err != nil {
		return fmt.Errorf("failed to update payment proof: %w", err)
	}
	return nil
}

// RecordSignature stores a party's agreement signature, once per role.
func (r *Repository) RecordSignature(ctx context.Context, loanID, userID int64, role models.Role, at time.Time) error {
	query := `
		INSERT INTO lending.agreement_signatures (loan_id, user_id, role, signed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (loan_id, role) DO NOTHING`
	if _, err := r.q.ExecContext(ctx, query, loanID, userID, role, at); err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	return nil
}

// BorrowerSigned reports whether the borrower's signature is on file. The
// cancel transition re-checks this inside its own transaction.
func (r *Repository) BorrowerSigned(ctx context.Context, loanID int64) (bool, error) {
	return r.signedByRole(ctx, loanID, models.RoleBorrower)
}

// BothSigned reports whether both parties have signed the agreement.
func (r *Repository) BothSigned(ctx context.Context, loanID int64) (bool, error) {
	lender, err := r.signedByRole(ctx, loanID, models.RoleLender)
	if err != nil || !lender {
		return false, err
	}
	return r.signedByRole(ctx, loanID, models.RoleBorrower)
}

func (r *Repository) signedByRole(ctx context.Context, loanID int64, role models.Role) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM lending.agreement_signatures WHERE loan_id = $1 AND role = $2)`
	if err := r.q.QueryRowContext(ctx, query, loanID, role).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check signature: %w", err)
	}
	return exists, nil
}
