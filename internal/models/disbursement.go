package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
)

type DisbursementState string

const (
	DisbursementNoProof   DisbursementState = "no_proof"
	DisbursementSubmitted DisbursementState = "lender_submitted"
	DisbursementConfirmed DisbursementState = "confirmed"
	DisbursementDisputed  DisbursementState = "disputed"
)

// DisbursementProof is the lender's evidence that funds were sent, one per
// loan. Resubmission after a dispute overwrites the record and clears the
// dispute fields.
type DisbursementProof struct {
	ID            int64             `json:"id"`
	LoanID        int64             `json:"loan_id"`
	Amount        money.Minor       `json:"amount"`
	Method        string            `json:"method"`
	Reference     string            `json:"reference"` // encrypted at rest
	ProofRef      string            `json:"proof_ref"`
	Notes         string            `json:"notes,omitempty"`
	State         DisbursementState `json:"state"`
	DisputeReason string            `json:"dispute_reason,omitempty"`
	DisputedAt    *time.Time        `json:"disputed_at,omitempty"`
	SubmittedAt   time.Time         `json:"submitted_at"`
	ConfirmedAt   *time.Time        `json:"confirmed_at,omitempty"`
}
