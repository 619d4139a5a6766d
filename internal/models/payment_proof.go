package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
)

type PaymentProofStatus string

const (
	ProofPending  PaymentProofStatus = "pending"
	ProofApproved PaymentProofStatus = "approved"
	ProofRejected PaymentProofStatus = "rejected"
)

// PaymentProof is a borrower's claim of an off-ledger payment awaiting
// lender review. Approval atomically records the payment through the ledger.
type PaymentProof struct {
	ID              int64              `json:"id"`
	LoanID          int64              `json:"loan_id"`
	Amount          money.Minor        `json:"amount"`
	Method          string             `json:"method"`
	ProofRef        string             `json:"proof_ref"`
	ProofHash       string             `json:"proof_hash,omitempty"`
	Status          PaymentProofStatus `json:"status"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
}
