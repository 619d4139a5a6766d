package models

import "time"

type RestructureStatus string

const (
	RestructurePending  RestructureStatus = "pending"
	RestructureApproved RestructureStatus = "approved"
	RestructureDeclined RestructureStatus = "declined"
)

// Role of the party that requested a restructure or performs an operation.
type Role string

const (
	RoleLender   Role = "lender"
	RoleBorrower Role = "borrower"
	RoleAdmin    Role = "admin"
)

// LoanRestructure is a proposed change of term/rate. At most one pending
// restructure may exist per loan; the database enforces this with a partial
// unique index.
type LoanRestructure struct {
	ID              int64             `json:"id"`
	LoanID          int64             `json:"loan_id"`
	OriginalTerm    int               `json:"original_term"`
	OriginalRateBps int64             `json:"original_rate_bps"`
	ProposedTerm    int               `json:"proposed_term"`
	ProposedRateBps int64             `json:"proposed_rate_bps"`
	Reason          string            `json:"reason"`
	Details         string            `json:"details,omitempty"`
	RequestedBy     Role              `json:"requested_by"`
	Status          RestructureStatus `json:"status"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	RespondedAt     *time.Time        `json:"responded_at,omitempty"`
}
