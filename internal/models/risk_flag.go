package models

import (
	"time"

	"github.com/paylend/loan-service/internal/money"
)

type RiskFlagType string

const (
	FlagLate1To7   RiskFlagType = "LATE_1_7"
	FlagLate8To30  RiskFlagType = "LATE_8_30"
	FlagLate31To60 RiskFlagType = "LATE_31_60"
	FlagDefault    RiskFlagType = "DEFAULT"
	FlagCleared    RiskFlagType = "CLEARED"
)

type RiskFlagOrigin string

const (
	OriginSystemAuto     RiskFlagOrigin = "SYSTEM_AUTO"
	OriginLenderReported RiskFlagOrigin = "LENDER_REPORTED"
)

// RiskFlag is a permanent annotation on a borrower. Resolution annotates the
// flag, it never deletes it; active risk count is flags with a null
// resolved_at.
type RiskFlag struct {
	ID               int64          `json:"id"`
	BorrowerID       int64          `json:"borrower_id"`
	Type             RiskFlagType   `json:"type"`
	Origin           RiskFlagOrigin `json:"origin"`
	Reason           string         `json:"reason"`
	AmountAtIssue    money.Minor    `json:"amount_at_issue,omitempty"`
	ProofRef         string         `json:"proof_ref,omitempty"`
	ProofHash        string         `json:"proof_hash,omitempty"`
	CreatedBy        int64          `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy       *int64         `json:"resolved_by,omitempty"`
	ResolutionReason string         `json:"resolution_reason,omitempty"`
}

// Resolved reports whether the flag has been annotated as resolved.
func (f *RiskFlag) Resolved() bool { return f.ResolvedAt != nil }
