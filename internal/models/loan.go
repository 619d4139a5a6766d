package models

import (
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/money"
)

// LoanStatus is the lifecycle state of a loan. The lifecycle service is the
// sole writer of this field.
type LoanStatus string

const (
	StatusPendingOffer        LoanStatus = "pending_offer"
	StatusPendingSignatures   LoanStatus = "pending_signatures"
	StatusPendingDisbursement LoanStatus = "pending_disbursement"
	StatusActive              LoanStatus = "active"
	StatusCompleted           LoanStatus = "completed"
	StatusDefaulted           LoanStatus = "defaulted"
	StatusWrittenOff          LoanStatus = "written_off"
	StatusDeclined            LoanStatus = "declined"
	StatusCancelled           LoanStatus = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s LoanStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDefaulted, StatusWrittenOff, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

type PaymentType string

const (
	PaymentOnceOff      PaymentType = "once_off"
	PaymentInstallments PaymentType = "installments"
)

// Loan references its lender and borrower by id only; no entity embeds
// another.
type Loan struct {
	ID               int64       `json:"id"`
	LenderID         int64       `json:"lender_id"`
	BorrowerID       int64       `json:"borrower_id"`
	Principal        money.Minor `json:"principal"`
	InterestAmount   money.Minor `json:"interest_amount"`
	RateBps          int64       `json:"rate_bps"`
	TermMonths       int         `json:"term_months"`
	PaymentType      PaymentType `json:"payment_type"`
	Currency         string      `json:"currency"`
	Status           LoanStatus  `json:"status"`
	TotalRepaid      money.Minor `json:"total_repaid"`
	OverpaymentMinor money.Minor `json:"overpayment_minor"`
	CreatedAt        time.Time   `json:"created_at"`
	DisbursedAt      *time.Time  `json:"disbursed_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// TotalAmount is principal plus interest, the ceiling for total_repaid.
func (l *Loan) TotalAmount() money.Minor {
	return l.Principal + l.InterestAmount
}

// NewLoan validates the invariants a loan must hold at creation.
func NewLoan(lenderID, borrowerID int64, principal money.Minor, rateBps int64, termMonths int, paymentType PaymentType, currency string) (*Loan, error) {
	if principal <= 0 {
		return nil, apperr.Wrap(apperr.ErrValidation, "principal must be positive")
	}
	if rateBps < 0 {
		return nil, apperr.Wrap(apperr.ErrValidation, "rate must not be negative")
	}
	if paymentType == PaymentOnceOff {
		termMonths = 1
	} else if termMonths < 1 {
		return nil, apperr.Wrap(apperr.ErrValidation, "term must be at least one month")
	}
	if lenderID == 0 || borrowerID == 0 {
		return nil, apperr.Wrap(apperr.ErrValidation, "lender and borrower are required")
	}
	return &Loan{
		LenderID:       lenderID,
		BorrowerID:     borrowerID,
		Principal:      principal,
		InterestAmount: money.FlatInterest(principal, rateBps),
		RateBps:        rateBps,
		TermMonths:     termMonths,
		PaymentType:    paymentType,
		Currency:       currency,
		Status:         StatusPendingOffer,
	}, nil
}
