package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/middleware"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
	"github.com/paylend/loan-service/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.ErrValidation, apperr.ErrInvalidAmount:
		status = http.StatusBadRequest
	case apperr.ErrForbidden:
		status = http.StatusForbidden
	case apperr.ErrNotFound:
		status = http.StatusNotFound
	case apperr.ErrInvalidStateTransition, apperr.ErrConflict:
		status = http.StatusConflict
	case apperr.ErrPreconditionFailed:
		status = http.StatusPreconditionFailed
	case apperr.ErrNoOutstandingBalance:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func actor(r *http.Request) service.Actor {
	id, _ := middleware.UserID(r.Context())
	role, _ := middleware.UserRole(r.Context())
	return service.Actor{ID: id, Role: role}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrValidation, "invalid %s", name)
	}
	return id, nil
}

// asOf reads the optional ?as_of=RFC3339 query parameter, defaulting to now.
func asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.ErrValidation, "as_of must be RFC3339")
	}
	return t, nil
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string      `json:"username"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateLoan handles loan offer creation
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BorrowerID  int64              `json:"borrower_id"`
		Principal   int64              `json:"principal"`
		RateBps     int64              `json:"rate_bps"`
		TermMonths  int                `json:"term_months"`
		PaymentType models.PaymentType `json:"payment_type"`
		Currency    string             `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	loan, err := h.svc.CreateLoan(r.Context(), actor(r), req.BorrowerID, req.Principal,
		req.RateBps, req.TermMonths, req.PaymentType, req.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// GetLoan returns a loan by id
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	loan, err := h.svc.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// GetSchedule returns a loan's installments
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	schedules, err := h.svc.GetSchedule(r.Context(), loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (h *Handler) lifecycleAction(fn func(*http.Request, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loanID, err := pathID(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := fn(r, loanID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.AcceptOffer(r.Context(), actor(r), id)
	})(w, r)
}

func (h *Handler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.DeclineOffer(r.Context(), actor(r), id)
	})(w, r)
}

func (h *Handler) SignAgreement(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.SignAgreement(r.Context(), actor(r), id)
	})(w, r)
}

func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.CancelLoan(r.Context(), actor(r), id)
	})(w, r)
}

func (h *Handler) WriteOffLoan(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.WriteOffLoan(r.Context(), actor(r), id)
	})(w, r)
}

// RecordPayment handles ledger allocation
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Amount money.Minor `json:"amount"`
		Method string      `json:"method"`
		PaidAt time.Time   `json:"paid_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.svc.RecordPayment(r.Context(), actor(r), loanID, req.Amount, req.Method, req.PaidAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CalculateLateFees runs the fee engine for one loan
func (h *Handler) CalculateLateFees(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := asOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fees, err := h.svc.CalculateLateFees(r.Context(), actor(r), loanID, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees_applied": fees})
}

// ListLateFees returns all fees of a loan
func (h *Handler) ListLateFees(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	fees, err := h.svc.ListLateFees(r.Context(), loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// WaiveLateFee forgives a pending fee
func (h *Handler) WaiveLateFee(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	if err := h.svc.WaiveLateFee(r.Context(), actor(r), feeID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "waived"})
}

// GetPayoffQuote returns the settlement figure as of a point in time
func (h *Handler) GetPayoffQuote(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := asOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := h.svc.GetPayoffQuote(r.Context(), loanID, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// GetLoanHealth returns the derived health view for one loan
func (h *Handler) GetLoanHealth(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := asOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := h.svc.GetLoanHealth(r.Context(), loanID, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// GetBorrowerHealth returns the borrower-level aggregate
func (h *Handler) GetBorrowerHealth(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := asOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.svc.GetBorrowerHealth(r.Context(), borrowerID, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// GetSystemHealth returns the system-wide aggregate
func (h *Handler) GetSystemHealth(w http.ResponseWriter, r *http.Request) {
	at, err := asOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	agg, err := h.svc.GetSystemHealth(r.Context(), at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// SubmitDisbursementProof records the lender's disbursement evidence
func (h *Handler) SubmitDisbursementProof(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Amount    money.Minor `json:"amount"`
		Method    string      `json:"method"`
		Reference string      `json:"reference"`
		ProofRef  string      `json:"proof_ref"`
		Notes     string      `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	if err := h.svc.SubmitDisbursementProof(r.Context(), actor(r), loanID,
		req.Amount, req.Method, req.Reference, req.ProofRef, req.Notes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "submitted"})
}

// GetDisbursementProof returns the proof record for a loan
func (h *Handler) GetDisbursementProof(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	proof, err := h.svc.GetDisbursementProof(r.Context(), loanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// ConfirmReceipt is the borrower's confirmation that funds arrived
func (h *Handler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(func(r *http.Request, id int64) error {
		return h.svc.ConfirmReceipt(r.Context(), actor(r), id)
	})(w, r)
}

// DisputeDisbursement records the borrower's dispute
func (h *Handler) DisputeDisbursement(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	if err := h.svc.DisputeDisbursement(r.Context(), actor(r), loanID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

// RequestRestructure opens a renegotiation of term/rate
func (h *Handler) RequestRestructure(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		NewTermMonths int    `json:"new_term_months"`
		NewRateBps    int64  `json:"new_rate_bps"`
		Reason        string `json:"reason"`
		Details       string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	rs, err := h.svc.RequestRestructure(r.Context(), actor(r), loanID,
		req.NewTermMonths, req.NewRateBps, req.Reason, req.Details)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rs)
}

// RespondToRestructure is the counterparty's decision
func (h *Handler) RespondToRestructure(w http.ResponseWriter, r *http.Request) {
	restructureID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Approve         bool   `json:"approve"`
		RejectionReason string `json:"rejection_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	if err := h.svc.RespondToRestructure(r.Context(), actor(r), restructureID,
		req.Approve, req.RejectionReason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// FlagBorrower files a lender-reported risk flag
func (h *Handler) FlagBorrower(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Type          models.RiskFlagType `json:"type"`
		Reason        string              `json:"reason"`
		AmountAtIssue money.Minor         `json:"amount_at_issue"`
		ProofRef      string              `json:"proof_ref"`
		ProofHash     string              `json:"proof_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	flag, err := h.svc.FlagBorrower(r.Context(), actor(r), borrowerID, req.Type,
		req.Reason, req.AmountAtIssue, req.ProofRef, req.ProofHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, flag)
}

// ListBorrowerFlags returns a borrower's flags and active count
func (h *Handler) ListBorrowerFlags(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	flags, active, err := h.svc.BorrowerFlags(r.Context(), borrowerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": flags, "active_count": active})
}

// ResolveFlag annotates a flag as resolved
func (h *Handler) ResolveFlag(w http.ResponseWriter, r *http.Request) {
	flagID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	if err := h.svc.ResolveFlag(r.Context(), actor(r), flagID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// SubmitPaymentProof files a borrower's off-ledger payment claim
func (h *Handler) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Amount    money.Minor `json:"amount"`
		Method    string      `json:"method"`
		ProofRef  string      `json:"proof_ref"`
		ProofHash string      `json:"proof_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	proof, err := h.svc.SubmitPaymentProof(r.Context(), actor(r), loanID,
		req.Amount, req.Method, req.ProofRef, req.ProofHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proof)
}

// ReviewPaymentProof is the lender's decision on a claimed payment
func (h *Handler) ReviewPaymentProof(w http.ResponseWriter, r *http.Request) {
	proofID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Approve         bool   `json:"approve"`
		RejectionReason string `json:"rejection_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.svc.ReviewPaymentProof(r.Context(), actor(r), proofID,
		req.Approve, req.RejectionReason)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
