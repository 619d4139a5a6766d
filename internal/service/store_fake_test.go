package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/config"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
	"github.com/sirupsen/logrus"
)

// fakeStore is an in-memory Store. WithTx serializes callers the way the
// real repository's row locks do; individual methods never lock so they can
// run inside a transaction.
type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	users        map[int64]*models.User
	loans        map[int64]*models.Loan
	schedules    map[int64]*models.RepaymentSchedule
	events       []*models.RepaymentEvent
	fees         map[int64]*models.LateFee
	disbursement map[int64]*models.DisbursementProof
	restructures map[int64]*models.LoanRestructure
	flags        map[int64]*models.RiskFlag
	payProofs    map[int64]*models.PaymentProof
	signatures   map[int64]map[models.Role]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[int64]*models.User{},
		loans:        map[int64]*models.Loan{},
		schedules:    map[int64]*models.RepaymentSchedule{},
		fees:         map[int64]*models.LateFee{},
		disbursement: map[int64]*models.DisbursementProof{},
		restructures: map[int64]*models.LoanRestructure{},
		flags:        map[int64]*models.RiskFlag{},
		payProofs:    map[int64]*models.PaymentProof{},
		signatures:   map[int64]map[models.Role]bool{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(Store) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func (f *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = f.id()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.Wrap(apperr.ErrNotFound, "user not found")
}

func (f *fakeStore) CreateLoan(ctx context.Context, loan *models.Loan) error {
	loan.ID = f.id()
	loan.CreatedAt = time.Now()
	cp := *loan
	f.loans[loan.ID] = &cp
	return nil
}

func (f *fakeStore) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	loan, ok := f.loans[id]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "loan not found")
	}
	cp := *loan
	return &cp, nil
}

func (f *fakeStore) GetLoanForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	return f.GetLoan(ctx, id)
}

func (f *fakeStore) SetLoanStatus(ctx context.Context, id int64, from, to models.LoanStatus, at time.Time) error {
	loan, ok := f.loans[id]
	if !ok {
		return apperr.Wrap(apperr.ErrNotFound, "loan not found")
	}
	if loan.Status != from {
		return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is no longer %s", id, from)
	}
	loan.Status = to
	switch to {
	case models.StatusActive:
		loan.DisbursedAt = &at
	case models.StatusCompleted:
		loan.CompletedAt = &at
	}
	return nil
}

func (f *fakeStore) UpdateLoanTerms(ctx context.Context, id int64, termMonths int, rateBps int64) error {
	loan := f.loans[id]
	loan.TermMonths = termMonths
	loan.RateBps = rateBps
	return nil
}

func (f *fakeStore) AddLoanRepaid(ctx context.Context, id int64, repaidDelta, overpaymentDelta int64) error {
	loan := f.loans[id]
	loan.TotalRepaid += money.Minor(repaidDelta)
	loan.OverpaymentMinor += money.Minor(overpaymentDelta)
	return nil
}

func (f *fakeStore) ListLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	var out []models.Loan
	for _, loan := range f.loans {
		if loan.Status == status {
			out = append(out, *loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListLoansByBorrower(ctx context.Context, borrowerID int64) ([]models.Loan, error) {
	var out []models.Loan
	for _, loan := range f.loans {
		if loan.BorrowerID == borrowerID {
			out = append(out, *loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListLoans(ctx context.Context) ([]models.Loan, error) {
	var out []models.Loan
	for _, loan := range f.loans {
		out = append(out, *loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) LenderHasLoanWithBorrower(ctx context.Context, lenderID, borrowerID int64) (bool, error) {
	for _, loan := range f.loans {
		if loan.LenderID == lenderID && loan.BorrowerID == borrowerID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateSchedules(ctx context.Context, loanID int64, items []money.Installment) error {
	for _, it := range items {
		s := &models.RepaymentSchedule{
			ID:            f.id(),
			LoanID:        loanID,
			InstallmentNo: it.Number,
			DueDate:       it.DueDate,
			AmountDue:     it.AmountDue,
			PrincipalDue:  it.Principal,
			InterestDue:   it.Interest,
			Status:        models.SchedulePending,
		}
		f.schedules[s.ID] = s
	}
	return nil
}

func (f *fakeStore) ListSchedules(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error) {
	var out []models.RepaymentSchedule
	for _, s := range f.schedules {
		if s.LoanID == loanID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNo < out[j].InstallmentNo })
	return out, nil
}

func (f *fakeStore) ListSchedulesForUpdate(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error) {
	return f.ListSchedules(ctx, loanID)
}

func (f *fakeStore) UpdateSchedulePayment(ctx context.Context, id int64, paid money.Minor, status models.ScheduleStatus) error {
	s := f.schedules[id]
	s.PaidAmount = paid
	s.Status = status
	return nil
}

func (f *fakeStore) UpdateScheduleStatus(ctx context.Context, id int64, status models.ScheduleStatus) error {
	f.schedules[id].Status = status
	return nil
}

func (f *fakeStore) DeleteUnpaidSchedules(ctx context.Context, loanID int64) error {
	for id, s := range f.schedules {
		if s.LoanID == loanID && s.PaidAmount < s.AmountDue {
			delete(f.schedules, id)
		}
	}
	return nil
}

func (f *fakeStore) CreateRepaymentEvent(ctx context.Context, ev *models.RepaymentEvent) error {
	ev.ID = f.id()
	ev.CreatedAt = time.Now()
	cp := *ev
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeStore) ListRepaymentEvents(ctx context.Context, loanID int64) ([]models.RepaymentEvent, error) {
	var out []models.RepaymentEvent
	for _, ev := range f.events {
		if ev.LoanID == loanID && !ev.Voided {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateLateFee(ctx context.Context, fee *models.LateFee) (bool, error) {
	for _, existing := range f.fees {
		if existing.ScheduleID == fee.ScheduleID && existing.Tier == fee.Tier &&
			existing.Status == models.FeePending {
			return false, nil
		}
	}
	fee.ID = f.id()
	fee.CreatedAt = time.Now()
	cp := *fee
	f.fees[fee.ID] = &cp
	return true, nil
}

func (f *fakeStore) GetLateFee(ctx context.Context, id int64) (*models.LateFee, error) {
	fee, ok := f.fees[id]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "late fee not found")
	}
	cp := *fee
	return &cp, nil
}

func (f *fakeStore) ListLateFees(ctx context.Context, loanID int64) ([]models.LateFee, error) {
	var out []models.LateFee
	for _, fee := range f.fees {
		if fee.LoanID == loanID {
			out = append(out, *fee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateLateFeeStatus(ctx context.Context, id int64, status models.LateFeeStatus, waiverReason string, at time.Time) error {
	fee := f.fees[id]
	fee.Status = status
	fee.WaiverReason = waiverReason
	fee.UpdatedAt = at
	return nil
}

func (f *fakeStore) GetDisbursementProof(ctx context.Context, loanID int64) (*models.DisbursementProof, error) {
	p, ok := f.disbursement[loanID]
	if !ok {
		return &models.DisbursementProof{LoanID: loanID, State: models.DisbursementNoProof}, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpsertDisbursementProof(ctx context.Context, p *models.DisbursementProof) error {
	if existing, ok := f.disbursement[p.LoanID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = f.id()
	}
	cp := *p
	cp.DisputeReason = ""
	cp.DisputedAt = nil
	cp.ConfirmedAt = nil
	f.disbursement[p.LoanID] = &cp
	return nil
}

func (f *fakeStore) SetDisbursementState(ctx context.Context, loanID int64, state models.DisbursementState, disputeReason string, at time.Time) error {
	p, ok := f.disbursement[loanID]
	if !ok {
		return apperr.Wrap(apperr.ErrPreconditionFailed, "no disbursement proof for loan %d", loanID)
	}
	p.State = state
	p.DisputeReason = disputeReason
	switch state {
	case models.DisbursementDisputed:
		p.DisputedAt = &at
	case models.DisbursementConfirmed:
		p.ConfirmedAt = &at
	}
	return nil
}

func (f *fakeStore) CreateRestructure(ctx context.Context, rs *models.LoanRestructure) error {
	for _, existing := range f.restructures {
		if existing.LoanID == rs.LoanID && existing.Status == models.RestructurePending {
			return apperr.Wrap(apperr.ErrConflict, "a pending restructure already exists for loan %d", rs.LoanID)
		}
	}
	rs.ID = f.id()
	rs.CreatedAt = time.Now()
	cp := *rs
	f.restructures[rs.ID] = &cp
	return nil
}

func (f *fakeStore) GetRestructure(ctx context.Context, id int64) (*models.LoanRestructure, error) {
	rs, ok := f.restructures[id]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "restructure not found")
	}
	cp := *rs
	return &cp, nil
}

func (f *fakeStore) UpdateRestructureStatus(ctx context.Context, id int64, status models.RestructureStatus, rejectionReason string, at time.Time) error {
	rs := f.restructures[id]
	rs.Status = status
	rs.RejectionReason = rejectionReason
	rs.RespondedAt = &at
	return nil
}

func (f *fakeStore) CreateRiskFlag(ctx context.Context, flag *models.RiskFlag) error {
	flag.ID = f.id()
	flag.CreatedAt = time.Now()
	cp := *flag
	f.flags[flag.ID] = &cp
	return nil
}

func (f *fakeStore) GetRiskFlag(ctx context.Context, id int64) (*models.RiskFlag, error) {
	flag, ok := f.flags[id]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "risk flag not found")
	}
	cp := *flag
	return &cp, nil
}

func (f *fakeStore) ListRiskFlags(ctx context.Context, borrowerID int64) ([]models.RiskFlag, error) {
	var out []models.RiskFlag
	for _, flag := range f.flags {
		if flag.BorrowerID == borrowerID {
			out = append(out, *flag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ResolveRiskFlag(ctx context.Context, id, resolvedBy int64, reason string, at time.Time) error {
	flag := f.flags[id]
	flag.ResolvedAt = &at
	flag.ResolvedBy = &resolvedBy
	flag.ResolutionReason = reason
	return nil
}

func (f *fakeStore) CreatePaymentProof(ctx context.Context, p *models.PaymentProof) error {
	p.ID = f.id()
	cp := *p
	f.payProofs[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetPaymentProofForUpdate(ctx context.Context, id int64) (*models.PaymentProof, error) {
	p, ok := f.payProofs[id]
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "payment proof not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdatePaymentProofStatus(ctx context.Context, id int64, status models.PaymentProofStatus, rejectionReason string, at time.Time) error {
	p := f.payProofs[id]
	p.Status = status
	p.RejectionReason = rejectionReason
	p.ReviewedAt = &at
	return nil
}

func (f *fakeStore) RecordSignature(ctx context.Context, loanID, userID int64, role models.Role, at time.Time) error {
	if f.signatures[loanID] == nil {
		f.signatures[loanID] = map[models.Role]bool{}
	}
	f.signatures[loanID][role] = true
	return nil
}

func (f *fakeStore) BorrowerSigned(ctx context.Context, loanID int64) (bool, error) {
	return f.signatures[loanID][models.RoleBorrower], nil
}

func (f *fakeStore) BothSigned(ctx context.Context, loanID int64) (bool, error) {
	return f.signatures[loanID][models.RoleLender] && f.signatures[loanID][models.RoleBorrower], nil
}

// --- test fixtures ---

const (
	lenderID   = int64(10)
	borrowerID = int64(20)
	strangerID = int64(99)
)

var (
	asLender   = Actor{ID: lenderID, Role: models.RoleLender}
	asBorrower = Actor{ID: borrowerID, Role: models.RoleBorrower}
	asStranger = Actor{ID: strangerID, Role: models.RoleLender}
)

func newTestService(store Store) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{
		JWTSecret:        "test-jwt-secret",
		HMACSecret:       "test-hmac-secret",
		EncryptionKey:    "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		DefaultAfterDays: 60,
		RateMarginPct:    5,
		FeeTiers:         config.DefaultFeeTiers(),
	}
	return NewService(store, log, cfg, nil, nil)
}

// seedLoan installs a loan directly into the fake, bypassing the service.
func seedLoan(f *fakeStore, status models.LoanStatus, principal, interest money.Minor, term int) *models.Loan {
	loan := &models.Loan{
		ID:             f.id(),
		LenderID:       lenderID,
		BorrowerID:     borrowerID,
		Principal:      principal,
		InterestAmount: interest,
		RateBps:        400,
		TermMonths:     term,
		PaymentType:    models.PaymentInstallments,
		Currency:       "USD",
		Status:         status,
		CreatedAt:      time.Now(),
	}
	f.loans[loan.ID] = loan
	return loan
}

// seedActiveLoan installs an active loan with its schedule.
func seedActiveLoan(f *fakeStore, principal, interest money.Minor, term int, firstDue time.Time) *models.Loan {
	loan := seedLoan(f, models.StatusActive, principal, interest, term)
	items := money.GenerateSchedule(principal, interest, term, firstDue)
	_ = f.CreateSchedules(context.Background(), loan.ID, items)
	return loan
}
