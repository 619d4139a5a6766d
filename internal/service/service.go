package service

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/paylend/loan-service/internal/config"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/money"
	"github.com/sirupsen/logrus"
)

// Store is the transactional persistence surface the service runs on.
// Implemented by the Postgres repository; tests use an in-memory fake.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id int64) (*models.Loan, error)
	GetLoanForUpdate(ctx context.Context, id int64) (*models.Loan, error)
	SetLoanStatus(ctx context.Context, id int64, from, to models.LoanStatus, at time.Time) error
	UpdateLoanTerms(ctx context.Context, id int64, termMonths int, rateBps int64) error
	AddLoanRepaid(ctx context.Context, id int64, repaidDelta, overpaymentDelta int64) error
	ListLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error)
	ListLoansByBorrower(ctx context.Context, borrowerID int64) ([]models.Loan, error)
	ListLoans(ctx context.Context) ([]models.Loan, error)
	LenderHasLoanWithBorrower(ctx context.Context, lenderID, borrowerID int64) (bool, error)

	CreateSchedules(ctx context.Context, loanID int64, items []money.Installment) error
	ListSchedules(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error)
	ListSchedulesForUpdate(ctx context.Context, loanID int64) ([]models.RepaymentSchedule, error)
	UpdateSchedulePayment(ctx context.Context, id int64, paid money.Minor, status models.ScheduleStatus) error
	UpdateScheduleStatus(ctx context.Context, id int64, status models.ScheduleStatus) error
	DeleteUnpaidSchedules(ctx context.Context, loanID int64) error

	CreateRepaymentEvent(ctx context.Context, ev *models.RepaymentEvent) error
	ListRepaymentEvents(ctx context.Context, loanID int64) ([]models.RepaymentEvent, error)

	CreateLateFee(ctx context.Context, fee *models.LateFee) (bool, error)
	GetLateFee(ctx context.Context, id int64) (*models.LateFee, error)
	ListLateFees(ctx context.Context, loanID int64) ([]models.LateFee, error)
	UpdateLateFeeStatus(ctx context.Context, id int64, status models.LateFeeStatus, waiverReason string, at time.Time) error

	GetDisbursementProof(ctx context.Context, loanID int64) (*models.DisbursementProof, error)
	UpsertDisbursementProof(ctx context.Context, p *models.DisbursementProof) error
	SetDisbursementState(ctx context.Context, loanID int64, state models.DisbursementState, disputeReason string, at time.Time) error

	CreateRestructure(ctx context.Context, rs *models.LoanRestructure) error
	GetRestructure(ctx context.Context, id int64) (*models.LoanRestructure, error)
	UpdateRestructureStatus(ctx context.Context, id int64, status models.RestructureStatus, rejectionReason string, at time.Time) error

	CreateRiskFlag(ctx context.Context, f *models.RiskFlag) error
	GetRiskFlag(ctx context.Context, id int64) (*models.RiskFlag, error)
	ListRiskFlags(ctx context.Context, borrowerID int64) ([]models.RiskFlag, error)
	ResolveRiskFlag(ctx context.Context, id, resolvedBy int64, reason string, at time.Time) error

	CreatePaymentProof(ctx context.Context, p *models.PaymentProof) error
	GetPaymentProofForUpdate(ctx context.Context, id int64) (*models.PaymentProof, error)
	UpdatePaymentProofStatus(ctx context.Context, id int64, status models.PaymentProofStatus, rejectionReason string, at time.Time) error

	RecordSignature(ctx context.Context, loanID, userID int64, role models.Role, at time.Time) error
	BorrowerSigned(ctx context.Context, loanID int64) (bool, error)
	BothSigned(ctx context.Context, loanID int64) (bool, error)
}

// Notifier is the fire-and-forget notification sink. Delivery is not
// required for correctness.
type Notifier interface {
	LoanStatusChanged(loan *models.Loan, from models.LoanStatus)
}

// RateSource supplies the central-bank key rate used as a ceiling check on
// restructure proposals.
type RateSource interface {
	GetKeyRate() (float64, error)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role models.Role
}

// system is the actor used by scheduler sweeps; it bypasses party checks.
var system = Actor{Role: models.RoleAdmin}

// Service handles business logic
type Service struct {
	store    Store
	log      *logrus.Logger
	config   *config.Config
	notifier Notifier
	rates    RateSource
	encKey   []byte
	now      func() time.Time
}

// NewService initializes a new service
func NewService(store Store, log *logrus.Logger, cfg *config.Config, notifier Notifier, rates RateSource) *Service {
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil || len(key) == 0 {
		// Keys that are not hex are used as raw bytes.
		key = []byte(cfg.EncryptionKey)
	}
	return &Service{
		store:    store,
		log:      log,
		config:   cfg,
		notifier: notifier,
		rates:    rates,
		encKey:   key,
		now:      time.Now,
	}
}

func (s *Service) notifyStatusChange(loan *models.Loan, from models.LoanStatus) {
	if s.notifier == nil {
		return
	}
	s.notifier.LoanStatusChanged(loan, from)
}
