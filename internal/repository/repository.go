package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/paylend/loan-service/internal/apperr"
	"github.com/paylend/loan-service/internal/models"
	"github.com/paylend/loan-service/internal/service"
)

// Repository provides database operations over the lending schema.
type Repository struct {
	db *sql.DB // nil when the repository is bound to a transaction
	q  querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// WithTx runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction, so every operation stays all-or-nothing.
func (r *Repository) WithTx(ctx context.Context, fn func(service.Store) error) error {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txRepo := &Repository{q: tx}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO lending.users (username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, role, created_at
		FROM lending.users
		WHERE email = $1`
	err := r.q.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

const loanColumns = `id, lender_id, borrower_id, principal, interest_amount, rate_bps,
		term_months, payment_type, currency, status, total_repaid, overpayment_minor,
		created_at, disbursed_at, completed_at`

func scanLoan(row interface{ Scan(...any) error }) (*models.Loan, error) {
	loan := &models.Loan{}
	err := row.Scan(&loan.ID, &loan.LenderID, &loan.BorrowerID, &loan.Principal,
		&loan.InterestAmount, &loan.RateBps, &loan.TermMonths, &loan.PaymentType,
		&loan.Currency, &loan.Status, &loan.TotalRepaid, &loan.OverpaymentMinor,
		&loan.CreatedAt, &loan.DisbursedAt, &loan.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.ErrNotFound, "loan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan loan: %w", err)
	}
	return loan, nil
}

// CreateLoan creates a new loan in the database
func (r *Repository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	query := `
		INSERT INTO lending.loans (lender_id, borrower_id, principal, interest_amount,
			rate_bps, term_months, payment_type, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, loan.LenderID, loan.BorrowerID, loan.Principal,
		loan.InterestAmount, loan.RateBps, loan.TermMonths, loan.PaymentType,
		loan.Currency, loan.Status).
		Scan(&loan.ID, &loan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by id
func (r *Repository) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM lending.loans WHERE id = $1`
	return scanLoan(r.q.QueryRowContext(ctx, query, id))
}

// GetLoanForUpdate retrieves a loan and locks its row for the duration of
// the enclosing transaction. All read-modify-write sections go through this.
func (r *Repository) GetLoanForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM lending.loans WHERE id = $1 FOR UPDATE`
	return scanLoan(r.q.QueryRowContext(ctx, query, id))
}

// SetLoanStatus flips loan status from -> to. The WHERE clause on the old
// status makes the write conditional, so a concurrent transition loses.
func (r *Repository) SetLoanStatus(ctx context.Context, id int64, from, to models.LoanStatus, at time.Time) error {
	query := `
		UPDATE lending.loans
		SET status = $1,
		    disbursed_at = CASE WHEN $1 = 'active' THEN $4 ELSE disbursed_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN $4 ELSE completed_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = $3`
	res, err := r.q.ExecContext(ctx, query, to, id, from, at)
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	if n == 0 {
		return apperr.Wrap(apperr.ErrInvalidStateTransition, "loan %d is no longer %s", id, from)
	}
	return nil
}

// UpdateLoanTerms rewrites term and rate after an approved restructure.
func (r *Repository) UpdateLoanTerms(ctx context.Context, id int64, termMonths int, rateBps int64) error {
	query := `
		UPDATE lending.loans
		SET term_months = $1, rate_bps = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`
	if _, err := r.q.ExecContext(ctx, query, termMonths, rateBps, id); err != nil {
		return fmt.Errorf("failed to update loan terms: %w", err)
	}
	return nil
}

// AddLoanRepaid accumulates repaid and overpayment totals on the loan row.
func (r *Repository) AddLoanRepaid(ctx context.Context, id int64, repaidDelta, overpaymentDelta int64) error {
	query := `
		UPDATE lending.loans
		SET total_repaid = total_repaid + $1,
		    overpayment_minor = overpayment_minor + $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`
	if _, err := r.q.ExecContext(ctx, query, repaidDelta, overpaymentDelta, id); err != nil {
		return fmt.Errorf("failed to update loan totals: %w", err)
	}
	return nil
}

// ListLoansByStatus retrieves all loans in the given status.
func (r *Repository) ListLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM lending.loans WHERE status = $1 ORDER BY id`
	return r.listLoans(ctx, query, status)
}

// ListLoansByBorrower retrieves all loans referencing the borrower.
func (r *Repository) ListLoansByBorrower(ctx context.Context, borrowerID int64) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM lending.loans WHERE borrower_id = $1 ORDER BY id`
	return r.listLoans(ctx, query, borrowerID)
}

// ListLoans retrieves every loan in the system.
func (r *Repository) ListLoans(ctx context.Context) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM lending.loans ORDER BY id`
	return r.listLoans(ctx, query)
}

func (r *Repository) listLoans(ctx context.Context, query string, args ...any) ([]models.Loan, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

// LenderHasLoanWithBorrower reports whether the lender ever lent to the
// borrower; feeds the risk-flag resolution permission check.
func (r *Repository) LenderHasLoanWithBorrower(ctx context.Context, lenderID, borrowerID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM lending.loans WHERE lender_id = $1 AND borrower_id = $2)`
	if err := r.q.QueryRowContext(ctx, query, lenderID, borrowerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check lender relation: %w", err)
	}
	return exists, nil
}
