package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/models"
)

// ErrNotFound is returned by every lookup that matches no row.
var ErrNotFound = models.ErrNotFound

// LoanFilter narrows ListLoans. Zero values match everything.
type LoanFilter struct {
	Status     models.LoanStatus
	LaureateID uuid.UUID
}

// PaymentFilter narrows ListPayments. Zero values match everything.
type PaymentFilter struct {
	Status     models.PaymentStatus
	LoanID     uuid.UUID
	LaureateID uuid.UUID
	// PastDueBefore keeps pending payments due strictly before this date.
	PastDueBefore *time.Time
	// ActiveLoansOnly restricts results to payments of active loans.
	ActiveLoansOnly bool
	// NewestFirst orders by due date descending instead of ascending.
	NewestFirst bool
}

// Repository defines the record operations for laureates, loans and payments.
// The same operations are available on the store and inside a transaction.
type Repository interface {
	CreateLaureate(ctx context.Context, laureate *models.Laureate) error
	GetLaureate(ctx context.Context, id uuid.UUID) (*models.Laureate, error)
	CountActiveLaureates(ctx context.Context) (int, error)

	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	UpdateLoan(ctx context.Context, loan *models.Loan) error
	ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error)
	// LockLoan serializes writers on one loan and its payments until the transaction ends.
	LockLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)

	CreatePayments(ctx context.Context, payments []*models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	ListPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error)
	DeletePaymentsForLoan(ctx context.Context, loanID uuid.UUID) (int64, error)
	// ListOverdueCandidates returns pending payments due before asOf together
	// with every payment whose status is overdue.
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]*models.Payment, error)
}

// Storage is a Repository that can open transactions.
type Storage interface {
	Repository
	// WithTx runs fn inside one transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	Close() error
}
