package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const pgUniqueViolation = "23505"

// pgQueryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQueryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore is the PostgreSQL implementation of Storage.
type PostgresStore struct {
	pgRepo
	pool *pgxpool.Pool
}

type pgRepo struct {
	q pgQueryable
}

// NewPostgresStore connects to databaseURL. Migrations are applied separately
// through MigrateUp.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL store ready")
	return &PostgresStore{pgRepo: pgRepo{q: pool}, pool: pool}, nil
}

// WithTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
			}
		}
	}()

	if err = fn(&pgRepo{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *pgRepo) CreateLaureate(ctx context.Context, l *models.Laureate) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO laureates (id, full_name, student_id, institution, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.FullName, l.StudentID, l.Institution, l.IsActive, l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewValidationError("student_id", "a laureate with this student id already exists")
		}
		return fmt.Errorf("failed to create laureate: %w", err)
	}
	return nil
}

func (r *pgRepo) GetLaureate(ctx context.Context, id uuid.UUID) (*models.Laureate, error) {
	var l models.Laureate
	err := r.q.QueryRow(ctx, `
		SELECT id, full_name, student_id, institution, is_active, created_at
		FROM laureates WHERE id = $1`, id,
	).Scan(&l.ID, &l.FullName, &l.StudentID, &l.Institution, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("laureate %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get laureate %s: %w", id, err)
	}
	return &l, nil
}

func (r *pgRepo) CountActiveLaureates(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM laureates WHERE is_active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count laureates: %w", err)
	}
	return n, nil
}

const pgLoanColumns = `id, laureate_id, amount, interest_rate, start_date, end_date, monthly_payment, status, notes, created_by, created_at, updated_at`

func scanPgLoan(row pgx.Row) (*models.Loan, error) {
	var loan models.Loan
	var amount, rate, monthly pgtype.Numeric
	var status string
	if err := row.Scan(&loan.ID, &loan.LaureateID, &amount, &rate, &loan.StartDate, &loan.EndDate,
		&monthly, &status, &loan.Notes, &loan.CreatedBy, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.Amount = fromNumeric(amount)
	loan.InterestRate = fromNumeric(rate)
	loan.MonthlyPayment = fromNumeric(monthly)
	loan.StartDate = models.DateOf(loan.StartDate)
	loan.EndDate = models.DateOf(loan.EndDate)
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

func (r *pgRepo) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO loans (`+pgLoanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loan.ID, loan.LaureateID, toNumeric(loan.Amount), toNumeric(loan.InterestRate),
		models.DateOf(loan.StartDate), models.DateOf(loan.EndDate), toNumeric(loan.MonthlyPayment),
		string(loan.Status), loan.Notes, loan.CreatedBy, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *pgRepo) getLoan(ctx context.Context, query string, id uuid.UUID) (*models.Loan, error) {
	loan, err := scanPgLoan(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %s: %w", id, err)
	}
	return loan, nil
}

func (r *pgRepo) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return r.getLoan(ctx, `SELECT `+pgLoanColumns+` FROM loans WHERE id = $1`, id)
}

// LockLoan takes the loan's row lock for the rest of the transaction.
func (r *pgRepo) LockLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return r.getLoan(ctx, `SELECT `+pgLoanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgRepo) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE loans SET status = $1, notes = $2, updated_at = $3 WHERE id = $4`,
		string(loan.Status), loan.Notes, loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

func (r *pgRepo) ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error) {
	query := `SELECT ` + pgLoanColumns + ` FROM loans WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.LaureateID != uuid.Nil {
		args = append(args, filter.LaureateID)
		query += fmt.Sprintf(` AND laureate_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanPgLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

const pgPaymentColumns = `p.id, p.loan_id, p.amount, p.due_date, p.paid_date, p.status, p.payment_method, p.transaction_ref, p.notes, p.created_at, p.updated_at`

func scanPgPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var amount pgtype.Numeric
	var status string
	if err := row.Scan(&p.ID, &p.LoanID, &amount, &p.DueDate, &p.PaidDate, &status,
		&p.Method, &p.TransactionRef, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Amount = fromNumeric(amount)
	p.DueDate = models.DateOf(p.DueDate)
	if p.PaidDate != nil {
		paid := models.DateOf(*p.PaidDate)
		p.PaidDate = &paid
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func pgDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOf(*t)
	return &d
}

func (r *pgRepo) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPgPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// CreatePayments inserts the whole schedule in one batch round trip.
func (r *pgRepo) CreatePayments(ctx context.Context, payments []*models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range payments {
		batch.Queue(`
			INSERT INTO payments (id, loan_id, amount, due_date, paid_date, status, payment_method, transaction_ref, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.LoanID, toNumeric(p.Amount), models.DateOf(p.DueDate), pgDate(p.PaidDate),
			string(p.Status), p.Method, p.TransactionRef, p.Notes, p.CreatedAt, p.UpdatedAt,
		)
	}
	if err := r.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create payments: %w", err)
	}
	return nil
}

func (r *pgRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := scanPgPayment(r.q.QueryRow(ctx, `SELECT `+pgPaymentColumns+` FROM payments p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return p, nil
}

func (r *pgRepo) UpdatePayment(ctx context.Context, p *models.Payment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		SET status = $1, paid_date = $2, payment_method = $3, transaction_ref = $4, notes = $5, updated_at = $6
		WHERE id = $7`,
		string(p.Status), pgDate(p.PaidDate), p.Method, p.TransactionRef, p.Notes, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (r *pgRepo) ListPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+pgPaymentColumns+` FROM payments p WHERE p.loan_id = $1 ORDER BY p.due_date, p.id`, loanID)
}

func (r *pgRepo) ListPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error) {
	query := `SELECT ` + pgPaymentColumns + ` FROM payments p JOIN loans l ON l.id = p.loan_id WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND p.status = $%d`, len(args))
	}
	if filter.LoanID != uuid.Nil {
		args = append(args, filter.LoanID)
		query += fmt.Sprintf(` AND p.loan_id = $%d`, len(args))
	}
	if filter.LaureateID != uuid.Nil {
		args = append(args, filter.LaureateID)
		query += fmt.Sprintf(` AND l.laureate_id = $%d`, len(args))
	}
	if filter.PastDueBefore != nil {
		args = append(args, models.DateOf(*filter.PastDueBefore))
		query += fmt.Sprintf(` AND p.status = 'pending' AND p.due_date < $%d`, len(args))
	}
	if filter.ActiveLoansOnly {
		query += ` AND l.status = 'active'`
	}
	if filter.NewestFirst {
		query += ` ORDER BY p.due_date DESC, p.id`
	} else {
		query += ` ORDER BY p.due_date, p.id`
	}
	return r.queryPayments(ctx, query, args...)
}

func (r *pgRepo) DeletePaymentsForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM payments WHERE loan_id = $1`, loanID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments for loan %s: %w", loanID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgRepo) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]*models.Payment, error) {
	return r.queryPayments(ctx, `
		SELECT `+pgPaymentColumns+` FROM payments p
		WHERE (p.status = 'pending' AND p.due_date < $1) OR p.status = 'overdue'
		ORDER BY p.due_date, p.id`, models.DateOf(asOf))
}
