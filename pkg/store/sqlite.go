package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/laureateLoan/pkg/models"
	log "github.com/sirupsen/logrus"
)

// sqliteDSN enables foreign keys and WAL, and makes every transaction take
// the write lock up front so read-check-write sequences cannot interleave.
func sqliteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// sqlQueryer is satisfied by both *sql.DB and *sql.Tx.
type sqlQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	sqliteRepo
	db *sql.DB
}

// sqliteRepo implements Repository against either the pool or a transaction.
type sqliteRepo struct {
	q sqlQueryer
}

// NewSQLiteStore opens the database file at path and applies pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := MigrateUp(DriverSQLite, path); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// A single connection keeps SQLite writers strictly serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	log.WithField("path", path).Info("SQLite store ready")
	return &SQLiteStore{sqliteRepo: sqliteRepo{q: db}, db: db}, nil
}

// WithTx runs fn in a transaction and rolls back when fn fails.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatDate(t time.Time) string {
	return models.DateOf(t).Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateLaureate inserts a new laureate profile.
func (r *sqliteRepo) CreateLaureate(ctx context.Context, l *models.Laureate) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO laureates (id, full_name, student_id, institution, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.FullName, l.StudentID, l.Institution, l.IsActive, l.CreatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.NewValidationError("student_id", "a laureate with this student id already exists")
		}
		return fmt.Errorf("failed to create laureate: %w", err)
	}
	return nil
}

// GetLaureate retrieves a laureate by its ID.
func (r *sqliteRepo) GetLaureate(ctx context.Context, id uuid.UUID) (*models.Laureate, error) {
	var l models.Laureate
	var idStr string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, full_name, student_id, institution, is_active, created_at FROM laureates WHERE id = ?`, id.String(),
	).Scan(&idStr, &l.FullName, &l.StudentID, &l.Institution, &l.IsActive, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("laureate %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get laureate: %w", err)
	}
	l.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid laureate id %q: %w", idStr, err)
	}
	return &l, nil
}

// CountActiveLaureates counts laureates with is_active set.
func (r *sqliteRepo) CountActiveLaureates(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM laureates WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count laureates: %w", err)
	}
	return n, nil
}

const sqliteLoanColumns = `id, laureate_id, amount, interest_rate, start_date, end_date, monthly_payment, status, notes, created_by, created_at, updated_at`

func scanSQLiteLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, laureateStr, start, end, status string
	if err := row.Scan(&idStr, &laureateStr, &loan.Amount, &loan.InterestRate, &start, &end,
		&loan.MonthlyPayment, &status, &loan.Notes, &loan.CreatedBy, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if loan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", idStr, err)
	}
	if loan.LaureateID, err = uuid.Parse(laureateStr); err != nil {
		return nil, fmt.Errorf("invalid laureate id %q: %w", laureateStr, err)
	}
	if loan.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	if loan.EndDate, err = parseDate(end); err != nil {
		return nil, err
	}
	loan.Status = models.LoanStatus(status)
	return &loan, nil
}

// CreateLoan inserts a new loan into the database.
func (r *sqliteRepo) CreateLoan(ctx context.Context, loan *models.Loan) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO loans (`+sqliteLoanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.LaureateID.String(), loan.Amount, loan.InterestRate,
		formatDate(loan.StartDate), formatDate(loan.EndDate), loan.MonthlyPayment,
		string(loan.Status), loan.Notes, loan.CreatedBy, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (r *sqliteRepo) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sqliteLoanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanSQLiteLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// LockLoan reads the loan; the immediate transaction already holds the write lock.
func (r *sqliteRepo) LockLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	return r.GetLoan(ctx, id)
}

// UpdateLoan persists the mutable loan fields.
func (r *sqliteRepo) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE loans SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		string(loan.Status), loan.Notes, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan %s: %w", loan.ID, ErrNotFound)
	}
	return nil
}

// ListLoans retrieves loans, newest first.
func (r *sqliteRepo) ListLoans(ctx context.Context, filter LoanFilter) ([]*models.Loan, error) {
	query := `SELECT ` + sqliteLoanColumns + ` FROM loans WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.LaureateID != uuid.Nil {
		query += ` AND laureate_id = ?`
		args = append(args, filter.LaureateID.String())
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanSQLiteLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

const sqlitePaymentColumns = `p.id, p.loan_id, p.amount, p.due_date, p.paid_date, p.status, p.payment_method, p.transaction_ref, p.notes, p.created_at, p.updated_at`

func scanSQLitePayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var idStr, loanStr, due, status string
	var paid sql.NullString
	if err := row.Scan(&idStr, &loanStr, &p.Amount, &due, &paid, &status,
		&p.Method, &p.TransactionRef, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid payment id %q: %w", idStr, err)
	}
	if p.LoanID, err = uuid.Parse(loanStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanStr, err)
	}
	if p.DueDate, err = parseDate(due); err != nil {
		return nil, err
	}
	if paid.Valid {
		paidDate, err := parseDate(paid.String)
		if err != nil {
			return nil, err
		}
		p.PaidDate = &paidDate
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

func nullableDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func (r *sqliteRepo) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanSQLitePayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// CreatePayments inserts a batch of payments.
func (r *sqliteRepo) CreatePayments(ctx context.Context, payments []*models.Payment) error {
	for _, p := range payments {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO payments (id, loan_id, amount, due_date, paid_date, status, payment_method, transaction_ref, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID.String(), p.LoanID.String(), p.Amount, formatDate(p.DueDate), nullableDate(p.PaidDate),
			string(p.Status), p.Method, p.TransactionRef, p.Notes, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment due %s: %w", formatDate(p.DueDate), err)
		}
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (r *sqliteRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+sqlitePaymentColumns+` FROM payments p WHERE p.id = ?`, id.String())
	p, err := scanSQLitePayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// UpdatePayment persists a payment's lifecycle fields.
func (r *sqliteRepo) UpdatePayment(ctx context.Context, p *models.Payment) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE payments SET status = ?, paid_date = ?, payment_method = ?, transaction_ref = ?, notes = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), nullableDate(p.PaidDate), p.Method, p.TransactionRef, p.Notes, p.UpdatedAt, p.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// ListPaymentsForLoan retrieves a loan's payments in due-date order.
func (r *sqliteRepo) ListPaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+sqlitePaymentColumns+` FROM payments p WHERE p.loan_id = ? ORDER BY p.due_date, p.id`, loanID.String())
}

// ListPayments retrieves payments matching filter.
func (r *sqliteRepo) ListPayments(ctx context.Context, filter PaymentFilter) ([]*models.Payment, error) {
	query := `SELECT ` + sqlitePaymentColumns + ` FROM payments p JOIN loans l ON l.id = p.loan_id WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND p.status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.LoanID != uuid.Nil {
		query += ` AND p.loan_id = ?`
		args = append(args, filter.LoanID.String())
	}
	if filter.LaureateID != uuid.Nil {
		query += ` AND l.laureate_id = ?`
		args = append(args, filter.LaureateID.String())
	}
	if filter.PastDueBefore != nil {
		query += ` AND p.status = 'pending' AND p.due_date < ?`
		args = append(args, formatDate(*filter.PastDueBefore))
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

// DeletePaymentsForLoan removes a loan's whole schedule.
func (r *sqliteRepo) DeletePaymentsForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM payments WHERE loan_id = ?`, loanID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments for loan %s: %w", loanID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}

// ListOverdueCandidates retrieves pending payments past due and payments flagged overdue.
func (r *sqliteRepo) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]*models.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+sqlitePaymentColumns+` FROM payments p
		WHERE (p.status = 'pending' AND p.due_date < ?) OR p.status = 'overdue'
		ORDER BY p.due_date, p.id`, formatDate(asOf))
}
