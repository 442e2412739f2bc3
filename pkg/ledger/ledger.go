package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/amortization"
	"github.com/mcclellann/laureateLoan/pkg/balance"
	"github.com/mcclellann/laureateLoan/pkg/metrics"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/mcclellann/laureateLoan/pkg/payments"
	"github.com/mcclellann/laureateLoan/pkg/schedule"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/mcclellann/laureateLoan/pkg/tracing"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes the ledger's business rules.
type Options struct {
	// AllowOverpayment lets a payment be collected even when it exceeds the
	// loan's remaining balance.
	AllowOverpayment bool
	MaxPrincipal     decimal.Decimal
	MaxRate          decimal.Decimal
	MaxTermMonths    int
	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		AllowOverpayment: true,
		MaxPrincipal:     decimal.New(1, 9),
		MaxRate:          decimal.NewFromInt(100),
		MaxTermMonths:    600,
	}
}

// Ledger handles the business logic for laureates, loans and payments.
type Ledger struct {
	storage store.Storage
	logger  *logrus.Logger
	opts    Options
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, logger *logrus.Logger, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{storage: s, logger: logger, opts: opts}
}

func (l *Ledger) now() time.Time {
	return l.opts.Now().UTC()
}

func (l *Ledger) today() time.Time {
	return models.DateOf(l.now())
}

// Today is the current UTC calendar date on the ledger's clock.
func (l *Ledger) Today() time.Time {
	return l.today()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracing.Tracer.Start(ctx, "ledger."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// LoanDetail is a loan with its derived balance and its schedule.
type LoanDetail struct {
	Loan     *models.Loan     `json:"loan"`
	Balance  balance.Snapshot `json:"balance"`
	Payments []payments.View  `json:"payments"`
}

func (l *Ledger) detail(loan *models.Loan, ps []*models.Payment) *LoanDetail {
	return &LoanDetail{
		Loan:     loan,
		Balance:  balance.Compute(loan, ps),
		Payments: payments.Views(ps, l.today()),
	}
}

// CreateLaureateInput holds the profile fields of a new laureate.
type CreateLaureateInput struct {
	FullName    string `json:"full_name"`
	StudentID   string `json:"student_id"`
	Institution string `json:"institution"`
	IsActive    *bool  `json:"is_active,omitempty"` // Defaults to true
}

// CreateLaureate registers a laureate profile.
func (l *Ledger) CreateLaureate(ctx context.Context, in CreateLaureateInput) (laureate *models.Laureate, err error) {
	ctx, span := startSpan(ctx, "CreateLaureate")
	defer func() { endSpan(span, err) }()

	in.FullName = strings.TrimSpace(in.FullName)
	in.StudentID = strings.TrimSpace(in.StudentID)
	if in.FullName == "" {
		return nil, models.NewValidationError("full_name", "is required")
	}
	if in.StudentID == "" {
		return nil, models.NewValidationError("student_id", "is required")
	}

	laureate = &models.Laureate{
		ID:          uuid.New(),
		FullName:    in.FullName,
		StudentID:   in.StudentID,
		Institution: strings.TrimSpace(in.Institution),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   l.now(),
	}
	if err := l.storage.CreateLaureate(ctx, laureate); err != nil {
		return nil, fmt.Errorf("failed to store laureate: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"laureate_id": laureate.ID,
		"student_id":  laureate.StudentID,
	}).Info("Laureate created")
	return laureate, nil
}

// GetLaureate returns a laureate profile.
func (l *Ledger) GetLaureate(ctx context.Context, id uuid.UUID) (*models.Laureate, error) {
	return l.storage.GetLaureate(ctx, id)
}

// CreateLoanInput holds the terms of a new loan. MonthlyPayment is computed
// when nil and checked against the calculator otherwise.
type CreateLoanInput struct {
	LaureateID     uuid.UUID
	Amount         decimal.Decimal
	InterestRate   decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	MonthlyPayment *decimal.Decimal
	Notes          string
	CreatedBy      string
}

func (l *Ledger) checkLimits(in CreateLoanInput, term int) error {
	if l.opts.MaxPrincipal.IsPositive() && in.Amount.GreaterThan(l.opts.MaxPrincipal) {
		return models.NewValidationError("amount", "must not exceed "+l.opts.MaxPrincipal.String())
	}
	if l.opts.MaxRate.IsPositive() && in.InterestRate.GreaterThan(l.opts.MaxRate) {
		return models.NewValidationError("interest_rate", "must not exceed "+l.opts.MaxRate.String())
	}
	if l.opts.MaxTermMonths > 0 && term > l.opts.MaxTermMonths {
		return models.NewValidationError("end_date", fmt.Sprintf("term of %d months exceeds %d", term, l.opts.MaxTermMonths))
	}
	return nil
}

// CreateLoan validates the loan terms and stores the loan together with its
// full payment schedule.
func (l *Ledger) CreateLoan(ctx context.Context, in CreateLoanInput) (detail *LoanDetail, err error) {
	ctx, span := startSpan(ctx, "CreateLoan", attribute.String("laureate_id", in.LaureateID.String()))
	defer func() {
		endSpan(span, err)
		if err != nil {
			metrics.LoansCreated.WithLabelValues("rejected").Inc()
		} else {
			metrics.LoansCreated.WithLabelValues("created").Inc()
		}
	}()

	start, end := models.DateOf(in.StartDate), models.DateOf(in.EndDate)
	monthly, term, err := amortization.Validate(in.Amount, in.InterestRate, start, end, in.MonthlyPayment)
	if err != nil {
		return nil, err
	}
	if err := l.checkLimits(in, term); err != nil {
		return nil, err
	}

	now := l.now()
	loan := &models.Loan{
		ID:             uuid.New(),
		LaureateID:     in.LaureateID,
		Amount:         in.Amount,
		InterestRate:   in.InterestRate,
		StartDate:      start,
		EndDate:        end,
		MonthlyPayment: monthly,
		Status:         models.LoanStatusActive,
		Notes:          in.Notes,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	planned := schedule.Generate(loan, now)

	err = l.storage.WithTx(ctx, func(tx store.Repository) error {
		laureate, err := tx.GetLaureate(ctx, in.LaureateID)
		if err != nil {
			return err
		}
		if !laureate.IsActive {
			return models.NewValidationError("laureate_id", "laureate is not active")
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return err
		}
		return tx.CreatePayments(ctx, planned)
	})
	if err != nil {
		l.logger.WithError(err).WithField("laureate_id", in.LaureateID).Warn("Loan creation failed")
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id":         loan.ID,
		"laureate_id":     loan.LaureateID,
		"amount":          loan.Amount.StringFixed(2),
		"monthly_payment": loan.MonthlyPayment.StringFixed(2),
		"term_months":     term,
		"payments":        len(planned),
	}).Info("Loan created")
	return l.detail(loan, planned), nil
}

// GetLoan returns a loan with its derived balance and schedule.
func (l *Ledger) GetLoan(ctx context.Context, id uuid.UUID) (*LoanDetail, error) {
	loan, err := l.storage.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	ps, err := l.storage.ListPaymentsForLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.detail(loan, ps), nil
}

// ListLoans returns loans matching filter, newest first.
func (l *Ledger) ListLoans(ctx context.Context, filter store.LoanFilter) ([]*models.Loan, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("invalid loan status %q", filter.Status))
	}
	return l.storage.ListLoans(ctx, filter)
}

// LoanUpdate lists the loan fields an administrator may change after
// creation. Nil fields are left alone.
type LoanUpdate struct {
	Status *models.LoanStatus `json:"status,omitempty"`
	Notes  *string            `json:"notes,omitempty"`
}

// UpdateLoan applies an administrative status change or note.
func (l *Ledger) UpdateLoan(ctx context.Context, id uuid.UUID, upd LoanUpdate) (loan *models.Loan, err error) {
	ctx, span := startSpan(ctx, "UpdateLoan", attribute.String("loan_id", id.String()))
	defer func() { endSpan(span, err) }()

	if upd.Status != nil && !upd.Status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("invalid loan status %q", *upd.Status))
	}

	var from models.LoanStatus
	err = l.storage.WithTx(ctx, func(tx store.Repository) error {
		current, err := tx.LockLoan(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if upd.Status != nil && *upd.Status != current.Status {
			if !current.Status.CanTransitionTo(*upd.Status) {
				return fmt.Errorf("loan %s %s -> %s: %w", id, current.Status, *upd.Status, models.ErrInvalidTransition)
			}
			current.Status = *upd.Status
		}
		if upd.Notes != nil {
			current.Notes = *upd.Notes
		}
		current.UpdatedAt = l.now()
		loan = current
		return tx.UpdateLoan(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id": id,
		"from":    from,
		"to":      loan.Status,
	}).Info("Loan updated")
	return loan, nil
}

// RegenerateResult reports a completed schedule regeneration.
type RegenerateResult struct {
	LoanID   uuid.UUID         `json:"loan_id"`
	Deleted  int64             `json:"deleted"`
	Count    int               `json:"count"`
	Payments []*models.Payment `json:"payments"`
}

// RegenerateSchedule replaces a loan's schedule with a freshly generated one.
// It fails with ErrHistoryLocked once any payment has been collected, and the
// existing schedule is then left untouched.
func (l *Ledger) RegenerateSchedule(ctx context.Context, loanID uuid.UUID) (result *RegenerateResult, err error) {
	ctx, span := startSpan(ctx, "RegenerateSchedule", attribute.String("loan_id", loanID.String()))
	defer func() {
		endSpan(span, err)
		switch {
		case err == nil:
			metrics.ScheduleRegenerations.WithLabelValues("regenerated").Inc()
		case errors.Is(err, models.ErrHistoryLocked):
			metrics.ScheduleRegenerations.WithLabelValues("locked").Inc()
		default:
			metrics.ScheduleRegenerations.WithLabelValues("failed").Inc()
		}
	}()

	err = l.storage.WithTx(ctx, func(tx store.Repository) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		existing, err := tx.ListPaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		replacement, err := schedule.Plan(loan, existing, l.now())
		if err != nil {
			return err
		}
		deleted, err := tx.DeletePaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := tx.CreatePayments(ctx, replacement); err != nil {
			return err
		}
		result = &RegenerateResult{LoanID: loanID, Deleted: deleted, Count: len(replacement), Payments: replacement}
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithField("loan_id", loanID).Warn("Schedule regeneration refused")
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id":  loanID,
		"deleted":  result.Deleted,
		"payments": result.Count,
	}).Info("Payment schedule regenerated")
	return result, nil
}

// LoanBalance returns the derived financial position of one loan.
func (l *Ledger) LoanBalance(ctx context.Context, loanID uuid.UUID) (*balance.Snapshot, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	ps, err := l.storage.ListPaymentsForLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	snap := balance.Compute(loan, ps)
	return &snap, nil
}
