package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/mcclellann/laureateLoan/pkg/payments"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/mcclellann/laureateLoan/pkg/summary"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// LaureateSummary consolidates every loan of a laureate.
func (l *Ledger) LaureateSummary(ctx context.Context, laureateID uuid.UUID) (s *summary.Summary, err error) {
	ctx, span := startSpan(ctx, "LaureateSummary", attribute.String("laureate_id", laureateID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := l.storage.GetLaureate(ctx, laureateID); err != nil {
		return nil, err
	}
	loans, err := l.storage.ListLoans(ctx, store.LoanFilter{LaureateID: laureateID})
	if err != nil {
		return nil, err
	}
	withPayments := make([]summary.LoanPayments, 0, len(loans))
	for _, loan := range loans {
		ps, err := l.storage.ListPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return nil, err
		}
		withPayments = append(withPayments, summary.LoanPayments{Loan: loan, Payments: ps})
	}
	built := summary.Build(withPayments)
	return &built, nil
}

// LaureateSchedule lists the payments of a laureate's active loans by due date.
func (l *Ledger) LaureateSchedule(ctx context.Context, laureateID uuid.UUID) ([]payments.View, error) {
	if _, err := l.storage.GetLaureate(ctx, laureateID); err != nil {
		return nil, err
	}
	ps, err := l.storage.ListPayments(ctx, store.PaymentFilter{LaureateID: laureateID, ActiveLoansOnly: true})
	if err != nil {
		return nil, err
	}
	return payments.Views(ps, l.today()), nil
}

// LaureatePayments lists a laureate's full payment history, latest due first.
func (l *Ledger) LaureatePayments(ctx context.Context, laureateID uuid.UUID) ([]payments.View, error) {
	if _, err := l.storage.GetLaureate(ctx, laureateID); err != nil {
		return nil, err
	}
	ps, err := l.storage.ListPayments(ctx, store.PaymentFilter{LaureateID: laureateID, NewestFirst: true})
	if err != nil {
		return nil, err
	}
	return payments.Views(ps, l.today()), nil
}

// PaymentQuery narrows ListPayments. OverdueAsOf keeps only pending payments
// due before that date.
type PaymentQuery struct {
	Status      models.PaymentStatus
	LoanID      uuid.UUID
	LaureateID  uuid.UUID
	OverdueAsOf *time.Time
}

// ListPayments returns payments matching q with their derived overdue fields.
func (l *Ledger) ListPayments(ctx context.Context, q PaymentQuery) ([]payments.View, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("invalid payment status %q", q.Status))
	}
	asOf := l.today()
	filter := store.PaymentFilter{Status: q.Status, LoanID: q.LoanID, LaureateID: q.LaureateID}
	if q.OverdueAsOf != nil {
		asOf = models.DateOf(*q.OverdueAsOf)
		filter.PastDueBefore = &asOf
	}
	ps, err := l.storage.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return payments.Views(ps, asOf), nil
}

// OverduePayments reports every pending payment past due on asOf together
// with payments explicitly flagged overdue.
func (l *Ledger) OverduePayments(ctx context.Context, asOf time.Time) (items []payments.OverdueItem, err error) {
	ctx, span := startSpan(ctx, "OverduePayments", attribute.String("as_of", asOf.Format(models.DateLayout)))
	defer func() { endSpan(span, err) }()

	asOf = models.DateOf(asOf)
	candidates, err := l.storage.ListOverdueCandidates(ctx, asOf)
	if err != nil {
		return nil, err
	}
	items = payments.CollectOverdue(candidates, asOf)
	l.logger.WithField("as_of", asOf.Format(models.DateLayout)).Debugf("%d overdue payments", len(items))
	return items, nil
}

// LoanStatistics is the portfolio-wide view of loans. TotalLaureates counts
// active laureates only.
type LoanStatistics struct {
	TotalLaureates int             `json:"total_laureates"`
	TotalLoans     int             `json:"total_loans"`
	ActiveLoans    int             `json:"active_loans"`
	CompletedLoans int             `json:"completed_loans"`
	OverdueLoans   int             `json:"overdue_loans"`
	SuspendedLoans int             `json:"suspended_loans"`
	TotalDisbursed decimal.Decimal `json:"total_disbursed"`
	ActiveAmount   decimal.Decimal `json:"active_amount"`
}

func (l *Ledger) LoanStatistics(ctx context.Context) (*LoanStatistics, error) {
	laureates, err := l.storage.CountActiveLaureates(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := l.storage.ListLoans(ctx, store.LoanFilter{})
	if err != nil {
		return nil, err
	}
	stats := &LoanStatistics{TotalLaureates: laureates, TotalDisbursed: decimal.Zero, ActiveAmount: decimal.Zero}
	for _, loan := range loans {
		stats.TotalLoans++
		stats.TotalDisbursed = stats.TotalDisbursed.Add(loan.Amount)
		switch loan.Status {
		case models.LoanStatusActive:
			stats.ActiveLoans++
			stats.ActiveAmount = stats.ActiveAmount.Add(loan.Amount)
		case models.LoanStatusCompleted:
			stats.CompletedLoans++
		case models.LoanStatusOverdue:
			stats.OverdueLoans++
		case models.LoanStatusSuspended:
			stats.SuspendedLoans++
		}
	}
	return stats, nil
}

// PaymentStatistics is the portfolio-wide view of payments on one date.
// PastDuePayments counts pending or overdue payments due before AsOf.
type PaymentStatistics struct {
	AsOf              string          `json:"as_of"`
	TotalPayments     int             `json:"total_payments"`
	PendingPayments   int             `json:"pending_payments"`
	CompletedPayments int             `json:"completed_payments"`
	MissedPayments    int             `json:"missed_payments"`
	PastDuePayments   int             `json:"past_due_payments"`
	TotalCollected    decimal.Decimal `json:"total_collected"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	TotalPastDue      decimal.Decimal `json:"total_past_due"`
}

func (l *Ledger) PaymentStatistics(ctx context.Context, asOf time.Time) (*PaymentStatistics, error) {
	asOf = models.DateOf(asOf)
	ps, err := l.storage.ListPayments(ctx, store.PaymentFilter{})
	if err != nil {
		return nil, err
	}
	stats := &PaymentStatistics{
		AsOf:           asOf.Format(models.DateLayout),
		TotalCollected: decimal.Zero,
		PendingAmount:  decimal.Zero,
		TotalPastDue:   decimal.Zero,
	}
	for _, p := range ps {
		stats.TotalPayments++
		switch p.Status {
		case models.PaymentStatusPending:
			stats.PendingPayments++
			stats.PendingAmount = stats.PendingAmount.Add(p.Amount)
		case models.PaymentStatusCompleted:
			stats.CompletedPayments++
			stats.TotalCollected = stats.TotalCollected.Add(p.Amount)
		case models.PaymentStatusMissed:
			stats.MissedPayments++
		}
		open := p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusOverdue
		if open && p.DueDate.Before(asOf) {
			stats.PastDuePayments++
			stats.TotalPastDue = stats.TotalPastDue.Add(p.Amount)
		}
	}
	return stats, nil
}
