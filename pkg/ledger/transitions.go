package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/balance"
	"github.com/mcclellann/laureateLoan/pkg/metrics"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/mcclellann/laureateLoan/pkg/payments"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// PaymentResult is the outcome of a payment status change.
type PaymentResult struct {
	Payment    payments.View     `json:"payment"`
	LoanStatus models.LoanStatus `json:"loan_status"`
	// LoanCompleted is set when this change closed the loan.
	LoanCompleted bool `json:"loan_completed"`
}

// paymentChange mutates a locked payment. loanPayments holds every payment of
// the loan as read inside the transaction, including p.
type paymentChange func(p *models.Payment, loan *models.Loan, loanPayments []*models.Payment) error

// changePayment runs change against a fresh copy of the payment while the
// owning loan is locked, then persists the payment and, when the loan has
// nothing left to collect, the loan's completion.
func (l *Ledger) changePayment(ctx context.Context, op string, id uuid.UUID, change paymentChange) (result *PaymentResult, err error) {
	ctx, span := startSpan(ctx, op, attribute.String("payment_id", id.String()))
	defer func() { endSpan(span, err) }()

	var from models.PaymentStatus
	err = l.storage.WithTx(ctx, func(tx store.Repository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		loan, err := tx.LockLoan(ctx, p.LoanID)
		if err != nil {
			return err
		}
		loanPayments, err := tx.ListPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		// Re-read under the lock; a concurrent writer may have moved it.
		p = nil
		for _, candidate := range loanPayments {
			if candidate.ID == id {
				p = candidate
				break
			}
		}
		if p == nil {
			return fmt.Errorf("payment %s: %w", id, store.ErrNotFound)
		}

		from = p.Status
		if err := change(p, loan, loanPayments); err != nil {
			return err
		}
		p.UpdatedAt = l.now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}

		result = &PaymentResult{Payment: payments.NewView(p, l.today()), LoanStatus: loan.Status}
		if p.Status != models.PaymentStatusCompleted || loan.Status == models.LoanStatusCompleted {
			return nil
		}
		if !balance.Compute(loan, loanPayments).Settled() {
			return nil
		}
		loan.Status = models.LoanStatusCompleted
		loan.UpdatedAt = p.UpdatedAt
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		result.LoanStatus = loan.Status
		result.LoanCompleted = true
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithField("payment_id", id).Warnf("%s rejected", op)
		return nil, err
	}

	metrics.PaymentTransitions.WithLabelValues(string(from), string(result.Payment.Status)).Inc()
	fields := logrus.Fields{
		"payment_id": id,
		"loan_id":    result.Payment.LoanID,
		"amount":     result.Payment.Amount.StringFixed(2),
		"from":       from,
		"to":         result.Payment.Status,
	}
	l.logger.WithFields(fields).Info("Payment status changed")
	if result.LoanCompleted {
		metrics.LoansCompleted.Inc()
		l.logger.WithField("loan_id", result.Payment.LoanID).Info("Loan fully repaid and completed")
	}
	return result, nil
}

// MarkPaid records the collection of a pending or overdue payment. When the
// loan then has nothing left to collect it is completed in the same
// transaction.
func (l *Ledger) MarkPaid(ctx context.Context, id uuid.UUID, details payments.PaidDetails) (*PaymentResult, error) {
	return l.changePayment(ctx, "MarkPaid", id, func(p *models.Payment, loan *models.Loan, loanPayments []*models.Payment) error {
		if !l.opts.AllowOverpayment && p.Status.CanTransitionTo(models.PaymentStatusCompleted) {
			remaining := balance.RemainingBalance(loan, loanPayments)
			if p.Amount.GreaterThan(remaining) {
				return models.NewValidationError("amount", "payment of "+p.Amount.StringFixed(2)+
					" exceeds the remaining balance of "+remaining.StringFixed(2))
			}
		}
		return payments.MarkPaid(p, details, l.today())
	})
}

// MarkMissed closes a pending or overdue payment as never collected.
func (l *Ledger) MarkMissed(ctx context.Context, id uuid.UUID, notes *string) (*PaymentResult, error) {
	return l.changePayment(ctx, "MarkMissed", id, func(p *models.Payment, _ *models.Loan, _ []*models.Payment) error {
		return payments.MarkMissed(p, notes)
	})
}

// MarkOverdue flags a pending payment as overdue.
func (l *Ledger) MarkOverdue(ctx context.Context, id uuid.UUID, notes *string) (*PaymentResult, error) {
	return l.changePayment(ctx, "MarkOverdue", id, func(p *models.Payment, _ *models.Loan, _ []*models.Payment) error {
		return payments.MarkOverdue(p, notes)
	})
}
