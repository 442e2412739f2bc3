package balance

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// TotalCompleted sums the amounts of completed payments.
func TotalCompleted(payments []*models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == models.PaymentStatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// RemainingBalance is the loan amount less completed payments. It goes
// negative when more than the amount has been collected.
func RemainingBalance(loan *models.Loan, payments []*models.Payment) decimal.Decimal {
	return loan.Amount.Sub(TotalCompleted(payments))
}

// TotalPaid is defined through RemainingBalance so the two always sum to the amount.
func TotalPaid(loan *models.Loan, payments []*models.Payment) decimal.Decimal {
	return loan.Amount.Sub(RemainingBalance(loan, payments))
}

// NextPayment returns the earliest-due pending payment, or nil.
func NextPayment(payments []*models.Payment) *models.Payment {
	var next *models.Payment
	for _, p := range payments {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		if next == nil || p.DueDate.Before(next.DueDate) {
			next = p
		}
	}
	return next
}

// Snapshot is the derived financial position of one loan.
type Snapshot struct {
	LoanID            uuid.UUID                    `json:"loan_id"`
	Status            models.LoanStatus            `json:"status"`
	Amount            decimal.Decimal              `json:"amount"`
	TotalPaid         decimal.Decimal              `json:"total_paid"`
	RemainingBalance  decimal.Decimal              `json:"remaining_balance"`
	NextPaymentDate   *time.Time                   `json:"next_payment_date"`
	NextPaymentAmount decimal.Decimal              `json:"next_payment_amount"`
	PaymentCounts     map[models.PaymentStatus]int `json:"payment_counts"`
}

// Settled reports whether nothing remains to be collected.
func (s Snapshot) Settled() bool {
	return !s.RemainingBalance.IsPositive()
}

func Compute(loan *models.Loan, payments []*models.Payment) Snapshot {
	s := Snapshot{
		LoanID:            loan.ID,
		Status:            loan.Status,
		Amount:            loan.Amount,
		RemainingBalance:  RemainingBalance(loan, payments),
		NextPaymentAmount: decimal.Zero,
		PaymentCounts:     make(map[models.PaymentStatus]int, len(models.PaymentStatuses)),
	}
	s.TotalPaid = loan.Amount.Sub(s.RemainingBalance)
	for _, status := range models.PaymentStatuses {
		s.PaymentCounts[status] = 0
	}
	for _, p := range payments {
		s.PaymentCounts[p.Status]++
	}
	if next := NextPayment(payments); next != nil {
		due := next.DueDate
		s.NextPaymentDate = &due
		s.NextPaymentAmount = next.Amount
	}
	return s
}
