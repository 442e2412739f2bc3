// Package summary consolidates every loan of one laureate into a dashboard view.
package summary

import (
	"time"

	"github.com/mcclellann/laureateLoan/pkg/balance"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// StatusNoLoan is reported for a laureate without any loan.
const StatusNoLoan = "no_loan"

// LoanPayments pairs a loan with its full payment set.
type LoanPayments struct {
	Loan     *models.Loan
	Payments []*models.Payment
}

type Summary struct {
	TotalAmount       decimal.Decimal           `json:"totalAmount"`
	RemainingBalance  decimal.Decimal           `json:"remainingBalance"`
	TotalPaid         decimal.Decimal           `json:"totalPaid"`
	NextPaymentDate   *time.Time                `json:"nextPaymentDate"`
	NextPaymentAmount decimal.Decimal           `json:"nextPaymentAmount"`
	Status            string                    `json:"status"`
	LoanCount         int                       `json:"loanCount"`
	ActiveLoanCount   int                       `json:"activeLoanCount"`
	LoanBreakdown     map[models.LoanStatus]int `json:"loanBreakdown"`
}

func empty() Summary {
	s := Summary{
		TotalAmount:       decimal.Zero,
		RemainingBalance:  decimal.Zero,
		TotalPaid:         decimal.Zero,
		NextPaymentAmount: decimal.Zero,
		Status:            StatusNoLoan,
		LoanBreakdown:     make(map[models.LoanStatus]int, len(models.LoanStatuses)),
	}
	for _, status := range models.LoanStatuses {
		s.LoanBreakdown[status] = 0
	}
	return s
}

// Build aggregates across all loans regardless of status. Only active loans
// contribute the next payment.
func Build(loans []LoanPayments) Summary {
	s := empty()
	if len(loans) == 0 {
		return s
	}

	var next *models.Payment
	anyOverdue := false
	for _, lp := range loans {
		s.LoanCount++
		s.LoanBreakdown[lp.Loan.Status]++
		s.TotalAmount = s.TotalAmount.Add(lp.Loan.Amount)
		s.RemainingBalance = s.RemainingBalance.Add(balance.RemainingBalance(lp.Loan, lp.Payments))

		switch lp.Loan.Status {
		case models.LoanStatusOverdue:
			anyOverdue = true
		case models.LoanStatusActive:
			s.ActiveLoanCount++
			if candidate := balance.NextPayment(lp.Payments); candidate != nil {
				if next == nil || candidate.DueDate.Before(next.DueDate) {
					next = candidate
				}
			}
		}
	}
	s.TotalPaid = s.TotalAmount.Sub(s.RemainingBalance)

	if next != nil {
		due := next.DueDate
		s.NextPaymentDate = &due
		s.NextPaymentAmount = next.Amount
	}

	switch {
	case s.ActiveLoanCount == 0:
		s.Status = string(models.LoanStatusCompleted)
	case anyOverdue:
		s.Status = string(models.LoanStatusOverdue)
	default:
		s.Status = string(models.LoanStatusActive)
	}
	return s
}
