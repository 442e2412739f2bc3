package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/amortization"
	"github.com/mcclellann/laureateLoan/pkg/models"
)

// AddMonths moves t forward by n calendar months, keeping its day of month
// and clamping to the last day when the target month is shorter.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, time.UTC)
}

// DueDates lists one due date per month from start through end, both inclusive.
// Each date is computed from start, so a clamped month does not shift later ones.
func DueDates(start, end time.Time) []time.Time {
	start, end = models.DateOf(start), models.DateOf(end)
	var dates []time.Time
	for i := 0; ; i++ {
		due := AddMonths(start, i)
		if due.After(end) {
			return dates
		}
		dates = append(dates, due)
	}
}

// Generate builds the pending payments for a loan. The amount is the loan's
// flat monthly payment; it is not recomputed here.
func Generate(loan *models.Loan, now time.Time) []*models.Payment {
	dates := DueDates(loan.StartDate, loan.EndDate)
	payments := make([]*models.Payment, 0, len(dates))
	for _, due := range dates {
		payments = append(payments, &models.Payment{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			Amount:    loan.MonthlyPayment,
			DueDate:   due,
			Status:    models.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return payments
}

// Plan validates that a loan's schedule may be replaced and returns the
// replacement. It does not touch storage; the caller swaps the schedules
// inside the same transaction that loaded existing.
func Plan(loan *models.Loan, existing []*models.Payment, now time.Time) ([]*models.Payment, error) {
	for _, p := range existing {
		if p.Status == models.PaymentStatusCompleted {
			return nil, models.ErrHistoryLocked
		}
	}
	if _, err := amortization.TermMonths(loan.StartDate, loan.EndDate); err != nil {
		return nil, err
	}
	return Generate(loan, now), nil
}
