package ledger

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/mcclellann/laureateLoan/pkg/payments"
	"github.com/mcclellann/laureateLoan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var testNow = time.Date(2024, 3, 20, 10, 30, 0, 0, time.UTC)

func newTestLedger(t *testing.T, mutate ...func(*Options)) (*Ledger, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := DefaultOptions()
	opts.Now = func() time.Time { return testNow }
	for _, m := range mutate {
		m(&opts)
	}
	return NewLedger(s, logger, opts), s
}

func createLaureate(t *testing.T, l *Ledger) *models.Laureate {
	t.Helper()
	laureate, err := l.CreateLaureate(context.Background(), CreateLaureateInput{
		FullName:    "Grace Laureate",
		StudentID:   "STU-" + uuid.NewString()[:8],
		Institution: "State University",
	})
	require.NoError(t, err)
	return laureate
}

func createLoan(t *testing.T, l *Ledger, laureateID uuid.UUID, amount string, start, end time.Time) *LoanDetail {
	t.Helper()
	detail, err := l.CreateLoan(context.Background(), CreateLoanInput{
		LaureateID: laureateID,
		Amount:     dec(amount),
		StartDate:  start,
		EndDate:    end,
		CreatedBy:  "admin",
	})
	require.NoError(t, err)
	return detail
}

func TestCreateLaureate_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateLaureate(ctx, CreateLaureateInput{StudentID: "S1"})
	assert.True(t, models.IsValidation(err))

	_, err = l.CreateLaureate(ctx, CreateLaureateInput{FullName: "No Id", StudentID: "  "})
	assert.True(t, models.IsValidation(err))

	created := createLaureate(t, l)
	fetched, err := l.GetLaureate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.StudentID, fetched.StudentID)
	assert.True(t, fetched.IsActive)
}

func TestCreateLoan_ZeroRateInclusiveSchedule(t *testing.T) {
	l, _ := newTestLedger(t)
	laureate := createLaureate(t, l)

	detail := createLoan(t, l, laureate.ID, "12000", date(2024, 1, 15), date(2024, 4, 15))

	assert.Equal(t, "4000.00", detail.Loan.MonthlyPayment.StringFixed(2))
	assert.Equal(t, models.LoanStatusActive, detail.Loan.Status)
	require.Len(t, detail.Payments, 4)
	wantDue := []time.Time{date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15), date(2024, 4, 15)}
	for i, p := range detail.Payments {
		assert.Equal(t, wantDue[i], p.DueDate)
		assert.Equal(t, models.PaymentStatusPending, p.Status)
		assert.True(t, dec("4000").Equal(p.Amount))
	}
	// testNow is 2024-03-20, so the first three are already derived overdue.
	assert.True(t, detail.Payments[0].IsOverdue)
	assert.Equal(t, 65, detail.Payments[0].DaysOverdue)
	assert.False(t, detail.Payments[3].IsOverdue)

	assert.True(t, dec("12000").Equal(detail.Balance.RemainingBalance))
	assert.True(t, detail.Balance.TotalPaid.IsZero())

	stored, err := l.GetLoan(context.Background(), detail.Loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Payments, 4)
	assert.Equal(t, detail.Loan.MonthlyPayment.String(), stored.Loan.MonthlyPayment.String())
}

func TestCreateLoan_SuppliedMonthlyPayment(t *testing.T) {
	l, _ := newTestLedger(t)
	laureate := createLaureate(t, l)
	ctx := context.Background()

	in := CreateLoanInput{
		LaureateID:     laureate.ID,
		Amount:         dec("10000"),
		InterestRate:   dec("12"),
		StartDate:      date(2024, 1, 1),
		EndDate:        date(2025, 1, 1),
		MonthlyPayment: decPtr("888.50"),
	}
	detail, err := l.CreateLoan(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "888.50", detail.Loan.MonthlyPayment.StringFixed(2), "a supplied payment within tolerance is kept")

	in.MonthlyPayment = decPtr("900.00")
	_, err = l.CreateLoan(ctx, in)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "monthly_payment", ve.Field)
}

func TestCreateLoan_Rejections(t *testing.T) {
	l, _ := newTestLedger(t, func(o *Options) {
		o.MaxPrincipal = dec("50000")
		o.MaxTermMonths = 24
	})
	ctx := context.Background()
	laureate := createLaureate(t, l)
	inactive := false
	dormant, err := l.CreateLaureate(ctx, CreateLaureateInput{FullName: "Dormant", StudentID: "DORM-1", IsActive: &inactive})
	require.NoError(t, err)

	base := CreateLoanInput{
		LaureateID: laureate.ID,
		Amount:     dec("1000"),
		StartDate:  date(2024, 1, 15),
		EndDate:    date(2024, 4, 15),
	}

	tests := []struct {
		name   string
		mutate func(*CreateLoanInput)
		field  string
		target error
	}{
		{"non-positive amount", func(in *CreateLoanInput) { in.Amount = decimal.Zero }, "amount", nil},
		{"negative rate", func(in *CreateLoanInput) { in.InterestRate = dec("-1") }, "interest_rate", nil},
		{"end before start", func(in *CreateLoanInput) { in.EndDate = date(2023, 12, 1) }, "end_date", nil},
		{"same month", func(in *CreateLoanInput) { in.EndDate = date(2024, 1, 30) }, "end_date", nil},
		{"amount below cents", func(in *CreateLoanInput) { in.Amount = dec("1000.005") }, "amount", nil},
		{"rate beyond two places", func(in *CreateLoanInput) { in.InterestRate = dec("4.125") }, "interest_rate", nil},
		{"payment below cents", func(in *CreateLoanInput) { in.MonthlyPayment = decPtr("333.3347") }, "monthly_payment", nil},
		{"above max principal", func(in *CreateLoanInput) { in.Amount = dec("50000.01") }, "amount", nil},
		{"above max term", func(in *CreateLoanInput) { in.EndDate = date(2026, 2, 15) }, "end_date", nil},
		{"inactive laureate", func(in *CreateLoanInput) { in.LaureateID = dormant.ID }, "laureate_id", nil},
		{"unknown laureate", func(in *CreateLoanInput) { in.LaureateID = uuid.New() }, "", models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := l.CreateLoan(ctx, in)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
				return
			}
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	loans, err := l.ListLoans(ctx, store.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans, "rejected loans must not be stored")
}

func TestToday_UsesInjectedClock(t *testing.T) {
	l, _ := newTestLedger(t)
	assert.Equal(t, date(2024, 3, 20), l.Today())

	late, _ := newTestLedger(t, func(o *Options) {
		o.Now = func() time.Time { return time.Date(2024, 3, 20, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600)) }
	})
	assert.Equal(t, date(2024, 3, 21), late.Today(), "today is the UTC date")
}

func TestMarkPaid_CompletesLoanWhenSettled(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "1000", date(2024, 1, 15), date(2024, 3, 14))
	require.Len(t, detail.Payments, 2)
	assert.Equal(t, "500.00", detail.Loan.MonthlyPayment.StringFixed(2))

	first, err := l.MarkPaid(ctx, detail.Payments[0].ID, payments.PaidDetails{Method: "bank_transfer", TransactionRef: "TX-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, first.Payment.Status)
	require.NotNil(t, first.Payment.PaidDate)
	assert.Equal(t, date(2024, 3, 20), *first.Payment.PaidDate)
	assert.False(t, first.LoanCompleted)
	assert.Equal(t, models.LoanStatusActive, first.LoanStatus)

	paidOn := date(2024, 2, 9)
	second, err := l.MarkPaid(ctx, detail.Payments[1].ID, payments.PaidDetails{Method: "cash", PaidDate: &paidOn})
	require.NoError(t, err)
	assert.True(t, second.LoanCompleted)
	assert.Equal(t, models.LoanStatusCompleted, second.LoanStatus)
	assert.Equal(t, paidOn, *second.Payment.PaidDate)

	bal, err := l.LoanBalance(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.True(t, bal.RemainingBalance.IsZero())
	assert.True(t, dec("1000").Equal(bal.TotalPaid))
	assert.Equal(t, models.LoanStatusCompleted, bal.Status)
	assert.Nil(t, bal.NextPaymentDate)
	assert.Equal(t, 2, bal.PaymentCounts[models.PaymentStatusCompleted])

	_, err = l.MarkPaid(ctx, detail.Payments[1].ID, payments.PaidDetails{})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMarkPaid_OverpaymentAllowed(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	// Term of two months, three inclusive due dates of 500 each.
	detail := createLoan(t, l, laureate.ID, "1000", date(2024, 1, 10), date(2024, 3, 10))
	require.Len(t, detail.Payments, 3)

	var results []*PaymentResult
	for _, p := range detail.Payments {
		res, err := l.MarkPaid(ctx, p.ID, payments.PaidDetails{})
		require.NoError(t, err)
		results = append(results, res)
	}
	assert.False(t, results[0].LoanCompleted)
	assert.True(t, results[1].LoanCompleted)
	assert.False(t, results[2].LoanCompleted, "an already completed loan is not completed again")
	assert.Equal(t, models.LoanStatusCompleted, results[2].LoanStatus)

	bal, err := l.LoanBalance(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "-500.00", bal.RemainingBalance.StringFixed(2))
	assert.Equal(t, "1500.00", bal.TotalPaid.StringFixed(2))
}

func TestMarkPaid_OverpaymentRejected(t *testing.T) {
	l, s := newTestLedger(t, func(o *Options) { o.AllowOverpayment = false })
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "1000", date(2024, 1, 15), date(2024, 3, 14))
	require.Len(t, detail.Payments, 2)

	extra := &models.Payment{
		ID:        uuid.New(),
		LoanID:    detail.Loan.ID,
		Amount:    dec("600"),
		DueDate:   date(2024, 3, 15),
		Status:    models.PaymentStatusPending,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, s.CreatePayments(ctx, []*models.Payment{extra}))

	_, err := l.MarkPaid(ctx, detail.Payments[0].ID, payments.PaidDetails{})
	require.NoError(t, err)

	_, err = l.MarkPaid(ctx, extra.ID, payments.PaidDetails{})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)

	stored, err := s.GetPayment(ctx, extra.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status, "rejected payment is left untouched")

	res, err := l.MarkPaid(ctx, detail.Payments[1].ID, payments.PaidDetails{})
	require.NoError(t, err, "paying exactly the remaining balance is not an overpayment")
	assert.True(t, res.LoanCompleted)
}

func TestPaymentTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "3000", date(2024, 1, 1), date(2024, 3, 31))
	ps := detail.Payments
	require.Len(t, ps, 3)
	note := "laureate unreachable"

	missed, err := l.MarkMissed(ctx, ps[0].ID, &note)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusMissed, missed.Payment.Status)
	assert.Equal(t, note, missed.Payment.Notes)

	_, err = l.MarkPaid(ctx, ps[0].ID, payments.PaidDetails{})
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "missed payments cannot be collected")

	flagged, err := l.MarkOverdue(ctx, ps[1].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusOverdue, flagged.Payment.Status)
	assert.False(t, flagged.Payment.IsOverdue, "flagged payments are not derived overdue")

	_, err = l.MarkOverdue(ctx, ps[1].ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	paid, err := l.MarkPaid(ctx, ps[1].ID, payments.PaidDetails{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, paid.Payment.Status)

	_, err = l.MarkMissed(ctx, ps[1].ID, nil)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = l.MarkPaid(ctx, uuid.New(), payments.PaidDetails{})
	assert.ErrorIs(t, err, models.ErrNotFound)

	bal, err := l.LoanBalance(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.True(t, dec("1500").Equal(bal.RemainingBalance), "missed amounts stay outstanding")
	assert.True(t, bal.RemainingBalance.Add(bal.TotalPaid).Equal(bal.Amount))
}

func TestMarkPaid_ConcurrentExactlyOneSucceeds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "3000", date(2024, 1, 1), date(2024, 3, 31))
	target := detail.Payments[0].ID

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.MarkPaid(ctx, target, payments.PaidDetails{Method: "card"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	bal, err := l.LoanBalance(ctx, detail.Loan.ID)
	require.NoError(t, err)
	assert.True(t, dec("1500").Equal(bal.RemainingBalance))
}

func TestRegenerateSchedule(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "1200", date(2024, 1, 31), date(2024, 4, 30))

	first, err := l.RegenerateSchedule(ctx, detail.Loan.ID)
	require.NoError(t, err)
	second, err := l.RegenerateSchedule(ctx, detail.Loan.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), first.Deleted)
	assert.Equal(t, 4, first.Count)
	require.Equal(t, first.Count, second.Count)
	for i := range first.Payments {
		assert.Equal(t, first.Payments[i].DueDate, second.Payments[i].DueDate)
		assert.True(t, first.Payments[i].Amount.Equal(second.Payments[i].Amount))
	}
	assert.Equal(t, []time.Time{date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30)},
		[]time.Time{second.Payments[0].DueDate, second.Payments[1].DueDate, second.Payments[2].DueDate, second.Payments[3].DueDate})

	_, err = l.MarkPaid(ctx, second.Payments[0].ID, payments.PaidDetails{})
	require.NoError(t, err)

	before, err := l.GetLoan(ctx, detail.Loan.ID)
	require.NoError(t, err)

	_, err = l.RegenerateSchedule(ctx, detail.Loan.ID)
	assert.ErrorIs(t, err, models.ErrHistoryLocked)

	after, err := l.GetLoan(ctx, detail.Loan.ID)
	require.NoError(t, err)
	require.Len(t, after.Payments, len(before.Payments))
	for i := range before.Payments {
		assert.Equal(t, before.Payments[i].ID, after.Payments[i].ID, "locked schedule is left untouched")
		assert.Equal(t, before.Payments[i].Status, after.Payments[i].Status)
	}

	_, err = l.RegenerateSchedule(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateLoan(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "1000", date(2024, 1, 1), date(2024, 3, 1))

	suspended := models.LoanStatusSuspended
	note := "deferred for a semester"
	loan, err := l.UpdateLoan(ctx, detail.Loan.ID, LoanUpdate{Status: &suspended, Notes: &note})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusSuspended, loan.Status)
	assert.Equal(t, note, loan.Notes)

	same := models.LoanStatusSuspended
	_, err = l.UpdateLoan(ctx, detail.Loan.ID, LoanUpdate{Status: &same})
	assert.NoError(t, err, "setting the current status is a no-op")

	completed := models.LoanStatusCompleted
	_, err = l.UpdateLoan(ctx, detail.Loan.ID, LoanUpdate{Status: &completed})
	require.NoError(t, err)

	active := models.LoanStatusActive
	_, err = l.UpdateLoan(ctx, detail.Loan.ID, LoanUpdate{Status: &active})
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "completed is terminal")

	bogus := models.LoanStatus("closed")
	_, err = l.UpdateLoan(ctx, detail.Loan.ID, LoanUpdate{Status: &bogus})
	assert.True(t, models.IsValidation(err))

	_, err = l.UpdateLoan(ctx, uuid.New(), LoanUpdate{Notes: &note})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = l.ListLoans(ctx, store.LoanFilter{Status: "closed"})
	assert.True(t, models.IsValidation(err))
	done, err := l.ListLoans(ctx, store.LoanFilter{Status: models.LoanStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestLaureateSummary(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.LaureateSummary(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	laureate := createLaureate(t, l)
	empty, err := l.LaureateSummary(ctx, laureate.ID)
	require.NoError(t, err)
	assert.Equal(t, "no_loan", empty.Status)
	assert.Equal(t, 0, empty.LoanCount)
	assert.True(t, empty.TotalAmount.IsZero())
	assert.Nil(t, empty.NextPaymentDate)

	a := createLoan(t, l, laureate.ID, "1000", date(2024, 4, 5), date(2024, 6, 4))
	b := createLoan(t, l, laureate.ID, "600", date(2024, 3, 25), date(2024, 5, 24))
	_, err = l.MarkPaid(ctx, a.Payments[0].ID, payments.PaidDetails{})
	require.NoError(t, err)

	s, err := l.LaureateSummary(ctx, laureate.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", s.Status)
	assert.Equal(t, 2, s.LoanCount)
	assert.Equal(t, 2, s.ActiveLoanCount)
	assert.True(t, dec("1600").Equal(s.TotalAmount))
	assert.True(t, dec("1100").Equal(s.RemainingBalance))
	assert.True(t, dec("500").Equal(s.TotalPaid))
	require.NotNil(t, s.NextPaymentDate)
	assert.Equal(t, date(2024, 3, 25), *s.NextPaymentDate)
	assert.True(t, dec("300").Equal(s.NextPaymentAmount))

	overdue := models.LoanStatusOverdue
	_, err = l.UpdateLoan(ctx, b.Loan.ID, LoanUpdate{Status: &overdue})
	require.NoError(t, err)
	s, err = l.LaureateSummary(ctx, laureate.ID)
	require.NoError(t, err)
	assert.Equal(t, "overdue", s.Status)
	assert.Equal(t, date(2024, 5, 5), *s.NextPaymentDate, "only active loans supply the next payment")

	schedule, err := l.LaureateSchedule(ctx, laureate.ID)
	require.NoError(t, err)
	assert.Len(t, schedule, 2, "only the active loan's payments are scheduled")

	history, err := l.LaureatePayments(ctx, laureate.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, date(2024, 5, 5), history[0].DueDate)
}

func TestOverduePayments(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	detail := createLoan(t, l, laureate.ID, "4000", date(2024, 3, 19), date(2024, 6, 19))
	ps := detail.Payments

	items, err := l.OverduePayments(ctx, date(2024, 3, 20))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ps[0].ID, items[0].ID)
	assert.True(t, items[0].IsOverdue)
	assert.Equal(t, 1, items[0].DaysOverdue)
	assert.False(t, items[0].Flagged)

	_, err = l.MarkOverdue(ctx, ps[2].ID, nil)
	require.NoError(t, err)
	_, err = l.MarkPaid(ctx, ps[0].ID, payments.PaidDetails{})
	require.NoError(t, err)

	items, err = l.OverduePayments(ctx, date(2024, 4, 20))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ps[1].ID, items[0].ID)
	assert.Equal(t, 1, items[0].DaysOverdue)
	assert.Equal(t, ps[2].ID, items[1].ID)
	assert.True(t, items[1].Flagged)
	assert.Equal(t, 0, items[1].DaysOverdue)

	asOf := date(2024, 4, 20)
	pastDue, err := l.ListPayments(ctx, PaymentQuery{OverdueAsOf: &asOf})
	require.NoError(t, err)
	require.Len(t, pastDue, 1)
	assert.Equal(t, ps[1].ID, pastDue[0].ID)

	_, err = l.ListPayments(ctx, PaymentQuery{Status: "late"})
	assert.True(t, models.IsValidation(err))
}

func TestStatistics(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	laureate := createLaureate(t, l)
	a := createLoan(t, l, laureate.ID, "1000", date(2024, 1, 15), date(2024, 3, 14))
	b := createLoan(t, l, laureate.ID, "900", date(2024, 3, 1), date(2024, 5, 1))
	inactive := false
	_, err := l.CreateLaureate(ctx, CreateLaureateInput{FullName: "Dormant", StudentID: "DORM-9", IsActive: &inactive})
	require.NoError(t, err)

	_, err = l.MarkPaid(ctx, a.Payments[0].ID, payments.PaidDetails{})
	require.NoError(t, err)
	_, err = l.MarkPaid(ctx, a.Payments[1].ID, payments.PaidDetails{})
	require.NoError(t, err)
	_, err = l.MarkMissed(ctx, b.Payments[0].ID, nil)
	require.NoError(t, err)
	_, err = l.MarkOverdue(ctx, b.Payments[1].ID, nil)
	require.NoError(t, err)

	loanStats, err := l.LoanStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loanStats.TotalLaureates, "dormant laureates are not counted")
	assert.Equal(t, 2, loanStats.TotalLoans)
	assert.Equal(t, 1, loanStats.ActiveLoans)
	assert.Equal(t, 1, loanStats.CompletedLoans)
	assert.True(t, dec("1900").Equal(loanStats.TotalDisbursed))
	assert.True(t, dec("900").Equal(loanStats.ActiveAmount))

	payStats, err := l.PaymentStatistics(ctx, date(2024, 4, 15))
	require.NoError(t, err)
	assert.Equal(t, "2024-04-15", payStats.AsOf)
	assert.Equal(t, 5, payStats.TotalPayments)
	assert.Equal(t, 2, payStats.CompletedPayments)
	assert.Equal(t, 1, payStats.MissedPayments)
	assert.Equal(t, 1, payStats.PendingPayments)
	assert.Equal(t, 1, payStats.PastDuePayments, "flagged April 1st instalment is past due")
	assert.True(t, dec("1000").Equal(payStats.TotalCollected))
	assert.True(t, dec("450").Equal(payStats.PendingAmount), "only the May instalment is still pending")
	assert.True(t, dec("450").Equal(payStats.TotalPastDue))
}
