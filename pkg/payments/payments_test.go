package payments

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func newPayment(status models.PaymentStatus, due time.Time) *models.Payment {
	return &models.Payment{
		ID:      uuid.New(),
		LoanID:  uuid.New(),
		Amount:  decimal.NewFromInt(500),
		DueDate: due,
		Status:  status,
		Notes:   "original",
	}
}

func strPtr(s string) *string { return &s }

func TestMarkPaid(t *testing.T) {
	t.Run("pending defaults paid date to today", func(t *testing.T) {
		p := newPayment(models.PaymentStatusPending, today)
		err := MarkPaid(p, PaidDetails{Method: "bank_transfer", TransactionRef: "TX-1"}, today.Add(15*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, p.Status)
		require.NotNil(t, p.PaidDate)
		assert.Equal(t, today, *p.PaidDate)
		assert.Equal(t, "bank_transfer", p.Method)
		assert.Equal(t, "TX-1", p.TransactionRef)
		assert.Equal(t, "original", p.Notes)
	})

	t.Run("overdue with explicit paid date and notes", func(t *testing.T) {
		p := newPayment(models.PaymentStatusOverdue, today.AddDate(0, -1, 0))
		paid := today.AddDate(0, 0, -2)
		err := MarkPaid(p, PaidDetails{PaidDate: &paid, Notes: strPtr("late")}, today)
		require.NoError(t, err)
		assert.Equal(t, paid, *p.PaidDate)
		assert.Equal(t, "late", p.Notes)
	})

	for _, status := range []models.PaymentStatus{models.PaymentStatusCompleted, models.PaymentStatusMissed} {
		t.Run("rejects "+string(status), func(t *testing.T) {
			p := newPayment(status, today)
			err := MarkPaid(p, PaidDetails{Method: "cash"}, today)
			assert.ErrorIs(t, err, models.ErrInvalidTransition)
			assert.Equal(t, status, p.Status)
			assert.Empty(t, p.Method)
			assert.Nil(t, p.PaidDate)
		})
	}
}

func TestMarkMissed(t *testing.T) {
	p := newPayment(models.PaymentStatusPending, today)
	require.NoError(t, MarkMissed(p, strPtr("no funds")))
	assert.Equal(t, models.PaymentStatusMissed, p.Status)
	assert.Equal(t, "no funds", p.Notes)
	assert.Nil(t, p.PaidDate)

	assert.ErrorIs(t, MarkMissed(p, nil), models.ErrInvalidTransition)

	flagged := newPayment(models.PaymentStatusOverdue, today)
	require.NoError(t, MarkMissed(flagged, nil))
	assert.Equal(t, "original", flagged.Notes)
}

func TestMarkOverdue(t *testing.T) {
	p := newPayment(models.PaymentStatusPending, today)
	require.NoError(t, MarkOverdue(p, nil))
	assert.Equal(t, models.PaymentStatusOverdue, p.Status)

	assert.ErrorIs(t, MarkOverdue(p, nil), models.ErrInvalidTransition)
	assert.ErrorIs(t, MarkOverdue(newPayment(models.PaymentStatusCompleted, today), nil), models.ErrInvalidTransition)
}

func TestTerminalPaymentsNameTheirState(t *testing.T) {
	err := MarkPaid(newPayment(models.PaymentStatusMissed, today), PaidDetails{}, today)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "is already missed")

	err = MarkMissed(newPayment(models.PaymentStatusCompleted, today), nil)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "is already completed")
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from models.PaymentStatus
		to   models.PaymentStatus
		ok   bool
	}{
		{models.PaymentStatusPending, models.PaymentStatusCompleted, true},
		{models.PaymentStatusPending, models.PaymentStatusMissed, true},
		{models.PaymentStatusPending, models.PaymentStatusOverdue, true},
		{models.PaymentStatusOverdue, models.PaymentStatusCompleted, true},
		{models.PaymentStatusOverdue, models.PaymentStatusMissed, true},
		{models.PaymentStatusOverdue, models.PaymentStatusPending, false},
		{models.PaymentStatusCompleted, models.PaymentStatusPending, false},
		{models.PaymentStatusCompleted, models.PaymentStatusMissed, false},
		{models.PaymentStatusMissed, models.PaymentStatusCompleted, false},
		{models.PaymentStatusMissed, models.PaymentStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, models.PaymentStatusCompleted.Terminal())
	assert.True(t, models.PaymentStatusMissed.Terminal())
	assert.False(t, models.PaymentStatusOverdue.Terminal())
}

func TestDerivedOverdue(t *testing.T) {
	tests := []struct {
		name    string
		status  models.PaymentStatus
		due     time.Time
		overdue bool
		days    int
	}{
		{"due yesterday", models.PaymentStatusPending, today.AddDate(0, 0, -1), true, 1},
		{"due today", models.PaymentStatusPending, today, false, 0},
		{"due tomorrow", models.PaymentStatusPending, today.AddDate(0, 0, 1), false, 0},
		{"long overdue", models.PaymentStatusPending, today.AddDate(0, -2, 0), true, 61},
		{"flagged overdue is not derived", models.PaymentStatusOverdue, today.AddDate(0, 0, -5), false, 0},
		{"completed", models.PaymentStatusCompleted, today.AddDate(0, 0, -5), false, 0},
		{"missed", models.PaymentStatusMissed, today.AddDate(0, 0, -5), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPayment(tt.status, tt.due)
			// The time of day on asOf must not matter.
			asOf := today.Add(23 * time.Hour)
			assert.Equal(t, tt.overdue, IsOverdue(p, asOf))
			assert.Equal(t, tt.days, DaysOverdue(p, asOf))
		})
	}
}

func TestCollectOverdue(t *testing.T) {
	derivedOld := newPayment(models.PaymentStatusPending, today.AddDate(0, 0, -30))
	derivedNew := newPayment(models.PaymentStatusPending, today.AddDate(0, 0, -1))
	flagged := newPayment(models.PaymentStatusOverdue, today.AddDate(0, 0, -10))
	flaggedFuture := newPayment(models.PaymentStatusOverdue, today.AddDate(0, 0, 3))
	notDue := newPayment(models.PaymentStatusPending, today)
	done := newPayment(models.PaymentStatusCompleted, today.AddDate(0, 0, -40))

	// The same payment can arrive from both halves of the union.
	items := CollectOverdue([]*models.Payment{derivedNew, flagged, notDue, derivedOld, done, flagged, flaggedFuture, derivedNew}, today)

	require.Len(t, items, 4)
	assert.Equal(t, derivedOld.ID, items[0].ID)
	assert.Equal(t, flagged.ID, items[1].ID)
	assert.Equal(t, derivedNew.ID, items[2].ID)
	assert.Equal(t, flaggedFuture.ID, items[3].ID)

	assert.True(t, items[0].IsOverdue)
	assert.Equal(t, 30, items[0].DaysOverdue)
	assert.False(t, items[0].Flagged)
	assert.True(t, items[1].Flagged)
	assert.False(t, items[1].IsOverdue)
	assert.Equal(t, 0, items[1].DaysOverdue)
}
