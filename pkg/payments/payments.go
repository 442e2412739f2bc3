// Package payments holds the payment lifecycle: permitted status changes
// and the overdue state derived from dates.
package payments

import (
	"fmt"
	"sort"
	"time"

	"github.com/mcclellann/laureateLoan/pkg/models"
)

// PaidDetails carries the facts recorded when a payment is collected.
type PaidDetails struct {
	Method         string     `json:"payment_method"`
	TransactionRef string     `json:"transaction_ref"`
	PaidDate       *time.Time `json:"paid_date,omitempty"` // Defaults to today
	Notes          *string    `json:"notes,omitempty"`     // Nil keeps existing notes
}

func transition(p *models.Payment, next models.PaymentStatus) error {
	if p.Status.Terminal() {
		return fmt.Errorf("payment %s is already %s: %w", p.ID, p.Status, models.ErrInvalidTransition)
	}
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("payment %s %s -> %s: %w", p.ID, p.Status, next, models.ErrInvalidTransition)
	}
	p.Status = next
	return nil
}

// MarkPaid completes a pending or overdue payment.
func MarkPaid(p *models.Payment, details PaidDetails, today time.Time) error {
	if err := transition(p, models.PaymentStatusCompleted); err != nil {
		return err
	}
	paid := models.DateOf(today)
	if details.PaidDate != nil {
		paid = models.DateOf(*details.PaidDate)
	}
	p.PaidDate = &paid
	p.Method = details.Method
	p.TransactionRef = details.TransactionRef
	if details.Notes != nil {
		p.Notes = *details.Notes
	}
	return nil
}

// MarkMissed closes a pending or overdue payment as never collected. Its
// amount stays outstanding in the loan balance.
func MarkMissed(p *models.Payment, notes *string) error {
	if err := transition(p, models.PaymentStatusMissed); err != nil {
		return err
	}
	if notes != nil {
		p.Notes = *notes
	}
	return nil
}

// MarkOverdue records an explicit overdue flag on a pending payment.
func MarkOverdue(p *models.Payment, notes *string) error {
	if err := transition(p, models.PaymentStatusOverdue); err != nil {
		return err
	}
	if notes != nil {
		p.Notes = *notes
	}
	return nil
}

// IsOverdue is true for a pending payment whose due date is before asOf.
// Payments already flagged overdue are not derived again.
func IsOverdue(p *models.Payment, asOf time.Time) bool {
	return p.Status == models.PaymentStatusPending && p.DueDate.Before(models.DateOf(asOf))
}

// DaysOverdue returns whole days past due for a derived-overdue payment, else 0.
func DaysOverdue(p *models.Payment, asOf time.Time) int {
	if !IsOverdue(p, asOf) {
		return 0
	}
	return models.DaysBetween(p.DueDate, asOf)
}

// View is a payment with its derived overdue fields.
type View struct {
	*models.Payment
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
}

func NewView(p *models.Payment, asOf time.Time) View {
	return View{Payment: p, IsOverdue: IsOverdue(p, asOf), DaysOverdue: DaysOverdue(p, asOf)}
}

// Views decorates each payment with derived fields.
func Views(ps []*models.Payment, asOf time.Time) []View {
	out := make([]View, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewView(p, asOf))
	}
	return out
}

// OverdueItem is one entry of the overdue report.
type OverdueItem struct {
	View
	Flagged bool `json:"flagged"` // Status explicitly set to overdue
}

// CollectOverdue unions derived-overdue pending payments with payments
// flagged overdue, deduplicated by id and ordered by due date.
func CollectOverdue(candidates []*models.Payment, asOf time.Time) []OverdueItem {
	seen := make(map[string]bool, len(candidates))
	items := make([]OverdueItem, 0, len(candidates))
	for _, p := range candidates {
		flagged := p.Status == models.PaymentStatusOverdue
		if !flagged && !IsOverdue(p, asOf) {
			continue
		}
		key := p.ID.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, OverdueItem{View: NewView(p, asOf), Flagged: flagged})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].DueDate.Equal(items[j].DueDate) {
			return items[i].DueDate.Before(items[j].DueDate)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}
