package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type Laureate struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	StudentID   string    `json:"student_id"` // Unique per laureate
	Institution string    `json:"institution"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Loan struct {
	ID             uuid.UUID       `json:"id"`
	LaureateID     uuid.UUID       `json:"laureate_id"`
	Amount         decimal.Decimal `json:"amount"`        // Principal disbursed
	InterestRate   decimal.Decimal `json:"interest_rate"` // Annual percentage, e.g. 4.5
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Status         LoanStatus      `json:"status"`
	Notes          string          `json:"notes"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Payment struct {
	ID             uuid.UUID       `json:"id"`
	LoanID         uuid.UUID       `json:"loan_id"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        time.Time       `json:"due_date"`
	PaidDate       *time.Time      `json:"paid_date,omitempty"` // Set only while Status is completed
	Status         PaymentStatus   `json:"status"`
	Method         string          `json:"payment_method"`
	TransactionRef string          `json:"transaction_ref"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
