package models

import "fmt"

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
	LoanStatusOverdue   LoanStatus = "overdue"
	LoanStatusSuspended LoanStatus = "suspended"
)

// LoanStatuses lists every loan status in display order.
var LoanStatuses = []LoanStatus{
	LoanStatusActive,
	LoanStatusCompleted,
	LoanStatusOverdue,
	LoanStatusSuspended,
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusCompleted, LoanStatusOverdue, LoanStatusSuspended:
		return true
	}
	return false
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(raw string) (LoanStatus, error) {
	s := LoanStatus(raw)
	if !s.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("invalid loan status %q", raw))
	}
	return s, nil
}

// loanTransitions holds the admin-driven loan status changes. Completed is terminal.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusActive:    {LoanStatusCompleted, LoanStatusOverdue, LoanStatusSuspended},
	LoanStatusOverdue:   {LoanStatusActive, LoanStatusCompleted, LoanStatusSuspended},
	LoanStatusSuspended: {LoanStatusActive, LoanStatusCompleted, LoanStatusOverdue},
	LoanStatusCompleted: nil,
}

// CanTransitionTo reports whether a loan may move from s to next.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusOverdue   PaymentStatus = "overdue"
	PaymentStatusMissed    PaymentStatus = "missed"
)

// PaymentStatuses lists every payment status in display order.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusOverdue,
	PaymentStatusMissed,
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusOverdue, PaymentStatusMissed:
		return true
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	s := PaymentStatus(raw)
	if !s.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("invalid payment status %q", raw))
	}
	return s, nil
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusMissed, PaymentStatusOverdue},
	PaymentStatusOverdue:   {PaymentStatusCompleted, PaymentStatusMissed},
	PaymentStatusCompleted: nil,
	PaymentStatusMissed:    nil,
}

// CanTransitionTo reports whether a payment may move from s to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}
