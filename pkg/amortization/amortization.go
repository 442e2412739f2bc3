package amortization

import (
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/shopspring/decimal"
)

// internalPrecision bounds the scale of the compounding factor so long terms stay cheap.
const internalPrecision = 28

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// MaxScale is the number of decimal places stored for money and rates.
const MaxScale = 2

// Tolerance is the absolute difference accepted between a supplied and a computed payment.
var Tolerance = decimal.New(1, -2)

var ErrInvalidTerm = errors.New("loan term must be at least one month")

// TermMonths returns the calendar-month difference between start and end.
// Day of month is ignored: Jan 31 to Feb 1 is one month.
func TermMonths(start, end time.Time) (int, error) {
	months := (end.Year()*12 + int(end.Month())) - (start.Year()*12 + int(start.Month()))
	if months <= 0 {
		return 0, &models.ValidationError{
			Field:   "end_date",
			Message: "end date must result in a positive loan term",
			Err:     ErrInvalidTerm,
		}
	}
	return months, nil
}

// MonthlyPayment computes the flat amortized payment, rounded half-up to cents.
func MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, ErrInvalidTerm
	}
	exact, err := exactPayment(principal, MonthlyRate(annualRatePercent), termMonths)
	if err != nil {
		return decimal.Zero, err
	}
	return exact.Round(2), nil
}

// MonthlyRate converts an annual percentage into a per-month fraction.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(hundred, internalPrecision).DivRound(twelve, internalPrecision)
}

func exactPayment(principal, r decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	n := decimal.NewFromInt(int64(termMonths))
	if r.IsZero() {
		return principal.DivRound(n, internalPrecision), nil
	}

	// (1+r)^n, multiplied out so the exponent stays an exact integer.
	growth := decimal.NewFromInt(1).Add(r)
	factor := decimal.NewFromInt(1)
	for i := 0; i < termMonths; i++ {
		factor = factor.Mul(growth).Round(internalPrecision)
	}

	denominator := factor.Sub(decimal.NewFromInt(1))
	if !denominator.IsPositive() {
		return decimal.Zero, fmt.Errorf("degenerate compounding factor for monthly rate %s", r)
	}
	return principal.Mul(r).Mul(factor).DivRound(denominator, internalPrecision), nil
}

// Matches reports whether supplied is within Tolerance of expected.
func Matches(expected, supplied decimal.Decimal) bool {
	return expected.Sub(supplied).Abs().LessThanOrEqual(Tolerance)
}

// fitsScale reports whether d has no digits beyond MaxScale decimal places.
// Trailing zeros do not count: 4000.0100 fits.
func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MaxScale))
}

// Validate checks loan terms and returns the monthly payment to persist with the term length.
// When supplied is nil the computed payment is returned.
func Validate(principal, annualRatePercent decimal.Decimal, start, end time.Time, supplied *decimal.Decimal) (decimal.Decimal, int, error) {
	if !principal.IsPositive() {
		return decimal.Zero, 0, models.NewValidationError("amount", "loan amount must be positive")
	}
	if !fitsScale(principal) {
		return decimal.Zero, 0, models.NewValidationError("amount", "loan amount cannot have more than 2 decimal places")
	}
	if annualRatePercent.IsNegative() {
		return decimal.Zero, 0, models.NewValidationError("interest_rate", "interest rate cannot be negative")
	}
	if !fitsScale(annualRatePercent) {
		return decimal.Zero, 0, models.NewValidationError("interest_rate", "interest rate cannot have more than 2 decimal places")
	}
	if !models.DateOf(end).After(models.DateOf(start)) {
		return decimal.Zero, 0, models.NewValidationError("end_date", "end date must be after start date")
	}
	term, err := TermMonths(start, end)
	if err != nil {
		return decimal.Zero, 0, err
	}

	expected, err := MonthlyPayment(principal, annualRatePercent, term)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if supplied == nil {
		return expected, term, nil
	}
	if !supplied.IsPositive() {
		return decimal.Zero, 0, models.NewValidationError("monthly_payment", "monthly payment must be positive")
	}
	if !fitsScale(*supplied) {
		return decimal.Zero, 0, models.NewValidationError("monthly_payment", "monthly payment cannot have more than 2 decimal places")
	}
	if !Matches(expected, *supplied) {
		return decimal.Zero, 0, models.NewValidationError("monthly_payment",
			fmt.Sprintf("monthly payment must be approximately %s based on amount, interest rate, and duration", expected.StringFixed(2)))
	}
	return *supplied, term, nil
}
