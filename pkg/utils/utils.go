package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout   = "2006-01-02"
	PeriodLayout = "2006-01"
)

var hundred = decimal.NewFromInt(100)

// DateOnly drops the clock part of t, keeping the calendar day as seen in t's
// location. The result is midnight UTC so it compares cleanly with DATE columns.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOnly(now.In(loc))
}

// AddDays moves a calendar date forward (or back) by whole days.
func AddDays(date time.Time, days int) time.Time {
	return DateOnly(date).AddDate(0, 0, days)
}

// IsDateOverdue reports whether dueDate lies strictly before today.
func IsDateOverdue(dueDate, today time.Time) bool {
	return DateOnly(dueDate).Before(DateOnly(today))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidatePeriod checks a billing period token of the form YYYY-MM.
func ValidatePeriod(period string) error {
	if _, err := time.Parse(PeriodLayout, period); err != nil {
		return fmt.Errorf("invalid period %q: expected YYYY-MM", period)
	}
	return nil
}

// PeriodOf returns the billing period token a date falls in.
func PeriodOf(date time.Time) string {
	return date.Format(PeriodLayout)
}

// CentsToDecimal converts minor units to a major-unit decimal (12345 -> 123.45).
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PercentOf computes cents * percent / 100 rounded half-up to a whole cent.
// Only non-negative inputs are expected, where decimal's half-away-from-zero
// rounding is identical to half-up.
func PercentOf(cents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(percent).Div(hundred).Round(0).IntPart()
}
