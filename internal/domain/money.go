package domain

import (
	"github.com/segyhp/rental-ledger/pkg/utils"
)

// Money is an amount in minor currency units (cents). There is no floating
// point anywhere on the money path.
type Money int64

func (m Money) Add(other Money) Money {
	return m + other
}

func (m Money) Sub(other Money) Money {
	return m - other
}

func (m Money) IsPositive() bool {
	return m > 0
}

// Cents returns the raw minor-unit value.
func (m Money) Cents() int64 {
	return int64(m)
}

// String renders major units with two decimals, e.g. 150000 -> "1500.00".
func (m Money) String() string {
	return utils.CentsToDecimal(int64(m)).StringFixed(2)
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}
