package model

import (
	"fmt"
)

// Money is a USD amount in micro-dollars (1e-6 USD). All arithmetic is
// integer-only; six fractional digits match sub-cent billing granularity.
type Money int64

// MicroUSD wraps a raw micro-dollar amount.
func MicroUSD(v int64) Money { return Money(v) }

// Cents builds a Money value from whole cents.
func Cents(c int64) Money { return Money(c * 10_000) }

func (m Money) Micros() int64 { return int64(m) }

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }

// String renders the amount as dollars with six fractional digits, e.g. "$0.030000".
func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%06d", sign, v/1_000_000, v%1_000_000)
}

// USD returns the amount as a float for JSON responses. Not used in any
// enforcement arithmetic.
func (m Money) USD() float64 { return float64(m) / 1e6 }
