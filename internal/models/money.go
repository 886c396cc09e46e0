package models

import (
	"fmt"
	"math"
)

// Cents is an amount in the currency's minor unit (centavos for BRL).
type Cents int64

// CentsFromMajor converts a major-unit decimal such as 19.90 into Cents.
func CentsFromMajor(amount float64) Cents {
	return Cents(math.Round(amount * 100))
}

// Major returns the amount in major units.
func (c Cents) Major() float64 {
	return float64(c) / 100
}

// String renders the amount as "R$ 19,90".
func (c Cents) String() string {
	return fmt.Sprintf("R$ %d,%02d", int64(c)/100, int64(c)%100)
}
