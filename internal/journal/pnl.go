package journal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Direction of a trade: LONG profits when price rises, SHORT when it falls.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

var (
	plusOne  = decimal.NewFromInt(1)
	minusOne = decimal.NewFromInt(-1)
)

// ParseDirection normalizes a free-form direction string. The boolean
// reports whether the input was a valid direction.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if d.Valid() {
		return d, true
	}
	return "", false
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() decimal.Decimal {
	if d == Short {
		return minusOne
	}
	return plusOne
}

// PnL computes the profit or loss of a single trade:
//
//	(exit - entry) * quantity * sign - commission
//
// All arithmetic is exact base-10; binary floating point would drift when
// summing many small P&Ls across a large ledger.
func PnL(entryPrice, exitPrice, quantity decimal.Decimal, dir Direction, commission decimal.Decimal) decimal.Decimal {
	return exitPrice.Sub(entryPrice).Mul(quantity).Mul(dir.Sign()).Sub(commission)
}
