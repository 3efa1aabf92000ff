package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// noStrategy is the canonical token hashed when a row carries no strategy.
const noStrategy = "none"

// Fingerprint derives the idempotency key for an imported trade row.
//
// The canonical form is a pipe-delimited string of the owner, the strategy
// id (or the "none" token), the upper-cased symbol, both instants in
// RFC 3339 form and the exact decimal strings, hashed with SHA-256 to a
// 64-character hex digest. Two rows that are byte-identical after
// canonicalization always collide; row position never matters.
func Fingerprint(ownerID uint, strategyID *uint, symbol string, entry, exit time.Time, entryPrice, exitPrice, quantity decimal.Decimal, dir Direction) string {
	strategy := noStrategy
	if strategyID != nil {
		strategy = strconv.FormatUint(uint64(*strategyID), 10)
	}

	base := strings.Join([]string{
		strconv.FormatUint(uint64(ownerID), 10),
		strategy,
		strings.ToUpper(symbol),
		entry.Format(time.RFC3339Nano),
		exit.Format(time.RFC3339Nano),
		entryPrice.String(),
		exitPrice.String(),
		quantity.String(),
		string(dir),
	}, "|")

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
