package journal

import (
	"errors"
	"strings"
	"time"

	"trade-journal-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDirection    = errors.New("trade direction must be LONG or SHORT")
	ErrQuantityNotPositive = errors.New("trade quantity must be greater than zero")
	ErrExitBeforeEntry     = errors.New("exit datetime is before entry datetime")
)

// TradeParams are the inputs to the trade factory. Entry and Exit are nil
// while the corresponding side of the trade is unknown.
type TradeParams struct {
	OwnerID    uint
	StrategyID *uint
	Symbol     string
	Direction  Direction
	Entry      *time.Time
	Exit       *time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Commission decimal.Decimal
	Note       string
	ImportHash string
}

// NewTrade builds a ledger entry from validated inputs, computing the
// derived ProfitLoss and Duration fields. Both the single-entry path and
// the bulk importer construct trades here, so the two can never diverge
// on how derived fields are computed.
//
// ProfitLoss is computed only for closed trades (exit datetime present);
// it is stored once and not recomputed on later saves.
func NewTrade(p TradeParams) (*models.Trade, error) {
	if !p.Direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if !p.Quantity.IsPositive() {
		return nil, ErrQuantityNotPositive
	}
	if p.Entry != nil && p.Exit != nil && p.Exit.Before(*p.Entry) {
		return nil, ErrExitBeforeEntry
	}

	t := &models.Trade{
		UserID:        p.OwnerID,
		StrategyID:    p.StrategyID,
		Symbol:        strings.ToUpper(strings.TrimSpace(p.Symbol)),
		TradeType:     string(p.Direction),
		EntryDateTime: p.Entry,
		ExitDateTime:  p.Exit,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     p.ExitPrice,
		Quantity:      p.Quantity,
		Commission:    p.Commission,
		Note:          p.Note,
		ImportHash:    p.ImportHash,
	}

	if p.Exit != nil {
		t.ProfitLoss = PnL(p.EntryPrice, p.ExitPrice, p.Quantity, p.Direction, p.Commission)
	}
	if p.Entry != nil && p.Exit != nil {
		d := p.Exit.Sub(*p.Entry)
		t.Duration = &d
	}

	return t, nil
}
