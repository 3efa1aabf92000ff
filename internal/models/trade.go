package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade represents one ledger entry: a position opened and (usually)
// closed by a user, optionally grouped under a strategy.
//
// ProfitLoss and Duration are computed once at creation time by the
// journal trade factory and are not recomputed on save. ImportHash is
// empty for manually entered trades; for CSV-imported trades it is the
// idempotency key, unique per owner while non-empty.
type Trade struct {
	gorm.Model
	UserID        uint            `gorm:"not null;index;index:idx_trades_owner_import_hash,unique,where:import_hash <> ''" json:"user_id"`
	StrategyID    *uint           `gorm:"index" json:"strategy_id,omitempty"`
	Symbol        string          `gorm:"size:50;not null" json:"symbol"`
	TradeType     string          `gorm:"size:10;not null" json:"trade_type"` // "LONG" or "SHORT"
	EntryDateTime *time.Time      `json:"entry_datetime,omitempty"`
	ExitDateTime  *time.Time      `json:"exit_datetime,omitempty"`
	EntryPrice    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"entry_price"`
	ExitPrice     decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"exit_price"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantity"`
	Commission    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"commission"`
	ProfitLoss    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"profit_loss"`
	Note          string          `gorm:"type:text" json:"note,omitempty"`
	Duration      *time.Duration  `json:"duration,omitempty"`
	ImportHash    string          `gorm:"size:64;not null;default:'';index:idx_trades_owner_import_hash,unique" json:"-"`
}
