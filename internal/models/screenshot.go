package models

import "gorm.io/gorm"

// Screenshot is an image attachment on a trade or a strategy.
// The image itself lives in an external blob store; only its URL is kept.
type Screenshot struct {
	gorm.Model
	TradeID    *uint  `gorm:"index" json:"trade_id,omitempty"`
	StrategyID *uint  `gorm:"index" json:"strategy_id,omitempty"`
	URL        string `gorm:"not null" json:"url"`
}
