package models

import "gorm.io/gorm"

// Comment is feedback left by a coach on a student's trade.
type Comment struct {
	gorm.Model
	TradeID uint   `gorm:"not null;index" json:"trade_id"`
	CoachID uint   `gorm:"not null;index" json:"coach_id"`
	Content string `gorm:"type:text;not null" json:"content"`
}
