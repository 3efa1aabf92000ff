package models

import "gorm.io/gorm"

// Strategy groups trades under a user-defined trading plan.
// The name is unique per owner. Deleting a strategy detaches its
// trades instead of deleting them.
type Strategy struct {
	gorm.Model
	UserID      uint   `gorm:"not null;uniqueIndex:idx_strategies_owner_name" json:"user_id"`
	Name        string `gorm:"size:100;not null;uniqueIndex:idx_strategies_owner_name" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}
