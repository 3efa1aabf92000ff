package models

import "gorm.io/gorm"

// User is the owning principal for trades and strategies.
// A student may be linked to a coach through CoachID once a
// pairing request has been accepted.
type User struct {
	gorm.Model
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `json:"email"`
	IsCoach  bool   `gorm:"default:false" json:"is_coach"`
	CoachID  *uint  `gorm:"index" json:"coach_id,omitempty"`
}
