package models

import "gorm.io/gorm"

// CoachRequest is a student's pairing request to a coach.
// Accepted is nil while pending, then true or false once answered.
type CoachRequest struct {
	gorm.Model
	StudentID uint  `gorm:"not null;index" json:"student_id"`
	CoachID   uint  `gorm:"not null;index" json:"coach_id"`
	Accepted  *bool `json:"accepted,omitempty"`
}
