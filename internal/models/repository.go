package models

import "time"

// Repository links a platform user to the Git hosting repository provisioned
// for an assignment. At most one active repository exists per student per
// assignment; the pipeline uses it to map an inbound repository claim back to
// the owning user.
type Repository struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	AssignmentID       uint      `gorm:"not null;uniqueIndex:idx_repositories_assignment_user" json:"assignment_id"`
	UserID             uint      `gorm:"not null;uniqueIndex:idx_repositories_assignment_user" json:"user_id"`
	ClassID            uint      `gorm:"not null" json:"class_id"`
	RepositoryFullName string    `gorm:"size:255;not null;index" json:"repository_full_name"`
	CreatedAt          time.Time `json:"created_at"`
}
