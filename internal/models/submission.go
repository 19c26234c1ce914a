package models

import "time"

// Submission is the canonical record of one graded attempt. The composite
// unique index over the CI identity tuple is what defends against replayed or
// retried workflow runs; rows are never mutated after creation.
type Submission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	AssignmentID uint      `gorm:"not null;index" json:"assignment_id"`
	ClassID      uint      `gorm:"not null" json:"class_id"`
	Repository   string    `gorm:"size:255;not null;uniqueIndex:idx_submissions_ci_identity" json:"repository"`
	SHA          string    `gorm:"size:64;not null;uniqueIndex:idx_submissions_ci_identity" json:"sha"`
	RunNumber    int64     `gorm:"not null;uniqueIndex:idx_submissions_ci_identity" json:"run_number"`
	RunAttempt   int64     `gorm:"not null;uniqueIndex:idx_submissions_ci_identity" json:"run_attempt"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmissionFile is one declared file extracted from the repository snapshot.
// The set of names per submission is exactly the assignment's declared
// required-file set.
type SubmissionFile struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Name         string    `gorm:"size:512;not null" json:"name"`
	Contents     string    `gorm:"type:text" json:"contents"`
	UserID       uint      `gorm:"not null" json:"user_id"`
	ClassID      uint      `gorm:"not null" json:"class_id"`
	CreatedAt    time.Time `json:"created_at"`
}
