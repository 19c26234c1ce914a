package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment is the instructor-defined unit of work students submit against.
// Only the fields the grading pipeline reads live here; the management UI owns the rest.
type Assignment struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	ClassID         uint                        `gorm:"not null;index" json:"class_id"`
	Title           string                      `gorm:"size:255;not null" json:"title"`
	DueDate         time.Time                   `json:"due_date"`
	SubmissionFiles datatypes.JSONSlice[string] `gorm:"type:json" json:"submission_files"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// AssignmentGraderConfig holds the per-assignment grading contract created at
// instructor setup time. The pipeline treats it as read-only.
type AssignmentGraderConfig struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	AssignmentID           uint      `gorm:"not null;uniqueIndex" json:"assignment_id"`
	ExpectedWorkflowDigest string    `gorm:"size:64;not null" json:"expected_workflow_digest"`
	GraderRepository       string    `gorm:"size:255;not null" json:"grader_repository"`
	CreatedAt              time.Time `json:"created_at"`
}
