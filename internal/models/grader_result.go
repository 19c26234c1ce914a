package models

import (
	"time"

	"gorm.io/datatypes"
)

// GraderResult stores the scored report for one submission. Grading data is
// write-once: a second report for the same submission is a conflict, not an
// update.
type GraderResult struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SubmissionID     uint      `gorm:"not null;uniqueIndex" json:"submission_id"`
	RetCode          int       `gorm:"not null" json:"ret_code"`
	GraderSHA        string    `gorm:"size:64" json:"grader_sha"`
	Score            float64   `gorm:"not null" json:"score"`
	MaxScore         float64   `gorm:"not null" json:"max_score"`
	LintPassed       bool      `json:"lint_passed"`
	LintOutput       string    `gorm:"type:text" json:"lint_output"`
	LintOutputFormat string    `gorm:"size:32" json:"lint_output_format"`
	ExecutionTime    float64   `json:"execution_time"`
	CreatedAt        time.Time `json:"created_at"`
}

// GraderResultOutput is one visibility-partitioned block of grader output.
// A tier with no payload output produces no row.
type GraderResultOutput struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	GraderResultID uint       `gorm:"not null;uniqueIndex:idx_grader_result_outputs_visibility" json:"grader_result_id"`
	Visibility     Visibility `gorm:"size:32;not null;uniqueIndex:idx_grader_result_outputs_visibility" json:"visibility"`
	Format         string     `gorm:"size:32;not null" json:"format"`
	Output         string     `gorm:"type:text" json:"output"`
	StudentID      uint       `gorm:"not null" json:"student_id"`
	ClassID        uint       `gorm:"not null" json:"class_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GraderResultTest is one per-test result row. Insertion order is the order
// reported by the grading job and is preserved for deterministic display.
type GraderResultTest struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	GraderResultID uint           `gorm:"not null;index" json:"grader_result_id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	Output         string         `gorm:"type:text" json:"output"`
	Score          float64        `json:"score"`
	MaxScore       float64        `json:"max_score"`
	Part           string         `gorm:"size:255" json:"part"`
	ExtraData      datatypes.JSON `gorm:"type:json" json:"extra_data"`
	OutputFormat   string         `gorm:"size:32;not null" json:"output_format"`
	NameFormat     string         `gorm:"size:32;not null" json:"name_format"`
	CreatedAt      time.Time      `json:"created_at"`
}
