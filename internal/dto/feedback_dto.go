package dto

import "encoding/json"

// FeedbackRequest is the report the grading job posts back when it finishes.
type FeedbackRequest struct {
	RetCode       int          `json:"ret_code"`
	Output        string       `json:"output"`
	ExecutionTime float64      `json:"execution_time"`
	GraderSHA     string       `json:"grader_sha" validate:"required"`
	Feedback      FeedbackBody `json:"feedback" validate:"required"`
}

// FeedbackBody carries the scored portion of the report. Score and MaxScore
// are optional; when absent the stored totals are derived from the per-test
// scores.
type FeedbackBody struct {
	Score        *float64       `json:"score"`
	MaxScore     *float64       `json:"max_score"`
	OutputFormat string         `json:"output_format"`
	Output       FeedbackOutput `json:"output"`
	Lint         FeedbackLint   `json:"lint"`
	Tests        []FeedbackTest `json:"tests" validate:"dive"`
}

// FeedbackOutput holds per-visibility-tier output blocks. A nil field means
// the grader produced nothing for that tier and no row is stored.
type FeedbackOutput struct {
	Hidden         *string `json:"hidden"`
	Visible        *string `json:"visible"`
	AfterDueDate   *string `json:"after_due_date"`
	AfterPublished *string `json:"after_published"`
}

// FeedbackLint is the lint section of the report.
type FeedbackLint struct {
	Status       string `json:"status"`
	Output       string `json:"output"`
	OutputFormat string `json:"output_format"`
}

// FeedbackTest is one per-test result as reported by the grading job.
type FeedbackTest struct {
	Name         string          `json:"name" validate:"required"`
	Output       string          `json:"output"`
	Score        *float64        `json:"score"`
	MaxScore     *float64        `json:"max_score"`
	Part         string          `json:"part"`
	ExtraData    json.RawMessage `json:"extra_data"`
	OutputFormat string          `json:"output_format"`
	NameFormat   string          `json:"name_format"`
}

// FeedbackResponse acknowledges an ingested report to the CI job.
type FeedbackResponse struct {
	IsOK       bool   `json:"is_ok"`
	Message    string `json:"message"`
	DetailsURL string `json:"details_url"`
}
