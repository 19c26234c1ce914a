package dto

// IntakeResponse is returned to the CI job after a submission is recorded.
// GraderURL is the callback the grading job reports its results to.
type IntakeResponse struct {
	GraderURL string `json:"grader_url"`
}
