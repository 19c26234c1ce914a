package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/dto"
	"github.com/noah-isme/gradehub-go-api/internal/models"
	"github.com/noah-isme/gradehub-go-api/internal/observability"
	"github.com/noah-isme/gradehub-go-api/internal/repository"
	"github.com/noah-isme/gradehub-go-api/internal/schema"
	"github.com/noah-isme/gradehub-go-api/pkg/events"
	"github.com/noah-isme/gradehub-go-api/pkg/oidc"
)

const defaultOutputFormat = "text"

// FeedbackService ingests the scored report from the grading job and fans it
// out into visibility-scoped rows.
type FeedbackService interface {
	Ingest(ctx context.Context, bearerToken string, body []byte) (dto.FeedbackResponse, error)
}

// FeedbackConfig carries the handler's tunables.
type FeedbackConfig struct {
	// PublicBaseURL is used to derive the student-facing details URL.
	PublicBaseURL string
}

type feedbackService struct {
	verifier    oidc.Verifier
	submissions repository.SubmissionRepository
	results     repository.GraderResultRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	publisher   *events.Publisher
	cfg         FeedbackConfig
	logger      zerolog.Logger
}

// NewFeedbackService constructs a FeedbackService instance.
func NewFeedbackService(
	verifier oidc.Verifier,
	submissions repository.SubmissionRepository,
	results repository.GraderResultRepository,
	validate *validator.Validate,
	publisher *events.Publisher,
	cfg FeedbackConfig,
	logger zerolog.Logger,
) FeedbackService {
	return &feedbackService{
		verifier:    verifier,
		submissions: submissions,
		results:     results,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.With().Str("component", "feedback_service").Logger(),
	}
}

func (s *feedbackService) Ingest(ctx context.Context, bearerToken string, body []byte) (dto.FeedbackResponse, error) {
	claims, err := s.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}

	auditLog := s.logger.With().
		Str("repository", claims.Repository).
		Str("sha", claims.SHA).
		Int64("run_number", claims.RunNumber).
		Int64("run_attempt", claims.RunAttempt).
		Logger()

	submission, err := s.submissions.GetByCIIdentity(ctx, claims.Repository, claims.SHA, claims.RunNumber, claims.RunAttempt)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			auditLog.Error().Msg("feedback for unknown submission")
			observability.SecurityRejections().WithLabelValues("unknown_submission").Inc()
			return dto.FeedbackResponse{}, &SecurityError{Reason: "feedback for unknown submission"}
		}
		return dto.FeedbackResponse{}, err
	}

	payload, err := s.decodePayload(body)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}

	exists, err := s.results.ExistsForSubmission(ctx, submission.ID)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}
	if exists {
		auditLog.Warn().Uint("submission_id", submission.ID).Msg("duplicate feedback rejected")
		return dto.FeedbackResponse{}, ErrDuplicateFeedback
	}

	score, maxScore := aggregateScore(payload.Feedback)

	result := models.GraderResult{
		SubmissionID:     submission.ID,
		RetCode:          payload.RetCode,
		GraderSHA:        payload.GraderSHA,
		Score:            score,
		MaxScore:         maxScore,
		LintPassed:       payload.Feedback.Lint.Status == "pass",
		LintOutput:       s.sanitize(payload.Feedback.Lint.Output, payload.Feedback.Lint.OutputFormat),
		LintOutputFormat: formatOrDefault(payload.Feedback.Lint.OutputFormat),
		ExecutionTime:    payload.ExecutionTime,
	}

	// Ownership is denormalized onto the Submission at intake, so grading
	// survives later changes to the repository registration.
	outputs := s.buildOutputs(payload.Feedback, submission.UserID, submission.ClassID)
	tests := s.buildTests(payload.Feedback.Tests)

	if err := s.results.Create(ctx, &result, outputs, tests); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent delivery; the first one won.
			return dto.FeedbackResponse{}, ErrDuplicateFeedback
		}
		return dto.FeedbackResponse{}, err
	}

	auditLog.Info().
		Uint("submission_id", submission.ID).
		Float64("score", score).
		Float64("max_score", maxScore).
		Int("outputs", len(outputs)).
		Int("tests", len(tests)).
		Msg("feedback recorded")
	observability.FeedbackIngested().Inc()

	s.publisher.SubmissionGraded(events.SubmissionGradedEvent{
		SubmissionID: submission.ID,
		Score:        score,
		MaxScore:     maxScore,
	})

	return dto.FeedbackResponse{
		IsOK:       true,
		Message:    "feedback recorded",
		DetailsURL: fmt.Sprintf("%s/submissions/%d", strings.TrimRight(s.cfg.PublicBaseURL, "/"), submission.ID),
	}, nil
}

// decodePayload validates the raw body against the feedback schema before
// binding it to the typed payload.
func (s *feedbackService) decodePayload(body []byte) (dto.FeedbackRequest, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return dto.FeedbackRequest{}, &UserVisibleError{Message: "feedback payload is not valid JSON"}
	}

	if err := schema.ValidateFeedback(doc); err != nil {
		return dto.FeedbackRequest{}, &UserVisibleError{Message: "feedback payload rejected by schema: " + err.Error()}
	}

	var payload dto.FeedbackRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return dto.FeedbackRequest{}, &UserVisibleError{Message: "feedback payload is not valid JSON"}
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.FeedbackRequest{}, &UserVisibleError{Message: "feedback payload invalid: " + err.Error()}
	}

	return payload, nil
}

// aggregateScore prefers the grader's explicit totals and otherwise sums the
// per-test scores, treating missing values as zero. Summation order never
// affects the result.
func aggregateScore(feedback dto.FeedbackBody) (float64, float64) {
	if feedback.Score != nil && feedback.MaxScore != nil {
		return *feedback.Score, *feedback.MaxScore
	}

	var score, maxScore float64
	for _, test := range feedback.Tests {
		if test.Score != nil {
			score += *test.Score
		}
		if test.MaxScore != nil {
			maxScore += *test.MaxScore
		}
	}

	if feedback.Score != nil {
		score = *feedback.Score
	}
	if feedback.MaxScore != nil {
		maxScore = *feedback.MaxScore
	}

	return score, maxScore
}

// buildOutputs emits one row per populated visibility tier. The pairing below
// covers every tier of the closed enum; absent tiers produce no row.
func (s *feedbackService) buildOutputs(feedback dto.FeedbackBody, studentID, classID uint) []models.GraderResultOutput {
	format := formatOrDefault(feedback.OutputFormat)

	tiers := []struct {
		visibility models.Visibility
		text       *string
	}{
		{models.VisibilityHidden, feedback.Output.Hidden},
		{models.VisibilityVisible, feedback.Output.Visible},
		{models.VisibilityAfterDueDate, feedback.Output.AfterDueDate},
		{models.VisibilityAfterPublished, feedback.Output.AfterPublished},
	}

	var outputs []models.GraderResultOutput
	for _, tier := range tiers {
		if tier.text == nil {
			continue
		}
		outputs = append(outputs, models.GraderResultOutput{
			Visibility: tier.visibility,
			Format:     format,
			Output:     s.sanitize(*tier.text, format),
			StudentID:  studentID,
			ClassID:    classID,
		})
	}

	return outputs
}

func (s *feedbackService) buildTests(reported []dto.FeedbackTest) []models.GraderResultTest {
	tests := make([]models.GraderResultTest, 0, len(reported))
	for _, test := range reported {
		row := models.GraderResultTest{
			Name:         test.Name,
			Output:       s.sanitize(test.Output, test.OutputFormat),
			Part:         test.Part,
			OutputFormat: formatOrDefault(test.OutputFormat),
			NameFormat:   formatOrDefault(test.NameFormat),
		}
		if test.Score != nil {
			row.Score = *test.Score
		}
		if test.MaxScore != nil {
			row.MaxScore = *test.MaxScore
		}
		if len(test.ExtraData) > 0 {
			row.ExtraData = []byte(test.ExtraData)
		}
		tests = append(tests, row)
	}

	return tests
}

// sanitize strips unsafe markup from html-formatted grader output before it
// is stored for later rendering.
func (s *feedbackService) sanitize(text, format string) string {
	if format == "html" {
		return s.sanitizer.Sanitize(text)
	}
	return text
}

func formatOrDefault(format string) string {
	if format == "" {
		return defaultOutputFormat
	}
	return format
}
