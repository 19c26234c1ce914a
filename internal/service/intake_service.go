package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/archive"
	"github.com/noah-isme/gradehub-go-api/internal/dto"
	"github.com/noah-isme/gradehub-go-api/internal/models"
	"github.com/noah-isme/gradehub-go-api/internal/observability"
	"github.com/noah-isme/gradehub-go-api/internal/repository"
	"github.com/noah-isme/gradehub-go-api/pkg/events"
	ghclient "github.com/noah-isme/gradehub-go-api/pkg/github"
	"github.com/noah-isme/gradehub-go-api/pkg/oidc"
)

// IntakeService runs the submission intake pipeline: token verification,
// repository resolution, snapshot fetch, workflow integrity check, declared
// file extraction and durable recording.
type IntakeService interface {
	Intake(ctx context.Context, bearerToken string) (dto.IntakeResponse, error)
}

// IntakeConfig carries the pipeline's tunables.
type IntakeConfig struct {
	// WorkflowPath is the well-known path of the approved CI workflow file.
	WorkflowPath string
	// GraderConfigCacheTTL bounds how long grader configs are served from cache.
	GraderConfigCacheTTL time.Duration
}

type intakeService struct {
	verifier    oidc.Verifier
	snapshots   ghclient.SnapshotClient
	assignments repository.AssignmentRepository
	repoLinks   repository.RepoLinkRepository
	submissions repository.SubmissionRepository
	cache       *redis.Client
	publisher   *events.Publisher
	cfg         IntakeConfig
	logger      zerolog.Logger
}

// NewIntakeService constructs an IntakeService instance. cache and publisher
// may be nil; caching and event publishing are then disabled.
func NewIntakeService(
	verifier oidc.Verifier,
	snapshots ghclient.SnapshotClient,
	assignments repository.AssignmentRepository,
	repoLinks repository.RepoLinkRepository,
	submissions repository.SubmissionRepository,
	cache *redis.Client,
	publisher *events.Publisher,
	cfg IntakeConfig,
	logger zerolog.Logger,
) IntakeService {
	if cfg.WorkflowPath == "" {
		cfg.WorkflowPath = ".github/workflows/grade.yml"
	}

	return &intakeService{
		verifier:    verifier,
		snapshots:   snapshots,
		assignments: assignments,
		repoLinks:   repoLinks,
		submissions: submissions,
		cache:       cache,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logger.With().Str("component", "intake_service").Logger(),
	}
}

func (s *intakeService) Intake(ctx context.Context, bearerToken string) (dto.IntakeResponse, error) {
	claims, err := s.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return dto.IntakeResponse{}, err
	}

	auditLog := s.logger.With().
		Str("repository", claims.Repository).
		Str("sha", claims.SHA).
		Int64("run_number", claims.RunNumber).
		Int64("run_attempt", claims.RunAttempt).
		Logger()

	link, err := s.repoLinks.GetByFullName(ctx, claims.Repository)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			auditLog.Error().Msg("intake from unregistered repository")
			observability.SecurityRejections().WithLabelValues("unregistered_repository").Inc()
			return dto.IntakeResponse{}, &SecurityError{Reason: "unregistered repository " + claims.Repository}
		}
		return dto.IntakeResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, link.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IntakeResponse{}, &UserVisibleError{Message: "assignment no longer exists"}
		}
		return dto.IntakeResponse{}, err
	}

	config, err := s.graderConfig(ctx, link.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IntakeResponse{}, &UserVisibleError{Message: "autograder is not configured for this assignment"}
		}
		return dto.IntakeResponse{}, err
	}

	raw, err := s.snapshots.Download(ctx, claims.Repository, claims.SHA)
	if err != nil {
		return dto.IntakeResponse{}, err
	}

	entries, err := archive.ReadSnapshot(raw)
	if err != nil {
		return dto.IntakeResponse{}, err
	}

	if err := s.verifyWorkflowDigest(auditLog, entries, config); err != nil {
		return dto.IntakeResponse{}, err
	}

	files, err := extractDeclaredFiles(entries, assignment.SubmissionFiles)
	if err != nil {
		return dto.IntakeResponse{}, err
	}

	submission := models.Submission{
		UserID:       link.UserID,
		AssignmentID: link.AssignmentID,
		ClassID:      link.ClassID,
		Repository:   claims.Repository,
		SHA:          claims.SHA,
		RunNumber:    claims.RunNumber,
		RunAttempt:   claims.RunAttempt,
	}

	for i := range files {
		files[i].UserID = link.UserID
		files[i].ClassID = link.ClassID
	}

	if err := s.submissions.CreateWithFiles(ctx, &submission, files); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A retried CI run re-delivers the same identity tuple; the
			// earlier record wins and the retry succeeds idempotently.
			existing, lookupErr := s.submissions.GetByCIIdentity(ctx, claims.Repository, claims.SHA, claims.RunNumber, claims.RunAttempt)
			if lookupErr != nil {
				return dto.IntakeResponse{}, lookupErr
			}
			auditLog.Info().Uint("submission_id", existing.ID).Msg("duplicate intake resolved to existing submission")
			return dto.IntakeResponse{GraderURL: graderURL(config)}, nil
		}
		return dto.IntakeResponse{}, err
	}

	auditLog.Info().Uint("submission_id", submission.ID).Int("files", len(files)).Msg("submission recorded")
	observability.SubmissionsRecorded().Inc()

	s.publisher.SubmissionReceived(events.SubmissionReceivedEvent{
		SubmissionID: submission.ID,
		AssignmentID: submission.AssignmentID,
		UserID:       submission.UserID,
		Repository:   submission.Repository,
		SHA:          submission.SHA,
	})

	return dto.IntakeResponse{GraderURL: graderURL(config)}, nil
}

// graderURL is the dispatch endpoint of the assignment's grader repository.
// The CI job invokes it on completion to start the grading run.
func graderURL(config models.AssignmentGraderConfig) string {
	return fmt.Sprintf("https://api.github.com/repos/%s/dispatches", config.GraderRepository)
}

// graderConfig serves the assignment's grading contract, through the cache
// when one is configured. Configs are immutable once referenced, so a short
// TTL only bounds staleness of brand-new assignments.
func (s *intakeService) graderConfig(ctx context.Context, assignmentID uint) (models.AssignmentGraderConfig, error) {
	cacheKey := fmt.Sprintf("gradehub:grader_config:%d", assignmentID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var config models.AssignmentGraderConfig
			if unmarshalErr := json.Unmarshal([]byte(cached), &config); unmarshalErr == nil {
				return config, nil
			}
		}
	}

	config, err := s.assignments.GetGraderConfig(ctx, assignmentID)
	if err != nil {
		return models.AssignmentGraderConfig{}, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(config); err == nil {
			ttl := s.cfg.GraderConfigCacheTTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			if err := s.cache.Set(ctx, cacheKey, encoded, ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache grader config")
			}
		}
	}

	return config, nil
}

func (s *intakeService) verifyWorkflowDigest(auditLog zerolog.Logger, entries []archive.Entry, config models.AssignmentGraderConfig) error {
	var workflow *archive.Entry
	for i := range entries {
		if entries[i].Path == s.cfg.WorkflowPath {
			workflow = &entries[i]
			break
		}
	}
	if workflow == nil {
		return &UserVisibleError{Message: "workflow file missing: " + s.cfg.WorkflowPath}
	}

	sum := sha256.Sum256(workflow.Data)
	digest := hex.EncodeToString(sum[:])
	expected := strings.ToLower(config.ExpectedWorkflowDigest)

	if subtle.ConstantTimeCompare([]byte(digest), []byte(expected)) != 1 {
		auditLog.Error().
			Str("expected_digest", expected).
			Str("actual_digest", digest).
			Msg("workflow digest mismatch")
		observability.SecurityRejections().WithLabelValues("workflow_digest_mismatch").Inc()
		return &SecurityError{Reason: "workflow digest mismatch"}
	}

	return nil
}

// extractDeclaredFiles matches the assignment's declared file list against the
// snapshot with exact-set semantics: every declared path resolves to exactly
// one entry and nothing else is taken.
func extractDeclaredFiles(entries []archive.Entry, declared []string) ([]models.SubmissionFile, error) {
	if len(declared) == 0 {
		return nil, &UserVisibleError{Message: "assignment declares no submission files"}
	}

	byPath := make(map[string][]archive.Entry, len(entries))
	for _, entry := range entries {
		byPath[entry.Path] = append(byPath[entry.Path], entry)
	}

	files := make([]models.SubmissionFile, 0, len(declared))
	seen := make(map[string]struct{}, len(declared))
	for _, path := range declared {
		if _, dup := seen[path]; dup {
			return nil, &UserVisibleError{Message: "assignment declares duplicate submission file: " + path}
		}
		seen[path] = struct{}{}

		matches := byPath[path]
		switch {
		case len(matches) == 0:
			return nil, &UserVisibleError{Message: "declared submission file missing: " + path}
		case len(matches) > 1:
			return nil, &UserVisibleError{Message: "declared submission file is ambiguous: " + path}
		}

		data := matches[0].Data
		if !utf8.Valid(data) {
			detected := mimetype.Detect(data)
			return nil, &UserVisibleError{
				Message: fmt.Sprintf("submission file %s is not UTF-8 text (detected %s)", path, detected.String()),
			}
		}

		files = append(files, models.SubmissionFile{
			Name:     path,
			Contents: string(data),
		})
	}

	return files, nil
}
