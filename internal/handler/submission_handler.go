package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradehub-go-api/internal/archive"
	"github.com/noah-isme/gradehub-go-api/internal/middleware"
	"github.com/noah-isme/gradehub-go-api/internal/service"
	"github.com/noah-isme/gradehub-go-api/internal/utils"
	ghclient "github.com/noah-isme/gradehub-go-api/pkg/github"
	"github.com/noah-isme/gradehub-go-api/pkg/oidc"
)

// SubmissionHandler serves the two CI grading callbacks.
type SubmissionHandler struct {
	intake   service.IntakeService
	feedback service.FeedbackService
	logger   zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(intake service.IntakeService, feedback service.FeedbackService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		intake:   intake,
		feedback: feedback,
		logger:   logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Post("/feedback", h.ingestFeedback)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.intake.Intake(c.Context(), token)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *SubmissionHandler) ingestFeedback(c *fiber.Ctx) error {
	token, err := bearerToken(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.feedback.Ingest(c.Context(), token, c.Body())
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var securityErr *service.SecurityError
	var userErr *service.UserVisibleError

	switch {
	case errors.Is(err, oidc.ErrTokenInvalid):
		return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
	case errors.As(err, &securityErr):
		// Detail stays in the audit log; the caller learns nothing useful.
		h.logger.Error().Str("correlation_id", middleware.GetCorrelationID(c)).Str("reason", securityErr.Reason).Msg("request rejected at trust boundary")
		return utils.SendError(c, fiber.StatusForbidden, "submission rejected")
	case errors.As(err, &userErr):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, userErr.Message)
	case errors.Is(err, service.ErrDuplicateFeedback):
		return utils.SendError(c, fiber.StatusConflict, "feedback already recorded")
	case errors.Is(err, ghclient.ErrSnapshotUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "repository snapshot temporarily unavailable")
	case errors.Is(err, archive.ErrMalformedArchive):
		h.logger.Error().Err(err).Msg("snapshot archive unreadable")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		return "", errors.New("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", errors.New("invalid token")
	}

	return token, nil
}
