// Package oidc verifies the identity tokens the CI system attaches to its
// grading callbacks. Every call is a fresh, self-contained verification; no
// trust is carried between the intake and feedback callbacks.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// ErrTokenInvalid indicates the bearer token failed verification. The cause is
// logged, never returned to the caller.
var ErrTokenInvalid = errors.New("invalid identity token")

// Claims are the trusted assertions extracted from a verified token.
type Claims struct {
	Repository  string
	SHA         string
	WorkflowRef string
	RunID       int64
	RunNumber   int64
	RunAttempt  int64
}

// Verifier checks a CI-issued bearer token and extracts its claims.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (Claims, error)
}

// Config describes the trusted token issuer.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

type verifier struct {
	issuer   string
	audience string
	keyfunc  jwt.Keyfunc
	logger   zerolog.Logger
}

// New builds a Verifier backed by the issuer's published signing keys. The key
// set refreshes in the background for the lifetime of ctx.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Verifier, error) {
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("oidc issuer and audience must be provided")
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = cfg.Issuer + "/.well-known/jwks"
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	return NewWithKeyfunc(cfg, kf.Keyfunc, logger), nil
}

// NewWithKeyfunc builds a Verifier with an explicit key resolver. Used by tests
// to avoid network access to the issuer.
func NewWithKeyfunc(cfg Config, fn jwt.Keyfunc, logger zerolog.Logger) Verifier {
	return &verifier{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		keyfunc:  fn,
		logger:   logger.With().Str("component", "oidc_verifier").Logger(),
	}
}

func (v *verifier) Verify(_ context.Context, bearerToken string) (Claims, error) {
	if bearerToken == "" {
		return Claims{}, ErrTokenInvalid
	}

	token, err := jwt.Parse(bearerToken, v.keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		v.logger.Warn().Err(err).Msg("token verification failed")
		return Claims{}, ErrTokenInvalid
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}

	claims := Claims{}
	fields := []struct {
		name   string
		target *string
	}{
		{"repository", &claims.Repository},
		{"sha", &claims.SHA},
		{"workflow_ref", &claims.WorkflowRef},
	}
	for _, field := range fields {
		value, ok := mapClaims[field.name].(string)
		if !ok || value == "" {
			v.logger.Warn().Str("claim", field.name).Msg("required claim missing")
			return Claims{}, ErrTokenInvalid
		}
		*field.target = value
	}

	numbers := []struct {
		name   string
		target *int64
	}{
		{"run_id", &claims.RunID},
		{"run_number", &claims.RunNumber},
		{"run_attempt", &claims.RunAttempt},
	}
	for _, field := range numbers {
		value, ok := mapClaims[field.name]
		if !ok {
			v.logger.Warn().Str("claim", field.name).Msg("required claim missing")
			return Claims{}, ErrTokenInvalid
		}
		parsed, err := normalizeNumericClaim(value)
		if err != nil {
			v.logger.Warn().Str("claim", field.name).Err(err).Msg("claim is not numeric")
			return Claims{}, ErrTokenInvalid
		}
		*field.target = parsed
	}

	return claims, nil
}

// normalizeNumericClaim tolerates issuers encoding run identifiers as either
// JSON numbers or decimal strings.
func normalizeNumericClaim(value interface{}) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported claim type %T", value)
	}
}
