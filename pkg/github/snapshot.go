// Package github fetches repository snapshots from the Git hosting provider.
// The pipeline treats the provider as opaque: any failure surfaces as a
// retryable ErrSnapshotUnavailable.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/rs/zerolog"
)

// ErrSnapshotUnavailable indicates the provider could not serve the archive
// for the requested commit. Safe for the CI side to retry.
var ErrSnapshotUnavailable = errors.New("repository snapshot unavailable")

// SnapshotClient downloads an archive of a repository tree at a commit.
type SnapshotClient interface {
	Download(ctx context.Context, repoFullName, sha string) ([]byte, error)
}

// Config configures access to the hosting provider.
type Config struct {
	// Token authenticates archive downloads for private student repositories.
	Token string
	// Timeout bounds a single snapshot fetch end to end.
	Timeout time.Duration
}

type snapshotClient struct {
	client  *github.Client
	httpc   *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New builds a SnapshotClient backed by the hosting provider's archive API.
func New(cfg Config, logger zerolog.Logger) SnapshotClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := github.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}

	return &snapshotClient{
		client:  client,
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.With().Str("component", "snapshot_client").Logger(),
	}
}

func (c *snapshotClient) Download(ctx context.Context, repoFullName, sha string) ([]byte, error) {
	owner, name, err := splitFullName(repoFullName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	link, _, err := c.client.Repositories.GetArchiveLink(ctx, owner, name, github.Tarball,
		&github.RepositoryContentGetOptions{Ref: sha}, true)
	if err != nil {
		c.logger.Warn().Err(err).Str("repository", repoFullName).Str("sha", sha).Msg("archive link lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("repository", repoFullName).Msg("archive download failed")
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: archive endpoint returned %d", ErrSnapshotUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	return raw, nil
}

func splitFullName(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed repository name %q", ErrSnapshotUnavailable, fullName)
	}
	return parts[0], parts[1], nil
}
