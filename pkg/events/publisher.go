// Package events publishes submission lifecycle notifications for the
// presentation tier. Publishing is best-effort: a missing broker or a failed
// publish never fails the request that triggered it.
package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubmissionReceivedEvent announces a newly recorded submission.
type SubmissionReceivedEvent struct {
	SubmissionID uint   `json:"submission_id"`
	AssignmentID uint   `json:"assignment_id"`
	UserID       uint   `json:"user_id"`
	Repository   string `json:"repository"`
	SHA          string `json:"sha"`
}

// SubmissionGradedEvent announces ingested feedback for a submission.
type SubmissionGradedEvent struct {
	SubmissionID uint    `json:"submission_id"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
}

// Publisher emits events over NATS. A nil Publisher is valid and drops
// everything, so callers never need to branch on whether a broker is
// configured.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewPublisher wraps a NATS connection. subjectBase prefixes every subject,
// e.g. "gradehub" yields "gradehub.submission.received".
func NewPublisher(conn *nats.Conn, subjectBase string, logger zerolog.Logger) *Publisher {
	if conn == nil {
		return nil
	}
	if subjectBase == "" {
		subjectBase = "gradehub"
	}
	return &Publisher{
		conn:    conn,
		subject: subjectBase,
		logger:  logger.With().Str("component", "events_publisher").Logger(),
	}
}

// SubmissionReceived publishes the intake event.
func (p *Publisher) SubmissionReceived(event SubmissionReceivedEvent) {
	p.publish("submission.received", event)
}

// SubmissionGraded publishes the feedback event.
func (p *Publisher) SubmissionGraded(event SubmissionGradedEvent) {
	p.publish("submission.graded", event)
}

func (p *Publisher) publish(suffix string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event", suffix).Msg("failed to encode event")
		return
	}

	if err := p.conn.Publish(p.subject+"."+suffix, data); err != nil {
		p.logger.Warn().Err(err).Str("event", suffix).Msg("failed to publish event")
	}
}
