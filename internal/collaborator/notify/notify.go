// Package notify is the outbound-notification collaborator. Deliveries are
// fire-and-forget: the registry core never blocks or fails a transition on
// a notification, so implementations swallow their own errors.
package notify

import (
	"context"
	"log/slog"

	"registra/pkg/domain"
)

type ChallengeNotification struct {
	EntityID   domain.EntityID
	Domain     string
	RecordName string
	Token      string
}

type DecisionNotification struct {
	RequestID  domain.RequestID
	EndpointID domain.EndpointID
	ConsumerID domain.EntityID
	Outcome    string
	Reason     string
}

type Notifier interface {
	ChallengeCreated(ctx context.Context, n ChallengeNotification)
	AccessDecided(ctx context.Context, n DecisionNotification)
}

// LogNotifier writes notifications to the structured log. It stands in for
// the real mail integration in development and in tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ChallengeCreated(ctx context.Context, c ChallengeNotification) {
	n.logger.InfoContext(ctx, "domain challenge notification",
		"entity_id", c.EntityID.String(),
		"domain", c.Domain,
		"record_name", c.RecordName,
	)
}

func (n *LogNotifier) AccessDecided(ctx context.Context, d DecisionNotification) {
	n.logger.InfoContext(ctx, "access decision notification",
		"request_id", d.RequestID.String(),
		"endpoint_id", d.EndpointID.String(),
		"consumer_id", d.ConsumerID.String(),
		"outcome", d.Outcome,
	)
}
