package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

const (
	streamName    = "WORKSPACE"
	subjectPrefix = "workspace.events"
)

// EventPublisher writes workspace lifecycle events to a JetStream stream so
// downstream consumers (audit, analytics) can follow what happened. A nil
// publisher is valid and drops every event, which is how the service runs
// when no NATS URL is configured.
type EventPublisher struct {
	js     jetstream.JetStream
	logger *logger.Logger
}

// NewEventPublisher ensures the workspace event stream exists and returns a
// publisher bound to it.
func NewEventPublisher(ctx context.Context, client *Client, log *logger.Logger) (*EventPublisher, error) {
	js := client.JetStream()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure event stream: %w", err)
	}

	return &EventPublisher{js: js, logger: log}, nil
}

// Publish emits one workspace event. Failures are logged, not returned:
// the event feed is advisory and must never fail a user request.
func (p *EventPublisher) Publish(ctx context.Context, event model.WorkspaceEvent) {
	if p == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode workspace event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, event.TenantID, event.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.Warn("failed to publish workspace event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
