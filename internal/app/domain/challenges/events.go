package challenges

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/app/observability/metrics"
)

// CompletedSubject is the NATS subject completion events are published on.
const CompletedSubject = "challenges.completed"

const eventHandlerTimeout = 30 * time.Second

// CompletionHandler reacts to a challengeCompleted event.
type CompletionHandler func(ctx context.Context, evt models.ChallengeCompletedEvent) error

// Publisher announces completed challenges.
type Publisher interface {
	PublishCompleted(ctx context.Context, evt models.ChallengeCompletedEvent) error
}

// LocalEvents dispatches completion events in-process. It is used when no NATS server is
// configured.
type LocalEvents struct {
	handler CompletionHandler
	logger  *zap.Logger
}

func NewLocalEvents(handler CompletionHandler, logger *zap.Logger) *LocalEvents {
	return &LocalEvents{handler: handler, logger: logger}
}

// PublishCompleted runs the handler in the background, detached from the request context.
func (e *LocalEvents) PublishCompleted(ctx context.Context, evt models.ChallengeCompletedEvent) error {
	metrics.Get().CompletionEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "local")))
	go func() {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventHandlerTimeout)
		defer cancel()
		if err := e.handler(hctx, evt); err != nil {
			e.logger.Warn("Completion handler failed",
				zap.String("user_id", evt.UserID),
				zap.String("challenge_id", evt.ChallengeID),
				zap.Error(err))
		}
	}()
	return nil
}

// NATSEvents publishes completion events on NATS so every instance can refresh its viewers.
type NATSEvents struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSEvents(conn *nats.Conn, logger *zap.Logger) *NATSEvents {
	return &NATSEvents{conn: conn, subject: CompletedSubject, logger: logger}
}

func (e *NATSEvents) PublishCompleted(ctx context.Context, evt models.ChallengeCompletedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode completion event: %w", err)
	}
	if err := e.conn.Publish(e.subject, data); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}
	metrics.Get().CompletionEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "nats")))
	return nil
}

// Subscribe feeds every event on the subject to handler. Undecodable messages are dropped.
func (e *NATSEvents) Subscribe(handler CompletionHandler) (*nats.Subscription, error) {
	sub, err := e.conn.Subscribe(e.subject, func(msg *nats.Msg) {
		var evt models.ChallengeCompletedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			e.logger.Warn("Dropping malformed completion event", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventHandlerTimeout)
		defer cancel()
		if err := handler(ctx, evt); err != nil {
			e.logger.Warn("Completion handler failed",
				zap.String("user_id", evt.UserID),
				zap.String("challenge_id", evt.ChallengeID),
				zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", e.subject, err)
	}
	return sub, nil
}
