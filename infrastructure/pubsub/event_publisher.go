package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"socialops/domain/dto"
	"socialops/infrastructure/logger"
)

// NewClient connects to Pub/Sub for projectID using application default
// credentials.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id not configured")
	}
	return pubsub.NewClient(ctx, projectID)
}

// EventPublisher forwards publication events to a Google Pub/Sub topic.
type EventPublisher struct {
	topicID string
	publish func(ctx context.Context, msg *pubsub.Message) (string, error)
	// resume unpauses an ordering key after a failed publish.
	resume func(orderingKey string)
}

func NewEventPublisher(client *pubsub.Client, topicID string) *EventPublisher {
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	return &EventPublisher{
		topicID: topicID,
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return topic.Publish(ctx, msg).Get(ctx)
		},
		resume: topic.ResumePublish,
	}
}

// Notify publishes evt and waits for the server id. Events for one user are
// ordered; a failure resumes the user's ordering key so later events still go
// out.
func (p *EventPublisher) Notify(ctx context.Context, evt dto.PublicationEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id": evt.EventID,
			"type":     evt.Type,
			"platform": evt.Platform.String(),
			"status":   string(evt.Status),
		},
		OrderingKey: evt.UserID,
	}
	serverID, err := p.publish(ctx, msg)
	if err != nil {
		if p.resume != nil && msg.OrderingKey != "" {
			p.resume(msg.OrderingKey)
		}
		return fmt.Errorf("publish to %s: %w", p.topicID, err)
	}
	logger.GetLogger().
		WithField("server_id", serverID).
		WithField("event_id", evt.EventID).
		Debug("Publication event published")
	return nil
}
