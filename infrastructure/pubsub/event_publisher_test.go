package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"

	"socialops/domain/dto"
	"socialops/domain/model"
)

func TestEventPublisher_Notify(t *testing.T) {
	var got *pubsub.Message
	p := &EventPublisher{
		topicID: "publication-events",
		publish: func(_ context.Context, msg *pubsub.Message) (string, error) {
			got = msg
			return "srv-1", nil
		},
	}
	evt := dto.PublicationEvent{
		EventID:    "evt-1",
		Type:       "publication.published",
		UserID:     "user-1",
		PostID:     "post-1",
		TargetID:   7,
		Platform:   model.PlatformTwitter,
		Status:     model.PublicationPublished,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, p.Notify(context.Background(), evt))
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.OrderingKey)
	require.Equal(t, "twitter", got.Attributes["platform"])
	require.Equal(t, "published", got.Attributes["status"])

	var decoded dto.PublicationEvent
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	require.Equal(t, evt, decoded)
}

func TestEventPublisher_NotifyError(t *testing.T) {
	var resumed []string
	p := &EventPublisher{
		topicID: "publication-events",
		publish: func(context.Context, *pubsub.Message) (string, error) {
			return "", errors.New("unavailable")
		},
		resume: func(key string) { resumed = append(resumed, key) },
	}
	err := p.Notify(context.Background(), dto.PublicationEvent{EventID: "evt-2"})
	require.ErrorContains(t, err, "publication-events")
	require.ErrorContains(t, err, "unavailable")
	require.Empty(t, resumed)
}

func TestEventPublisher_FailureResumesOrderingKey(t *testing.T) {
	var resumed []string
	fail := true
	p := &EventPublisher{
		topicID: "publication-events",
		publish: func(context.Context, *pubsub.Message) (string, error) {
			if fail {
				return "", errors.New("unavailable")
			}
			return "srv-2", nil
		},
		resume: func(key string) { resumed = append(resumed, key) },
	}
	evt := dto.PublicationEvent{EventID: "evt-3", UserID: "user-1"}

	require.Error(t, p.Notify(context.Background(), evt))
	require.Equal(t, []string{"user-1"}, resumed)

	fail = false
	require.NoError(t, p.Notify(context.Background(), evt))
	require.Len(t, resumed, 1)
}
