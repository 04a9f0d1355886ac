package servicebus

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/require"

	"socialops/domain/dto"
	"socialops/domain/model"
)

type fakeSender struct {
	sent   []*azservicebus.Message
	err    error
	closed bool
}

func (f *fakeSender) SendMessage(_ context.Context, m *azservicebus.Message, _ *azservicebus.SendMessageOptions) error {
	f.sent = append(f.sent, m)
	return f.err
}

func (f *fakeSender) Close(context.Context) error {
	f.closed = true
	return nil
}

func TestEventSender_Notify(t *testing.T) {
	fake := &fakeSender{}
	s := &EventSender{sender: fake}
	evt := dto.PublicationEvent{
		EventID:  "evt-1",
		Type:     "publication.failed",
		UserID:   "user-1",
		Platform: model.PlatformLinkedIn,
		Status:   model.PublicationFailed,
	}

	require.NoError(t, s.Notify(context.Background(), evt))
	require.Len(t, fake.sent, 1)
	msg := fake.sent[0]
	require.Equal(t, "evt-1", *msg.MessageID)
	require.Equal(t, "publication.failed", *msg.Subject)
	require.Equal(t, "linkedin", msg.ApplicationProperties["platform"])
	require.Equal(t, "user-1", msg.ApplicationProperties["user_id"])
	require.Contains(t, string(msg.Body), `"status":"failed"`)

	s.Close(context.Background())
	require.True(t, fake.closed)
}

func TestEventSender_NotifyError(t *testing.T) {
	s := &EventSender{sender: &fakeSender{err: errors.New("link detached")}}
	require.EqualError(t, s.Notify(context.Background(), dto.PublicationEvent{}), "link detached")
}
