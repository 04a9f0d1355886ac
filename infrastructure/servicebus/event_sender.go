package servicebus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"socialops/domain/dto"
	"socialops/infrastructure/logger"
)

type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// NewClient connects with a connection string when one is given, otherwise to
// the fully qualified namespace using the default Azure credential chain.
func NewClient(namespace string) (*azservicebus.Client, error) {
	if strings.HasPrefix(namespace, "Endpoint=") {
		return azservicebus.NewClientFromConnectionString(namespace, nil)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(namespace, cred, nil)
}

// EventSender forwards publication events to a Service Bus queue.
type EventSender struct {
	sender messageSender
}

func NewEventSender(client *azservicebus.Client, queueName string) (*EventSender, error) {
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return nil, err
	}
	return &EventSender{sender: sender}, nil
}

func (s *EventSender) Notify(ctx context.Context, evt dto.PublicationEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	contentType := "application/json"
	subject := evt.Type
	messageID := evt.EventID
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		MessageID:   &messageID,
		ApplicationProperties: map[string]any{
			"platform": evt.Platform.String(),
			"status":   string(evt.Status),
			"user_id":  evt.UserID,
		},
	}
	return s.sender.SendMessage(ctx, msg, nil)
}

func (s *EventSender) Close(ctx context.Context) {
	if err := s.sender.Close(ctx); err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while closing sender.")
	}
}
