package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gudax/autobot"
)

type EventService struct {
	client *Client
	logger autobot.Logger
}

func NewEventService(client *Client, logger autobot.Logger) *EventService {
	return &EventService{client, logger}
}

// Publish emits the event without blocking the caller. Delivery failures
// are logged and otherwise ignored; trading flow never depends on the
// event stream.
func (es *EventService) Publish(event *autobot.Event) {
	es.publishOnEventsTopic(context.TODO(), event)
}

func (es *EventService) publishOnEventsTopic(
	ctx context.Context,
	event *autobot.Event,
) {
	topicLogger := es.logger.WithField("topic", "events")

	messageData, err := json.Marshal(&eventMessage{
		Type:      event.Type.String(),
		AccountID: event.AccountID.String(),
		Time:      event.Time,
		Payload:   event.Payload,
	})
	if err != nil {
		topicLogger.Errorf("could not marshal account event: [%v]", err)
		return
	}

	es.publishOnTopic(ctx, es.client.eventsTopic, messageData, topicLogger)
}

func (es *EventService) publishOnTopic(
	ctx context.Context,
	topic *pubsub.Topic,
	messageData []byte,
	topicLogger autobot.Logger,
) {
	result := topic.Publish(ctx, &pubsub.Message{
		Data: messageData,
	})

	go func() {
		id, err := result.Get(ctx)
		if err != nil {
			topicLogger.Errorf(
				"could not publish account event: [%v]",
				err,
			)
			return
		}

		topicLogger.Infof("published account event with ID: [%v]", id)
	}()
}

type eventMessage struct {
	Type      string      `json:"type"`
	AccountID string      `json:"accountId"`
	Time      time.Time   `json:"time"`
	Payload   interface{} `json:"payload"`
}
