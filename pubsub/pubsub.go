package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub"
)

type Client struct {
	eventsTopic *pubsub.Topic
}

func NewClient(
	ctx context.Context,
	projectID,
	eventsTopicID string,
) (*Client, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &Client{
		eventsTopic: client.Topic(eventsTopicID),
	}, nil
}
