package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"cloud.google.com/go/pubsub"
	"github.com/gudax/autobot"
)

// SignalListener feeds signals published on a Pub/Sub subscription into
// the order orchestrator.
type SignalListener struct {
	logger       autobot.Logger
	subscription *pubsub.Subscription
	orchestrator *autobot.OrderOrchestrator
}

func RunSignalListener(
	ctx context.Context,
	logger autobot.Logger,
	projectID string,
	subscriptionID string,
	orchestrator *autobot.OrderOrchestrator,
) (*SignalListener, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	listener := &SignalListener{
		logger:       logger.WithField("subscription", subscriptionID),
		subscription: client.Subscription(subscriptionID),
		orchestrator: orchestrator,
	}

	go listener.listen(ctx)

	return listener, nil
}

func (sl *SignalListener) listen(ctx context.Context) {
	sl.logger.Infof("listening for signals")

	err := sl.subscription.Receive(ctx, sl.handleMessage)
	if err != nil && ctx.Err() == nil {
		sl.logger.Errorf("signal subscription terminated: [%v]", err)
	}
}

func (sl *SignalListener) handleMessage(
	ctx context.Context,
	message *pubsub.Message,
) {
	// A message is always acked: a signal that cannot be parsed or
	// executed now will not fare better on redelivery.
	defer message.Ack()

	signal, err := parseSignalMessage(message.Data)
	if err != nil {
		sl.logger.Errorf("could not parse signal message: [%v]", err)
		return
	}

	report, err := sl.orchestrator.ExecuteSignal(ctx, signal)
	if err != nil {
		sl.logger.Errorf("could not execute signal: [%v]", err)
		return
	}

	sl.logger.Infof(
		"signal [%v] executed on [%v] accounts, failed on [%v]",
		report.SignalID,
		report.ExecutedCount,
		report.FailedCount,
	)
}

type signalMessage struct {
	Action     string   `json:"action"`
	Symbol     string   `json:"symbol"`
	Volume     *float64 `json:"volume"`
	EntryPrice *float64 `json:"entryPrice"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
	Strength   *float64 `json:"strength"`
	Reason     string   `json:"reason"`
}

func parseSignalMessage(data []byte) (*autobot.Signal, error) {
	var payload signalMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf(
			"could not unmarshal signal message: [%v]",
			err,
		)
	}

	action, err := autobot.ParseSignalAction(payload.Action)
	if err != nil {
		return nil, err
	}

	return &autobot.Signal{
		Action:     action,
		Symbol:     payload.Symbol,
		Volume:     optionalBigFloat(payload.Volume),
		EntryPrice: optionalBigFloat(payload.EntryPrice),
		StopLoss:   optionalBigFloat(payload.StopLoss),
		TakeProfit: optionalBigFloat(payload.TakeProfit),
		Strength:   optionalBigFloat(payload.Strength),
		Reason:     payload.Reason,
	}, nil
}

func optionalBigFloat(value *float64) *big.Float {
	if value == nil {
		return nil
	}

	return big.NewFloat(*value)
}
