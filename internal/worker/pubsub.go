package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	runner           *BatchRunner
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Runner           *BatchRunner
	Logger           zerolog.Logger
}

// JobMessage is the payload of a forecast batch message.
type JobMessage struct {
	Jobs        []Job     `json:"jobs"`
	RequestedAt time.Time `json:"requestedAt,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A batch can take several minutes; keep the lease extended.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		runner:           cfg.Runner,
		logger:           cfg.Logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if Process(ctx, h.runner, msg.Data, logger) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Process runs the batch in data and reports whether the message should be
// acknowledged. Malformed payloads are acknowledged since redelivery cannot
// fix them. A batch is redelivered when nothing succeeded and at least one
// failure was transient.
func Process(ctx context.Context, runner *BatchRunner, data []byte, logger zerolog.Logger) bool {
	startTime := time.Now()
	logger.Debug().Int("bytes", len(data)).Msg("received pubsub message")

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message, dropping")
		return true
	}
	if len(msg.Jobs) == 0 {
		logger.Warn().Msg("message carries no jobs, dropping")
		return true
	}

	result := runner.Run(ctx, msg.Jobs)

	if result.Succeeded == 0 && result.Transient > 0 {
		logger.Error().
			Int("failed", result.Failed).
			Int("transient", result.Transient).
			Msg("batch failed, requesting redelivery")
		return false
	}

	logger.Info().
		Int("jobs", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("duration", time.Since(startTime)).
		Msg("batch completed")
	return true
}
