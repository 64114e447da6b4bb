package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Disposition tells the subscriber what to do with a message.
type Disposition int

const (
	// Ack removes the message from the subscription.
	Ack Disposition = iota

	// Nack asks Pub/Sub to redeliver the message later.
	Nack
)

// Dispatcher decodes job messages and runs them.
type Dispatcher struct {
	runner *Runner
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(runner *Runner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{runner: runner, logger: logger}
}

// Dispatch runs the job encoded in data. Malformed and unknown messages are
// acked so they are not redelivered forever; a job that finds another run
// active is acked as well, since that run produces the same result. Other
// failures are nacked for redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) Disposition {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		d.logger.Error().Err(err).Msg("failed to parse message")
		return Ack
	}

	_, err := d.runner.Run(ctx, job)
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrUnknownJob):
		d.logger.Warn().Str("job_type", string(job.Type)).Msg("unknown job type")
		return Ack
	case isBusy(err):
		d.logger.Info().Str("job_type", string(job.Type)).Msg("another run is active, dropping job")
		return Ack
	default:
		return Nack
	}
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger

	// MaxOutstandingMessages bounds concurrent jobs. Jobs serialize on the
	// pipeline lock anyway. Default: 1
	MaxOutstandingMessages int
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if cfg.MaxOutstandingMessages < 1 {
		cfg.MaxOutstandingMessages = 1
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	// A full collection takes minutes; keep extending the ack deadline.
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Hour

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()
		logger.Debug().Msg("received pubsub message")

		if h.dispatcher.Dispatch(ctx, msg.Data) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}
