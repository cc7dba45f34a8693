package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-eventflow/eventflow"
	"github.com/LerianStudio/lib-eventflow/eventflow/internal/nilcheck"
)

var (
	// ErrChannelRequired indicates the enqueuer was built without an AMQP
	// channel.
	ErrChannelRequired = errors.New("rabbitmq channel is required")

	// ErrRoutingKeyRequired indicates the enqueuer was built without a
	// routing key.
	ErrRoutingKeyRequired = errors.New("routing key is required")
)

const defaultContentType = "application/json"

// Channel is the subset of the AMQP channel the enqueuer needs. *amqp.Channel
// satisfies it.
type Channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
}

// BatchEnqueuer implements eventflow.TaskQueue by publishing batch jobs to a
// RabbitMQ exchange as persistent JSON messages.
type BatchEnqueuer struct {
	channel    Channel
	logger     *zap.Logger
	exchange   string
	routingKey string
}

var _ eventflow.TaskQueue = (*BatchEnqueuer)(nil)

// EnqueuerOption customizes the enqueuer.
type EnqueuerOption func(*BatchEnqueuer)

// WithEnqueuerLogger sets the enqueuer logger.
func WithEnqueuerLogger(logger *zap.Logger) EnqueuerOption {
	return func(enqueuer *BatchEnqueuer) {
		if logger != nil {
			enqueuer.logger = logger
		}
	}
}

// WithExchange sets the target exchange. Empty means the default exchange,
// where the routing key addresses a queue directly.
func WithExchange(exchange string) EnqueuerOption {
	return func(enqueuer *BatchEnqueuer) {
		enqueuer.exchange = exchange
	}
}

// NewBatchEnqueuer creates a RabbitMQ batch job enqueuer.
func NewBatchEnqueuer(channel Channel, routingKey string, opts ...EnqueuerOption) (*BatchEnqueuer, error) {
	if nilcheck.Interface(channel) {
		return nil, ErrChannelRequired
	}

	if routingKey == "" {
		return nil, ErrRoutingKeyRequired
	}

	enqueuer := &BatchEnqueuer{
		channel:    channel,
		logger:     zap.NewNop(),
		routingKey: routingKey,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(enqueuer)
		}
	}

	return enqueuer, nil
}

// EnqueueBatch publishes one batch job message.
func (enqueuer *BatchEnqueuer) EnqueueBatch(ctx context.Context, job eventflow.BatchJob) error {
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding batch job: %w", err)
	}

	message := amqp.Publishing{
		ContentType:  defaultContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := enqueuer.channel.PublishWithContext(
		ctx, enqueuer.exchange, enqueuer.routingKey, false, false, message,
	); err != nil {
		return fmt.Errorf("publishing batch job: %w", err)
	}

	enqueuer.logger.Debug("outbox batch job enqueued",
		zap.String("exchange", enqueuer.exchange),
		zap.String("routing_key", enqueuer.routingKey),
		zap.Int("batch_size", job.BatchSize),
	)

	return nil
}
