package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/rabbitmq/amqp091-go"
)

type ConsumerConfig struct {
	URL           string
	Exchanges     []string
	Queue         string
	RoutingKeys   []string
	ConsumerTag   string
	PrefetchCount int
	Auth          AuthConfig
}

func (c ConsumerConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	if c.Queue == "" {
		return fmt.Errorf("rabbitmq queue is required")
	}
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("rabbitmq exchanges is required")
	}
	if c.PrefetchCount < 1 {
		return fmt.Errorf("rabbitmq prefetch_count must be >= 1")
	}
	return nil
}

// Consumer delivers queue messages to a stream.BatchHandler one at a time, in queue order.
// A handled message is acked; a failed one is nacked and requeued.
type Consumer struct {
	cfg     ConsumerConfig
	handler stream.BatchHandler
}

func NewConsumer(cfg ConsumerConfig, handler stream.BatchHandler) (*Consumer, error) {
	if cfg.PrefetchCount == 0 {
		cfg.PrefetchCount = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("rabbitmq consumer handler is required")
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "eventbridge-projection"
	}
	return &Consumer{cfg: cfg, handler: handler}, nil
}

// Start consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := dial(c.cfg.URL, c.cfg.Auth)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	routingKeys := c.cfg.RoutingKeys
	if len(routingKeys) == 0 {
		routingKeys = []string{"#"}
	}
	for _, exchange := range c.cfg.Exchanges {
		if err := declareExchange(ch, exchange); err != nil {
			return err
		}
		for _, key := range routingKeys {
			if err := ch.QueueBind(c.cfg.Queue, key, exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue exchange=%s key=%s: %w", exchange, key, err)
			}
		}
	}

	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	slog.Info("[RabbitMQ] Consumer started", "queue", c.cfg.Queue, "exchanges", c.cfg.Exchanges)

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(c.cfg.ConsumerTag, false)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			c.processDelivery(ctx, d)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp091.Delivery) {
	rec := stream.Record{
		Stream:         d.Exchange,
		PartitionKey:   headerString(d.Headers, HeaderPartitionKey),
		SequenceNumber: strconv.FormatUint(d.DeliveryTag, 10),
		Data:           d.Body,
	}
	n, err := c.handler.HandleBatch(ctx, []stream.Record{rec})
	if err != nil || n < 1 {
		slog.Warn("[RabbitMQ] Delivery failed, requeued",
			"exchange", d.Exchange,
			"routing_key", d.RoutingKey,
			"delivery_tag", d.DeliveryTag,
			"error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func headerString(table amqp091.Table, key string) string {
	if table == nil {
		return ""
	}
	v, ok := table[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}
