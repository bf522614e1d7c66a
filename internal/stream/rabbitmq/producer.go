package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/aevon-lab/eventbridge/internal/core/partition"
	"github.com/rabbitmq/amqp091-go"
)

// HeaderPartitionKey carries the original partition key of a message.
const HeaderPartitionKey = "partition_key"

type ProducerConfig struct {
	URL  string
	Auth AuthConfig
}

type AuthConfig struct {
	Username string
	Password string
}

func (c ProducerConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	return nil
}

// Producer publishes records to a topic exchange named after the stream.
//
// The routing key is the partition bucket of the partition key, so one queue bound
// per bucket range receives every record of a key in order. Publishes wait for the
// broker confirm. The connection is opened on first use and shared; a broken
// connection is dropped and reopened by the next Publish.
type Producer struct {
	cfg ProducerConfig

	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	declared map[string]bool

	publish func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Producer{cfg: cfg, declared: make(map[string]bool)}
	p.publish = p.publishConfirmed
	return p, nil
}

// RoutingKey returns the routing key used for a partition key.
func RoutingKey(partitionKey string) string {
	return strconv.Itoa(partition.Bucket(partitionKey))
}

func (p *Producer) Publish(ctx context.Context, partitionKey, streamName string, payload []byte) error {
	return p.publish(ctx, streamName, RoutingKey(partitionKey), amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Headers:      amqp091.Table{HeaderPartitionKey: partitionKey},
		Body:         payload,
	})
}

func (p *Producer) channel(exchange string) (*amqp091.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.reset()
		conn, err := dial(p.cfg.URL, p.cfg.Auth)
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
		p.conn, p.ch = conn, ch
		slog.Info("[RabbitMQ] Producer connected")
	}

	if !p.declared[exchange] {
		if err := declareExchange(p.ch, exchange); err != nil {
			return nil, err
		}
		p.declared[exchange] = true
	}
	return p.ch, nil
}

func (p *Producer) publishConfirmed(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
	ch, err := p.channel(exchange)
	if err != nil {
		return err
	}
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for rabbitmq confirm: %w", err)
	}
	if !ok {
		return errors.New("rabbitmq broker nacked publish")
	}
	return nil
}

// reset drops the current connection. Caller holds p.mu.
func (p *Producer) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.declared = make(map[string]bool)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

func dial(url string, auth AuthConfig) (*amqp091.Connection, error) {
	cfg := amqp091.Config{}
	if auth.Username != "" {
		cfg.SASL = []amqp091.Authentication{&amqp091.PlainAuth{Username: auth.Username, Password: auth.Password}}
	}
	conn, err := amqp091.DialConfig(url, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}
