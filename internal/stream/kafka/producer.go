package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

type ProducerConfig struct {
	Brokers  []string
	ClientID string
	TLS      TLSConfig
}

type TLSConfig struct {
	Enabled            bool
	InsecureSkipVerify bool
}

func (c ProducerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	return nil
}

// Producer publishes records to Kafka: topic = stream name, key = partition key.
// Kafka hashes the key to pick the partition, so records sharing a key stay ordered.
//
// The client is created on first Publish and shared by all callers. A failed
// creation is retried on the next call.
type Producer struct {
	cfg  ProducerConfig
	opts []kgo.Opt

	mu     sync.Mutex
	client *kgo.Client

	produce func(ctx context.Context, rec *kgo.Record) error
}

func NewProducer(cfg ProducerConfig, opts ...kgo.Opt) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Producer{cfg: cfg, opts: opts}
	p.produce = func(ctx context.Context, rec *kgo.Record) error {
		cl, err := p.getClient()
		if err != nil {
			return err
		}
		return cl.ProduceSync(ctx, rec).FirstErr()
	}
	return p, nil
}

func (p *Producer) getClient() (*kgo.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(p.cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	}
	if p.cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(p.cfg.ClientID))
	}
	if p.cfg.TLS.Enabled {
		kopts = append(kopts, kgo.DialTLSConfig(&tls.Config{InsecureSkipVerify: p.cfg.TLS.InsecureSkipVerify}))
	}
	kopts = append(kopts, p.opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	slog.Info("[Kafka] Producer client created", "brokers", p.cfg.Brokers)
	p.client = cl
	return cl, nil
}

func (p *Producer) Publish(ctx context.Context, partitionKey, streamName string, payload []byte) error {
	return p.produce(ctx, &kgo.Record{
		Topic: streamName,
		Key:   []byte(partitionKey),
		Value: payload,
	})
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}
