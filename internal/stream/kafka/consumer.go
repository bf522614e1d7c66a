package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

type ConsumerConfig struct {
	Brokers        []string
	Topics         []string
	GroupID        string
	ClientID       string
	MaxPollRecords int
	RetryBackoff   time.Duration
	TLS            TLSConfig
	Fetch          FetchConfig
}

type FetchConfig struct {
	MinBytes int32
	MaxBytes int32
	MaxWait  time.Duration
}

func (c *ConsumerConfig) withDefaults() {
	if c.MaxPollRecords <= 0 {
		c.MaxPollRecords = 500
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.Fetch.MaxWait <= 0 {
		c.Fetch.MaxWait = time.Second
	}
	if c.Fetch.MinBytes <= 0 {
		c.Fetch.MinBytes = 1
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 50 << 20
	}
}

func (c ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("kafka.topics is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka.group_id is required")
	}
	return nil
}

// Consumer feeds a consumer group's records to a stream.BatchHandler.
//
// Each partition of a poll is handed over as one ordered batch; partitions run
// concurrently. Offsets are committed only up to the last handled record. When a
// batch fails, the partition is rewound to the failed record and retried after a backoff.
type Consumer struct {
	cfg     ConsumerConfig
	client  *kgo.Client
	handler stream.BatchHandler

	markCommit   func(...*kgo.Record)
	commitMarked func(context.Context) error
	rewind       func(topic string, partition int32, offset int64)
	sleep        func(context.Context, time.Duration)
}

func NewConsumer(cfg ConsumerConfig, handler stream.BatchHandler, opts ...kgo.Opt) (*Consumer, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("kafka consumer handler is required")
	}
	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchMaxWait(cfg.Fetch.MaxWait),
		kgo.FetchMinBytes(cfg.Fetch.MinBytes),
		kgo.FetchMaxBytes(cfg.Fetch.MaxBytes),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS.Enabled {
		kopts = append(kopts, kgo.DialTLSConfig(&tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}))
	}
	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}

	c := &Consumer{cfg: cfg, client: cl, handler: handler}
	c.markCommit = func(rs ...*kgo.Record) { cl.MarkCommitRecords(rs...) }
	c.commitMarked = func(ctx context.Context) error { return cl.CommitMarkedOffsets(ctx) }
	c.rewind = func(topic string, partition int32, offset int64) {
		cl.SetOffsets(map[string]map[int32]kgo.EpochOffset{
			topic: {partition: {Epoch: -1, Offset: offset}},
		})
	}
	c.sleep = sleepContext
	return c, nil
}

// Start polls until ctx is cancelled. It closes the client on return.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.client.Close()
	slog.Info("[Kafka] Consumer started", "topics", c.cfg.Topics, "group_id", c.cfg.GroupID)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fetches := c.client.PollRecords(ctx, c.cfg.MaxPollRecords)
		if fetches.IsClientClosed() {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) || errors.Is(fe.Err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
		}

		failed := c.process(ctx, fetches)
		c.client.AllowRebalance()
		if failed {
			c.sleep(ctx, c.cfg.RetryBackoff)
		}
	}
}

// process hands every partition of fetches to the handler and commits what succeeded.
// Reports whether any partition failed.
func (c *Consumer) process(ctx context.Context, fetches kgo.Fetches) bool {
	var (
		mu     sync.Mutex
		failed bool
	)
	g, gctx := errgroup.WithContext(ctx)

	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		records := p.Records
		topic, partition := p.Topic, p.Partition
		g.Go(func() error {
			if !c.handlePartition(gctx, topic, partition, records) {
				mu.Lock()
				failed = true
				mu.Unlock()
			}
			return nil
		})
	})
	_ = g.Wait()

	if err := c.commitMarked(ctx); err != nil && ctx.Err() == nil {
		slog.Error("[Kafka] Offset commit failed", "error", err)
	}
	return failed
}

func (c *Consumer) handlePartition(ctx context.Context, topic string, partition int32, records []*kgo.Record) bool {
	batch := make([]stream.Record, len(records))
	for i, r := range records {
		batch[i] = stream.Record{
			Stream:         r.Topic,
			PartitionKey:   string(r.Key),
			SequenceNumber: strconv.FormatInt(r.Offset, 10),
			Data:           r.Value,
		}
	}

	n, err := c.handler.HandleBatch(ctx, batch)
	if n > len(records) {
		n = len(records)
	}
	if n > 0 {
		c.markCommit(records[:n]...)
	}
	if err == nil {
		return true
	}

	if n < len(records) {
		c.rewind(topic, partition, records[n].Offset)
	}
	slog.Warn("[Kafka] Batch failed, partition rewound",
		"topic", topic,
		"partition", partition,
		"handled", n,
		"batch_size", len(records),
		"error", err)
	return false
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
