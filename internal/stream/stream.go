package stream

import (
	"context"
	"fmt"
	"log/slog"
)

// Publisher appends an encoded event to the log.
//
// The partition key decides which records keep their relative order. Failures of the
// underlying client are returned unchanged; Publish never retries.
type Publisher interface {
	Publish(ctx context.Context, partitionKey, streamName string, payload []byte) error
	Close() error
}

// Record is one log entry as delivered to a consumer.
type Record struct {
	Stream         string
	PartitionKey   string
	SequenceNumber string
	Data           []byte
}

// BatchHandler processes records of one partition in order.
//
// It returns how many leading records were handled. On error, records[n] is the one
// that failed and nothing after it was attempted.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) (int, error)
}

// LoggingPublisher decorates a Publisher with structured logging.
type LoggingPublisher struct {
	Next   Publisher
	Driver string
}

func (p LoggingPublisher) Publish(ctx context.Context, partitionKey, streamName string, payload []byte) error {
	if err := p.Next.Publish(ctx, partitionKey, streamName, payload); err != nil {
		slog.Error(fmt.Sprintf("[%s] Publish failed", p.Driver),
			"stream", streamName,
			"partition_key", partitionKey,
			"error", err)
		return err
	}
	slog.Debug(fmt.Sprintf("[%s] Published record", p.Driver),
		"stream", streamName,
		"partition_key", partitionKey,
		"bytes", len(payload))
	return nil
}

func (p LoggingPublisher) Close() error { return p.Next.Close() }
