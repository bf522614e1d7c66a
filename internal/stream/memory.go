package stream

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// MemoryLog is an in-process Publisher that keeps every record per stream.
// With a handler attached, each publish is delivered synchronously, which makes the
// write path and the projection observable end to end without a broker.
//
// Delivery follows log order. Records the handler fails on stay pending and are
// redelivered, ahead of newer ones, on the next publish to the stream.
type MemoryLog struct {
	// deliver serializes publishes with their delivery so the handler sees
	// records in sequence order. It is taken before mu.
	deliver sync.Mutex

	mu        sync.Mutex
	records   map[string][]Record
	delivered map[string]int
	handler   BatchHandler
}

// NewMemoryLog creates an empty log. handler may be nil.
func NewMemoryLog(handler BatchHandler) *MemoryLog {
	return &MemoryLog{
		records:   make(map[string][]Record),
		delivered: make(map[string]int),
		handler:   handler,
	}
}

// Publish appends the record. A failing handler does not fail the publish: the
// record is in the log and is delivered again later.
func (l *MemoryLog) Publish(ctx context.Context, partitionKey, streamName string, payload []byte) error {
	l.deliver.Lock()
	defer l.deliver.Unlock()

	l.mu.Lock()
	rec := Record{
		Stream:         streamName,
		PartitionKey:   partitionKey,
		SequenceNumber: strconv.Itoa(len(l.records[streamName]) + 1),
		Data:           append([]byte(nil), payload...),
	}
	l.records[streamName] = append(l.records[streamName], rec)
	pending := append([]Record(nil), l.records[streamName][l.delivered[streamName]:]...)
	l.mu.Unlock()

	if l.handler == nil {
		return nil
	}

	n, err := l.handler.HandleBatch(ctx, pending)
	if n < 0 {
		n = 0
	}
	if n > len(pending) {
		n = len(pending)
	}

	l.mu.Lock()
	l.delivered[streamName] += n
	l.mu.Unlock()

	if err != nil {
		slog.Warn("[MemoryLog] Delivery failed, records stay pending",
			"stream", streamName,
			"delivered", n,
			"pending", len(pending)-n,
			"error", err)
	}
	return nil
}

// Pending returns how many records of streamName the handler has not taken yet.
func (l *MemoryLog) Pending(streamName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records[streamName]) - l.delivered[streamName]
}

// Records returns a copy of everything published to streamName.
func (l *MemoryLog) Records(streamName string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records[streamName]...)
}

func (l *MemoryLog) Close() error { return nil }
