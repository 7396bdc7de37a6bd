package worker

import (
	"context"
	"sync"

	appkafka "example.com/conduit/internal/broker"
	"github.com/segmentio/kafka-go"
)

// inflight is a fetched message waiting to be applied.
type inflight struct {
	msg  kafka.Message
	done bool
}

// offsetTracker keeps fetched messages per partition in fetch order. Workers
// finish out of order, but a Kafka commit acknowledges everything before the
// committed offset, so only the handled prefix of each partition is committed.
// A failed message stays at the head and holds back later commits until the
// worker restarts and the partition is replayed from it.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[int][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: make(map[int][]*inflight)}
}

func (o *offsetTracker) track(msg kafka.Message) *inflight {
	job := &inflight{msg: msg}
	o.mu.Lock()
	o.pending[msg.Partition] = append(o.pending[msg.Partition], job)
	o.mu.Unlock()
	return job
}

// complete marks job handled and commits the newest message of the handled
// prefix, if any. The lock is held across the commit so offsets never move
// backwards.
func (o *offsetTracker) complete(ctx context.Context, reader appkafka.KafkaReader, job *inflight) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	job.done = true
	p := job.msg.Partition
	q := o.pending[p]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return nil
	}

	if err := reader.CommitMessages(ctx, q[n-1].msg); err != nil {
		return err
	}
	o.pending[p] = q[n:]
	return nil
}

// uncommitted reports how many tracked messages are not yet committed.
func (o *offsetTracker) uncommitted() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, q := range o.pending {
		total += len(q)
	}
	return total
}
