package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/conduit/internal/broker"
	"example.com/conduit/internal/logger"
	"example.com/conduit/internal/models"
	"example.com/conduit/internal/monitoring"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

const commitTimeout = 5 * time.Second

// Worker consumes user events from Kafka and maintains the followers index.
// Offsets are committed only after an event is applied, so a crash or a
// shutdown with events still queued replays them instead of dropping them.
type Worker struct {
	followers    appkafka.FollowerRecorder
	reader       appkafka.KafkaReader
	offsets      *offsetTracker
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(followers appkafka.FollowerRecorder, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		followers:    followers,
		reader:       reader,
		offsets:      newOffsetTracker(),
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan *inflight, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	if n := w.offsets.uncommitted(); n > 0 {
		logg.Info("worker", fmt.Sprint(n)+" fetched events left uncommitted, they are redelivered on restart")
	}
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop fetches Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- *inflight) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			job := w.offsets.track(msg)

			// block until a slot frees up; dropping would lose a follow
			for enqueued := false; !enqueued; {
				select {
				case jobs <- job:
					enqueued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

// processLoop dispatches queued messages until the queue closes.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan *inflight) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			key := string(job.msg.Key)
			result := "ok"
			if err := w.process(ctx, job); err != nil {
				result = "error"
				logg.Error("worker", "Failed to handle "+key+" event, offset left uncommitted", err)
			}
			monitoring.WorkerEvents.WithLabelValues(key, result).Inc()
		}
	}
}

// process applies one fetched message and commits it on success. A commit
// failure is logged only; the event is already applied.
func (w *Worker) process(ctx context.Context, job *inflight) error {
	if err := w.handle(ctx, job.msg); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := w.offsets.complete(commitCtx, w.reader, job); err != nil {
		logg.Error("worker", "Offset commit failed", err)
	}
	return nil
}

// handle applies one event. Unknown keys are skipped.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	switch string(msg.Key) {
	case models.EventUserFollowed:
		ev, err := appkafka.DecodeFollowEvent(msg)
		if err != nil {
			return err
		}
		return w.followers.RecordFollower(ctx, ev.FolloweeID, ev.UserID)

	case models.EventUserRegistered:
		var ev models.UserRegisteredEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return err
		}
		logg.Debug("worker", "Registered user_id="+ev.UserID)
		return nil

	default:
		logg.Debug("worker", "Skipping event with key "+string(msg.Key))
		return nil
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}
	return nil
}
