package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/conduit/internal/docstore"
	"example.com/conduit/internal/users"
	"github.com/segmentio/kafka-go"
	"golang.org/x/crypto/bcrypt"
)

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes messages from Kafka.
// 2. Updates the followers index.
// 3. Shuts down gracefully when the context is canceled.
func TestWorker_GracefulShutdown(t *testing.T) {
	mockStore := docstore.NewMock()
	repo := users.New(mockStore, bcrypt.MinCost)

	// Mock Kafka reader with a single message
	mockKafka := &MockKafkaReader{
		Messages: []kafka.Message{followMessage(t, "jake", "celeb")},
	}

	// Context with timeout to simulate graceful shutdown signal
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	worker := New(repo, mockKafka, 2, 4)

	go func() {
		worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
		followers, _ := repo.Followers(context.Background(), "celeb")
		if len(followers) != 1 || followers[0] != "jake" {
			t.Fatalf("followers index not updated correctly: %v", followers)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	if err := worker.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}

	if !mockKafka.isClosed() {
		t.Fatal("expected Kafka reader to be closed")
	}
	if n := mockKafka.committedCount(); n != 1 {
		t.Fatalf("expected the handled message to be committed, got %d commits", n)
	}
}

// blockingRecorder never finishes before the context is canceled.
type blockingRecorder struct{}

func (blockingRecorder) RecordFollower(ctx context.Context, followeeID, followerID string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWorker_ShutdownLeavesQueuedEventsUncommitted(t *testing.T) {
	mockKafka := &MockKafkaReader{
		Messages: []kafka.Message{
			followMessage(t, "jake", "celeb"),
			followMessage(t, "anna", "celeb"),
			followMessage(t, "finn", "celeb"),
		},
	}
	worker := New(blockingRecorder{}, mockKafka, 1, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not stop")
	}

	if n := mockKafka.committedCount(); n != 0 {
		t.Fatalf("unapplied events must stay uncommitted for redelivery, got %d commits", n)
	}
	if n := worker.offsets.uncommitted(); n != 3 {
		t.Fatalf("expected 3 pending events, got %d", n)
	}
}

func TestWorker_ReadErrorsBackOffUntilCancel(t *testing.T) {
	mockKafka := &MockKafkaReader{ShouldFail: true}
	worker := New(users.New(docstore.NewMock(), bcrypt.MinCost), mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker kept retrying after cancel")
	}
}

// MockKafkaReader simulates a Kafka reader for testing purposes
type MockKafkaReader struct {
	mu         sync.Mutex
	Messages   []kafka.Message // Queue of messages to return
	Committed  []kafka.Message
	ShouldFail bool // If true, FetchMessage will fail
	Closed     bool // Tracks whether Close() has been called
}

// FetchMessage returns the next message in the queue or simulates a failure/context cancel
func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	if m.ShouldFail {
		m.mu.Unlock()
		return kafka.Message{}, context.DeadlineExceeded
	}
	if len(m.Messages) == 0 {
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond) // simulate idle wait
		return kafka.Message{}, nil
	}
	msg := m.Messages[0]
	m.Messages = m.Messages[1:]
	m.mu.Unlock()
	return msg, nil
}

func (m *MockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Committed = append(m.Committed, msgs...)
	return nil
}

func (m *MockKafkaReader) committedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Committed)
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockKafkaReader) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
