package appkafka

import (
	"context"
	"errors"
	"sync"

	"example.com/conduit/internal/models"
	"github.com/segmentio/kafka-go"
)

// FollowerRecorder is the part of the users repository the mock needs.
type FollowerRecorder interface {
	RecordFollower(ctx context.Context, followeeID, followerID string) error
}

// MockKafka immediately applies follow events to the followers index.
type MockKafka struct {
	mu              sync.Mutex
	Followers       FollowerRecorder
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages handed out by FetchMessage
	Committed       []kafka.Message
	ShouldFail      bool            // flag to simulate failures during write or read operations
	Closed          bool
}

// WriteMessages records the messages and, when Followers is set, applies
// user_followed events as the worker would.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	m.WrittenMessages = append(m.WrittenMessages, messages...)

	if m.Followers == nil {
		return nil
	}
	for _, msg := range messages {
		if string(msg.Key) != models.EventUserFollowed {
			continue
		}
		ev, err := DecodeFollowEvent(msg)
		if err != nil {
			return err
		}
		if err := m.Followers.RecordFollower(context.Background(), ev.FolloweeID, ev.UserID); err != nil {
			return err
		}
	}
	return nil
}

// Written returns a copy of the messages written so far.
func (m *MockKafka) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.WrittenMessages...)
}

// FetchMessage pops the next queued message.
func (m *MockKafka) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

func (m *MockKafka) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka commit failed")
	}
	m.Committed = append(m.Committed, msgs...)
	return nil
}

// CommittedCount returns how many messages have been acknowledged.
func (m *MockKafka) CommittedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Committed)
}

func (m *MockKafka) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return errors.New("mock kafka commit failed")
}

func (m *MockKafkaFail) Close() error { return nil }
