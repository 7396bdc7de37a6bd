package appkafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is what the HTTP handlers publish user events through.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader is the worker's view of the event topic. A fetched message is
// not acknowledged until CommitMessages is called for it.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partition    int // events are published to this partition
	GroupID      string
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 || c.Brokers[0] == "" {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	return c
}

// fixedPartition keeps every event on one partition so the worker sees a
// user's register and follow events in publish order.
type fixedPartition int

func (p fixedPartition) Balance(msg kafka.Message, partitions ...int) int {
	for _, id := range partitions {
		if id == int(p) {
			return id
		}
	}
	return partitions[0]
}

// EventWriter publishes events with a per-call deadline. kafka.Writer is
// safe for concurrent use, so handlers share one.
type EventWriter struct {
	w       *kafka.Writer
	timeout time.Duration
}

func NewKafkaWriter(cfg KafkaConfig) (*EventWriter, error) {
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	cfg = cfg.withDefaults()
	return &EventWriter{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     fixedPartition(cfg.Partition),
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: cfg.WriteTimeout,
		},
		timeout: cfg.WriteTimeout,
	}, nil
}

func (e *EventWriter) WriteMessages(messages ...kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	return e.w.WriteMessages(ctx, messages...)
}

func (e *EventWriter) Close() error {
	return e.w.Close()
}

// NewKafkaReader joins the consumer group. Offsets are committed only through
// CommitMessages, never on fetch.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	cfg = cfg.withDefaults()
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  cfg.ReadTimeout,
	})
}

// NopWriter drops every message. Used when no broker is configured.
type NopWriter struct{}

func (NopWriter) WriteMessages(messages ...kafka.Message) error { return nil }

func (NopWriter) Close() error { return nil }
