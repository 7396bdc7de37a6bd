package appkafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewKafkaWriter_RequiresTopic(t *testing.T) {
	if _, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error for empty topic")
	}

	w, err := NewKafkaWriter(KafkaConfig{Topic: "user-events"})
	if err != nil {
		t.Fatalf("writer init failed: %v", err)
	}
	defer w.Close()
	if w.timeout <= 0 {
		t.Fatalf("expected default write timeout, got %v", w.timeout)
	}
}

func TestFixedPartition(t *testing.T) {
	p := fixedPartition(2)
	if got := p.Balance(kafka.Message{}, 0, 1, 2, 3); got != 2 {
		t.Fatalf("expected partition 2, got %d", got)
	}
	if got := p.Balance(kafka.Message{}, 0, 1); got != 0 {
		t.Fatalf("missing partition should fall back to the first, got %d", got)
	}
}
