package appkafka

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/conduit/internal/models"
	"github.com/segmentio/kafka-go"
)

// PublishEvent encodes event as JSON and writes it under key.
func PublishEvent(w KafkaWriter, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return w.WriteMessages(kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

// DecodeFollowEvent parses a user_followed message and checks both ids are set.
func DecodeFollowEvent(msg kafka.Message) (models.FollowEvent, error) {
	var ev models.FollowEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, err
	}
	if ev.UserID == "" || ev.FolloweeID == "" {
		return ev, fmt.Errorf("follow event missing ids")
	}
	return ev, nil
}
