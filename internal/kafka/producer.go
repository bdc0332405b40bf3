package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topic: topic, Logger: log}
}

// NotifyAttendance streams the attendance change to Kafka, keyed by
// participant so one participant's changes stay ordered.
func (p *Producer) NotifyAttendance(ctx context.Context, change models.AttendanceChange) error {
	msgBytes, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal attendance change: %w", err)
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.Record.UserID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(change.Op)},
		},
	}); err != nil {
		return fmt.Errorf("write to %s: %w", p.Topic, err)
	}

	p.Logger.LogKafka("PUBLISHED", p.Topic, fmt.Sprintf("%s %s for %s", change.Op, change.Record.Ref().Key(), change.Record.UserID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
