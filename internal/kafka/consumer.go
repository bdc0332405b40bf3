package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-checkin/internal/live"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the subscriber needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Subscriber is the Kafka push channel for participant displays. Every
// display gets its own reader positioned at the end of the topic, so only
// changes recorded after the display opened are seen; older ones are picked
// up by polling.
//
// A feed starts out connecting and turns connected once Probe reaches the
// topic leader, or on the first message when Probe is nil.
type Subscriber struct {
	Brokers   []string
	Topic     string
	Logger    *logger.Logger
	NewReader func() MessageReader
	Probe     func(ctx context.Context) error
}

func NewSubscriber(brokers []string, topic string, log *logger.Logger) *Subscriber {
	s := &Subscriber{Brokers: brokers, Topic: topic, Logger: log}
	s.NewReader = func() MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     s.Brokers,
			Topic:       s.Topic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
		})
	}
	s.Probe = s.readLastOffset
	return s
}

// readLastOffset dials the leader of partition 0 and asks for its last
// offset.
func (s *Subscriber) readLastOffset(ctx context.Context) error {
	if len(s.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialLeader(ctx, "tcp", s.Brokers[0], s.Topic, 0)
	if err != nil {
		return fmt.Errorf("dial leader for %s: %w", s.Topic, err)
	}
	defer conn.Close()
	if _, err := conn.ReadLastOffset(); err != nil {
		return fmt.Errorf("read last offset of %s: %w", s.Topic, err)
	}
	return nil
}

func (s *Subscriber) Subscribe(ctx context.Context, participantID string) (live.Subscription, error) {
	reader := s.NewReader()
	readCtx, cancel := context.WithCancel(ctx)

	feed := live.NewFeed(10, func() error {
		cancel()
		return reader.Close()
	})
	feed.SetState(live.ConnConnecting)
	s.Logger.LogKafka("SUBSCRIBED", s.Topic, participantID)

	go s.consume(readCtx, reader, feed, participantID)
	return feed, nil
}

func (s *Subscriber) consume(ctx context.Context, reader MessageReader, feed *live.Feed, participantID string) {
	connected := false
	if s.Probe != nil {
		if err := s.Probe(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Logger.Warn("KAFKA", fmt.Sprintf("Broker for %s unreachable: %v", s.Topic, err))
			feed.SetState(live.ConnError)
			return
		}
		connected = true
		feed.SetState(live.ConnConnected)
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.Logger.Warn("KAFKA", fmt.Sprintf("Read from %s failed: %v", s.Topic, err))
			feed.SetState(live.ConnError)
			return
		}
		if !connected {
			connected = true
			feed.SetState(live.ConnConnected)
		}

		if string(msg.Key) != participantID {
			continue
		}

		var change models.AttendanceChange
		if err := json.Unmarshal(msg.Value, &change); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed message at offset %d: %v", msg.Offset, err))
			continue
		}
		if !feed.Deliver(change) {
			return
		}
	}
}
