package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-checkin/internal/live"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"

	"github.com/go-redis/redis/v8"
)

// Notifier publishes attendance changes on a Redis channel.
type Notifier struct {
	Client  *redis.Client
	Channel string
	Logger  *logger.Logger
}

func NewNotifier(client *redis.Client, channel string, log *logger.Logger) *Notifier {
	return &Notifier{Client: client, Channel: channel, Logger: log}
}

func (n *Notifier) NotifyAttendance(ctx context.Context, change models.AttendanceChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal attendance change: %w", err)
	}
	receivers, err := n.Client.Publish(ctx, n.Channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.Channel, err)
	}
	n.Logger.LogPush("PUBLISHED", n.Channel, fmt.Sprintf("%s %s for %s (%d receivers)", change.Op, change.Record.Ref().Key(), change.Record.UserID, receivers))
	return nil
}

// Subscriber is the Redis push channel for participant displays.
type Subscriber struct {
	Client  *redis.Client
	Channel string
	Logger  *logger.Logger
}

func NewSubscriber(client *redis.Client, channel string, log *logger.Logger) *Subscriber {
	return &Subscriber{Client: client, Channel: channel, Logger: log}
}

// Subscribe confirms the subscription with the server before returning, so a
// change published after Subscribe returns is never missed.
func (s *Subscriber) Subscribe(ctx context.Context, participantID string) (live.Subscription, error) {
	pubsub := s.Client.Subscribe(ctx, s.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.Channel, err)
	}

	feed := live.NewFeed(10, pubsub.Close)
	feed.SetState(live.ConnConnected)
	s.Logger.LogPush("SUBSCRIBED", s.Channel, participantID)

	go s.forward(pubsub, feed, participantID)
	return feed, nil
}

func (s *Subscriber) forward(pubsub *redis.PubSub, feed *live.Feed, participantID string) {
	messages := pubsub.Channel()
	for {
		select {
		case <-feed.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				feed.SetState(live.ConnClosed)
				return
			}
			var change models.AttendanceChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.Logger.Warn("PUSH", fmt.Sprintf("Skipping malformed message on %s: %v", s.Channel, err))
				continue
			}
			if change.Record.UserID != participantID {
				continue
			}
			if !feed.Deliver(change) {
				return
			}
		}
	}
}
