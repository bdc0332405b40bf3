// Package push picks the transport participant displays listen on.
package push

import (
	"fmt"

	rediswrap "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/config"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/live"
	"ms-checkin/internal/logger"

	"github.com/go-redis/redis/v8"
)

// NewChannel returns the push channel named by DISPLAY_PUSH_TRANSPORT. It
// returns nil when that transport is disabled or unknown, which leaves
// displays on polling alone.
func NewChannel(cfg *config.Config, redisClient *redis.Client, log *logger.Logger) live.PushChannel {
	switch cfg.Display.PushTransport {
	case "kafka":
		if cfg.Kafka.Enabled {
			return kafka.NewSubscriber(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		}
	case "redis":
		if redisClient != nil {
			return rediswrap.NewSubscriber(redisClient, cfg.Redis.Channel, log)
		}
	}
	log.Warn("DISPLAY", fmt.Sprintf("Push transport %q unavailable, displays will poll", cfg.Display.PushTransport))
	return nil
}
