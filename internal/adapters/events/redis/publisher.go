package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
	"github.com/ogurasousui/codex-onboarding/internal/platform/logger"
)

// Client は Publisher が利用する go-redis の操作です。
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Publisher はトピックを Redis Pub/Sub チャンネルへ対応付けて発行します。
type Publisher struct {
	client   Client
	channels map[string]string
	log      *logger.Logger
}

var _ onboarding.Publisher = (*Publisher)(nil)

// NewPublisher は Publisher を生成します。channels に無いトピックはトピック名をそのままチャンネル名に使います。
func NewPublisher(client Client, channels map[string]string, log *logger.Logger) *Publisher {
	copied := make(map[string]string, len(channels))
	for topic, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			copied[topic] = ch
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{client: client, channels: copied, log: log.With("component", "redis_publisher")}
}

// Publish はペイロードを対応するチャンネルへ発行します。
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p == nil || p.client == nil {
		return errors.New("redis publisher: not initialized")
	}
	channel := p.channelFor(topic)
	if channel == "" {
		return errors.New("redis publisher: topic must be set")
	}

	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publisher: publish to %s: %w", channel, err)
	}
	if receivers == 0 {
		p.log.Warn("event published without subscribers", "topic", topic, "channel", channel)
	}
	return nil
}

func (p *Publisher) channelFor(topic string) string {
	if ch, ok := p.channels[topic]; ok {
		return ch
	}
	return strings.TrimSpace(topic)
}
