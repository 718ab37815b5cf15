package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/gotube/internal/domain"
	"github.com/datallboy/gotube/internal/infra/logger"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisPublisher publishes every job event as JSON on a redis channel so
// other processes can follow the queue.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisPublisher(ctx context.Context, url, channel string, log *logger.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: channel, log: log}, nil
}

func (p *RedisPublisher) Notify(ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("[Events] Could not encode event for job %s: %v", ev.JobID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("[Events] Publish to %s failed: %v", p.channel, err)
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
