package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"gradegate/internal/dashboard/metrics"
	proposal "gradegate/internal/proposal/models"
)

// DefaultChannel is the pub/sub channel changes are published on.
const DefaultChannel = "gradegate:proposal-changes"

// Redis fans changes out through Redis pub/sub so every instance's notifier
// sees changes committed by any instance.
type Redis struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type RedisOption func(*Redis)

func WithChannel(channel string) RedisOption {
	return func(r *Redis) {
		if channel != "" {
			r.channel = channel
		}
	}
}

func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRedisMetrics(m *metrics.Metrics) RedisOption {
	return func(r *Redis) {
		r.metrics = m
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, channel: DefaultChannel, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Publish(ctx context.Context, change proposal.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	r.metrics.IncBus("published")
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning so
// that changes published afterwards are not missed.
func (r *Redis) Subscribe(ctx context.Context) (<-chan proposal.Change, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan proposal.Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change proposal.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					r.logger.WarnContext(ctx, "discarding malformed change message",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				r.metrics.IncBus("received")
				select {
				case out <- change:
				default:
					r.metrics.IncBus("dropped")
				}
			}
		}
	}()
	return out, nil
}
