package redis

import (
	"context"
	"fmt"
	"sync"

	"discussion-facilitator/backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Options configures the relay connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Notifier fans log-change payloads out to every instance sharing the store
type Notifier struct {
	client  *redis.Client
	channel string
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewNotifier connects to redis and verifies the connection
func NewNotifier(ctx context.Context, opts Options, log *logger.Logger) (*Notifier, error) {
	if opts.Channel == "" {
		opts.Channel = "discussion:log"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Notifier{client: client, channel: opts.Channel, log: log.Named("redis")}, nil
}

// Publish sends payload on the relay channel
func (n *Notifier) Publish(ctx context.Context, payload []byte) error {
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers every payload published on the channel to handler until
// ctx is cancelled. It returns once the subscription is confirmed.
func (n *Notifier) Subscribe(ctx context.Context, handler func([]byte)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", n.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	n.log.Info("Subscribed to change feed", "channel", n.channel)
	return nil
}

// Ping checks the connection
func (n *Notifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.client.Close()
}
