package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultChannelPrefix = "harmonicai:chapters"

// RedisNotifier implements Notifier over Redis pub/sub. Every ebook gets its
// own channel so a subscriber only sees changes for the ebook it watches.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier wraps an existing Redis client.
func NewRedisNotifier(client *redis.Client, prefix string) (*RedisNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisNotifier{
		client: client,
		prefix: prefix,
	}, nil
}

func (n *RedisNotifier) channel(ebookID string) string {
	return n.prefix + ":" + ebookID
}

// Publish sends one chapter change to the ebook's channel.
func (n *RedisNotifier) Publish(ctx context.Context, event ChapterEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal chapter event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(event.EbookID), payload).Err(); err != nil {
		return fmt.Errorf("publish chapter event: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription scoped to one ebook. The returned
// release function closes the subscription; the event channel is closed once
// the subscription drains.
func (n *RedisNotifier) Subscribe(ctx context.Context, ebookID string) (<-chan ChapterEvent, func(), error) {
	sub := n.client.Subscribe(ctx, n.channel(ebookID))
	// Force the SUBSCRIBE round trip so a bad connection fails here, not on
	// first receive.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	events := make(chan ChapterEvent, 16)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event ChapterEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("drop malformed chapter event", "err", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	release := func() { _ = sub.Close() }
	return events, release, nil
}
