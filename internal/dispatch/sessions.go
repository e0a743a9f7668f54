package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNoChannel is returned when a party has never bound a channel.
var ErrNoChannel = errors.New("party has no channel")

// SessionStore maps party ids to their current push channel. Bindings are
// overwritten on reconnect and are never invalidated on disconnect.
type SessionStore interface {
	SetChannel(ctx context.Context, partyID, channelID string) error
	Channel(ctx context.Context, partyID string) (string, error)
}

type MemorySessions struct {
	mu       sync.RWMutex
	channels map[string]string
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{channels: make(map[string]string)}
}

func (m *MemorySessions) SetChannel(_ context.Context, partyID, channelID string) error {
	m.mu.Lock()
	m.channels[partyID] = channelID
	m.mu.Unlock()
	return nil
}

func (m *MemorySessions) Channel(_ context.Context, partyID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[partyID]
	if !ok {
		return "", ErrNoChannel
	}
	return c, nil
}

// RedisSessions keeps bindings in a Redis hash so every server instance
// sees the latest channel of a party.
type RedisSessions struct {
	client *redis.Client
	key    string
}

func NewRedisSessions(client *redis.Client, key string) *RedisSessions {
	if key == "" {
		key = "party:channels"
	}
	return &RedisSessions{client: client, key: key}
}

func (r *RedisSessions) SetChannel(ctx context.Context, partyID, channelID string) error {
	if err := r.client.HSet(ctx, r.key, partyID, channelID).Err(); err != nil {
		return fmt.Errorf("bind %s: %w", partyID, err)
	}
	return nil
}

func (r *RedisSessions) Channel(ctx context.Context, partyID string) (string, error) {
	c, err := r.client.HGet(ctx, r.key, partyID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoChannel
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", partyID, err)
	}
	return c, nil
}
