package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors online state to Redis so other services can read it.
// Delivery decisions never consult it; the in-process registry is authoritative.
// Keys used:
// - <prefix>:conn:<user>: set of connection handles
// - <prefix>:presence:<user> -> json {status,last_seen}
type PresenceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Presence struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewPresenceStore(r *redis.Client, prefix string, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: r, prefix: prefix, ttl: ttl}
}

func (s *PresenceStore) connKey(user string) string { return fmt.Sprintf("%s:conn:%s", s.prefix, user) }
func (s *PresenceStore) presenceKey(user string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, user)
}

// AddConnection records handle and marks the user online.
func (s *PresenceStore) AddConnection(ctx context.Context, user, handle string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.connKey(user), handle)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.connKey(user), s.ttl)
	}
	pb, _ := json.Marshal(Presence{Status: "online", LastSeen: time.Now().Unix()})
	pipe.Set(ctx, s.presenceKey(user), pb, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveConnection drops handle; the user goes offline when no handles remain.
func (s *PresenceStore) RemoveConnection(ctx context.Context, user, handle string) error {
	key := s.connKey(user)
	if err := s.client.SRem(ctx, key, handle).Err(); err != nil {
		return err
	}
	cnt, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	pb, _ := json.Marshal(Presence{Status: "offline", LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.presenceKey(user), pb, 0).Err()
}

// GetPresence returns the mirrored state; unknown users read as offline.
func (s *PresenceStore) GetPresence(ctx context.Context, user string) (Presence, error) {
	b, err := s.client.Get(ctx, s.presenceKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Presence{Status: "offline"}, nil
	}
	if err != nil {
		return Presence{}, err
	}
	var p Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return Presence{}, err
	}
	return p, nil
}
