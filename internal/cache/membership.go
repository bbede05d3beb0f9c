package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss signals that the conversation has no cached member list and
// the caller must fall back to the authoritative store.
var ErrMiss = errors.New("membership cache miss")

const (
	keyPrefix = "conversation:members:"
	entryTTL  = time.Minute
)

// Membership caches conversation member lists. The group-management
// service populates and invalidates entries on membership change; this
// service only reads, plus invalidates on lifecycle events it consumes.
type Membership interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
	Set(ctx context.Context, conversationID string, userIDs []string) error
	Invalidate(ctx context.Context, conversationID string) error
}

// RedisMembership stores member lists as JSON under a short TTL.
type RedisMembership struct {
	rdb *redis.Client
}

// NewRedisMembership constructs a RedisMembership.
func NewRedisMembership(rdb *redis.Client) *RedisMembership {
	return &RedisMembership{rdb: rdb}
}

func membershipKey(conversationID string) string {
	return keyPrefix + conversationID
}

// Participants returns the cached member list or ErrMiss.
func (c *RedisMembership) Participants(ctx context.Context, conversationID string) ([]string, error) {
	val, err := c.rdb.Get(ctx, membershipKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Set stores the member list under the cache TTL.
func (c *RedisMembership) Set(ctx context.Context, conversationID string, userIDs []string) error {
	data, err := json.Marshal(userIDs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, membershipKey(conversationID), data, entryTTL).Err()
}

// Invalidate drops the cached member list.
func (c *RedisMembership) Invalidate(ctx context.Context, conversationID string) error {
	return c.rdb.Del(ctx, membershipKey(conversationID)).Err()
}
