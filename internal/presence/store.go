package presence

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// User status values returned by Status and BulkStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	keyPrefix = "presence:user:"
	// Safety net against connections that never reported a disconnect.
	connTTL = time.Hour
)

// Store tracks the set of live connection ids per user.
type Store interface {
	AddConnection(ctx context.Context, userID, connID string) error
	// RemoveConnection reports true only when this removal took the user
	// to zero live connections. Callers use the bool, not a follow-up
	// status query, to decide whether to broadcast an offline transition.
	RemoveConnection(ctx context.Context, userID, connID string) (bool, error)
	Status(ctx context.Context, userID string) (string, error)
	BulkStatus(ctx context.Context, userIDs []string) (map[string]string, error)
}

// RedisStore keeps one Redis SET of connection ids per user.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func presenceKey(userID string) string {
	return keyPrefix + userID
}

// AddConnection registers a connection and refreshes the expiry.
func (s *RedisStore) AddConnection(ctx context.Context, userID, connID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, presenceKey(userID), connID)
		pipe.Expire(ctx, presenceKey(userID), connTTL)
		return nil
	})
	return err
}

// RemoveConnection removes the connection and checks the remaining set
// size in the same transaction, so the fully-offline decision cannot
// race a concurrent reconnect.
func (s *RedisStore) RemoveConnection(ctx context.Context, userID, connID string) (bool, error) {
	var removed *redis.IntCmd
	var remaining *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, presenceKey(userID), connID)
		remaining = pipe.SCard(ctx, presenceKey(userID))
		return nil
	})
	if err != nil {
		return false, err
	}
	// Only the removal of the last live connection flips the user
	// offline; removing an already-gone connection reports nothing.
	return removed.Val() > 0 && remaining.Val() == 0, nil
}

// Status reports online when the user has at least one live connection.
// Store failures degrade to offline.
func (s *RedisStore) Status(ctx context.Context, userID string) (string, error) {
	count, err := s.rdb.SCard(ctx, presenceKey(userID)).Result()
	if err != nil {
		return StatusOffline, err
	}
	if count > 0 {
		return StatusOnline, nil
	}
	return StatusOffline, nil
}

// BulkStatus resolves many users in a single pipelined round-trip.
func (s *RedisStore) BulkStatus(ctx context.Context, userIDs []string) (map[string]string, error) {
	statuses := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return statuses, nil
	}

	cmds := make([]*redis.IntCmd, len(userIDs))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, userID := range userIDs {
			cmds[i] = pipe.SCard(ctx, presenceKey(userID))
		}
		return nil
	})
	if err != nil {
		for _, userID := range userIDs {
			statuses[userID] = StatusOffline
		}
		return statuses, err
	}

	for i, userID := range userIDs {
		if cmds[i].Val() > 0 {
			statuses[userID] = StatusOnline
		} else {
			statuses[userID] = StatusOffline
		}
	}
	return statuses, nil
}
