package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "anonrelay:compose:"

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func key(userID int64) string { return fmt.Sprintf("%s%d", keyPrefix, userID) }

func (s *redisStore) Begin(ctx context.Context, userID, receiverID int64) error {
	payload, err := json.Marshal(Compose{ReceiverID: receiverID, StartedAt: s.now().UTC()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(userID), payload, s.ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, userID int64) (Compose, bool, error) {
	data, err := s.rdb.Get(ctx, key(userID)).Bytes()
	return decode(data, err)
}

func (s *redisStore) Take(ctx context.Context, userID int64) (Compose, bool, error) {
	data, err := s.rdb.GetDel(ctx, key(userID)).Bytes()
	return decode(data, err)
}

func (s *redisStore) Clear(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, key(userID)).Err()
}

func decode(data []byte, err error) (Compose, bool, error) {
	if errors.Is(err, redis.Nil) {
		return Compose{}, false, nil
	}
	if err != nil {
		return Compose{}, false, err
	}
	var c Compose
	if err := json.Unmarshal(data, &c); err != nil {
		return Compose{}, false, fmt.Errorf("decode compose session: %w", err)
	}
	return c, true, nil
}
