package sendwindow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// counterTTL keeps stale day keys from accumulating; two days covers
// any timezone skew between writers.
const counterTTL = 48 * time.Hour

// RedisCounterStore backs the quota counters with Redis so multiple
// dispatcher processes can share one budget. The check-and-increment
// runs under WATCH so concurrent consumers serialize on the day keys.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "sendwindow"
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

func (s *RedisCounterStore) totalKey(date string) string {
	return fmt.Sprintf("%s:%s:total", s.prefix, date)
}

func (s *RedisCounterStore) inboxKey(date, inbox string) string {
	return fmt.Sprintf("%s:%s:inbox:%s", s.prefix, date, inbox)
}

func (s *RedisCounterStore) Snapshot(ctx context.Context, date string) (Counters, error) {
	counters := Counters{Date: date, PerInbox: map[string]int{}}

	total, err := s.client.Get(ctx, s.totalKey(date)).Int()
	if err != nil && err != redis.Nil {
		return Counters{}, fmt.Errorf("read total counter: %w", err)
	}
	counters.Total = total

	pattern := s.inboxKey(date, "*")
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		inbox := strings.TrimPrefix(key, s.inboxKey(date, ""))
		val, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		n, _ := strconv.Atoi(val)
		counters.PerInbox[inbox] = n
	}
	if err := iter.Err(); err != nil {
		return Counters{}, fmt.Errorf("scan inbox counters: %w", err)
	}
	return counters, nil
}

func (s *RedisCounterStore) Consume(ctx context.Context, date, inbox string, limits Limits, dry bool) (bool, Reason, error) {
	totalKey := s.totalKey(date)
	keys := []string{totalKey}
	var inboxKey string
	if inbox != "" {
		inboxKey = s.inboxKey(date, inbox)
		keys = append(keys, inboxKey)
	}

	denied := ReasonNone

	txf := func(tx *redis.Tx) error {
		total, err := tx.Get(ctx, totalKey).Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if limits.Daily != nil && total >= *limits.Daily {
			denied = ReasonDailyLimit
			return nil
		}

		if inbox != "" && limits.PerInbox != nil {
			used, err := tx.Get(ctx, inboxKey).Int()
			if err != nil && err != redis.Nil {
				return err
			}
			if used >= *limits.PerInbox {
				denied = ReasonPerInboxLimit
				return nil
			}
		}

		if dry {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, totalKey)
			pipe.Expire(ctx, totalKey, counterTTL)
			if inbox != "" {
				pipe.Incr(ctx, inboxKey)
				pipe.Expire(ctx, inboxKey, counterTTL)
			}
			return nil
		})
		return err
	}

	// Retry on contention; WATCH aborts the transaction when another
	// consumer touched the keys first.
	for i := 0; i < 5; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			if denied != ReasonNone {
				return false, denied, nil
			}
			return true, ReasonNone, nil
		}
		if err == redis.TxFailedErr {
			denied = ReasonNone
			continue
		}
		return false, ReasonError, fmt.Errorf("redis consume: %w", err)
	}
	return false, ReasonError, fmt.Errorf("redis consume: too much contention on %s", totalKey)
}
