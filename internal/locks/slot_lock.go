package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// ErrSlotLocked is returned when another booking attempt holds the lock.
var ErrSlotLocked = errors.New("slot is being booked by another request")

// SlotLocker serializes the recheck-and-insert window of booking creation for
// a given practitioner day.
type SlotLocker interface {
	Acquire(ctx context.Context, staffID uuid.UUID, r timeslot.Range) (release func(), err error)
}

// RedisSlotLocker implements SlotLocker with a redis SET NX lease. The lock
// key covers the practitioner and the UTC days the range touches, so two
// requests for different slots of the same day serialize briefly while
// requests for different practitioners or days never contend.
type RedisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker with the given lease TTL.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *RedisSlotLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSlotLocker{client: client, ttl: ttl}
}

// Acquire takes the lock or fails immediately with ErrSlotLocked. The caller
// must invoke release once the database transaction has committed or rolled
// back; the TTL bounds the damage if a process dies holding the lease.
func (l *RedisSlotLocker) Acquire(ctx context.Context, staffID uuid.UUID, r timeslot.Range) (func(), error) {
	token := uuid.NewString()
	keys := l.keysFor(staffID, r)

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.releaseKeys(context.WithoutCancel(ctx), acquired, token)
			return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
		}
		if !ok {
			l.releaseKeys(context.WithoutCancel(ctx), acquired, token)
			return nil, ErrSlotLocked
		}
		acquired = append(acquired, key)
	}

	release := func() {
		l.releaseKeys(context.WithoutCancel(ctx), acquired, token)
	}
	return release, nil
}

// releaseKeys deletes only leases still owned by this token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *RedisSlotLocker) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
}

func (l *RedisSlotLocker) keysFor(staffID uuid.UUID, r timeslot.Range) []string {
	days := r.SplitByDay()
	keys := make([]string, 0, len(days))
	for _, day := range days {
		keys = append(keys, fmt.Sprintf("slotlock:%s:%s", staffID, day.Date.Format(time.DateOnly)))
	}
	return keys
}
