package cache

import (
	"context"
	"time"
)

// Cache is the shared key/value store used for flight snapshots, the
// per-flight subscription indices and the dead-letter queue. It is
// externally synchronized; callers never wrap it in their own locks.
//
// Key conventions used by this service:
//
//	flight:{number}       string  cached flight snapshot (TTL)
//	flight_subs:{number}  set     subscription ids watching the flight
//	webhook_dlq           list    FIFO dead-letter entries
type Cache interface {
	// Get returns the value and whether the key exists and is
	// unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// RPush appends to the tail, LPop removes from the head; the
	// pair gives FIFO semantics for the dead-letter queue.
	RPush(ctx context.Context, key, value string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// FlightKey builds the cache key for a flight snapshot.
func FlightKey(flightNumber string) string {
	return "flight:" + flightNumber
}

// FlightSubsKey builds the index key for subscriptions watching a
// flight number.
func FlightSubsKey(flightNumber string) string {
	return "flight_subs:" + flightNumber
}

// DeadLetterKey is the list key holding undelivered webhook payloads.
const DeadLetterKey = "webhook_dlq"
