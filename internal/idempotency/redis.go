// Package idempotency guards callback processing against duplicate delivery.
// The provider retries callbacks, and a browser refresh on the callback page
// replays them too.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"

	// The in-progress claim expires quickly so a crashed worker does not
	// block the retry forever.
	inProgressExpiry = 10 * time.Second
	completedExpiry  = 24 * time.Hour
)

// ErrInProgress is returned when another call currently holds the claim for
// the same transaction.
var ErrInProgress = errors.New("transaction already in progress")

// Store is the idempotency guard used by the callback handler.
type Store interface {
	// Claim atomically claims a transaction for processing. It returns
	// true when the transaction was already completed or claimed.
	Claim(ctx context.Context, transactionID string) (duplicate bool, err error)
	SetCompleted(ctx context.Context, transactionID string) error
	Release(ctx context.Context, transactionID string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func key(transactionID string) string {
	return fmt.Sprintf("paygate:txn:%s", transactionID)
}

// Claim checks for a completed marker first, then takes the in-progress
// claim with SETNX so concurrent callbacks for one transaction cannot both
// proceed.
func (r *RedisStore) Claim(ctx context.Context, transactionID string) (bool, error) {
	k := key(transactionID)

	status, err := r.client.Get(ctx, k).Result()
	if err == nil && status == statusCompleted {
		return true, nil
	}
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis GET error: %w", err)
	}

	set, err := r.client.SetNX(ctx, k, statusInProgress, inProgressExpiry).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX error: %w", err)
	}
	if !set {
		return true, ErrInProgress
	}
	return false, nil
}

func (r *RedisStore) SetCompleted(ctx context.Context, transactionID string) error {
	return r.client.Set(ctx, key(transactionID), statusCompleted, completedExpiry).Err()
}

// Release drops the in-progress claim so the provider's retry can be
// processed after a transient failure.
func (r *RedisStore) Release(ctx context.Context, transactionID string) error {
	return r.client.Del(ctx, key(transactionID)).Err()
}
