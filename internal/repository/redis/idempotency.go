package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK:"
	idemResult = "RES:"
)

// ClaimState is the outcome of IdempotencyStore.Begin.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must Complete or Abort it.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another request with the same key is still running.
	ClaimInFlight
	// ClaimReplay means the key already holds a response for the same request.
	ClaimReplay
	// ClaimMismatch means the key was used for a different request body.
	ClaimMismatch
)

type Claim struct {
	State ClaimState
	// Body is the saved response, set for ClaimReplay.
	Body []byte
}

type savedResult struct {
	Fingerprint string          `json:"fp"`
	Body        json.RawMessage `json:"body"`
}

// IdempotencyStore remembers the first response of a keyed request. A key is
// bound to the fingerprint of the request that claimed it and holds either a
// lock while that request runs or its saved response.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// Begin claims key for the request identified by fingerprint. The lock
// expires after lockTTL so a crashed request frees its key.
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string, lockTTL time.Duration) (Claim, error) {
	const op = "redis.IdempotencyStore.Begin"

	ok, err := s.rdb.SetNX(ctx, key, idemLock+fingerprint, lockTTL).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return Claim{State: ClaimAcquired}, nil
	}

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return Claim{State: ClaimInFlight}, nil
	}
	if err != nil {
		return Claim{}, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case strings.HasPrefix(v, idemLock):
		if strings.TrimPrefix(v, idemLock) != fingerprint {
			return Claim{State: ClaimMismatch}, nil
		}
		return Claim{State: ClaimInFlight}, nil

	case strings.HasPrefix(v, idemResult):
		var saved savedResult
		if err := json.Unmarshal([]byte(strings.TrimPrefix(v, idemResult)), &saved); err != nil {
			return Claim{}, fmt.Errorf("%s: %w", op, err)
		}
		if saved.Fingerprint != fingerprint {
			return Claim{State: ClaimMismatch}, nil
		}
		return Claim{State: ClaimReplay, Body: saved.Body}, nil
	}

	return Claim{}, fmt.Errorf("%s: unexpected value under %s", op, key)
}

// Complete replaces the lock on key with the response body for ttl.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, body []byte) error {
	b, err := json.Marshal(savedResult{Fingerprint: fingerprint, Body: body})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, idemResult+string(b), s.ttl).Err()
}

// Abort frees key so the request can be retried.
func (s *IdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
