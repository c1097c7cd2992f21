// Package cache keeps a short-lived roster snapshot per group in Redis so
// busy listing endpoints do not hammer the backend. Any write to a group
// invalidates its snapshot; a disabled cache (nil client) is a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rollbook/internal/register/models"
)

const rosterKeyPrefix = "roster:"

// Roster caches group listings.
type Roster struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a roster cache. A nil client disables caching entirely.
func New(client *redis.Client, ttl time.Duration) *Roster {
	return &Roster{client: client, ttl: ttl}
}

// Get returns the cached snapshot and whether it was present. Cache
// failures report as misses with the error attached so callers can log
// and fall through to the backend.
func (r *Roster) Get(ctx context.Context, groupID string) ([]models.Student, bool, error) {
	if r == nil || r.client == nil {
		return nil, false, nil
	}
	raw, err := r.client.Get(ctx, rosterKeyPrefix+groupID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("roster cache get: %w", err)
	}
	var students []models.Student
	if err := json.Unmarshal(raw, &students); err != nil {
		return nil, false, fmt.Errorf("roster cache decode: %w", err)
	}
	return students, true, nil
}

// Set stores a snapshot with the configured TTL.
func (r *Roster) Set(ctx context.Context, groupID string, students []models.Student) error {
	if r == nil || r.client == nil {
		return nil
	}
	raw, err := json.Marshal(students)
	if err != nil {
		return fmt.Errorf("roster cache encode: %w", err)
	}
	if err := r.client.Set(ctx, rosterKeyPrefix+groupID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("roster cache set: %w", err)
	}
	return nil
}

// Invalidate drops the snapshot for a group.
func (r *Roster) Invalidate(ctx context.Context, groupID string) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, rosterKeyPrefix+groupID).Err(); err != nil {
		return fmt.Errorf("roster cache invalidate: %w", err)
	}
	return nil
}
