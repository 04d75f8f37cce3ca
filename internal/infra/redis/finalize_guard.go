package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FinalizeGuard claims battle session ids with SET NX so a retried or
// concurrently-raced finalize (forfeit vs. final answer) credits stats
// exactly once, even across service instances.
type FinalizeGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFinalizeGuard(client *redis.Client, ttl time.Duration) *FinalizeGuard {
	return &FinalizeGuard{client: client, ttl: ttl}
}

func (g *FinalizeGuard) FirstFinalize(ctx context.Context, sessionID string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, g.key(sessionID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim finalize %s: %w", sessionID, err)
	}
	return claimed, nil
}

// Release drops the claim so the session can be finalized again.
func (g *FinalizeGuard) Release(ctx context.Context, sessionID string) error {
	if err := g.client.Del(ctx, g.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("release finalize %s: %w", sessionID, err)
	}
	return nil
}

func (g *FinalizeGuard) key(sessionID string) string {
	return "battle:finalized:" + sessionID
}
