package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Invalidator drops cached dashboard aggregates after a commit so stale
// views are not served. A nil client makes every call a no-op, mirroring
// how the publisher is optional.
type Invalidator struct {
	client *redis.Client
	logger *slog.Logger
}

func NewInvalidator(client *redis.Client, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		client: client,
		logger: logger.With("component", "cache"),
	}
}

// InvalidateAccount deletes every aggregate key derived from the
// account's synchronized resources.
func (i *Invalidator) InvalidateAccount(ctx context.Context, accountID string) error {
	if i.client == nil {
		return nil
	}

	pattern := fmt.Sprintf("dashboard:%s:*", accountID)
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}

	i.logger.Debug("invalidated cached aggregates", "account_id", accountID, "keys", len(keys))
	return nil
}
