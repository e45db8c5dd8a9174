package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// Redis is a durable FlagStore backed by a redis instance. Each key becomes
// a SETNX'd entry under the configured prefix, which gives the atomic
// check-and-set Put requires without a transaction.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ FlagStore = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Put(ctx context.Context, key protocol.Bytes32) (bool, error) {
	// Ledger entries are permanent, so no TTL.
	set, err := r.client.SetNX(ctx, r.redisKey(key), 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set flag %s: %w", key.String(), err)
	}
	return !set, nil
}

func (r *Redis) Has(ctx context.Context, key protocol.Bytes32) (bool, error) {
	n, err := r.client.Exists(ctx, r.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check flag %s: %w", key.String(), err)
	}
	return n > 0, nil
}

func (r *Redis) redisKey(key protocol.Bytes32) string {
	return r.prefix + ":" + key.String()
}
