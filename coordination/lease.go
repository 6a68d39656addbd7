// Package coordination gives each of several agent replicas exclusive
// ownership of a shard range before it starts assigning connections in that
// range to its worker pool. Claims are not conditional: a replica that
// acquires a shard key already held by another replica overwrites that
// holder's entry, so exclusivity holds only while replicas claim distinct
// shard keys.
package coordination

import (
	"context"
	"encoding/json"
	"fmt"
)

// ShardLease is the metadata stored for one claimed shard.
type ShardLease struct {
	Owner     string `json:"owner"`
	ShardKey  string `json:"shard_key"`
	AcquiredAtUnixNs int64 `json:"acquired_at_unix_ns"`
}

// ShardStore is the distributed coordination surface a ShardCoordinator
// needs: grant a lease, attach it to a key, delete it on release, read
// current holders by prefix, and watch a prefix for ownership changes (a
// lease expiring because its holder stopped renewing, or a new claim). An
// etcd v3 client satisfies this directly; tests use a mock.
type ShardStore interface {
	Grant(ctx context.Context, ttlSeconds int64) (leaseID int64, err error)
	PutWithLease(ctx context.Context, key, value string, leaseID int64) error
	KeepAlive(ctx context.Context, leaseID int64) error
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, prefix string) (map[string]string, error)
	Watch(ctx context.Context, prefix string) <-chan struct{}
}

// ShardCoordinator claims shard ranges for this replica and watches for
// shards abandoned by a crashed peer.
type ShardCoordinator struct {
	store      ShardStore
	replicaID  string
	keyPrefix  string
	ttlSeconds int64
}

// NewShardCoordinator returns a coordinator that claims keys under
// keyPrefix, identifying itself as replicaID.
func NewShardCoordinator(store ShardStore, replicaID, keyPrefix string, ttlSeconds int64) *ShardCoordinator {
	if ttlSeconds <= 0 {
		ttlSeconds = 10
	}
	return &ShardCoordinator{store: store, replicaID: replicaID, keyPrefix: keyPrefix, ttlSeconds: ttlSeconds}
}

// Acquire claims shardKey for this replica: grants a TTL lease, attaches it
// to the shard's key, and starts a background KeepAlive so the lease
// survives as long as this process does. If this process crashes, the lease
// expires and a peer's Watch fires, letting it claim the shard instead.
// Acquire does not check for an existing holder; it overwrites the key.
func (c *ShardCoordinator) Acquire(ctx context.Context, shardKey string) error {
	leaseID, err := c.store.Grant(ctx, c.ttlSeconds)
	if err != nil {
		return fmt.Errorf("coordination: grant lease: %w", err)
	}

	lease := ShardLease{Owner: c.replicaID, ShardKey: shardKey}
	val, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("coordination: marshal lease: %w", err)
	}

	if err := c.store.PutWithLease(ctx, c.key(shardKey), string(val), leaseID); err != nil {
		return fmt.Errorf("coordination: put shard key: %w", err)
	}

	if err := c.store.KeepAlive(ctx, leaseID); err != nil {
		return fmt.Errorf("coordination: start keepalive: %w", err)
	}
	return nil
}

// Release voluntarily gives up a shard, e.g. during a graceful rebalance.
func (c *ShardCoordinator) Release(ctx context.Context, shardKey string) error {
	return c.store.Delete(ctx, c.key(shardKey))
}

// Owners returns the current lease holder for every shard under this
// coordinator's prefix, keyed by shard key.
func (c *ShardCoordinator) Owners(ctx context.Context) (map[string]ShardLease, error) {
	raw, err := c.store.Get(ctx, c.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("coordination: list owners: %w", err)
	}
	out := make(map[string]ShardLease, len(raw))
	for k, v := range raw {
		var lease ShardLease
		if err := json.Unmarshal([]byte(v), &lease); err != nil {
			continue
		}
		out[k] = lease
	}
	return out, nil
}

// WatchAbandoned returns a channel that fires whenever shard ownership
// changes under this coordinator's prefix (a new claim or an expired
// lease), so the caller can re-evaluate whether it should claim an
// abandoned shard.
func (c *ShardCoordinator) WatchAbandoned(ctx context.Context) <-chan struct{} {
	return c.store.Watch(ctx, c.keyPrefix)
}

func (c *ShardCoordinator) key(shardKey string) string {
	return c.keyPrefix + shardKey
}
