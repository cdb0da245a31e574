package persistence

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/durable/pkg/api"
)

// RedisHistoryStore is a HistoryStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>hist:<id>   => LIST of JSON-encoded history events
//	<prefix>idx:all     => SET of all instance IDs
//
// RPUSH of several values is atomic, and RPUSHX only appends to histories
// that exist, so Append needs no extra locking.
type RedisHistoryStore struct {
	client redis.UniversalClient
	prefix string
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

// NewRedisHistoryStore creates a RedisHistoryStore.
// prefix is optional but recommended (e.g. "durable:").
func NewRedisHistoryStore(client redis.UniversalClient, prefix string) *RedisHistoryStore {
	if prefix == "" {
		prefix = "durable:"
	}
	return &RedisHistoryStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisHistoryStore) keyHistory(id string) string {
	return r.prefix + "hist:" + id
}

func (r *RedisHistoryStore) keyAll() string {
	return r.prefix + "idx:all"
}

func toInterfaces(encoded [][]byte) []interface{} {
	values := make([]interface{}, len(encoded))
	for i, data := range encoded {
		values[i] = data
	}
	return values
}

func (r *RedisHistoryStore) Create(ctx context.Context, instanceID string, started api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	data, err := EncodeEvent(started)
	if err != nil {
		return err
	}

	added, err := r.client.SAdd(ctx, r.keyAll(), instanceID).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return api.ErrInstanceExists
	}
	return r.client.RPush(ctx, r.keyHistory(instanceID), data).Err()
}

func (r *RedisHistoryStore) Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	n, err := r.client.RPushX(ctx, r.keyHistory(instanceID), toInterfaces(encoded)...).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return api.ErrInstanceNotFound
	}
	return nil
}

func (r *RedisHistoryStore) Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	raw, err := r.client.LRange(ctx, r.keyHistory(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, api.ErrInstanceNotFound
	}

	out := make([]api.HistoryEvent, 0, len(raw))
	for _, data := range raw {
		ev, err := DecodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *RedisHistoryStore) Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	encoded, err := encodeEvents(append([]api.HistoryEvent{started}, carried...))
	if err != nil {
		return err
	}

	ok, err := r.client.SIsMember(ctx, r.keyAll(), instanceID).Result()
	if err != nil {
		return err
	}
	if !ok {
		return api.ErrInstanceNotFound
	}

	// MULTI/EXEC so readers never observe an empty history.
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.keyHistory(instanceID))
	pipe.RPush(ctx, r.keyHistory(instanceID), toInterfaces(encoded)...)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisHistoryStore) ListInstances(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.keyAll()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
