package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Each namespace is a generation counter plus a hash of entries. Both keys
// share a hash tag so the scripts stay on one cluster slot.

var getScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
local val = redis.call('HGET', KEYS[2], ARGV[1])
return {gen, val}
`)

var putScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return 1
`)

var purgeScript = redis.NewScript(`
redis.call('INCR', KEYS[1])
redis.call('DEL', KEYS[2])
return 1
`)

// Redis is a Store shared by every replica of the service.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis store. Keys are prefixed with prefix and entry
// hashes expire ttl after their last write.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) keys(ns string) []string {
	base := r.prefix + ":{" + ns + "}"
	return []string{base + ":gen", base + ":entries"}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, ns, key string) ([]byte, uint64, bool, error) {
	res, err := getScript.Run(ctx, r.client, r.keys(ns), key).Slice()
	if err != nil {
		return nil, 0, false, errors.Wrap(err, "redis get")
	}
	if len(res) == 0 {
		return nil, 0, false, errors.New("redis get: empty reply")
	}

	gen, err := parseGeneration(res[0])
	if err != nil {
		return nil, 0, false, err
	}
	if len(res) < 2 || res[1] == nil {
		return nil, gen, false, nil
	}
	s, ok := res[1].(string)
	if !ok {
		return nil, gen, false, errors.Errorf("redis get: unexpected value type %T", res[1])
	}
	return []byte(s), gen, true, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, ns, key string, val []byte, gen uint64) (bool, error) {
	stored, err := putScript.Run(ctx, r.client, r.keys(ns),
		strconv.FormatUint(gen, 10), key, val, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, errors.Wrap(err, "redis put")
	}
	return stored == 1, nil
}

// Purge implements Store.
func (r *Redis) Purge(ctx context.Context, ns string) error {
	if err := purgeScript.Run(ctx, r.client, r.keys(ns)).Err(); err != nil {
		return errors.Wrap(err, "redis purge")
	}
	return nil
}

// Ping implements Store.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func parseGeneration(v any) (uint64, error) {
	switch g := v.(type) {
	case string:
		n, err := strconv.ParseUint(g, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse generation %q", g)
		}
		return n, nil
	case int64:
		return uint64(g), nil
	default:
		return 0, errors.Errorf("unexpected generation type %T", v)
	}
}
