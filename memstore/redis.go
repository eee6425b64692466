package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis methods the store uses. Keeping it
// narrow lets tests substitute miniredis-backed or fake clients.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Close() error
}

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Address    string        `yaml:"address" json:"address"`
	Password   string        `yaml:"password" json:"password"`
	DB         int           `yaml:"db" json:"db"`
	Prefix     string        `yaml:"prefix" json:"prefix"`
	DefaultTTL time.Duration `yaml:"defaultTTL" json:"defaultTTL"`
}

// Redis implements Store on a Redis instance so multiple copilot processes
// can share validation caches and router telemetry. Owner tags and creation
// timestamps ride in a JSON envelope; expiry is enforced both by the Redis
// key TTL and by the envelope timestamp.
type Redis struct {
	cfg    RedisConfig
	client RedisClient
}

type redisEnvelope struct {
	Value     json.RawMessage `json:"v"`
	Owner     string          `json:"o,omitempty"`
	CreatedAt time.Time       `json:"c"`
	ExpiresAt time.Time       `json:"e"`
}

var _ Store = (*Redis)(nil)

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	opts := &redis.Options{Addr: cfg.Address, DB: cfg.DB}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("memstore: redis ping %s: %w", cfg.Address, err)
	}
	return &Redis{cfg: cfg, client: client}, nil
}

// NewRedisWithClient wraps a pre-built client. Intended for tests.
func NewRedisWithClient(cfg RedisConfig, client RedisClient) *Redis {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	return &Redis{cfg: cfg, client: client}
}

func (r *Redis) Set(ctx context.Context, key string, value any, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.cfg.DefaultTTL
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memstore: encode value for %q: %w", key, err)
	}
	now := time.Now()
	env, err := json.Marshal(redisEnvelope{
		Value:     encoded,
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("memstore: encode envelope for %q: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefixed(key), env, ttl).Err(); err != nil {
		return fmt.Errorf("memstore: set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("memstore: get %q: %w", key, err)
	}
	entry, ok := r.decode(key, raw)
	return entry, ok, nil
}

func (r *Redis) Delete(ctx context.Context, key, owner string) error {
	full := r.prefixed(key)
	raw, err := r.client.Get(ctx, full).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memstore: read before delete %q: %w", key, err)
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Owner != owner {
		return ErrNotOwner
	}
	if err := r.client.Del(ctx, full).Err(); err != nil {
		return fmt.Errorf("memstore: delete %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Query(ctx context.Context, q Query) ([]Entry, error) {
	prefix, wildcard, err := splitPattern(q.Pattern)
	if err != nil {
		return nil, err
	}
	match := r.cfg.Prefix + escapeGlob(prefix)
	if wildcard {
		match += "*"
	}

	keys, err := r.scanAll(ctx, match)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	now := time.Now()
	var oldest time.Time
	if q.MaxAge > 0 {
		oldest = now.Add(-q.MaxAge)
	}

	matched := make([]Entry, 0, len(keys))
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		values, err := r.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("memstore: mget: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			entry, ok := r.decode(strings.TrimPrefix(keys[start+i], r.cfg.Prefix), raw)
			if !ok {
				continue
			}
			if q.Owner != "" && entry.Owner != q.Owner {
				continue
			}
			if q.MaxAge > 0 && entry.CreatedAt.Before(oldest) {
				continue
			}
			matched = append(matched, entry)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Key < matched[j].Key
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	keys, err := r.scanAll(ctx, r.cfg.Prefix+"*")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) prefixed(key string) string {
	return r.cfg.Prefix + key
}

// decode unwraps one envelope; expired entries read as misses even when the
// Redis TTL has not fired yet.
func (r *Redis) decode(key, raw string) (Entry, bool) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Entry{}, false
	}
	if !env.ExpiresAt.IsZero() && time.Now().After(env.ExpiresAt) {
		return Entry{}, false
	}
	return Entry{
		Key:       key,
		Value:     env.Value,
		Owner:     env.Owner,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, true
}

func (r *Redis) scanAll(ctx context.Context, match string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("memstore: scan %q: %w", match, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// escapeGlob quotes Redis MATCH metacharacters so stored keys containing
// them are matched literally.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
