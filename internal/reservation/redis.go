package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisOptions configures a Redis-backed Reserver.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisReserver stores one key per donor holding the request ID, plus a set
// per request listing its donors so they can be released together.
type RedisReserver struct {
	rdb    *goredis.Client
	prefix string
}

// releaseScript deletes the donor key only while it still names the caller.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
end
redis.call("SREM", KEYS[2], ARGV[2])
return 1
`)

// NewRedisReserver dials Redis and verifies the connection with a ping.
func NewRedisReserver(ctx context.Context, opts RedisOptions) (*RedisReserver, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisReserverFromClient(rdb, opts.KeyPrefix), nil
}

// NewRedisReserverFromClient wraps an existing client.
func NewRedisReserverFromClient(rdb *goredis.Client, prefix string) *RedisReserver {
	if prefix == "" {
		prefix = "reddrop:"
	}
	return &RedisReserver{rdb: rdb, prefix: prefix}
}

func (r *RedisReserver) donorKey(donorID string) string {
	return r.prefix + "donor:" + donorID
}

func (r *RedisReserver) requestKey(requestID string) string {
	return r.prefix + "request:" + requestID
}

func (r *RedisReserver) Reserve(ctx context.Context, donorID, requestID string, ttl time.Duration) (bool, error) {
	if err := validate(donorID, requestID, ttl); err != nil {
		return false, err
	}
	key := r.donorKey(donorID)
	ok, err := r.rdb.SetNX(ctx, key, requestID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve donor %s: %w", donorID, err)
	}
	if !ok {
		holder, err := r.rdb.Get(ctx, key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			// Expired between SETNX and GET; try once more.
			ok, err = r.rdb.SetNX(ctx, key, requestID, ttl).Result()
			if err != nil {
				return false, fmt.Errorf("reserve donor %s: %w", donorID, err)
			}
			if !ok {
				return false, nil
			}
		case err != nil:
			return false, fmt.Errorf("read holder of donor %s: %w", donorID, err)
		case holder != requestID:
			return false, nil
		default:
			if err := r.rdb.PExpire(ctx, key, ttl).Err(); err != nil {
				return false, fmt.Errorf("refresh donor %s: %w", donorID, err)
			}
		}
	}

	reqKey := r.requestKey(requestID)
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, reqKey, donorID)
	pipe.PExpire(ctx, reqKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("index reservation for request %s: %w", requestID, err)
	}
	return true, nil
}

func (r *RedisReserver) Holder(ctx context.Context, donorID string) (string, bool, error) {
	holder, err := r.rdb.Get(ctx, r.donorKey(donorID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read holder of donor %s: %w", donorID, err)
	}
	return holder, true, nil
}

func (r *RedisReserver) Release(ctx context.Context, donorID, requestID string) error {
	keys := []string{r.donorKey(donorID), r.requestKey(requestID)}
	if err := releaseScript.Run(ctx, r.rdb, keys, requestID, donorID).Err(); err != nil {
		return fmt.Errorf("release donor %s: %w", donorID, err)
	}
	return nil
}

func (r *RedisReserver) ReleaseRequest(ctx context.Context, requestID string) error {
	reqKey := r.requestKey(requestID)
	donors, err := r.rdb.SMembers(ctx, reqKey).Result()
	if err != nil {
		return fmt.Errorf("list reservations for request %s: %w", requestID, err)
	}
	for _, donorID := range donors {
		if err := r.Release(ctx, donorID, requestID); err != nil {
			return err
		}
	}
	if err := r.rdb.Del(ctx, reqKey).Err(); err != nil {
		return fmt.Errorf("drop reservation index for request %s: %w", requestID, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *RedisReserver) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisReserver) Close() error {
	return r.rdb.Close()
}
