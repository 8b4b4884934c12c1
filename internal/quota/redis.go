package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"studypal/internal/types"
)

// incrScript atomically checks the counter against the limit and increments
// it only when under. Running this as a single Lua script is what prevents
// two racing requests from both passing the check at limit-1.
//
// KEYS[1] = counter key, ARGV[1] = limit, ARGV[2] = TTL seconds.
// Returns the counter after increment, or -1 when the limit is reached.
var incrScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
	return -1
end
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return count
`)

// refundScript decrements the counter without letting it go negative.
var refundScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
	redis.call("DECR", KEYS[1])
end
return current
`)

// RedisStore is the shared Store used in multi-instance deployments. Key
// expiry doubles as period reset: keys carry a TTL that outlives the month
// boundary, and a new month simply means a new key.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection before
// returning. Fails fast on an unreachable server so a misconfigured
// deployment does not silently run with dead metering.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis quota store", slog.String("addr", addr))
	return &RedisStore{client: client, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// IncrementIfAllowed implements Store via the atomic check-and-increment
// script.
func (s *RedisStore) IncrementIfAllowed(ctx context.Context, identity string, limit int) (Decision, error) {
	now := s.now()
	key := periodKey(identity, now)
	resetAt := periodEnd(now)
	ttl := int(resetAt.Add(graceTTL).Sub(now).Seconds())

	count, err := incrScript.Run(ctx, s.client, []string{key}, limit, ttl).Int()
	if err != nil {
		return Decision{}, types.NewAppError(types.ErrCodeInternalQuotaStore, "quota counter increment failed", err)
	}

	if count < 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: limit - count, ResetAt: resetAt}, nil
}

// Refund implements Store.
func (s *RedisStore) Refund(ctx context.Context, identity string) error {
	key := periodKey(identity, s.now())
	if err := refundScript.Run(ctx, s.client, []string{key}).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalQuotaStore, "quota counter refund failed", err)
	}
	return nil
}
