package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims entries older than the window, then records the
// attempt only while fewer than limit entries remain.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return 1
`)

// SlidingWindowCounter is a rate-limit counter shared by every API process.
type SlidingWindowCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewSlidingWindowCounter(client *redis.Client, prefix string) *SlidingWindowCounter {
	return &SlidingWindowCounter{client: client, prefix: prefix, now: time.Now}
}

// Hit records one attempt for key unless limit attempts already fall inside
// the window ending now. It reports whether the attempt was recorded.
func (c *SlidingWindowCounter) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := slidingWindowScript.Run(ctx, c.client,
		[]string{c.prefix + key},
		c.now().UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return res == 1, nil
}
