package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrStockNotCached is returned when a product has no mirrored stock entry
var ErrStockNotCached = errors.New("stock not cached")

// releaseLockScript deletes the lock only if this holder still owns it
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func inventoryKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// SetStock mirrors the stock level of a product
func (c *Client) SetStock(ctx context.Context, productID int64, quantity int) error {
	key := inventoryKey(productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", quantity)
	pipe.HSet(ctx, key, "synced_at", time.Now().Unix())

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock reads the mirrored stock level of a product
func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	val, err := c.rdb.HGet(ctx, inventoryKey(productID), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrStockNotCached
	}
	if err != nil {
		return 0, err
	}

	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid cached stock for product %d: %w", productID, err)
	}
	return qty, nil
}

// Lock is a held distributed lock
type Lock struct {
	key   string
	token string
}

// AcquireLock takes a distributed lock for ttl. It returns nil without an
// error when another holder has it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: fmt.Sprintf("lock:%s", lockKey), token: uuid.New().String()}

	ok, err := c.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// ReleaseLock releases a lock if it is still held by this holder
func (c *Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	return releaseLockScript.Run(ctx, c.rdb, []string{lock.key}, lock.token).Err()
}
