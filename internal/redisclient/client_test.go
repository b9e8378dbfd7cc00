package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires TEST_REDIS_ADDR")
	}

	client, err := NewClient(addr, os.Getenv("TEST_REDIS_PASSWORD"), 15)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStockMirror(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()

	productID := time.Now().UnixNano()
	t.Cleanup(func() { client.GetClient().Del(ctx, inventoryKey(productID)) })

	_, err := client.GetStock(ctx, productID)
	assert.ErrorIs(t, err, ErrStockNotCached)

	require.NoError(t, client.SetStock(ctx, productID, 7))
	qty, err := client.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 7, qty)

	require.NoError(t, client.SetStock(ctx, productID, 0))
	qty, err = client.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	key := "test-" + uuid.New().String()

	first, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second, "lock must not be granted twice")

	require.NoError(t, client.ReleaseLock(ctx, first))

	third, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, client.ReleaseLock(ctx, third))
}

func TestLock_ReleaseKeepsForeignHolder(t *testing.T) {
	client := openTestClient(t)
	ctx := context.Background()
	key := "test-" + uuid.New().String()

	held, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)
	t.Cleanup(func() { client.ReleaseLock(ctx, held) })

	stale := &Lock{key: held.key, token: "someone-else"}
	require.NoError(t, client.ReleaseLock(ctx, stale))

	again, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "release with a foreign token must not drop the lock")
}

func TestReleaseLock_Nil(t *testing.T) {
	var c Client
	assert.NoError(t, c.ReleaseLock(context.Background(), nil))
}
