package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

const replayLockKey = "webhook-replay"

// ErrReplayLocked is returned when another instance is replaying
var ErrReplayLocked = errors.New("webhook replay already running")

// Locker is a distributed mutual exclusion
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (*redisclient.Lock, error)
	ReleaseLock(ctx context.Context, lock *redisclient.Lock) error
}

// Replayer is what the webhook replayer drives
type Replayer interface {
	Replay(ctx context.Context, limit int) (*service.ReplayReport, error)
}

// WebhookReplayer re-processes recorded webhook deliveries that never got
// marked processed. At most one instance runs a batch at a time.
type WebhookReplayer struct {
	replayer  Replayer
	locker    Locker
	batchSize int
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewWebhookReplayer creates a new webhook replayer
func NewWebhookReplayer(replayer Replayer, locker Locker, batchSize int, lockTTL time.Duration) *WebhookReplayer {
	return &WebhookReplayer{
		replayer:  replayer,
		locker:    locker,
		batchSize: batchSize,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// RunOnce replays one batch under the replay lock
func (w *WebhookReplayer) RunOnce(ctx context.Context) (*service.ReplayReport, error) {
	lock, err := w.locker.AcquireLock(ctx, replayLockKey, w.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire replay lock: %w", err)
	}
	if lock == nil {
		return nil, ErrReplayLocked
	}
	defer func() {
		if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), lock); err != nil {
			w.logger.Warn("Failed to release replay lock", zap.Error(err))
		}
	}()

	return w.replayer.Replay(ctx, w.batchSize)
}

// Start replays a batch every interval until ctx is done
func (w *WebhookReplayer) Start(ctx context.Context, interval time.Duration) error {
	w.logger.Info("Starting webhook replayer", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping webhook replayer")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrReplayLocked) {
				w.logger.Error("Webhook replay failed", zap.Error(err))
			}
		}
	}
}
