package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/EZERROUK/x-panel-sub002/internal/jobs"
)

// PromotionExpirer deactivates expired promotions.
type PromotionExpirer interface {
	ExpirePromotions(ctx context.Context) (int64, error)
}

// KeyCleaner purges old idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PromotionsExpireJob runs the periodic promotion expiry sweep.
type PromotionsExpireJob struct {
	Promotions PromotionExpirer
	Keys       KeyCleaner
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewPromotionsExpireJob wires dependencies for the expiry handler.
func NewPromotionsExpireJob(promotions PromotionExpirer, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PromotionsExpireJob {
	return &PromotionsExpireJob{Promotions: promotions, Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPromotionsExpire tasks.
func (j *PromotionsExpireJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Promotions == nil {
		return errors.New("promotions expire: handler not configured")
	}
	var payload PromotionsExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskPromotionsExpire)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger()

	expired, err := j.Promotions.ExpirePromotions(ctx)
	if err != nil {
		logger.Error("expire promotions", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(TaskPromotionsExpire, "promotions", expired)

	var purged int64
	if j.Keys != nil && payload.IdempotencyRetention > 0 {
		purged, err = j.Keys.Cleanup(ctx, payload.IdempotencyRetention)
		if err != nil {
			logger.Error("purge idempotency keys", slog.Any("error", err))
			return err
		}
		j.Metrics.AddAffected(TaskPromotionsExpire, "idempotency_keys", purged)
	}

	logger.Info("promotions expiry sweep finished",
		slog.Int64("deactivated", expired),
		slog.Int64("idempotency_keys_purged", purged))
	return nil
}

func (j *PromotionsExpireJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("task", TaskPromotionsExpire))
	}
	return slog.Default().With(slog.String("task", TaskPromotionsExpire))
}
