package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPromotionsExpire deactivates promotions whose validity window has ended.
	TaskPromotionsExpire = "promotions:expire"
)

// PromotionsExpirePayload configures one expiry sweep.
type PromotionsExpirePayload struct {
	// IdempotencyRetention purges apply keys older than this; zero keeps them.
	IdempotencyRetention time.Duration `json:"idempotency_retention"`
}

// NewPromotionsExpireTask constructs the expiry task.
func NewPromotionsExpireTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(PromotionsExpirePayload{IdempotencyRetention: retention})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s payload: %w", TaskPromotionsExpire, err)
	}
	return asynq.NewTask(TaskPromotionsExpire, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
