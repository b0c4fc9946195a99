package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "donorsync:queue:"

// Broker is the transport tasks travel through. Dequeue blocks up to timeout
// across the given org queues and returns nil when none produced a task.
type Broker interface {
	Enqueue(ctx context.Context, task *Task) error
	Dequeue(ctx context.Context, orgSlugs []string, timeout time.Duration) (*Task, error)
}

type redisBroker struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisBroker backs the task queues with redis lists, one per org.
func NewRedisBroker(rdb *redis.Client, log *zap.Logger) Broker {
	return &redisBroker{rdb: rdb, log: log.Named("queue")}
}

func queueKey(orgSlug string) string { return keyPrefix + orgSlug }

func (b *redisBroker) Enqueue(ctx context.Context, task *Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	if err := b.rdb.LPush(ctx, queueKey(task.OrgSlug), raw).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	b.log.Debug("task enqueued",
		zap.String("task_id", task.ID),
		zap.String("org", task.OrgSlug),
		zap.String("kind", task.Kind),
	)
	return nil
}

func (b *redisBroker) Dequeue(ctx context.Context, orgSlugs []string, timeout time.Duration) (*Task, error) {
	if len(orgSlugs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(orgSlugs))
	for i, slug := range orgSlugs {
		keys[i] = queueKey(slug)
	}

	res, err := b.rdb.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP returns [key, value]
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("decode task from %s: %w", res[0], err)
	}
	return &task, nil
}
