package queue

import (
	"context"
	"time"

	"github.com/donorsync/donorsync/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// FailedTask is the dead-letter record written when a task is dropped, either
// because the error is permanent or because retries ran out. The raw payload
// is kept so the task can be inspected and replayed by hand.
type FailedTask struct {
	ID       string         `gorm:"primaryKey;type:text"`
	OrgSlug  string         `gorm:"type:text;not null;index"`
	Kind     string         `gorm:"type:text;not null"`
	Payload  datatypes.JSON `gorm:"not null"`
	Attempts int            `gorm:"not null"`
	Reason   string         `gorm:"type:text"`
	FailedAt time.Time      `gorm:"not null"`
}

func (FailedTask) TableName() string { return "failed_tasks" }

func (w *Worker) deadLetter(ctx context.Context, task *Task, cause error) {
	record := &FailedTask{
		ID:       task.ID,
		OrgSlug:  task.OrgSlug,
		Kind:     task.Kind,
		Payload:  datatypes.JSON(task.Payload),
		Attempts: task.Attempt + 1,
		Reason:   cause.Error(),
		FailedAt: w.clock.Now(),
	}
	if err := w.db.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			w.log.Debug("task already dead-lettered", zap.String("task_id", task.ID))
			return
		}
		w.log.Error("dead-letter write failed", zap.Error(err), zap.String("task_id", task.ID))
	}
}
