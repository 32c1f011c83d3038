package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

const reminderBatch = 200

// RunEvery calls fn once per interval until ctx is cancelled. Errors are
// logged and the loop keeps going.
func RunEvery(ctx context.Context, interval time.Duration, name string, log *zap.Logger, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("[worker][start]", zap.String("worker", name), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("[worker][stop]", zap.String("worker", name))
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Error("[worker][run] failed", zap.String("worker", name), zap.Error(err))
			}
		}
	}
}

// ReminderWorker turns due task reminders into notifications.
type ReminderWorker struct {
	tasks    repositories.TaskRepository
	notifier Notifier
	log      *zap.Logger
}

func NewReminderWorker(tasks repositories.TaskRepository, notifier Notifier, log *zap.Logger) *ReminderWorker {
	return &ReminderWorker{tasks: tasks, notifier: notifier, log: log}
}

// RunOnce handles one batch of due reminders and reports how many fired.
// A reminder whose notification fails stays due and is retried next tick.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.tasks.ListDueForReminder(ctx, reminderBatch)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, t := range due {
		tctx := tenant.WithID(ctx, t.TenantID)
		body := t.Description
		if t.DueDate != nil {
			body = "Due " + t.DueDate.Format("2006-01-02 15:04")
		}
		err := w.notifier.Notify(tctx, &models.Notification{
			UserID:     t.AssigneeID,
			Kind:       models.NotifyTaskReminder,
			Title:      "Reminder: " + t.Title,
			Body:       body,
			EntityType: "task",
			EntityID:   t.ID,
		})
		if err != nil {
			w.log.Warn("[reminders][notify] failed", zap.Int64("task_id", t.ID), zap.Error(err))
			continue
		}
		if err := w.tasks.SetReminderFired(tctx, t.ID); err != nil {
			w.log.Warn("[reminders][mark] failed", zap.Int64("task_id", t.ID), zap.Error(err))
			continue
		}
		fired++
	}
	if fired > 0 {
		w.log.Info("[reminders][run] reminders sent", zap.Int("count", fired))
	}
	return fired, nil
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	_, err := w.RunOnce(ctx)
	return err
}
