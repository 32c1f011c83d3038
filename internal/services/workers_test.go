package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

func tenantIs(id int64) any {
	return mock.MatchedBy(func(ctx context.Context) bool {
		tid, ok := tenant.FromContext(ctx)
		return ok && tid == id
	})
}

func TestReminderWorker_RunOnce(t *testing.T) {
	tasks := new(MockTaskRepository)
	notifier := new(MockNotifier)
	w := NewReminderWorker(tasks, notifier, zap.NewNop())
	ctx := context.Background()

	due := time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)
	tasks.On("ListDueForReminder", ctx, reminderBatch).Return([]models.Task{
		{ID: 1, TenantID: 10, AssigneeID: 100, Title: "Call back", DueDate: &due},
		{ID: 2, TenantID: 20, AssigneeID: 200, Title: "Send deck"},
		{ID: 3, TenantID: 20, AssigneeID: 300, Title: "Broken"},
	}, nil)

	notifier.On("Notify", tenantIs(10), mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 100 && n.Kind == models.NotifyTaskReminder && n.Body == "Due 2026-06-01 10:30"
	})).Return(nil)
	notifier.On("Notify", tenantIs(20), mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 200
	})).Return(nil)
	notifier.On("Notify", tenantIs(20), mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 300
	})).Return(errors.New("db down"))

	tasks.On("SetReminderFired", tenantIs(10), int64(1)).Return(nil)
	tasks.On("SetReminderFired", tenantIs(20), int64(2)).Return(nil)

	fired, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
	tasks.AssertExpectations(t)
	tasks.AssertNotCalled(t, "SetReminderFired", mock.Anything, int64(3))
}

func TestReminderWorker_ListError(t *testing.T) {
	tasks := new(MockTaskRepository)
	w := NewReminderWorker(tasks, new(MockNotifier), zap.NewNop())
	tasks.On("ListDueForReminder", mock.Anything, reminderBatch).Return(nil, errors.New("boom"))

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunEvery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 10)
	done := make(chan struct{})
	go func() {
		RunEvery(ctx, 5*time.Millisecond, "test", zap.NewNop(), func(context.Context) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return errors.New("keeps going")
		})
		close(done)
	}()

	<-calls
	<-calls
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEvery did not stop")
	}
}
