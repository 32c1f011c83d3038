package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

// TaskService defines the interface for task-related business logic.
type TaskService interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, id int64, updateData *models.Task) (*models.Task, error)
	Delete(ctx context.Context, id int64) error

	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error)
	UpdateAssignee(ctx context.Context, id int64, assigneeID int64) (*models.Task, error)
}

type taskService struct {
	repo     repositories.TaskRepository
	users    repositories.UserRepository
	notifier Notifier
	log      *zap.Logger
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(repo repositories.TaskRepository, users repositories.UserRepository, notifier Notifier, log *zap.Logger) TaskService {
	return &taskService{repo: repo, users: users, notifier: notifier, log: log}
}

func (s *taskService) validate(ctx context.Context, task *models.Task) error {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if task.Priority == "" {
		task.Priority = models.PriorityNormal
	}
	if !task.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", models.ErrInvalidInput, task.Priority)
	}
	if !task.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", models.ErrInvalidInput, task.EntityType)
	}
	if task.EntityType == models.RecordNone {
		task.EntityID = 0
	}
	if task.AssigneeID == 0 {
		task.AssigneeID = task.CreatorID
	}
	if _, err := s.users.GetByID(ctx, task.AssigneeID); err != nil {
		return fmt.Errorf("%w: assignee %d: %v", models.ErrInvalidInput, task.AssigneeID, err)
	}
	return nil
}

func (s *taskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	task.Status = models.TaskNew
	if err := s.validate(ctx, task); err != nil {
		return nil, err
	}
	if err := s.repo.Store(ctx, task); err != nil {
		return nil, err
	}
	s.notifyAssigned(ctx, task)
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) GetAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	return s.repo.FindAll(ctx, filter)
}

// Update rewrites the editable fields. Status changes go through UpdateStatus.
func (s *taskService) Update(ctx context.Context, id int64, updateData *models.Task) (*models.Task, error) {
	existingTask, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prevAssignee := existingTask.AssigneeID

	existingTask.AssigneeID = updateData.AssigneeID
	existingTask.EntityType = updateData.EntityType
	existingTask.EntityID = updateData.EntityID
	existingTask.Title = updateData.Title
	existingTask.Description = updateData.Description
	existingTask.DueDate = updateData.DueDate
	existingTask.Priority = updateData.Priority
	if !sameTime(existingTask.ReminderAt, updateData.ReminderAt) {
		existingTask.ReminderAt = updateData.ReminderAt
		existingTask.LastRemindedAt = nil
	}
	if err := s.validate(ctx, existingTask); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, existingTask); err != nil {
		return nil, err
	}
	if existingTask.AssigneeID != prevAssignee {
		s.notifyAssigned(ctx, existingTask)
	}
	return existingTask, nil
}

func (s *taskService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *taskService) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(string(task.Status), string(to), TaskTransitions) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, task.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) UpdateAssignee(ctx context.Context, id int64, assigneeID int64) (*models.Task, error) {
	if _, err := s.users.GetByID(ctx, assigneeID); err != nil {
		return nil, fmt.Errorf("%w: assignee %d: %v", models.ErrInvalidInput, assigneeID, err)
	}
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.AssigneeID == assigneeID {
		return task, nil
	}
	if err := s.repo.UpdateAssignee(ctx, id, assigneeID); err != nil {
		return nil, err
	}
	task.AssigneeID = assigneeID
	s.notifyAssigned(ctx, task)
	return s.repo.FindByID(ctx, id)
}

func (s *taskService) notifyAssigned(ctx context.Context, task *models.Task) {
	if s.notifier == nil || task.AssigneeID == task.CreatorID {
		return
	}
	err := s.notifier.Notify(ctx, &models.Notification{
		UserID:     task.AssigneeID,
		Kind:       models.NotifyTaskAssigned,
		Title:      "New task: " + task.Title,
		Body:       task.Description,
		EntityType: "task",
		EntityID:   task.ID,
	})
	if err != nil {
		s.log.Warn("[tasks][notify] assignment notification failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
