package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id int64) error

	UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error
	UpdateAssignee(ctx context.Context, id int64, assigneeID int64) error
	// ListDueForReminder scans every tenant; it is used by the reminder worker.
	ListDueForReminder(ctx context.Context, limit int) ([]models.Task, error)
	SetReminderFired(ctx context.Context, id int64) error
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, tenant_id, creator_id, assignee_id, entity_id, entity_type, title, description,
	due_date, reminder_at, last_reminded_at, priority, status, created_at, updated_at`

func scanTask(row scanner, t *models.Task) error {
	return row.Scan(
		&t.ID, &t.TenantID, &t.CreatorID, &t.AssigneeID, &t.EntityID, &t.EntityType,
		&t.Title, &t.Description, &t.DueDate, &t.ReminderAt, &t.LastRemindedAt,
		&t.Priority, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	task.TenantID = tid
	query := `
		INSERT INTO tasks (
			tenant_id, creator_id, assignee_id, entity_id, entity_type, title, description,
			due_date, reminder_at, priority, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		tid, task.CreatorID, task.AssigneeID, task.EntityID, task.EntityType,
		task.Title, task.Description, task.DueDate, task.ReminderAt, task.Priority, task.Status,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	task := &models.Task{}
	err = scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE tenant_id = $1 AND id = $2`, tid, id), task)
	if err != nil {
		return nil, notFound(err, "get task")
	}
	return task, nil
}

func (r *taskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	conditions := []string{"tenant_id = " + a.add(tid)}

	if filter.AssigneeID != nil {
		conditions = append(conditions, "assignee_id = "+a.add(*filter.AssigneeID))
	}
	if filter.CreatorID != nil {
		conditions = append(conditions, "creator_id = "+a.add(*filter.CreatorID))
	}
	if filter.VisibleTo != nil {
		p := a.add(*filter.VisibleTo)
		conditions = append(conditions, fmt.Sprintf("(creator_id = %s OR assignee_id = %s)", p, p))
	}
	if filter.EntityType != nil {
		conditions = append(conditions, "entity_type = "+a.add(*filter.EntityType))
	}
	if filter.EntityID != nil {
		conditions = append(conditions, "entity_id = "+a.add(*filter.EntityID))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+a.add(*filter.Status))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ` + a.add(pageLimit(filter.Limit)) + ` OFFSET ` + a.add(filter.Offset)

	return r.list(ctx, query, a.args...)
}

func (r *taskRepository) list(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			assignee_id=$1, title=$2, description=$3, due_date=$4,
			reminder_at=$5, last_reminded_at=$6, priority=$7, status=$8,
			entity_type=$9, entity_id=$10, updated_at=NOW()
		WHERE tenant_id=$11 AND id=$12
		RETURNING updated_at`,
		task.AssigneeID, task.Title, task.Description, task.DueDate,
		task.ReminderAt, task.LastRemindedAt, task.Priority, task.Status,
		task.EntityType, task.EntityID, tid, task.ID,
	).Scan(&task.UpdatedAt)
	if err != nil {
		return notFound(err, "update task")
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "delete task", `DELETE FROM tasks WHERE tenant_id = $1 AND id = $2`, id)
}

func (r *taskRepository) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error {
	return r.exec(ctx, "update task status",
		`UPDATE tasks SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, id, to)
}

func (r *taskRepository) UpdateAssignee(ctx context.Context, id int64, assigneeID int64) error {
	return r.exec(ctx, "update task assignee",
		`UPDATE tasks SET assignee_id=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, id, assigneeID)
}

func (r *taskRepository) SetReminderFired(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark reminder",
		`UPDATE tasks SET last_reminded_at = NOW(), updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, id)
}

// exec runs a single-row statement whose first two parameters are tenant and id.
func (r *taskRepository) exec(ctx context.Context, what, query string, id int64, extra ...any) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	args := append([]any{tid, id}, extra...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return expectOne(res, what)
}

func (r *taskRepository) ListDueForReminder(ctx context.Context, limit int) ([]models.Task, error) {
	q := `
SELECT ` + taskColumns + `
FROM tasks
WHERE reminder_at IS NOT NULL
  AND reminder_at <= NOW()
  AND (last_reminded_at IS NULL OR last_reminded_at < reminder_at)
  AND status NOT IN ('done','cancelled')
ORDER BY reminder_at ASC
LIMIT $1`
	return r.list(ctx, q, pageLimit(limit))
}
