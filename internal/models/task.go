package models

import "time"

type TaskStatus string

const (
	TaskNew        TaskStatus = "new"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RecordType names the CRM record a task hangs off. Empty means the task
// is free-standing.
type RecordType string

const (
	RecordNone    RecordType = ""
	RecordContact RecordType = "contact"
	RecordCompany RecordType = "company"
	RecordDeal    RecordType = "deal"
	RecordQuote   RecordType = "quote"
	RecordMeeting RecordType = "meeting"
)

func (r RecordType) Valid() bool {
	switch r {
	case RecordNone, RecordContact, RecordCompany, RecordDeal, RecordQuote, RecordMeeting:
		return true
	}
	return false
}

// Task is a to-do owned by its creator and worked by its assignee. Both
// count as owners for own-scope access.
type Task struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	CreatorID  int64      `json:"creator_id"`
	AssigneeID int64      `json:"assignee_id"`
	EntityType RecordType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`

	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`

	DueDate        *time.Time `json:"due_date,omitempty"`
	ReminderAt     *time.Time `json:"reminder_at,omitempty"`
	LastRemindedAt *time.Time `json:"last_reminded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TaskFilter struct {
	AssigneeID *int64
	CreatorID  *int64
	// VisibleTo keeps tasks the user created or is assigned to.
	VisibleTo  *int64
	EntityType *RecordType
	EntityID   *int64
	Status     *TaskStatus
	Limit      int
	Offset     int
}
