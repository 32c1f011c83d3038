package models

import "time"

type Meeting struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	OrganizerID int64     `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	ContactID   *int64    `json:"contact_id,omitempty"`
	DealID      *int64    `json:"deal_id,omitempty"`
	AttendeeIDs []int64   `json:"attendee_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Overlaps reports whether two half-open intervals [start, end) intersect.
func (m *Meeting) Overlaps(start, end time.Time) bool {
	return m.StartsAt.Before(end) && start.Before(m.EndsAt)
}

type MeetingFilter struct {
	// UserID matches organizer or attendee.
	UserID *int64
	From   *time.Time
	To     *time.Time
}
