package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type MeetingRepository interface {
	Create(ctx context.Context, m *models.Meeting) error
	Update(ctx context.Context, m *models.Meeting) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Meeting, error)
	List(ctx context.Context, f models.MeetingFilter) ([]*models.Meeting, error)
	// FindOverlapping returns meetings that involve any of userIDs and
	// intersect [start, end). excludeID skips the meeting being edited.
	FindOverlapping(ctx context.Context, userIDs []int64, start, end time.Time, excludeID int64) ([]*models.Meeting, error)
}

type meetingRepository struct {
	db *sql.DB
}

func NewMeetingRepository(db *sql.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

const meetingColumns = `id, tenant_id, organizer_id, title, description, location, starts_at, ends_at,
	contact_id, deal_id, attendee_ids, created_at, updated_at`

func scanMeeting(row scanner) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.ID, &m.TenantID, &m.OrganizerID, &m.Title, &m.Description, &m.Location, &m.StartsAt,
		&m.EndsAt, &m.ContactID, &m.DealID, pq.Array(&m.AttendeeIDs), &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if m.AttendeeIDs == nil {
		m.AttendeeIDs = []int64{}
	}
	return &m, nil
}

func (r *meetingRepository) Create(ctx context.Context, m *models.Meeting) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	m.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO meetings (tenant_id, organizer_id, title, description, location, starts_at, ends_at,
			contact_id, deal_id, attendee_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		tid, m.OrganizerID, m.Title, m.Description, m.Location, m.StartsAt, m.EndsAt, m.ContactID, m.DealID,
		pq.Array(m.AttendeeIDs),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

func (r *meetingRepository) Update(ctx context.Context, m *models.Meeting) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE meetings
		SET title = $1, description = $2, location = $3, starts_at = $4, ends_at = $5, contact_id = $6,
			deal_id = $7, attendee_ids = $8, updated_at = NOW()
		WHERE tenant_id = $9 AND id = $10
		RETURNING updated_at`,
		m.Title, m.Description, m.Location, m.StartsAt, m.EndsAt, m.ContactID, m.DealID,
		pq.Array(m.AttendeeIDs), tid, m.ID,
	).Scan(&m.UpdatedAt)
	if err != nil {
		return notFound(err, "update meeting")
	}
	return nil
}

func (r *meetingRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM meetings WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return expectOne(res, "delete meeting")
}

func (r *meetingRepository) GetByID(ctx context.Context, id int64) (*models.Meeting, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	m, err := scanMeeting(r.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get meeting")
	}
	return m, nil
}

func (r *meetingRepository) List(ctx context.Context, f models.MeetingFilter) ([]*models.Meeting, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE tenant_id = ` + a.add(tid)
	if f.UserID != nil {
		p := a.add(*f.UserID)
		query += fmt.Sprintf(` AND (organizer_id = %s OR %s = ANY(attendee_ids))`, p, p)
	}
	if f.From != nil {
		query += ` AND ends_at > ` + a.add(*f.From)
	}
	if f.To != nil {
		query += ` AND starts_at < ` + a.add(*f.To)
	}
	query += ` ORDER BY starts_at, id LIMIT ` + a.add(maxLimit)
	return r.query(ctx, query, a.args...)
}

func (r *meetingRepository) FindOverlapping(ctx context.Context, userIDs []int64, start, end time.Time, excludeID int64) ([]*models.Meeting, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, `
		SELECT `+meetingColumns+` FROM meetings
		WHERE tenant_id = $1
		  AND id <> $2
		  AND (organizer_id = ANY($3) OR attendee_ids && $3)
		  AND starts_at < $5 AND ends_at > $4
		ORDER BY starts_at, id`,
		tid, excludeID, pq.Array(userIDs), start, end)
}

func (r *meetingRepository) query(ctx context.Context, query string, args ...any) ([]*models.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var out []*models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
