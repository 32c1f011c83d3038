package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type ContactRepository interface {
	Create(ctx context.Context, c *models.Contact) error
	Update(ctx context.Context, c *models.Contact) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	List(ctx context.Context, f models.ContactFilter) ([]*models.Contact, error)
	UpdateStage(ctx context.Context, id int64, stage models.LifecycleStage) error
	// ApplyScore stores the new score/stage and appends the event atomically.
	ApplyScore(ctx context.Context, c *models.Contact, ev *models.ScoreEvent) error
	ListScoreEvents(ctx context.Context, contactID int64, limit int) ([]models.ScoreEvent, error)
	ListAudience(ctx context.Context, f models.AudienceFilter) ([]*models.Contact, error)
	CountByStage(ctx context.Context, ownerID *int64) (map[models.LifecycleStage]int, error)
}

type contactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

const contactColumns = `id, tenant_id, owner_id, company_id, first_name, last_name, email, phone, title,
	lifecycle_stage, score, unsubscribed, created_at, updated_at`

func scanContact(row scanner) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(&c.ID, &c.TenantID, &c.OwnerID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email,
		&c.Phone, &c.Title, &c.LifecycleStage, &c.Score, &c.Unsubscribed, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contactRepository) Create(ctx context.Context, c *models.Contact) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	c.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (tenant_id, owner_id, company_id, first_name, last_name, email, phone, title,
			lifecycle_stage, score, unsubscribed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		tid, c.OwnerID, c.CompanyID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title,
		c.LifecycleStage, c.Score, c.Unsubscribed,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

func (r *contactRepository) Update(ctx context.Context, c *models.Contact) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE contacts
		SET owner_id = $1, company_id = $2, first_name = $3, last_name = $4, email = $5, phone = $6,
			title = $7, lifecycle_stage = $8, unsubscribed = $9, updated_at = NOW()
		WHERE tenant_id = $10 AND id = $11
		RETURNING updated_at`,
		c.OwnerID, c.CompanyID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title, c.LifecycleStage,
		c.Unsubscribed, tid, c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return notFound(err, "update contact")
	}
	return nil
}

func (r *contactRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return expectOne(res, "delete contact")
}

func (r *contactRepository) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get contact")
	}
	return c, nil
}

func (r *contactRepository) List(ctx context.Context, f models.ContactFilter) ([]*models.Contact, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = ` + a.add(tid)
	if f.OwnerID != nil {
		query += ` AND owner_id = ` + a.add(*f.OwnerID)
	}
	if f.CompanyID != nil {
		query += ` AND company_id = ` + a.add(*f.CompanyID)
	}
	if f.Stage != nil {
		query += ` AND lifecycle_stage = ` + a.add(*f.Stage)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := a.add("%" + q + "%")
		query += fmt.Sprintf(` AND (first_name ILIKE %s OR last_name ILIKE %s OR email ILIKE %s)`, p, p, p)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + a.add(pageLimit(f.Limit)) + ` OFFSET ` + a.add(f.Offset)

	return r.query(ctx, query, a.args...)
}

func (r *contactRepository) query(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *contactRepository) UpdateStage(ctx context.Context, id int64, stage models.LifecycleStage) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET lifecycle_stage = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3`, stage, tid, id)
	if err != nil {
		return fmt.Errorf("update contact stage: %w", err)
	}
	return expectOne(res, "update contact stage")
}

func (r *contactRepository) ApplyScore(ctx context.Context, c *models.Contact, ev *models.ScoreEvent) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE contacts SET score = $1, lifecycle_stage = $2, updated_at = NOW()
			WHERE tenant_id = $3 AND id = $4`, c.Score, c.LifecycleStage, tid, c.ID)
		if err != nil {
			return fmt.Errorf("update contact score: %w", err)
		}
		if err := expectOne(res, "update contact score"); err != nil {
			return err
		}
		ev.TenantID = tid
		err = tx.QueryRowContext(ctx, `
			INSERT INTO contact_score_events (tenant_id, contact_id, event_type, points, score_after)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			tid, ev.ContactID, ev.EventType, ev.Points, ev.ScoreAfter,
		).Scan(&ev.ID, &ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert score event: %w", err)
		}
		return nil
	})
}

func (r *contactRepository) ListScoreEvents(ctx context.Context, contactID int64, limit int) ([]models.ScoreEvent, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, contact_id, event_type, points, score_after, created_at
		FROM contact_score_events
		WHERE tenant_id = $1 AND contact_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, tid, contactID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list score events: %w", err)
	}
	defer rows.Close()

	var out []models.ScoreEvent
	for rows.Next() {
		var ev models.ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.ContactID, &ev.EventType, &ev.Points, &ev.ScoreAfter, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *contactRepository) ListAudience(ctx context.Context, f models.AudienceFilter) ([]*models.Contact, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE tenant_id = ` + a.add(tid) + ` AND email <> '' AND NOT unsubscribed`
	if f.Stage != nil {
		query += ` AND lifecycle_stage = ` + a.add(*f.Stage)
	}
	query += ` ORDER BY id`
	return r.query(ctx, query, a.args...)
}

func (r *contactRepository) CountByStage(ctx context.Context, ownerID *int64) (map[models.LifecycleStage]int, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT lifecycle_stage, COUNT(*) FROM contacts WHERE tenant_id = ` + a.add(tid)
	if ownerID != nil {
		query += ` AND owner_id = ` + a.add(*ownerID)
	}
	rows, err := r.db.QueryContext(ctx, query+` GROUP BY lifecycle_stage`, a.args...)
	if err != nil {
		return nil, fmt.Errorf("count contacts by stage: %w", err)
	}
	defer rows.Close()

	out := make(map[models.LifecycleStage]int)
	for rows.Next() {
		var (
			stage models.LifecycleStage
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		out[stage] = n
	}
	return out, rows.Err()
}
