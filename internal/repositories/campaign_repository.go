package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type EmailTemplateRepository interface {
	Create(ctx context.Context, t *models.EmailTemplate) error
	Update(ctx context.Context, t *models.EmailTemplate) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.EmailTemplate, error)
	List(ctx context.Context) ([]*models.EmailTemplate, error)
}

type emailTemplateRepository struct {
	db *sql.DB
}

func NewEmailTemplateRepository(db *sql.DB) EmailTemplateRepository {
	return &emailTemplateRepository{db: db}
}

const templateColumns = `id, tenant_id, name, subject, body_html, created_at, updated_at`

func scanTemplate(row scanner) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Subject, &t.BodyHTML, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *emailTemplateRepository) Create(ctx context.Context, t *models.EmailTemplate) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	t.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO email_templates (tenant_id, name, subject, body_html)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		tid, t.Name, t.Subject, t.BodyHTML,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create email template: %w", err)
	}
	return nil
}

func (r *emailTemplateRepository) Update(ctx context.Context, t *models.EmailTemplate) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE email_templates SET name = $1, subject = $2, body_html = $3, updated_at = NOW()
		WHERE tenant_id = $4 AND id = $5
		RETURNING updated_at`,
		t.Name, t.Subject, t.BodyHTML, tid, t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return notFound(err, "update email template")
	}
	return nil
}

func (r *emailTemplateRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	var inUse int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaigns
		WHERE tenant_id = $1 AND template_id = $2 AND status IN ('draft', 'scheduled', 'sending')`,
		tid, id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("check template usage: %w", err)
	}
	if inUse > 0 {
		return fmt.Errorf("template used by %d pending campaigns: %w", inUse, models.ErrConflict)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_templates WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete email template: %w", err)
	}
	return expectOne(res, "delete email template")
}

func (r *emailTemplateRepository) GetByID(ctx context.Context, id int64) (*models.EmailTemplate, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	t, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get email template")
	}
	return t, nil
}

func (r *emailTemplateRepository) List(ctx context.Context) ([]*models.EmailTemplate, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE tenant_id = $1 ORDER BY name, id`, tid)
	if err != nil {
		return nil, fmt.Errorf("list email templates: %w", err)
	}
	defer rows.Close()

	var out []*models.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	Update(ctx context.Context, c *models.Campaign) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	List(ctx context.Context, ownerID *int64) ([]*models.Campaign, error)
	// TransitionStatus moves from -> to only if the row is still in from.
	TransitionStatus(ctx context.Context, id int64, from, to models.CampaignStatus) error
	RecordResult(ctx context.Context, id int64, recipients, sent, failed int, sentAt time.Time) error
	// ListDueScheduled scans every tenant for scheduled campaigns whose time has come.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
}

type campaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `id, tenant_id, owner_id, name, template_id, audience_stage, status, scheduled_at,
	sent_at, recipients, sent_count, failed_count, created_at, updated_at`

func scanCampaign(row scanner) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.TenantID, &c.OwnerID, &c.Name, &c.TemplateID, &c.AudienceStage, &c.Status,
		&c.ScheduledAt, &c.SentAt, &c.Recipients, &c.SentCount, &c.FailedCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	c.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (tenant_id, owner_id, name, template_id, audience_stage, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		tid, c.OwnerID, c.Name, c.TemplateID, c.AudienceStage, c.Status, c.ScheduledAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update is only allowed while the campaign is a draft or scheduled.
func (r *campaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		UPDATE campaigns
		SET name = $1, template_id = $2, audience_stage = $3, status = $4, scheduled_at = $5, updated_at = NOW()
		WHERE tenant_id = $6 AND id = $7 AND status IN ('draft', 'scheduled')
		RETURNING updated_at`,
		c.Name, c.TemplateID, c.AudienceStage, c.Status, c.ScheduledAt, tid, c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return notFound(err, "update campaign")
	}
	return nil
}

func (r *campaignRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE tenant_id = $1 AND id = $2 AND status <> 'sending'`, tid, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return expectOne(res, "delete campaign")
}

func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get campaign")
	}
	return c, nil
}

func (r *campaignRepository) List(ctx context.Context, ownerID *int64) ([]*models.Campaign, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var a argList
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id = ` + a.add(tid)
	if ownerID != nil {
		query += ` AND owner_id = ` + a.add(*ownerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return r.query(ctx, query, a.args...)
}

func (r *campaignRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at, id
		LIMIT $2`, now, pageLimit(limit))
}

func (r *campaignRepository) query(ctx context.Context, query string, args ...any) ([]*models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *campaignRepository) TransitionStatus(ctx context.Context, id int64, from, to models.CampaignStatus) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3 AND status = $4`, to, tid, id, from)
	if err != nil {
		return fmt.Errorf("campaign status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("campaign status: %w", err)
	} else if n == 0 {
		return fmt.Errorf("campaign %d is no longer %s: %w", id, from, models.ErrConflict)
	}
	return nil
}

func (r *campaignRepository) RecordResult(ctx context.Context, id int64, recipients, sent, failed int, sentAt time.Time) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sent', recipients = $1, sent_count = $2, failed_count = $3, sent_at = $4, updated_at = NOW()
		WHERE tenant_id = $5 AND id = $6`,
		recipients, sent, failed, sentAt, tid, id)
	if err != nil {
		return fmt.Errorf("record campaign result: %w", err)
	}
	return expectOne(res, "record campaign result")
}
